package parsing

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Usage is one alternative shape of a command's arguments. Only its last
// argument may have a variable arity, which keeps positional binding
// decidable.
type Usage struct {
	args    []*Argument
	min     int
	max     int
	err     error
	grammar *Grammar
}

// AddArgument appends an argument. The default arity is One. Errors are
// recorded on the usage and reported by Grammar.Err, so definitions can be
// chained.
func (u *Usage) AddArgument(name string, opts ...ArgumentOption) *Usage {
	if err := u.add(name, opts...); err != nil && u.err == nil {
		u.err = err
	}
	return u
}

func (u *Usage) add(name string, opts ...ArgumentOption) error {
	if u.grammar != nil && u.grammar.frozen {
		return fmt.Errorf("grammar %q is frozen", u.grammar.Name)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("argument name is required")
	}

	arg := &Argument{Name: name, Arity: One}
	for _, opt := range opts {
		opt(arg)
	}
	if !arg.Arity.valid() {
		return fmt.Errorf("argument %q: invalid arity %d..%d", name, arg.Arity.Min, arg.Arity.Max)
	}
	for _, existing := range u.args {
		if existing.Name == name {
			return fmt.Errorf("argument %q declared twice", name)
		}
	}
	if n := len(u.args); n > 0 && !u.args[n-1].Arity.Fixed() {
		return fmt.Errorf("argument %q follows variable argument %q", name, u.args[n-1].Name)
	}

	u.args = append(u.args, arg)
	u.min += arg.Arity.Min
	if u.max != Unbounded {
		if arg.Arity.Unbounded() {
			u.max = Unbounded
		} else {
			u.max += arg.Arity.Max
		}
	}
	return nil
}

// Arguments returns the declared arguments in order.
func (u *Usage) Arguments() []*Argument {
	out := make([]*Argument, len(u.args))
	copy(out, u.args)
	return out
}

// MinArguments is the smallest token count the usage accepts.
func (u *Usage) MinArguments() int {
	return u.min
}

// MaxArguments is the largest token count the usage accepts, or Unbounded.
func (u *Usage) MaxArguments() int {
	return u.max
}

// Accepts reports whether n tokens fit the usage's arity.
func (u *Usage) Accepts(n int) bool {
	return n >= u.min && (u.max == Unbounded || n <= u.max)
}

// Err returns the first definition error of the usage.
func (u *Usage) Err() error {
	return u.err
}

// String renders the arguments, e.g. "<amount> <receiver> [reason ...]".
func (u *Usage) String() string {
	parts := make([]string, len(u.args))
	for i, a := range u.args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// bind assigns tokens to arguments left to right. A *ConversionError means
// this usage does not apply; any other error aborts the parse.
func (u *Usage) bind(ctx context.Context, tokens []Token) (Namespace, error) {
	if !u.Accepts(len(tokens)) {
		return nil, ErrNoMatchingArity
	}

	values := make(map[string]any, len(u.args))
	rest := tokens
	for _, arg := range u.args {
		var run []Token
		if arg.Arity.Fixed() {
			run, rest = rest[:arg.Arity.Max], rest[arg.Arity.Max:]
		} else {
			// Only the last argument is variable, so it takes everything left.
			run, rest = rest, nil
		}

		v, err := arg.bind(ctx, run)
		if err != nil {
			var convErr *ConversionError
			if errors.As(err, &convErr) && convErr.Argument == "" {
				convErr.Argument = arg.Name
			}
			return nil, err
		}
		values[arg.Name] = v
	}

	ns := make(Namespace, len(u.args))
	for _, arg := range u.args {
		ns[arg.Name] = arg.Default
	}
	for name, v := range values {
		ns[name] = v
	}
	return ns, nil
}

package parsing

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Unbounded is the Max of an arity without an upper limit.
const Unbounded = -1

// Arity is the number of tokens an argument consumes.
type Arity struct {
	Min int
	Max int
}

// The argparse nargs kinds.
var (
	One        = Arity{Min: 1, Max: 1}
	Optional   = Arity{Min: 0, Max: 1}
	ZeroOrMore = Arity{Min: 0, Max: Unbounded}
	OneOrMore  = Arity{Min: 1, Max: Unbounded}
)

// Exactly returns a fixed arity of n tokens.
func Exactly(n int) Arity {
	return Arity{Min: n, Max: n}
}

// Fixed reports whether the arity always consumes the same number of tokens.
func (a Arity) Fixed() bool {
	return a.Min == a.Max
}

// Unbounded reports whether the arity has no upper limit.
func (a Arity) Unbounded() bool {
	return a.Max == Unbounded
}

func (a Arity) valid() bool {
	if a.Min < 0 {
		return false
	}
	if a.Max == Unbounded {
		return true
	}
	return a.Max >= a.Min && a.Max > 0
}

// TokenConverter converts one token.
type TokenConverter func(ctx context.Context, tok Token) (any, error)

// RunConverter converts the whole run of tokens bound to an argument.
type RunConverter func(ctx context.Context, toks []Token) (any, error)

// Argument is one parameter slot of a usage.
type Argument struct {
	Name string
	// Type converts each bound token; nil keeps the token text.
	Type TokenConverter
	// Collect, when set, converts the whole run instead of Type.
	Collect RunConverter
	Arity   Arity
	Default any
	// Choices restricts converted values; compared with ==.
	Choices []any
}

// ArgumentOption configures an Argument.
type ArgumentOption func(*Argument)

// WithType sets the converter applied to each token.
func WithType(fn TokenConverter) ArgumentOption {
	return func(a *Argument) {
		a.Type = fn
	}
}

// WithCollect sets a converter for the whole run of tokens.
func WithCollect(fn RunConverter) ArgumentOption {
	return func(a *Argument) {
		a.Collect = fn
	}
}

// WithArity sets the number of tokens the argument consumes.
func WithArity(arity Arity) ArgumentOption {
	return func(a *Argument) {
		a.Arity = arity
	}
}

// WithDefault sets the value used when no token is bound.
func WithDefault(v any) ArgumentOption {
	return func(a *Argument) {
		a.Default = v
	}
}

// WithChoices restricts the accepted values.
func WithChoices(choices ...any) ArgumentOption {
	return func(a *Argument) {
		a.Choices = choices
	}
}

// Joined binds the raw token texts joined by single spaces.
func Joined() ArgumentOption {
	return WithCollect(func(_ context.Context, toks []Token) (any, error) {
		parts := make([]string, len(toks))
		for i, t := range toks {
			parts[i] = t.Text
		}
		return strings.Join(parts, " "), nil
	})
}

// bind converts the run of tokens assigned to the argument.
func (a *Argument) bind(ctx context.Context, toks []Token) (any, error) {
	if len(toks) == 0 {
		return a.Default, nil
	}
	if a.Collect != nil {
		v, err := a.Collect(ctx, toks)
		if err != nil {
			return nil, err
		}
		if err := a.checkChoice(v, toks[0].Text); err != nil {
			return nil, err
		}
		return v, nil
	}

	if a.Arity.Max == 1 {
		return a.convert(ctx, toks[0])
	}
	values := make([]any, 0, len(toks))
	for _, tok := range toks {
		v, err := a.convert(ctx, tok)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (a *Argument) convert(ctx context.Context, tok Token) (any, error) {
	var v any = tok.Text
	if a.Type != nil {
		var err error
		v, err = a.Type(ctx, tok)
		if err != nil {
			return nil, err
		}
	}
	if err := a.checkChoice(v, tok.Text); err != nil {
		return nil, err
	}
	return v, nil
}

func (a *Argument) checkChoice(v any, input string) error {
	if len(a.Choices) == 0 {
		return nil
	}
	if v == nil || reflect.TypeOf(v).Comparable() {
		for _, c := range a.Choices {
			if c == v {
				return nil
			}
		}
	}
	return conversionError(input, ErrNotAChoice, "Invalid choice %q for %s (choose from %s).",
		input, a.Name, a.choiceList(", "))
}

func (a *Argument) choiceList(sep string) string {
	parts := make([]string, len(a.Choices))
	for i, c := range a.Choices {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, sep)
}

// String renders the argument the way usage lines show it.
func (a *Argument) String() string {
	name := a.Name
	if len(a.Choices) > 0 {
		name = "{" + a.choiceList("|") + "}"
	}
	required := "<" + name + ">"
	optional := "[" + name + "]"
	switch {
	case a.Arity == Optional:
		return optional
	case a.Arity == ZeroOrMore:
		return "[" + name + " ...]"
	case a.Arity == OneOrMore:
		return required + " [" + name + " ...]"
	}

	parts := make([]string, 0, a.Arity.Min+1)
	for i := 0; i < a.Arity.Min; i++ {
		parts = append(parts, required)
	}
	if a.Arity.Unbounded() {
		parts = append(parts, "["+name+" ...]")
	} else {
		for i := a.Arity.Min; i < a.Arity.Max; i++ {
			parts = append(parts, optional)
		}
	}
	return strings.Join(parts, " ")
}

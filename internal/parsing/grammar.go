package parsing

import (
	"context"
	"errors"
)

// Grammar holds the usages of one command. The first usage is created by
// NewGrammar and is the one shown in help; an untouched grammar therefore
// accepts exactly zero arguments.
type Grammar struct {
	Name   string
	usages []*Usage
	frozen bool
}

// NewGrammar creates a grammar with an empty default usage.
func NewGrammar(name string) *Grammar {
	g := &Grammar{Name: name}
	g.usages = []*Usage{{grammar: g}}
	return g
}

// AddArgument adds an argument to the default usage.
func (g *Grammar) AddArgument(name string, opts ...ArgumentOption) *Usage {
	return g.usages[0].AddArgument(name, opts...)
}

// NewUsage appends an alternative usage. Usages are tried in the order
// they were added.
func (g *Grammar) NewUsage() *Usage {
	u := &Usage{grammar: g}
	if g.frozen {
		u.err = errors.New("grammar " + g.Name + " is frozen")
		return u
	}
	g.usages = append(g.usages, u)
	return u
}

// Usages returns the usages in declaration order.
func (g *Grammar) Usages() []*Usage {
	out := make([]*Usage, len(g.usages))
	copy(out, g.usages)
	return out
}

// DefaultUsage returns the first usage.
func (g *Grammar) DefaultUsage() *Usage {
	return g.usages[0]
}

// Err returns the first definition error of any usage.
func (g *Grammar) Err() error {
	for _, u := range g.usages {
		if u.err != nil {
			return u.err
		}
	}
	return nil
}

// Freeze rejects further changes. A frozen grammar is safe for concurrent
// use.
func (g *Grammar) Freeze() {
	g.frozen = true
}

// Frozen reports whether Freeze was called.
func (g *Grammar) Frozen() bool {
	return g.frozen
}

// UsageStrings renders every usage as "/name args", default usage first.
func (g *Grammar) UsageStrings() []string {
	out := make([]string, 0, len(g.usages))
	for _, u := range g.usages {
		line := "/" + g.Name
		if s := u.String(); s != "" {
			line += " " + s
		}
		out = append(out, line)
	}
	return out
}

// Parse binds text against the usages in declaration order and returns the
// namespace of the first one that applies. Structural failures are
// *ParseFailure; errors raised by converters that are not
// *ConversionError (e.g. a ledger outage) are returned unchanged.
func (g *Grammar) Parse(ctx context.Context, text string, entities []EntityRef) (Namespace, error) {
	tokens := Tokenize(text, entities)

	candidates := make([]int, 0, len(g.usages))
	for i, u := range g.usages {
		if u.Accepts(len(tokens)) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, &ParseFailure{Command: g.Name, Tokens: len(tokens), Err: ErrNoMatchingArity}
	}

	failure := &ParseFailure{Command: g.Name, Tokens: len(tokens), Err: ErrNoUsageApplies}
	for _, i := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ns, err := g.usages[i].bind(ctx, tokens)
		if err == nil {
			return ns, nil
		}
		var convErr *ConversionError
		if !errors.As(err, &convErr) {
			return nil, err
		}
		failure.Rejections = append(failure.Rejections, Rejection{Usage: i, Err: convErr})
	}
	return nil, failure
}

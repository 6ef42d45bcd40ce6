// Package parsing turns command arguments into typed values.
//
// A Grammar holds one or more Usages, each an ordered list of Arguments.
// Parsing tokenizes the text (keeping entity spans such as @mentions
// intact), discards usages whose arity cannot fit the token count and
// binds the tokens against the remaining usages in declaration order.
// Grammars are built at startup, frozen, and shared read-only afterwards.
package parsing

import (
	"strings"
	"unicode/utf16"
)

// EntityKind classifies a rich-text span.
type EntityKind int

const (
	// EntityOther is any span that carries no identity, e.g. bold or url.
	EntityOther EntityKind = iota

	// EntityMention is an "@username" span.
	EntityMention

	// EntityTextMention is a span linked to an account without a username.
	EntityTextMention
)

func (k EntityKind) String() string {
	switch k {
	case EntityMention:
		return "mention"
	case EntityTextMention:
		return "text_mention"
	default:
		return "other"
	}
}

// EntityUser is the identity embedded in a text mention.
type EntityUser struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// EntityRef points at a span of the source text. Offset and Length are
// counted in UTF-16 code units, like Telegram does.
type EntityRef struct {
	Kind   EntityKind
	Offset int
	Length int
	User   *EntityUser
}

// Token is one argument word, or one whole entity span.
type Token struct {
	Text     string
	Entity   *EntityRef
	Position int
}

// Tokenize splits text into tokens. Entities must be sorted by offset and
// must not overlap; a span starting inside the previous one is skipped and
// spans reaching past the end of the text are clipped.
func Tokenize(text string, entities []EntityRef) []Token {
	units := utf16.Encode([]rune(text))
	tokens := make([]Token, 0, len(entities)+4)

	words := func(from, to int) {
		if from >= to {
			return
		}
		for _, w := range strings.Fields(string(utf16.Decode(units[from:to]))) {
			tokens = append(tokens, Token{Text: w, Position: len(tokens)})
		}
	}

	last := 0
	for i := range entities {
		e := entities[i]
		start := e.Offset
		end := e.Offset + e.Length
		if e.Length <= 0 || start < last || start >= len(units) {
			continue
		}
		if end > len(units) {
			end = len(units)
		}

		words(last, start)
		ref := e
		tokens = append(tokens, Token{
			Text:     string(utf16.Decode(units[start:end])),
			Entity:   &ref,
			Position: len(tokens),
		})
		last = end
	}
	words(last, len(units))

	return tokens
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// ShiftEntities re-bases entities onto a suffix of the original text that
// starts delta UTF-16 units later. Spans ending at or before the cut are
// dropped, spans crossing it are clipped.
func ShiftEntities(entities []EntityRef, delta int) []EntityRef {
	if len(entities) == 0 {
		return nil
	}
	out := make([]EntityRef, 0, len(entities))
	for _, e := range entities {
		end := e.Offset + e.Length
		if end <= delta {
			continue
		}
		e.Offset -= delta
		if e.Offset < 0 {
			e.Length += e.Offset
			e.Offset = 0
		}
		out = append(out, e)
	}
	return out
}

package parsing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/hopfenspace/matebot-telegram/internal/ledger"
)

// AmountParser converts money amounts like "13.37" or "13,3" into minor
// units with a fixed number of fractional digits.
type AmountParser struct {
	Digits  int
	Max     int64
	pattern *regexp.Regexp
}

// NewAmountParser builds a parser for the given precision and maximum.
func NewAmountParser(digits int, max int64) (*AmountParser, error) {
	if digits < 0 || digits > 9 {
		return nil, fmt.Errorf("invalid number of currency digits: %d", digits)
	}
	expr := `^(\d+)$`
	if digits > 0 {
		// A separator needs at least one digit after it.
		expr = fmt.Sprintf(`^(\d+)(?:[.,](\d{1,%d}))?$`, digits)
	}
	return &AmountParser{
		Digits:  digits,
		Max:     max,
		pattern: regexp.MustCompile(expr),
	}, nil
}

// Parse returns the amount in minor units.
func (p *AmountParser) Parse(s string) (int64, error) {
	m := p.pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, conversionError(s, ErrInvalidFormat, "%q is not a valid amount.", s)
	}

	scale := int64(math.Pow10(p.Digits))
	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || whole > math.MaxInt32 {
		return 0, conversionError(s, ErrOutOfRange, "The amount %s is too large.", s)
	}
	value := whole * scale
	if len(m) > 2 {
		for i, d := range m[2] {
			value += int64(d-'0') * int64(math.Pow10(p.Digits-1-i))
		}
	}

	switch {
	case value == 0:
		return 0, conversionError(s, ErrZero, "An amount can't be zero.")
	case value > math.MaxInt32:
		return 0, conversionError(s, ErrOutOfRange, "The amount %s is too large.", s)
	case p.Max > 0 && value > p.Max:
		return 0, conversionError(s, ErrTooLarge, "The amount %s is too high.", s)
	}
	return value, nil
}

// Convert is the TokenConverter for amounts.
func (p *AmountParser) Convert(_ context.Context, tok Token) (any, error) {
	return p.Parse(tok.Text)
}

// Natural converts a positive 32-bit integer.
func Natural(_ context.Context, tok Token) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(tok.Text), 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return nil, conversionError(tok.Text, ErrOutOfRange, "%s is too large.", tok.Text)
		}
		return nil, conversionError(tok.Text, ErrInvalidFormat, "%q is not a number.", tok.Text)
	}
	if n <= 0 {
		return nil, conversionError(tok.Text, ErrNotPositive, "%s is not a positive number.", tok.Text)
	}
	if n > math.MaxInt32 {
		return nil, conversionError(tok.Text, ErrOutOfRange, "%s is too large.", tok.Text)
	}
	return int(n), nil
}

// Lower returns the lowercased token text, for case-insensitive choices.
func Lower(_ context.Context, tok Token) (any, error) {
	return strings.ToLower(tok.Text), nil
}

// Directory resolves chat identities to ledger users.
type Directory interface {
	ResolveKnownIdentity(ctx context.Context, telegramID int64) (*ledger.User, error)
	ResolveIdentityByText(ctx context.Context, text string, allowUnknown bool) (*ledger.User, error)
}

// mentionText matches a Telegram username written without a mention entity.
var mentionText = regexp.MustCompile(`^@[A-Za-z0-9_]{1,32}$`)

// User converts a mention into a ledger user. With allowUnknown, users who
// never talked to this bot are accepted as well.
func User(dir Directory, allowUnknown bool) TokenConverter {
	return func(ctx context.Context, tok Token) (any, error) {
		var (
			user *ledger.User
			err  error
		)
		switch {
		case tok.Entity != nil && tok.Entity.Kind == EntityTextMention && tok.Entity.User != nil:
			user, err = dir.ResolveKnownIdentity(ctx, tok.Entity.User.ID)
		case tok.Entity != nil && tok.Entity.Kind == EntityMention,
			tok.Entity == nil && mentionText.MatchString(tok.Text):
			user, err = dir.ResolveIdentityByText(ctx, strings.TrimPrefix(tok.Text, "@"), allowUnknown)
		default:
			return nil, conversionError(tok.Text, ErrNoMention, `No user mentioned. Try with "@".`)
		}

		switch {
		case err == nil:
			return user, nil
		case errors.Is(err, ledger.ErrNotFound):
			return nil, conversionError(tok.Text, ErrUnknownUser,
				"No user found as %s. Make sure the name is correct and the user has used the bot before.", tok.Text)
		case errors.Is(err, ledger.ErrAmbiguous):
			return nil, conversionError(tok.Text, ErrAmbiguousUser,
				"Several users match %s. Please use an unambiguous username.", tok.Text)
		default:
			return nil, err
		}
	}
}

// Catalog lists the consumables of the community.
type Catalog interface {
	ListConsumables(ctx context.Context) ([]ledger.Consumable, error)
}

// WildcardMarker is the value bound for the wildcard sentinel.
type WildcardMarker struct{}

// Wildcard is bound instead of a consumable when the sentinel was given.
var Wildcard = WildcardMarker{}

// ConsumableOrWildcard converts a consumable name, matched without regard
// to case, or the sentinel into Wildcard.
func ConsumableOrWildcard(cat Catalog, sentinel string) TokenConverter {
	return func(ctx context.Context, tok Token) (any, error) {
		text := strings.TrimSpace(tok.Text)
		if text == sentinel {
			return Wildcard, nil
		}

		items, err := cat.ListConsumables(ctx)
		if err != nil {
			return nil, err
		}
		fold := cases.Fold()
		want := fold.String(text)
		for i := range items {
			if fold.String(items[i].Name) == want {
				item := items[i]
				return &item, nil
			}
		}
		return nil, conversionError(tok.Text, ErrUnknownItem, "%q is not a known consumable.", text)
	}
}

// CommandLookup finds registered commands by name.
type CommandLookup[C any] interface {
	Get(name string) (C, bool)
	Names() []string
}

// CommandName converts a command name into the registered command.
func CommandName[C any](lookup CommandLookup[C]) TokenConverter {
	return func(_ context.Context, tok Token) (any, error) {
		name := strings.TrimPrefix(strings.TrimSpace(tok.Text), "/")
		if cmd, ok := lookup.Get(name); ok {
			return cmd, nil
		}
		if hint := closest(strings.ToLower(name), lookup.Names()); hint != "" {
			return nil, conversionError(tok.Text, ErrUnknownCommand,
				"%s is an unknown command. Did you mean /%s?", tok.Text, hint)
		}
		return nil, conversionError(tok.Text, ErrUnknownCommand, "%s is an unknown command.", tok.Text)
	}
}

// closest returns the candidate nearest to name, if it is near enough to
// be a typo.
func closest(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	best, bestDist := "", math.MaxInt
	for _, c := range sorted {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := 1
	if len(best) > 4 {
		limit = 2
	}
	if bestDist > limit {
		return ""
	}
	return best
}

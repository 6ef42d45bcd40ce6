package ledger

import (
	"context"
	"strings"
	"sync"
)

// Account is a Telegram account the bot has seen.
type Account struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Identities remembers the Telegram accounts that talked to the bot, so
// users can be mentioned by username or name. It is safe for concurrent use.
type Identities struct {
	mu   sync.RWMutex
	byID map[int64]Account
}

// NewIdentities creates an empty identity cache.
func NewIdentities() *Identities {
	return &Identities{byID: make(map[int64]Account)}
}

// Remember stores or refreshes an account.
func (i *Identities) Remember(a Account) {
	if a.TelegramID == 0 {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.byID[a.TelegramID] = a
}

// Get returns the account with the given Telegram id.
func (i *Identities) Get(telegramID int64) (Account, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	a, ok := i.byID[telegramID]
	return a, ok
}

// Lookup finds accounts whose username, first name or "first last" name
// equals text. A leading "@" is ignored and case does not matter.
func (i *Identities) Lookup(text string) []Account {
	text = strings.TrimPrefix(strings.TrimSpace(text), "@")
	if text == "" {
		return nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var out []Account
	for _, a := range i.byID {
		full := strings.TrimSpace(a.FirstName + " " + a.LastName)
		if (a.Username != "" && strings.EqualFold(a.Username, text)) ||
			(a.FirstName != "" && strings.EqualFold(a.FirstName, text)) ||
			(a.LastName != "" && strings.EqualFold(full, text)) {
			out = append(out, a)
		}
	}
	return out
}

// identityLookup is what resolveByText needs from a ledger implementation.
type identityLookup interface {
	ResolveKnownIdentity(ctx context.Context, telegramID int64) (*User, error)
	usersByName(ctx context.Context, name string) ([]User, error)
}

// resolveByText implements ResolveIdentityByText for both implementations:
// known Telegram accounts first, then core users by name.
func resolveByText(ctx context.Context, l identityLookup, ids *Identities, appID int64, text string, allowUnknown bool) (*User, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "@")
	if text == "" {
		return nil, ErrNotFound
	}

	if ids != nil {
		switch accounts := ids.Lookup(text); len(accounts) {
		case 0:
		case 1:
			return l.ResolveKnownIdentity(ctx, accounts[0].TelegramID)
		default:
			return nil, ErrAmbiguous
		}
	}

	users, err := l.usersByName(ctx, text)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, ErrNotFound
	case 1:
		u := users[0]
		if allowUnknown || u.HasAlias(appID, true) {
			return &u, nil
		}
		return nil, ErrNotFound
	default:
		return nil, ErrAmbiguous
	}
}

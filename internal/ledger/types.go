// Package ledger is the client side of the MateBot core service, which owns
// users, balances, consumables and group operations.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// User is a core user as seen by this application.
type User struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Balance    int64   `json:"balance"`
	Permission bool    `json:"permission"`
	Active     bool    `json:"active"`
	External   bool    `json:"external"`
	VoucherID  *int64  `json:"voucher_id,omitempty"`
	Aliases    []Alias `json:"aliases,omitempty"`
}

// Alias links a core user to an account of one application.
type Alias struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	ApplicationID int64  `json:"application_id"`
	Username      string `json:"username"`
	Confirmed     bool   `json:"confirmed"`
}

// HasAlias reports whether u has an alias for the given application.
// With confirmedOnly set, unconfirmed aliases are ignored.
func (u *User) HasAlias(applicationID int64, confirmedOnly bool) bool {
	for _, a := range u.Aliases {
		if a.ApplicationID != applicationID {
			continue
		}
		if a.Confirmed || !confirmedOnly {
			return true
		}
	}
	return false
}

// topDebtors returns up to count active users with a negative balance,
// most indebted first, leaving out the community user.
func topDebtors(users []User, communityID int64, count int) []User {
	var out []User
	for _, u := range users {
		if u.Active && u.ID != communityID && u.Balance < 0 {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Balance < out[j].Balance })
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out
}

// Consumable is an item of the community catalog.
type Consumable struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Emoji       string `json:"emoji,omitempty"`
}

// Transaction is a booked transfer between two users.
type Transaction struct {
	ID        int64     `json:"id"`
	SenderID  int64     `json:"sender_id"`
	Receiver  int64     `json:"receiver_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Participant is one member of a communism and how many shares they carry.
type Participant struct {
	UserID   int64 `json:"user_id"`
	Quantity int   `json:"quantity"`
}

// Communism splits a bill among its participants once it is closed.
type Communism struct {
	ID           int64         `json:"id"`
	CreatorID    int64         `json:"creator_id"`
	Amount       int64         `json:"amount"`
	Description  string        `json:"description"`
	Active       bool          `json:"active"`
	Participants []Participant `json:"participants"`
}

// Shares returns the total number of shares of all participants.
func (c *Communism) Shares() int {
	total := 0
	for _, p := range c.Participants {
		total += p.Quantity
	}
	return total
}

// Vote is one ballot entry on a refund request.
type Vote struct {
	UserID  int64 `json:"user_id"`
	Approve bool  `json:"vote"`
}

// Refund asks the community to pay an amount to its creator. Users with
// extended permissions vote on it.
type Refund struct {
	ID          int64  `json:"id"`
	CreatorID   int64  `json:"creator_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	// Allowed is nil while the request is open or after it was aborted.
	Allowed       *bool  `json:"allowed,omitempty"`
	Votes         []Vote `json:"votes"`
	TransactionID *int64 `json:"transaction_id,omitempty"`
}

// Tally counts the approving and disapproving votes.
func (r *Refund) Tally() (approve, disapprove int) {
	for _, v := range r.Votes {
		if v.Approve {
			approve++
		} else {
			disapprove++
		}
	}
	return approve, disapprove
}

// Currency describes how minor units are rendered to users.
type Currency struct {
	Digits int
	Factor int64
	Symbol string
}

// Format renders an amount of minor units, e.g. 1337 -> "13.37€".
func (c Currency) Format(amount int64) string {
	factor := c.Factor
	if factor <= 0 {
		factor = 1
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	whole := amount / factor
	if c.Digits <= 0 {
		return fmt.Sprintf("%s%d%s", sign, whole, c.Symbol)
	}
	frac := fmt.Sprintf("%0*d", c.Digits, amount%factor)
	if len(frac) > c.Digits {
		frac = frac[:c.Digits]
	}
	return fmt.Sprintf("%s%d.%s%s", sign, whole, frac, c.Symbol)
}

// Ledger is everything the bot asks of the core service.
type Ledger interface {
	// ResolveKnownIdentity finds the core user behind a Telegram account
	// that has interacted with this application before.
	ResolveKnownIdentity(ctx context.Context, telegramID int64) (*User, error)

	// ResolveIdentityByText finds a core user by username, first name or
	// full name. Users without an alias for this application are only
	// returned when allowUnknown is set.
	ResolveIdentityByText(ctx context.Context, text string, allowUnknown bool) (*User, error)

	GetUser(ctx context.Context, id int64) (*User, error)
	// NameTaken reports whether an active core user already uses name.
	NameTaken(ctx context.Context, name string) (bool, error)
	// SignUp creates an external user with a confirmed alias for the
	// Telegram account.
	SignUp(ctx context.Context, name string, account Account) (*User, error)
	// Community returns the community user holding the central funds.
	Community(ctx context.Context) (*User, error)
	// TopDebtors returns up to count users with negative balances, most
	// indebted first.
	TopDebtors(ctx context.Context, count int) ([]User, error)
	// SetUsername renames a user. Names are unique among active users.
	SetUsername(ctx context.Context, userID int64, name string) (*User, error)
	// ApplicationID is the core id of this bot's application.
	ApplicationID(ctx context.Context) (int64, error)
	// ConfirmAlias accepts an alias of issuerID's account.
	ConfirmAlias(ctx context.Context, aliasID, issuerID int64) (*Alias, error)
	// DeleteAlias removes an alias of issuerID's account.
	DeleteAlias(ctx context.Context, aliasID, issuerID int64) error
	ListConsumables(ctx context.Context) ([]Consumable, error)

	Send(ctx context.Context, senderID, receiverID, amount int64, reason string) (*Transaction, error)
	Donate(ctx context.Context, senderID, amount int64, reason string) (*Transaction, error)
	Consume(ctx context.Context, userID int64, consumable string, number int) (*Transaction, error)
	History(ctx context.Context, userID int64, limit int) ([]Transaction, error)

	CreateCommunism(ctx context.Context, creatorID, amount int64, description string) (*Communism, error)
	ActiveCommunisms(ctx context.Context, creatorID int64) ([]Communism, error)
	GetCommunism(ctx context.Context, id int64) (*Communism, error)
	JoinCommunism(ctx context.Context, id, userID int64) (*Communism, error)
	LeaveCommunism(ctx context.Context, id, userID int64) (*Communism, error)
	CloseCommunism(ctx context.Context, id, issuerID int64) (*Communism, error)
	AbortCommunism(ctx context.Context, id, issuerID int64) (*Communism, error)

	CreateRefund(ctx context.Context, creatorID, amount int64, description string) (*Refund, error)
	ActiveRefunds(ctx context.Context, creatorID int64) ([]Refund, error)
	// VoteRefund records or changes the vote of userID. The request is
	// settled once enough votes agree.
	VoteRefund(ctx context.Context, id, userID int64, approve bool) (*Refund, error)
	AbortRefund(ctx context.Context, id, issuerID int64) (*Refund, error)

	// SetVoucher makes voucherID responsible for debtorID. A nil voucher
	// ends the current relation.
	SetVoucher(ctx context.Context, debtorID int64, voucherID *int64) (*User, error)
	Debtors(ctx context.Context, voucherID int64) ([]User, error)
}

// DisplayName is the name shown for u in chat messages.
func DisplayName(u *User) string {
	if u == nil {
		return "<unknown>"
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return fmt.Sprintf("user %d", u.ID)
}

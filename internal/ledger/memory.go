package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// CommunityID is the id of the community user in a Memory ledger.
const CommunityID int64 = 1

// RefundQuorum is the number of agreeing votes that settles a refund
// request in a Memory ledger.
const RefundQuorum = 2

// Memory is an in-process Ledger used for offline runs and tests. It applies
// the same rules the core service enforces and reports violations as
// rejected requests.
type Memory struct {
	appID      int64
	identities *Identities
	now        func() time.Time

	mu           sync.Mutex
	nextID       int64
	users        map[int64]*User
	consumables  []Consumable
	transactions []Transaction
	communisms   map[int64]*Communism
	refunds      map[int64]*Refund
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates a ledger holding only the community user.
func NewMemory(appID int64, identities *Identities) *Memory {
	if identities == nil {
		identities = NewIdentities()
	}
	m := &Memory{
		appID:      appID,
		identities: identities,
		now:        time.Now,
		nextID:     CommunityID + 1,
		users:      make(map[int64]*User),
		communisms: make(map[int64]*Communism),
		refunds:    make(map[int64]*Refund),
	}
	m.users[CommunityID] = &User{ID: CommunityID, Name: "Community", Active: true}
	return m
}

// Identities returns the account cache used for name lookups.
func (m *Memory) Identities() *Identities {
	return m.identities
}

func (m *Memory) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// AddUser creates a user with a confirmed alias for the Telegram account and
// remembers the account.
func (m *Memory) AddUser(name string, account Account) *User {
	return m.addUser(&User{Name: name, Active: true, Permission: true}, account)
}

// AddExternalUser creates a user without any alias for this application.
func (m *Memory) AddExternalUser(name string) *User {
	return m.addUser(&User{Name: name, Active: true, External: true}, Account{})
}

// AddExternalAccount creates an external user who has talked to the bot
// but is not part of the community.
func (m *Memory) AddExternalAccount(name string, account Account) *User {
	return m.addUser(&User{Name: name, Active: true, External: true}, account)
}

func (m *Memory) addUser(u *User, account Account) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUserLocked(u, account)
}

func (m *Memory) addUserLocked(u *User, account Account) *User {
	u.ID = m.id()
	if account.TelegramID != 0 {
		u.Aliases = []Alias{{
			ID:            m.id(),
			UserID:        u.ID,
			ApplicationID: m.appID,
			Username:      strconv.FormatInt(account.TelegramID, 10),
			Confirmed:     true,
		}}
		m.identities.Remember(account)
	}
	m.users[u.ID] = u
	clone := *u
	return &clone
}

// AddConsumable appends an item to the catalog.
func (m *Memory) AddConsumable(name, description string, price int64) Consumable {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := Consumable{ID: m.id(), Name: name, Description: description, Price: price}
	m.consumables = append(m.consumables, c)
	return c
}

// SeedDemo fills the ledger with a small catalog and a few users.
func (m *Memory) SeedDemo() {
	m.AddConsumable("mate", "Club Mate, 0.5l", 150)
	m.AddConsumable("pizza", "A slice of pizza", 250)
	m.AddConsumable("cola", "Cola, 0.33l", 100)
	m.AddUser("alice", Account{TelegramID: 1001, Username: "alice", FirstName: "Alice"})
	m.AddUser("bob", Account{TelegramID: 1002, Username: "bob", FirstName: "Bob", LastName: "Builder"})
	m.AddExternalUser("carol")
	m.AddExternalAccount("dave", Account{TelegramID: 1004, Username: "dave", FirstName: "Dave"})
}

func rejected(op, format string, args ...any) *RemoteError {
	return &RemoteError{Kind: Rejected, Operation: op, Status: 400, Message: fmt.Sprintf(format, args...)}
}

func (m *Memory) activeUser(op string, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("ledger %s: user %d: %w", op, id, ErrNotFound)
	}
	if !u.Active {
		return nil, rejected(op, "User %s is disabled.", u.Name)
	}
	return u, nil
}

func (m *Memory) book(sender, receiver *User, amount int64, reason string) Transaction {
	sender.Balance -= amount
	receiver.Balance += amount
	tx := Transaction{
		ID:        m.id(),
		SenderID:  sender.ID,
		Receiver:  receiver.ID,
		Amount:    amount,
		Reason:    reason,
		Timestamp: m.now(),
	}
	m.transactions = append(m.transactions, tx)
	return tx
}

// ResolveKnownIdentity implements Ledger.
func (m *Memory) ResolveKnownIdentity(ctx context.Context, telegramID int64) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	alias := strconv.FormatInt(telegramID, 10)
	var found []User
	for _, u := range m.users {
		if !u.Active {
			continue
		}
		for _, a := range u.Aliases {
			if a.ApplicationID == m.appID && a.Confirmed && a.Username == alias {
				found = append(found, *u)
				break
			}
		}
	}
	return single(found)
}

// ResolveIdentityByText implements Ledger.
func (m *Memory) ResolveIdentityByText(ctx context.Context, text string, allowUnknown bool) (*User, error) {
	return resolveByText(ctx, m, m.identities, m.appID, text, allowUnknown)
}

func (m *Memory) usersByName(ctx context.Context, name string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fold := cases.Fold()
	want := fold.String(name)
	var out []User
	for _, u := range m.sortedUsers() {
		if u.Active && u.ID != CommunityID && fold.String(u.Name) == want {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *Memory) sortedUsers() []*User {
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NameTaken implements Ledger.
func (m *Memory) NameTaken(ctx context.Context, name string) (bool, error) {
	users, err := m.usersByName(ctx, strings.TrimSpace(name))
	return len(users) > 0, err
}

// SignUp implements Ledger.
func (m *Memory) SignUp(ctx context.Context, name string, account Account) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, rejected("signup", "The username must not be empty.")
	}
	if account.TelegramID == 0 {
		return nil, rejected("signup", "A Telegram account is required.")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fold := cases.Fold()
	alias := strconv.FormatInt(account.TelegramID, 10)
	for _, u := range m.users {
		if u.Active && fold.String(u.Name) == fold.String(name) {
			return nil, rejected("signup", "The username %s is not available.", name)
		}
		for _, a := range u.Aliases {
			if a.ApplicationID == m.appID && a.Username == alias {
				return nil, rejected("signup", "This Telegram account is already registered.")
			}
		}
	}
	return m.addUserLocked(&User{Name: name, Active: true, External: true}, account), nil
}

// SetUsername implements Ledger.
func (m *Memory) SetUsername(ctx context.Context, userID int64, name string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, rejected("users.name", "The username must not be empty.")
	}
	u, err := m.activeUser("users.name", userID)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	for _, other := range m.users {
		if other.ID != userID && other.Active && fold.String(other.Name) == fold.String(name) {
			return nil, rejected("users.name", "The username %s is not available.", name)
		}
	}
	u.Name = name
	clone := *u
	return &clone, nil
}

// ApplicationID implements Ledger.
func (m *Memory) ApplicationID(ctx context.Context) (int64, error) {
	return m.appID, ctx.Err()
}

// AddAlias attaches an alias of another application to a user.
func (m *Memory) AddAlias(userID, applicationID int64, username string, confirmed bool) Alias {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := Alias{ID: m.id(), UserID: userID, ApplicationID: applicationID, Username: username, Confirmed: confirmed}
	if u, ok := m.users[userID]; ok {
		u.Aliases = append(u.Aliases, a)
	}
	return a
}

// ownAlias returns the index of aliasID among the aliases of issuerID.
func (m *Memory) ownAlias(op string, aliasID, issuerID int64) (*User, int, error) {
	u, err := m.activeUser(op, issuerID)
	if err != nil {
		return nil, 0, err
	}
	for i, a := range u.Aliases {
		if a.ID == aliasID {
			return u, i, nil
		}
	}
	for _, other := range m.users {
		for _, a := range other.Aliases {
			if a.ID == aliasID {
				return nil, 0, rejected(op, "The alias %d belongs to another user.", aliasID)
			}
		}
	}
	return nil, 0, fmt.Errorf("ledger %s: alias %d: %w", op, aliasID, ErrNotFound)
}

// ConfirmAlias implements Ledger.
func (m *Memory) ConfirmAlias(ctx context.Context, aliasID, issuerID int64) (*Alias, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, i, err := m.ownAlias("aliases.confirm", aliasID, issuerID)
	if err != nil {
		return nil, err
	}
	u.Aliases[i].Confirmed = true
	a := u.Aliases[i]
	return &a, nil
}

// DeleteAlias implements Ledger.
func (m *Memory) DeleteAlias(ctx context.Context, aliasID, issuerID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, i, err := m.ownAlias("aliases.delete", aliasID, issuerID)
	if err != nil {
		return err
	}
	u.Aliases = append(u.Aliases[:i:i], u.Aliases[i+1:]...)
	return nil
}

// Community implements Ledger.
func (m *Memory) Community(ctx context.Context) (*User, error) {
	return m.GetUser(ctx, CommunityID)
}

// TopDebtors implements Ledger.
func (m *Memory) TopDebtors(ctx context.Context, count int) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.sortedUsers() {
		users = append(users, *u)
	}
	return topDebtors(users, CommunityID, count), nil
}

// GetUser implements Ledger.
func (m *Memory) GetUser(ctx context.Context, id int64) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// ListConsumables implements Ledger.
func (m *Memory) ListConsumables(ctx context.Context) ([]Consumable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Consumable(nil), m.consumables...), nil
}

// Send implements Ledger.
func (m *Memory) Send(ctx context.Context, senderID, receiverID, amount int64, reason string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 {
		return nil, rejected("send", "The amount must be positive.")
	}
	if senderID == receiverID {
		return nil, rejected("send", "You can't send money to yourself.")
	}
	sender, err := m.activeUser("send", senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := m.activeUser("send", receiverID)
	if err != nil {
		return nil, err
	}
	tx := m.book(sender, receiver, amount, reason)
	return &tx, nil
}

// Donate implements Ledger.
func (m *Memory) Donate(ctx context.Context, senderID, amount int64, reason string) (*Transaction, error) {
	return m.Send(ctx, senderID, CommunityID, amount, reason)
}

// Consume implements Ledger.
func (m *Memory) Consume(ctx context.Context, userID int64, consumable string, number int) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if number <= 0 {
		return nil, rejected("consume", "You must consume at least one item.")
	}
	var item *Consumable
	for i := range m.consumables {
		if strings.EqualFold(m.consumables[i].Name, consumable) {
			item = &m.consumables[i]
			break
		}
	}
	if item == nil {
		return nil, fmt.Errorf("ledger consume: consumable %q: %w", consumable, ErrNotFound)
	}
	user, err := m.activeUser("consume", userID)
	if err != nil {
		return nil, err
	}
	community := m.users[CommunityID]
	tx := m.book(user, community, item.Price*int64(number), fmt.Sprintf("consume: %d x %s", number, item.Name))
	return &tx, nil
}

// History implements Ledger.
func (m *Memory) History(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- {
		tx := m.transactions[i]
		if tx.SenderID != userID && tx.Receiver != userID {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) communism(op string, id int64) (*Communism, error) {
	c, ok := m.communisms[id]
	if !ok {
		return nil, fmt.Errorf("ledger %s: communism %d: %w", op, id, ErrNotFound)
	}
	if !c.Active {
		return nil, rejected(op, "The communism %d is already closed.", id)
	}
	return c, nil
}

func cloneCommunism(c *Communism) *Communism {
	clone := *c
	clone.Participants = append([]Participant(nil), c.Participants...)
	return &clone
}

// CreateCommunism implements Ledger.
func (m *Memory) CreateCommunism(ctx context.Context, creatorID, amount int64, description string) (*Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 {
		return nil, rejected("communism.create", "The amount must be positive.")
	}
	if _, err := m.activeUser("communism.create", creatorID); err != nil {
		return nil, err
	}
	c := &Communism{
		ID:           m.id(),
		CreatorID:    creatorID,
		Amount:       amount,
		Description:  description,
		Active:       true,
		Participants: []Participant{{UserID: creatorID, Quantity: 1}},
	}
	m.communisms[c.ID] = c
	return cloneCommunism(c), nil
}

// ActiveCommunisms implements Ledger.
func (m *Memory) ActiveCommunisms(ctx context.Context, creatorID int64) ([]Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Communism
	for _, c := range m.communisms {
		if c.Active && c.CreatorID == creatorID {
			out = append(out, *cloneCommunism(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCommunism implements Ledger.
func (m *Memory) GetCommunism(ctx context.Context, id int64) (*Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.communisms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCommunism(c), nil
}

// JoinCommunism implements Ledger.
func (m *Memory) JoinCommunism(ctx context.Context, id, userID int64) (*Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.communism("communism.join", id)
	if err != nil {
		return nil, err
	}
	if _, err := m.activeUser("communism.join", userID); err != nil {
		return nil, err
	}
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			c.Participants[i].Quantity++
			return cloneCommunism(c), nil
		}
	}
	c.Participants = append(c.Participants, Participant{UserID: userID, Quantity: 1})
	return cloneCommunism(c), nil
}

// LeaveCommunism implements Ledger.
func (m *Memory) LeaveCommunism(ctx context.Context, id, userID int64) (*Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.communism("communism.leave", id)
	if err != nil {
		return nil, err
	}
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			continue
		}
		c.Participants[i].Quantity--
		if c.Participants[i].Quantity == 0 {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
		}
		return cloneCommunism(c), nil
	}
	return nil, rejected("communism.leave", "You are not participating in this communism.")
}

// CloseCommunism implements Ledger. Every participant other than the
// creator pays their share to the creator; the remainder of the integer
// division stays with the creator.
func (m *Memory) CloseCommunism(ctx context.Context, id, issuerID int64) (*Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.communism("communism.close", id)
	if err != nil {
		return nil, err
	}
	if c.CreatorID != issuerID {
		return nil, rejected("communism.close", "Only the creator can close this communism.")
	}
	shares := int64(c.Shares())
	if shares == 0 {
		return nil, rejected("communism.close", "Nobody is participating in this communism.")
	}
	creator := m.users[c.CreatorID]
	per := c.Amount / shares
	for _, p := range c.Participants {
		if p.UserID == c.CreatorID {
			continue
		}
		if participant, ok := m.users[p.UserID]; ok {
			m.book(participant, creator, per*int64(p.Quantity), "communism: "+c.Description)
		}
	}
	c.Active = false
	return cloneCommunism(c), nil
}

// AbortCommunism implements Ledger.
func (m *Memory) AbortCommunism(ctx context.Context, id, issuerID int64) (*Communism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.communism("communism.abort", id)
	if err != nil {
		return nil, err
	}
	if c.CreatorID != issuerID {
		return nil, rejected("communism.abort", "Only the creator can abort this communism.")
	}
	c.Active = false
	return cloneCommunism(c), nil
}

func (m *Memory) refund(op string, id int64) (*Refund, error) {
	r, ok := m.refunds[id]
	if !ok {
		return nil, fmt.Errorf("ledger %s: refund %d: %w", op, id, ErrNotFound)
	}
	if !r.Active {
		return nil, rejected(op, "The refund request %d is already closed.", id)
	}
	return r, nil
}

func cloneRefund(r *Refund) *Refund {
	clone := *r
	clone.Votes = append([]Vote(nil), r.Votes...)
	if r.Allowed != nil {
		allowed := *r.Allowed
		clone.Allowed = &allowed
	}
	if r.TransactionID != nil {
		id := *r.TransactionID
		clone.TransactionID = &id
	}
	return &clone
}

// CreateRefund implements Ledger.
func (m *Memory) CreateRefund(ctx context.Context, creatorID, amount int64, description string) (*Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount <= 0 {
		return nil, rejected("refund.create", "The amount must be positive.")
	}
	creator, err := m.activeUser("refund.create", creatorID)
	if err != nil {
		return nil, err
	}
	if creator.External {
		return nil, rejected("refund.create", "External users can't request refunds.")
	}
	r := &Refund{ID: m.id(), CreatorID: creatorID, Amount: amount, Description: description, Active: true}
	m.refunds[r.ID] = r
	return cloneRefund(r), nil
}

// ActiveRefunds implements Ledger.
func (m *Memory) ActiveRefunds(ctx context.Context, creatorID int64) ([]Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Refund
	for _, r := range m.refunds {
		if r.Active && r.CreatorID == creatorID {
			out = append(out, *cloneRefund(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// VoteRefund implements Ledger. RefundQuorum approvals pay the amount from
// the community to the creator; as many disapprovals reject the request.
func (m *Memory) VoteRefund(ctx context.Context, id, userID int64, approve bool) (*Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.refund("refund.vote", id)
	if err != nil {
		return nil, err
	}
	voter, err := m.activeUser("refund.vote", userID)
	if err != nil {
		return nil, err
	}
	if voter.External || !voter.Permission {
		return nil, rejected("refund.vote", "You are not permitted to vote on refund requests.")
	}
	if r.CreatorID == userID {
		return nil, rejected("refund.vote", "You can't vote on your own refund request.")
	}

	voted := false
	for i := range r.Votes {
		if r.Votes[i].UserID == userID {
			r.Votes[i].Approve = approve
			voted = true
			break
		}
	}
	if !voted {
		r.Votes = append(r.Votes, Vote{UserID: userID, Approve: approve})
	}

	approvals, disapprovals := r.Tally()
	switch {
	case approvals >= RefundQuorum:
		creator, err := m.activeUser("refund.vote", r.CreatorID)
		if err != nil {
			return nil, err
		}
		tx := m.book(m.users[CommunityID], creator, r.Amount, "refund: "+r.Description)
		allowed := true
		r.Allowed, r.TransactionID, r.Active = &allowed, &tx.ID, false
	case disapprovals >= RefundQuorum:
		allowed := false
		r.Allowed, r.Active = &allowed, false
	}
	return cloneRefund(r), nil
}

// AbortRefund implements Ledger.
func (m *Memory) AbortRefund(ctx context.Context, id, issuerID int64) (*Refund, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.refund("refund.abort", id)
	if err != nil {
		return nil, err
	}
	if r.CreatorID != issuerID {
		return nil, rejected("refund.abort", "Only the creator can abort this refund request.")
	}
	r.Active = false
	return cloneRefund(r), nil
}

// SetVoucher implements Ledger.
func (m *Memory) SetVoucher(ctx context.Context, debtorID int64, voucherID *int64) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	debtor, err := m.activeUser("vouch", debtorID)
	if err != nil {
		return nil, err
	}
	if voucherID != nil {
		if *voucherID == debtorID {
			return nil, rejected("vouch", "You can't vouch for yourself.")
		}
		voucher, err := m.activeUser("vouch", *voucherID)
		if err != nil {
			return nil, err
		}
		if voucher.External {
			return nil, rejected("vouch", "External users can't vouch for others.")
		}
		id := *voucherID
		debtor.VoucherID = &id
	} else {
		debtor.VoucherID = nil
	}
	clone := *debtor
	return &clone, nil
}

// Debtors implements Ledger.
func (m *Memory) Debtors(ctx context.Context, voucherID int64) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []User
	for _, u := range m.sortedUsers() {
		if u.VoucherID != nil && *u.VoucherID == voucherID {
			out = append(out, *u)
		}
	}
	return out, nil
}

package ledger

import (
	"context"
	"errors"
	"testing"
)

func newDemoMemory(t *testing.T) (*Memory, *User, *User, *User) {
	t.Helper()
	m := NewMemory(7, nil)
	m.AddConsumable("Mate", "Club Mate", 150)
	alice := m.AddUser("alice", Account{TelegramID: 1001, Username: "alice", FirstName: "Alice"})
	bob := m.AddUser("bob", Account{TelegramID: 1002, Username: "bobby", FirstName: "Bob", LastName: "Builder"})
	carol := m.AddExternalUser("carol")
	return m, alice, bob, carol
}

func TestMemory_ResolveIdentity(t *testing.T) {
	m, alice, bob, carol := newDemoMemory(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		text         string
		allowUnknown bool
		wantID       int64
		wantErr      error
	}{
		{name: "username", text: "@alice", wantID: alice.ID},
		{name: "username any case", text: "BOBBY", wantID: bob.ID},
		{name: "first name", text: "bob", wantID: bob.ID},
		{name: "full name", text: "Bob Builder", wantID: bob.ID},
		{name: "external strict", text: "carol", wantErr: ErrNotFound},
		{name: "external permissive", text: "carol", allowUnknown: true, wantID: carol.ID},
		{name: "unknown", text: "mallory", wantErr: ErrNotFound},
		{name: "empty", text: "@", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := m.ResolveIdentityByText(ctx, tt.text, tt.allowUnknown)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if user.ID != tt.wantID {
				t.Errorf("user = %d, want %d", user.ID, tt.wantID)
			}
		})
	}

	user, err := m.ResolveKnownIdentity(ctx, 1002)
	if err != nil || user.ID != bob.ID {
		t.Fatalf("ResolveKnownIdentity() = %+v, %v", user, err)
	}
	if _, err := m.ResolveKnownIdentity(ctx, 4242); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown account error = %v", err)
	}
}

func TestMemory_AmbiguousFirstName(t *testing.T) {
	m := NewMemory(7, nil)
	m.AddUser("anna1", Account{TelegramID: 1, FirstName: "Anna"})
	m.AddUser("anna2", Account{TelegramID: 2, FirstName: "Anna"})

	if _, err := m.ResolveIdentityByText(context.Background(), "anna", false); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("error = %v, want ErrAmbiguous", err)
	}
}

func TestMemory_SendRules(t *testing.T) {
	m, alice, bob, _ := newDemoMemory(t)
	ctx := context.Background()

	if _, err := m.Send(ctx, alice.ID, bob.ID, 500, "pizza"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	a, _ := m.GetUser(ctx, alice.ID)
	b, _ := m.GetUser(ctx, bob.ID)
	if a.Balance != -500 || b.Balance != 500 {
		t.Errorf("balances = %d, %d", a.Balance, b.Balance)
	}

	tests := []struct {
		name     string
		sender   int64
		receiver int64
		amount   int64
		want     string
	}{
		{name: "self", sender: alice.ID, receiver: alice.ID, amount: 1, want: "You can't send money to yourself."},
		{name: "zero", sender: alice.ID, receiver: bob.ID, amount: 0, want: "The amount must be positive."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Send(ctx, tt.sender, tt.receiver, tt.amount, "")
			msg, ok := RejectionMessage(err)
			if !ok || msg != tt.want {
				t.Fatalf("error = %v, want rejection %q", err, tt.want)
			}
		})
	}

	if _, err := m.Send(ctx, alice.ID, 999, 1, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown receiver error = %v", err)
	}
}

func TestMemory_ConsumeAndHistory(t *testing.T) {
	m, alice, bob, _ := newDemoMemory(t)
	ctx := context.Background()

	if _, err := m.Consume(ctx, alice.ID, "mate", 2); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if _, err := m.Donate(ctx, alice.ID, 100, "thanks"); err != nil {
		t.Fatalf("Donate() error = %v", err)
	}
	if _, err := m.Send(ctx, bob.ID, alice.ID, 50, "back"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	community, _ := m.GetUser(ctx, CommunityID)
	if community.Balance != 400 {
		t.Errorf("community balance = %d, want 400", community.Balance)
	}

	history, err := m.History(ctx, alice.ID, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Reason != "back" || history[1].Reason != "thanks" {
		t.Errorf("history = %+v", history)
	}

	if _, err := m.Consume(ctx, alice.ID, "caviar", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown consumable error = %v", err)
	}
}

func TestMemory_CommunismLifecycle(t *testing.T) {
	m, alice, bob, carol := newDemoMemory(t)
	ctx := context.Background()

	c, err := m.CreateCommunism(ctx, alice.ID, 900, "pizza")
	if err != nil {
		t.Fatalf("CreateCommunism() error = %v", err)
	}
	if _, err := m.JoinCommunism(ctx, c.ID, bob.ID); err != nil {
		t.Fatalf("JoinCommunism() error = %v", err)
	}
	if _, err := m.JoinCommunism(ctx, c.ID, carol.ID); err != nil {
		t.Fatalf("JoinCommunism() error = %v", err)
	}
	c, _ = m.JoinCommunism(ctx, c.ID, carol.ID)
	c, _ = m.LeaveCommunism(ctx, c.ID, carol.ID)
	if c.Shares() != 3 {
		t.Fatalf("shares = %d, want 3", c.Shares())
	}

	if _, err := m.CloseCommunism(ctx, c.ID, bob.ID); err == nil {
		t.Fatal("expected only the creator to close")
	}
	if _, err := m.CloseCommunism(ctx, c.ID, alice.ID); err != nil {
		t.Fatalf("CloseCommunism() error = %v", err)
	}

	a, _ := m.GetUser(ctx, alice.ID)
	b, _ := m.GetUser(ctx, bob.ID)
	if a.Balance != 600 || b.Balance != -300 {
		t.Errorf("balances = %d, %d", a.Balance, b.Balance)
	}

	if _, err := m.JoinCommunism(ctx, c.ID, bob.ID); err == nil {
		t.Error("expected closed communism to reject joins")
	}
	active, _ := m.ActiveCommunisms(ctx, alice.ID)
	if len(active) != 0 {
		t.Errorf("active = %+v", active)
	}
}

func TestMemory_Vouching(t *testing.T) {
	m, alice, bob, carol := newDemoMemory(t)
	ctx := context.Background()

	if _, err := m.SetVoucher(ctx, bob.ID, &alice.ID); err != nil {
		t.Fatalf("SetVoucher() error = %v", err)
	}
	debtors, _ := m.Debtors(ctx, alice.ID)
	if len(debtors) != 1 || debtors[0].ID != bob.ID {
		t.Fatalf("debtors = %+v", debtors)
	}

	if _, err := m.SetVoucher(ctx, alice.ID, &alice.ID); err == nil {
		t.Error("expected self vouching to be rejected")
	}
	if _, err := m.SetVoucher(ctx, alice.ID, &carol.ID); err == nil {
		t.Error("expected external voucher to be rejected")
	}

	if _, err := m.SetVoucher(ctx, bob.ID, nil); err != nil {
		t.Fatalf("SetVoucher(nil) error = %v", err)
	}
	if debtors, _ := m.Debtors(ctx, alice.ID); len(debtors) != 0 {
		t.Errorf("debtors after stop = %+v", debtors)
	}
}

func TestMemory_HonorsCancelledContext(t *testing.T) {
	m := NewMemory(7, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.ListConsumables(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestMemory_RefundApproved(t *testing.T) {
	m, alice, bob, carol := newDemoMemory(t)
	dora := m.AddUser("dora", Account{TelegramID: 1005, Username: "dora"})
	ctx := context.Background()

	if _, err := m.CreateRefund(ctx, carol.ID, 500, "tape"); err == nil {
		t.Error("expected external users to be refused")
	}
	r, err := m.CreateRefund(ctx, alice.ID, 500, "tape")
	if err != nil {
		t.Fatalf("CreateRefund() error = %v", err)
	}

	if _, err := m.VoteRefund(ctx, r.ID, alice.ID, true); err == nil {
		t.Error("expected the creator to be unable to vote")
	}
	if _, err := m.VoteRefund(ctx, r.ID, carol.ID, true); err == nil {
		t.Error("expected external users to be unable to vote")
	}

	r, _ = m.VoteRefund(ctx, r.ID, bob.ID, false)
	r, _ = m.VoteRefund(ctx, r.ID, bob.ID, true)
	if approve, disapprove := r.Tally(); approve != 1 || disapprove != 0 || !r.Active {
		t.Fatalf("after changed vote: %d/%d active=%v", approve, disapprove, r.Active)
	}

	r, err = m.VoteRefund(ctx, r.ID, dora.ID, true)
	if err != nil {
		t.Fatalf("VoteRefund() error = %v", err)
	}
	if r.Active || r.Allowed == nil || !*r.Allowed || r.TransactionID == nil {
		t.Fatalf("refund = %+v", r)
	}
	a, _ := m.GetUser(ctx, alice.ID)
	community, _ := m.Community(ctx)
	if a.Balance != 500 || community.Balance != -500 {
		t.Errorf("balances = %d, %d", a.Balance, community.Balance)
	}
	history, _ := m.History(ctx, alice.ID, 1)
	if len(history) != 1 || history[0].Reason != "refund: tape" {
		t.Errorf("history = %+v", history)
	}

	if _, err := m.VoteRefund(ctx, r.ID, bob.ID, false); err == nil {
		t.Error("expected a closed refund to reject votes")
	}
}

func TestMemory_RefundRejectedAndAborted(t *testing.T) {
	m, alice, bob, _ := newDemoMemory(t)
	dora := m.AddUser("dora", Account{TelegramID: 1005, Username: "dora"})
	ctx := context.Background()

	r, _ := m.CreateRefund(ctx, alice.ID, 300, "cups")
	m.VoteRefund(ctx, r.ID, bob.ID, false)
	r, _ = m.VoteRefund(ctx, r.ID, dora.ID, false)
	if r.Active || r.Allowed == nil || *r.Allowed || r.TransactionID != nil {
		t.Fatalf("refund = %+v", r)
	}

	r, _ = m.CreateRefund(ctx, alice.ID, 300, "cups")
	if _, err := m.AbortRefund(ctx, r.ID, bob.ID); err == nil {
		t.Error("expected only the creator to abort")
	}
	if r, _ = m.AbortRefund(ctx, r.ID, alice.ID); r.Active || r.Allowed != nil {
		t.Errorf("aborted refund = %+v", r)
	}
	if active, _ := m.ActiveRefunds(ctx, alice.ID); len(active) != 0 {
		t.Errorf("active = %+v", active)
	}
	if a, _ := m.GetUser(ctx, alice.ID); a.Balance != 0 {
		t.Errorf("balance = %d", a.Balance)
	}
}

func TestMemory_SignUp(t *testing.T) {
	m, _, _, _ := newDemoMemory(t)
	ctx := context.Background()

	if taken, _ := m.NameTaken(ctx, "ALICE"); !taken {
		t.Error("expected alice to be taken")
	}
	if _, err := m.SignUp(ctx, "Alice", Account{TelegramID: 5005}); err == nil {
		t.Error("expected a taken name to be rejected")
	}
	if _, err := m.SignUp(ctx, "erin", Account{TelegramID: 1001}); err == nil {
		t.Error("expected a registered account to be rejected")
	}

	u, err := m.SignUp(ctx, "erin", Account{TelegramID: 5005, Username: "erin"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !u.External || u.Permission {
		t.Errorf("user = %+v", u)
	}
	got, err := m.ResolveKnownIdentity(ctx, 5005)
	if err != nil || got.ID != u.ID {
		t.Errorf("ResolveKnownIdentity() = %+v, %v", got, err)
	}
	if _, ok := m.Identities().Get(5005); !ok {
		t.Error("account not remembered")
	}
}

func TestMemory_TopDebtors(t *testing.T) {
	m, alice, bob, carol := newDemoMemory(t)
	ctx := context.Background()

	if debtors, _ := m.TopDebtors(ctx, 1); len(debtors) != 0 {
		t.Fatalf("debtors = %+v", debtors)
	}
	m.Send(ctx, alice.ID, bob.ID, 300, "a")
	m.Send(ctx, carol.ID, bob.ID, 100, "b")
	m.Donate(ctx, bob.ID, 5000, "c")

	debtors, _ := m.TopDebtors(ctx, 2)
	if len(debtors) != 2 || debtors[0].Name != "bob" || debtors[1].Name != "alice" {
		t.Errorf("TopDebtors(2) = %+v", debtors)
	}
	if debtors, _ := m.TopDebtors(ctx, 1); len(debtors) != 1 || debtors[0].ID != bob.ID {
		t.Errorf("TopDebtors(1) = %+v", debtors)
	}
}

func TestMemory_Aliases(t *testing.T) {
	m, alice, bob, _ := newDemoMemory(t)
	ctx := context.Background()
	web := m.AddAlias(alice.ID, 2, "alice@web", false)

	if _, err := m.ConfirmAlias(ctx, web.ID, bob.ID); err == nil {
		t.Error("expected foreign aliases to be refused")
	}
	if _, err := m.ConfirmAlias(ctx, 999, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown alias error = %v", err)
	}
	a, err := m.ConfirmAlias(ctx, web.ID, alice.ID)
	if err != nil || !a.Confirmed {
		t.Fatalf("ConfirmAlias() = %+v, %v", a, err)
	}
	if err := m.DeleteAlias(ctx, web.ID, alice.ID); err != nil {
		t.Fatalf("DeleteAlias() error = %v", err)
	}
	u, _ := m.GetUser(ctx, alice.ID)
	if len(u.Aliases) != 1 || u.Aliases[0].ApplicationID != 7 {
		t.Errorf("aliases = %+v", u.Aliases)
	}
}

func TestMemory_SetUsername(t *testing.T) {
	m, alice, _, _ := newDemoMemory(t)
	ctx := context.Background()

	if _, err := m.SetUsername(ctx, alice.ID, "BOB"); err == nil {
		t.Error("expected a taken name to be rejected")
	}
	if _, err := m.SetUsername(ctx, alice.ID, " "); err == nil {
		t.Error("expected an empty name to be rejected")
	}
	if u, err := m.SetUsername(ctx, alice.ID, "ALICE"); err != nil || u.Name != "ALICE" {
		t.Errorf("case change = %+v, %v", u, err)
	}
	if taken, _ := m.NameTaken(ctx, "alice"); !taken {
		t.Error("expected the renamed user to keep the folded name")
	}
}

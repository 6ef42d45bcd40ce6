package commands

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
)

var erinTG = callbacks.Sender{ID: 1005, Username: "erin", FirstName: "Erin"}

func newRefundBot(t *testing.T) *testBot {
	t.Helper()
	b := newTestBot(t)
	b.ledger.AddUser("erin", ledger.Account{TelegramID: erinTG.ID, Username: erinTG.Username, FirstName: erinTG.FirstName})
	return b
}

func TestRefund_Approved(t *testing.T) {
	b := newRefundBot(t)
	alice := b.user("alice")

	res := b.run(aliceTG, "/refund 5 tape")
	active, err := b.ledger.ActiveRefunds(context.Background(), alice.ID)
	if err != nil || len(active) != 1 {
		t.Fatalf("active refunds = %v, %v", active, err)
	}
	id := active[0].ID

	want := "*Refund by alice*\nReason: tape\nAmount: 5.00€\n\n*Votes (0)*\nProponents (0): None\nOpponents (0): None\n\n_The refund request is currently active._"
	if res.Text != want || !res.Markdown {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	buttons := []string{
		fmt.Sprintf("refund approve %d", id),
		fmt.Sprintf("refund disapprove %d", id),
		fmt.Sprintf("refund abort %d", id),
	}
	if got := buttonData(res.Keyboard); !reflect.DeepEqual(got, buttons) {
		t.Fatalf("buttons = %v, want %v", got, buttons)
	}

	answer := b.press(aliceTG, buttons[0], "")
	if !answer.ShowAlert || answer.Text != "You can't vote on your own refund request." {
		t.Errorf("own vote = %+v", answer)
	}
	answer = b.press(daveTG, buttons[0], "")
	if !answer.ShowAlert || answer.Text != notPermitted {
		t.Errorf("external vote = %+v", answer)
	}

	answer = b.press(bobTG, buttons[1], "")
	if answer.Text != "You successfully voted against the request." || answer.Edit == nil ||
		!strings.Contains(answer.Edit.Text, "*Votes (1)*\nProponents (0): None\nOpponents (1): bob") {
		t.Fatalf("disapprove = %+v", answer)
	}
	answer = b.press(bobTG, buttons[0], "")
	if answer.Text != "You successfully voted for the request." ||
		!strings.Contains(answer.Edit.Text, "*Votes (1)*\nProponents (1): bob\nOpponents (0): None") {
		t.Fatalf("changed vote = %+v", answer)
	}
	if len(answer.Edit.Keyboard) == 0 {
		t.Error("active refund should keep its buttons")
	}

	answer = b.press(erinTG, buttons[0], "")
	if answer.Edit == nil || !strings.HasSuffix(answer.Edit.Text, "_The request was allowed. The transaction has been processed. Take a look at your history for more details._") {
		t.Fatalf("approve = %+v", answer)
	}
	if answer.Edit.Keyboard != nil {
		t.Error("closed refund should drop its buttons")
	}
	if got := b.balance("alice"); got != 500 {
		t.Errorf("alice balance = %d, want 500", got)
	}

	answer = b.press(bobTG, buttons[1], "")
	if !answer.ShowAlert || !strings.Contains(answer.Text, "already closed") {
		t.Errorf("vote after close = %+v", answer)
	}
}

func TestRefund_Rejected(t *testing.T) {
	b := newRefundBot(t)
	res := b.run(aliceTG, "/refund 2,5 cups")
	disapprove := buttonData(res.Keyboard)[1]

	b.press(bobTG, disapprove, "")
	answer := b.press(erinTG, disapprove, "")
	if answer.Edit == nil || !strings.HasSuffix(answer.Edit.Text, "_The request was rejected. No transactions have been processed._") {
		t.Fatalf("reject = %+v", answer)
	}
	if !strings.Contains(answer.Edit.Text, "Opponents (2): bob, erin") {
		t.Errorf("Text = %q", answer.Edit.Text)
	}
	if got := b.balance("alice"); got != 0 {
		t.Errorf("rejected refund moved money: %d", got)
	}
}

func TestRefund_AbortButton(t *testing.T) {
	b := newRefundBot(t)
	res := b.run(aliceTG, "/refund 4 cake")
	abort := buttonData(res.Keyboard)[2]

	answer := b.press(bobTG, abort, "")
	if !answer.ShowAlert || answer.Text != "Only the creator can abort this refund request." {
		t.Errorf("foreign abort = %+v", answer)
	}
	answer = b.press(aliceTG, abort, "")
	if answer.Edit == nil || !strings.HasSuffix(answer.Edit.Text, "_The request has been aborted. No transactions have been processed._") {
		t.Fatalf("abort = %+v", answer)
	}
	if answer.Edit.Keyboard != nil {
		t.Error("aborted refund should drop its buttons")
	}
}

func TestRefund_Subcommands(t *testing.T) {
	b := newRefundBot(t)

	if res := b.run(aliceTG, "/refund stop"); res.Text != noActiveRefund {
		t.Errorf("stop without refund = %q", res.Text)
	}
	if res := b.run(aliceTG, "/refund show"); res.Text != noActiveRefund {
		t.Errorf("show without refund = %q", res.Text)
	}

	b.run(aliceTG, "/refund 5 coffee beans")
	if res := b.run(aliceTG, "/refund 3 again"); res.Text != "You already have a refund request in progress. Please handle it first." {
		t.Errorf("second refund = %q", res.Text)
	}
	if res := b.run(aliceTG, "/refund show"); !strings.Contains(res.Text, "Reason: coffee beans") || len(res.Keyboard) == 0 {
		t.Errorf("show = %+v", res)
	}
	if res := b.run(aliceTG, "/refund stop"); res.Text != "You have aborted your most recent refund request of 5.00€!" {
		t.Errorf("stop = %q", res.Text)
	}

	if res := b.run(daveTG, "/refund 1 stamps"); res.Text != internalOnly {
		t.Errorf("external refund = %q", res.Text)
	}
	if res := b.run(strangerTG, "/refund 1 stamps"); res.Text != errNotRegistered.Message {
		t.Errorf("unregistered refund = %q", res.Text)
	}
}

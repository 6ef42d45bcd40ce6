package commands

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
)

func TestStart_SignUp(t *testing.T) {
	b := newTestBot(t)

	if res := b.exec(strangerTG, "/start", false); res.Text != "This command should be executed in private chat." {
		t.Errorf("group start = %q", res.Text)
	}

	res := b.run(strangerTG, "/start")
	if !strings.HasPrefix(res.Text, "It looks like you are a new user.") {
		t.Errorf("Text = %q", res.Text)
	}
	want := []string{"start init 4242 existing", "start init 4242 new"}
	if got := buttonData(res.Keyboard); !reflect.DeepEqual(got, want) {
		t.Fatalf("buttons = %v, want %v", got, want)
	}

	answer := b.press(bobTG, "start init 4242 new", "")
	if !answer.ShowAlert || answer.Edit != nil {
		t.Errorf("foreign press = %+v", answer)
	}

	answer = b.press(strangerTG, "start init 4242 existing", "")
	if answer.Edit == nil || !strings.HasPrefix(answer.Edit.Text, "Accounts from other applications can't be connected") {
		t.Fatalf("existing = %+v", answer)
	}
	if got := buttonData(answer.Edit.Keyboard); !reflect.DeepEqual(got, []string{"start init 4242 new", "start abort 4242"}) {
		t.Errorf("existing buttons = %v", got)
	}

	answer = b.press(strangerTG, "start init 4242 new", "")
	if got := buttonData(answer.Edit.Keyboard); !reflect.DeepEqual(got, []string{"start register 4242 stranger", "start abort 4242"}) {
		t.Fatalf("name buttons = %v", got)
	}

	answer = b.press(strangerTG, "start register 4242 alice", "")
	if !answer.ShowAlert || answer.Text != "Sorry, the username 'alice' is not available." {
		t.Errorf("taken name = %+v", answer)
	}

	answer = b.press(strangerTG, "start register 4242 stranger", "")
	if answer.Edit == nil || answer.Edit.Text != "Your account has been created. Use /help to show available commands." {
		t.Fatalf("register = %+v", answer)
	}
	if u := b.user("stranger"); !u.External || u.Permission {
		t.Errorf("new user = %+v", u)
	}
	if res := b.run(strangerTG, "/balance"); res.Text != "Your balance is: 0.00€" {
		t.Errorf("balance after sign-up = %q", res.Text)
	}
	if res := b.run(strangerTG, "/start"); res.Text != alreadyRegistered {
		t.Errorf("second start = %q", res.Text)
	}

	answer = b.press(strangerTG, "start register 4242 stranger", "")
	if answer.Edit == nil || answer.Edit.Text != alreadyRegistered {
		t.Errorf("stale button = %+v", answer)
	}
}

func TestStart_NameCandidates(t *testing.T) {
	b := newTestBot(t)
	newcomer := callbacks.Sender{ID: 5005, Username: "bobby2", FirstName: "Bob", LastName: "Builder"}

	answer := b.press(newcomer, "start init 5005 new", "")
	want := []string{"start register 5005 bobby2", "start register 5005 Bob Builder", "start abort 5005"}
	if got := buttonData(answer.Edit.Keyboard); !reflect.DeepEqual(got, want) {
		t.Fatalf("buttons = %v, want %v", got, want)
	}

	answer = b.press(newcomer, "start register 5005 Bob Builder", "")
	if answer.Edit == nil || !strings.HasPrefix(answer.Edit.Text, "Your account has been created.") {
		t.Fatalf("register = %+v", answer)
	}
	if u, err := b.ledger.ResolveKnownIdentity(context.Background(), 5005); err != nil || u.Name != "Bob Builder" {
		t.Errorf("user = %+v, %v", u, err)
	}
}

func TestStart_NoFreeName(t *testing.T) {
	b := newTestBot(t)
	twin := callbacks.Sender{ID: 5006, FirstName: "alice"}

	answer := b.press(twin, "start init 5006 new", "")
	if answer.Edit == nil || !strings.HasPrefix(answer.Edit.Text, "None of your Telegram names is available") {
		t.Fatalf("answer = %+v", answer)
	}
	if got := buttonData(answer.Edit.Keyboard); !reflect.DeepEqual(got, []string{"start abort 5006"}) {
		t.Errorf("buttons = %v", got)
	}

	answer = b.press(twin, "start abort 5006", "")
	if answer.Edit == nil || answer.Edit.Text != "You have aborted the registration process. Use /start to begin." {
		t.Errorf("abort = %+v", answer)
	}
}

func TestStart_RegisteredUser(t *testing.T) {
	b := newTestBot(t)
	if res := b.run(aliceTG, "/start"); res.Text != alreadyRegistered {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestNameCandidates(t *testing.T) {
	tests := []struct {
		sender callbacks.Sender
		want   []string
	}{
		{callbacks.Sender{Username: "erin", FirstName: "Erin"}, []string{"erin"}},
		{callbacks.Sender{FirstName: " Erin ", LastName: "Smith"}, []string{"Erin", "Erin Smith"}},
		{callbacks.Sender{Username: "e1", FirstName: "Erin", LastName: "Smith"}, []string{"e1", "Erin", "Erin Smith"}},
		{callbacks.Sender{}, nil},
	}
	for _, tt := range tests {
		if got := nameCandidates(tt.sender); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("nameCandidates(%+v) = %v, want %v", tt.sender, got, tt.want)
		}
	}
}

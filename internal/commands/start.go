package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
)

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

const alreadyRegistered = "You are already registered. Using this command twice has no means."

func registerStart(d *Deps, mustRegister func(*Command), mustRoute func(*callbacks.Table[callbacks.Handler])) {
	mustRegister(&Command{
		Name:        "start",
		Description: "Create your account",
		Help: "New users sign up with this command in a private chat with the bot. " +
			"The account is bound to your Telegram account; pick one of your Telegram " +
			"names as the username.",
		Category: "users",
		Source:   "builtin",
		Handler:  d.start,
	})

	mustRoute(callbacks.MustTable("start", "^start", map[string]callbacks.Handler{
		"init":     d.startInit,
		"register": d.startRegister,
		"abort":    d.startAbort,
	}))
}

func (d *Deps) start(ctx context.Context, inv *Invocation) (*Result, error) {
	if !inv.Private {
		return nil, userError("This command should be executed in private chat.")
	}
	if _, err := d.Ledger.ResolveKnownIdentity(ctx, inv.Sender.ID); err == nil {
		return &Result{Text: alreadyRegistered}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	id := fmt.Sprint(inv.Sender.ID)
	return &Result{
		Text: "It looks like you are a new user. Did you already use the MateBot in some other application?",
		Keyboard: callbacks.Keyboard{{
			{Text: "YES", Data: "start init " + id + " existing"},
			{Text: "NO", Data: "start init " + id + " new"},
		}},
	}, nil
}

// startSender checks that the button belongs to the sign-up of the
// pressing account and that this account is still unregistered.
func (d *Deps) startSender(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 1)
	if err != nil {
		return nil, err
	}
	if args[0] != q.From.ID {
		return &callbacks.Answer{Text: "Only the creator of this /start call can use this button.", ShowAlert: true}, nil
	}
	if _, err := d.Ledger.ResolveKnownIdentity(ctx, q.From.ID); err == nil {
		return &callbacks.Answer{Edit: &callbacks.Edit{Text: alreadyRegistered}}, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	return nil, nil
}

func (d *Deps) startInit(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	if answer, err := d.startSender(ctx, q); answer != nil || err != nil {
		return answer, err
	}
	id := fmt.Sprint(q.From.ID)
	abort := callbacks.Button{Text: "ABORT SIGN-UP", Data: "start abort " + id}

	if len(q.Args) > 1 && q.Args[1] == "existing" {
		return &callbacks.Answer{Edit: &callbacks.Edit{
			Text: "Accounts from other applications can't be connected from this bot. Add an alias " +
				"for this Telegram account in your other application and accept it there, or sign " +
				"up as a new user.",
			Keyboard: callbacks.Keyboard{{
				{Text: "SIGN UP AS NEW USER", Data: "start init " + id + " new"},
				abort,
			}},
		}}, nil
	}

	var keyboard callbacks.Keyboard
	for _, name := range nameCandidates(q.From) {
		data := "start register " + id + " " + name
		if len(data) > maxCallbackData {
			continue
		}
		taken, err := d.Ledger.NameTaken(ctx, name)
		if err != nil {
			return nil, err
		}
		if !taken {
			keyboard = append(keyboard, []callbacks.Button{{Text: fmt.Sprintf("USE '%s'", name), Data: data}})
		}
	}
	text := "Please choose the username of your new account. It identifies you in other applications, too."
	if len(keyboard) == 0 {
		text = "None of your Telegram names is available as a username. Change your Telegram username and use /start again."
	}
	keyboard = append(keyboard, []callbacks.Button{abort})
	return &callbacks.Answer{Edit: &callbacks.Edit{Text: text, Keyboard: keyboard}}, nil
}

// nameCandidates lists the distinct Telegram names of s in order of
// preference.
func nameCandidates(s callbacks.Sender) []string {
	full := strings.TrimSpace(s.FirstName + " " + s.LastName)
	var out []string
	seen := make(map[string]bool)
	for _, name := range []string{s.Username, s.FirstName, full} {
		name = strings.Join(strings.Fields(name), " ")
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	return out
}

func (d *Deps) startRegister(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	if answer, err := d.startSender(ctx, q); answer != nil || err != nil {
		return answer, err
	}
	name := strings.Join(q.Args[1:], " ")
	if name == "" {
		return nil, fmt.Errorf("callback %q: missing username", q.Payload)
	}

	taken, err := d.Ledger.NameTaken(ctx, name)
	if err != nil {
		return nil, err
	}
	if taken {
		return &callbacks.Answer{Text: fmt.Sprintf("Sorry, the username '%s' is not available.", name), ShowAlert: true}, nil
	}

	user, err := d.Ledger.SignUp(ctx, name, ledger.Account{
		TelegramID: q.From.ID,
		Username:   q.From.Username,
		FirstName:  q.From.FirstName,
		LastName:   q.From.LastName,
	})
	if msg, ok := ledger.RejectionMessage(err); ok {
		return &callbacks.Answer{Text: msg, ShowAlert: true}, nil
	}
	if err != nil {
		return nil, err
	}
	d.Logger.InfoContext(ctx, "user signed up", "user_id", user.ID, "telegram_id", q.From.ID)
	return &callbacks.Answer{Edit: &callbacks.Edit{
		Text: "Your account has been created. Use /help to show available commands.",
	}}, nil
}

func (d *Deps) startAbort(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	if answer, err := d.startSender(ctx, q); answer != nil || err != nil {
		return answer, err
	}
	return &callbacks.Answer{Edit: &callbacks.Edit{
		Text: "You have aborted the registration process. Use /start to begin.",
	}}, nil
}

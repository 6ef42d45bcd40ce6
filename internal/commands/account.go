package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

func registerAccount(d *Deps, mustRegister func(*Command), mustRoute func(*callbacks.Table[callbacks.Handler])) {
	username := parsing.NewGrammar("username")
	username.AddArgument("username", parsing.WithArity(parsing.Optional))
	mustRegister(&Command{
		Name:        "username",
		Description: "Show or update your global username",
		Help: "This username is used across all applications connected to the same " +
			"MateBot core. Usernames must therefore be unique.",
		Grammar:  username,
		Category: "users",
		Source:   "builtin",
		Handler:  d.username,
	})

	alias := parsing.NewGrammar("alias")
	alias.AddArgument("subcommand",
		parsing.WithType(parsing.Lower),
		parsing.WithChoices("accept", "deny", "show"),
		parsing.WithArity(parsing.Optional),
		parsing.WithDefault("show"))
	mustRegister(&Command{
		Name:        "alias",
		Description: "Manage the accounts of other applications connected to yours",
		Help: "By default the command lists your aliases, the logins of other applications " +
			"that can use your account. Use `accept` to confirm a requested alias, and `deny` " +
			"to remove one. The alias of this bot can't be removed here, since that would " +
			"lock you out of your account. Only available in private chat.",
		Grammar:  alias,
		Category: "users",
		Source:   "builtin",
		Handler:  d.alias,
	})

	mustRoute(callbacks.MustTable("alias", "^alias", map[string]callbacks.Handler{
		"accept": d.aliasAction,
		"deny":   d.aliasAction,
		"clear":  d.aliasClear,
	}))
}

func (d *Deps) username(ctx context.Context, inv *Invocation) (*Result, error) {
	user, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	name := inv.Namespace.String("username")
	if name == "" {
		return &Result{Text: fmt.Sprintf("Your global username is: '%s'", user.Name)}, nil
	}
	if user, err = d.Ledger.SetUsername(ctx, user.ID, name); err != nil {
		return nil, err
	}
	return &Result{Text: fmt.Sprintf("Your global username has been updated to '%s'!", user.Name)}, nil
}

func (d *Deps) alias(ctx context.Context, inv *Invocation) (*Result, error) {
	if !inv.Private {
		return nil, userError("You should execute this command in private chat only.")
	}
	user, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	appID, err := d.Ledger.ApplicationID(ctx)
	if err != nil {
		return nil, err
	}
	owner := fmt.Sprint(inv.Sender.ID)

	var pick []ledger.Alias
	var text, clear string
	switch inv.Namespace.String("subcommand") {
	case "accept":
		for _, a := range user.Aliases {
			if !a.Confirmed {
				pick = append(pick, a)
			}
		}
		if len(pick) == 0 {
			return &Result{Text: "Currently, you have no unconfirmed aliases."}, nil
		}
		text = "Here's an overview of currently unconfirmed aliases. Clicking on a button accepts " +
			"the alias and gives the owner of that account access to your user account."
		clear = "Don't accept any alias now"
	case "deny":
		for _, a := range user.Aliases {
			if a.ApplicationID != appID {
				pick = append(pick, a)
			}
		}
		if len(pick) == 0 {
			return &Result{Text: "Currently, you have no aliases other than the Telegram alias. " +
				"It can't be removed here, since that would lock you out of your account."}, nil
		}
		text = "Here's an overview of your aliases. Clicking on a button removes the alias and " +
			"denies the owner of that account further access to your user account. The alias " +
			"of this bot is not listed."
		clear = "Don't deny any alias now"
	default:
		lines := make([]string, len(user.Aliases))
		for i, a := range user.Aliases {
			lines[i] = formatAlias(a, appID)
		}
		return &Result{Text: "You currently have the following registered aliases:\n" + strings.Join(lines, "\n"), Markdown: true}, nil
	}

	keyboard := make(callbacks.Keyboard, 0, len(pick)+1)
	for _, a := range pick {
		keyboard = append(keyboard, []callbacks.Button{{
			Text: fmt.Sprintf("ID %d: '%s'", a.ID, a.Username),
			Data: fmt.Sprintf("alias %s %d %s", inv.Namespace.String("subcommand"), a.ID, owner),
		}})
	}
	keyboard = append(keyboard, []callbacks.Button{{Text: clear, Data: "alias clear " + owner}})
	return &Result{Text: text, Keyboard: keyboard}, nil
}

func formatAlias(a ledger.Alias, appID int64) string {
	state := "requested (!)"
	if a.Confirmed {
		state = "accepted"
	}
	app := fmt.Sprintf("app %d", a.ApplicationID)
	if a.ApplicationID == appID {
		app = "this bot"
	}
	return fmt.Sprintf("`ID %d: '%s' from %s: %s`", a.ID, a.Username, app, state)
}

// aliasAction handles "alias accept|deny <alias id> <telegram id>".
func (d *Deps) aliasAction(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 2)
	if err != nil {
		return nil, err
	}
	if args[1] != q.From.ID {
		return &callbacks.Answer{Text: "This button is not meant for you.", ShowAlert: true}, nil
	}
	user, err := d.issuer(ctx, q.From)
	if err != nil {
		return userAnswer(err)
	}
	var alias *ledger.Alias
	for i := range user.Aliases {
		if user.Aliases[i].ID == args[0] {
			alias = &user.Aliases[i]
			break
		}
	}
	if alias == nil {
		return &callbacks.Answer{Text: "This alias doesn't exist anymore.", ShowAlert: true}, nil
	}

	var text string
	if q.Key == "accept" {
		_, err = d.Ledger.ConfirmAlias(ctx, alias.ID, user.ID)
		text = fmt.Sprintf("You accepted the alias '%s'. It can now use your account.", alias.Username)
	} else {
		appID, appErr := d.Ledger.ApplicationID(ctx)
		if appErr != nil {
			return nil, appErr
		}
		if alias.ApplicationID == appID {
			return &callbacks.Answer{Text: "The alias of this bot can't be removed here.", ShowAlert: true}, nil
		}
		err = d.Ledger.DeleteAlias(ctx, alias.ID, user.ID)
		text = fmt.Sprintf("You removed the alias '%s'. It can no longer use your account.", alias.Username)
	}
	if msg, ok := ledger.RejectionMessage(err); ok {
		return &callbacks.Answer{Text: msg, ShowAlert: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &callbacks.Answer{Edit: &callbacks.Edit{Text: text}}, nil
}

func (d *Deps) aliasClear(_ context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 1)
	if err != nil {
		return nil, err
	}
	if args[0] != q.From.ID {
		return &callbacks.Answer{Text: "This button is not meant for you.", ShowAlert: true}, nil
	}
	return &callbacks.Answer{Edit: &callbacks.Edit{Text: "No alias has been changed."}}, nil
}

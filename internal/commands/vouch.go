package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

func registerVouch(d *Deps, mustRegister func(*Command), mustRoute func(*callbacks.Table[callbacks.Handler])) {
	user := parsing.User(d.Ledger, true)

	g := parsing.NewGrammar("vouch")
	g.NewUsage().AddArgument("user", parsing.WithType(user))
	g.NewUsage().
		AddArgument("command", parsing.WithType(parsing.Lower), parsing.WithChoices("add", "start", "remove", "stop")).
		AddArgument("user", parsing.WithType(user))
	mustRegister(&Command{
		Name:        "vouch",
		Description: "Vouch for other users",
		Help: "External users need an internal user who vouches for them before they can " +
			"send money or consume goods. The voucher is held responsible for the debts of " +
			"the external user. Without arguments the command shows who you vouch for.",
		Grammar:  g,
		Category: "users",
		Source:   "builtin",
		Handler:  d.vouch,
	})

	mustRoute(callbacks.MustTable("vouch", "^vouch", map[string]callbacks.Handler{
		"add":    d.confirmVouch,
		"start":  d.confirmVouch,
		"remove": d.confirmVouch,
		"stop":   d.confirmVouch,
	}))
}

func (d *Deps) vouch(ctx context.Context, inv *Invocation) (*Result, error) {
	issuer, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	other, _ := inv.Namespace.Get("user").(*ledger.User)

	if other == nil {
		return d.vouchStatus(ctx, issuer)
	}
	if issuer.External {
		return nil, userError("You can't vouch for other users since you're an external user yourself.")
	}

	command := inv.Namespace.String("command")
	if command == "" {
		return d.vouchInfo(ctx, other)
	}
	if !inv.Private {
		return nil, userError("This command can only be used in private chat.")
	}
	if !other.External {
		return nil, userError("This user is not external. Therefore, you can't vouch for this user.")
	}

	name := ledger.DisplayName(other)
	var text string
	switch command {
	case "add", "start":
		if other.VoucherID != nil && *other.VoucherID == issuer.ID {
			return nil, userError("You already vouch for %s. If you want to stop this, use `/vouch stop %s`.", name, name)
		}
		if other.VoucherID != nil {
			return nil, userError("Somebody else already vouches for %s.", name)
		}
		text = fmt.Sprintf("*Do you really want to vouch for %s?*\n\nThis will have some consequences:\n"+
			"- %s will become able to perform operations that change the balance like /send or consumptions.\n"+
			"- You will be held responsible for the debts of %s once you stop vouching.", name, name, name)
	default:
		if other.VoucherID == nil || *other.VoucherID != issuer.ID {
			return nil, userError("You don't vouch for %s.", name)
		}
		text = fmt.Sprintf("*Do you really want to stop vouching for %s?*\n\n"+
			"This will have some consequences:\n"+
			"- %s won't be able to perform operations that change the balance anymore.\n"+
			"- You may need to balance the debts of %s.", name, name, name)
	}

	data := fmt.Sprintf("vouch %s %d %d", command, other.ID, inv.Sender.ID)
	return &Result{
		Text:     text,
		Markdown: true,
		Keyboard: callbacks.Keyboard{{
			{Text: "YES", Data: data + " accept"},
			{Text: "NO", Data: data + " deny"},
		}},
	}, nil
}

func (d *Deps) vouchStatus(ctx context.Context, issuer *ledger.User) (*Result, error) {
	if issuer.External {
		if issuer.VoucherID == nil {
			return &Result{Text: "You're an external user without a voucher. You need a voucher to use this and some other bot features."}, nil
		}
		voucher, err := d.Ledger.GetUser(ctx, *issuer.VoucherID)
		if err != nil {
			return nil, err
		}
		return &Result{Text: fmt.Sprintf("You're an external user, but you are allowed to interact "+
			"with the bot, since %s vouches for you.", ledger.DisplayName(voucher))}, nil
	}

	debtors, err := d.Ledger.Debtors(ctx, issuer.ID)
	if err != nil {
		return nil, err
	}
	if len(debtors) == 0 {
		return &Result{Text: "You currently don't vouch for anybody."}, nil
	}
	names := make([]string, len(debtors))
	for i := range debtors {
		names[i] = ledger.DisplayName(&debtors[i])
	}
	return &Result{Text: "You currently vouch for the following users:\n" + strings.Join(names, "\n")}, nil
}

func (d *Deps) vouchInfo(ctx context.Context, other *ledger.User) (*Result, error) {
	name := ledger.DisplayName(other)
	if !other.External {
		debtors, err := d.Ledger.Debtors(ctx, other.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Text: fmt.Sprintf("%s is an internal user and vouches for %d other user(s).", name, len(debtors))}, nil
	}
	if other.VoucherID == nil {
		return &Result{Text: fmt.Sprintf("Nobody vouches for %s.", name)}, nil
	}
	voucher, err := d.Ledger.GetUser(ctx, *other.VoucherID)
	if err != nil {
		return nil, err
	}
	return &Result{Text: fmt.Sprintf("%s vouches for %s.", ledger.DisplayName(voucher), name)}, nil
}

// confirmVouch handles the YES/NO buttons of a vouch request. The payload
// arguments are the debtor's user id, the requester's Telegram id and the
// answer.
func (d *Deps) confirmVouch(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 2)
	if err != nil {
		return nil, err
	}
	if len(q.Args) < 3 {
		return nil, fmt.Errorf("callback %q: missing answer", q.Payload)
	}
	debtorID, originalSender, answer := args[0], args[1], q.Args[2]
	if q.From.ID != originalSender {
		return &callbacks.Answer{Text: "Only the creator of this request can answer it!"}, nil
	}
	if answer == "deny" {
		return &callbacks.Answer{Edit: &callbacks.Edit{Text: "You aborted the operation."}}, nil
	}
	if answer != "accept" {
		return nil, fmt.Errorf("callback %q: unknown answer %q", q.Payload, answer)
	}

	issuer, err := d.issuer(ctx, q.From)
	if err != nil {
		return userAnswer(err)
	}

	var voucher *int64
	if q.Key == "add" || q.Key == "start" {
		voucher = &issuer.ID
	}
	debtor, err := d.Ledger.SetVoucher(ctx, debtorID, voucher)
	if msg, ok := ledger.RejectionMessage(err); ok {
		return &callbacks.Answer{Edit: &callbacks.Edit{Text: "Your request has been rejected:\n" + msg}}, nil
	}
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("You now vouch for %s.", ledger.DisplayName(debtor))
	if voucher == nil {
		text = fmt.Sprintf("You don't vouch for %s anymore. Therefore, the privileges of %s to use this bot have been limited.",
			ledger.DisplayName(debtor), ledger.DisplayName(debtor))
	}
	return &callbacks.Answer{Edit: &callbacks.Edit{Text: text}}, nil
}

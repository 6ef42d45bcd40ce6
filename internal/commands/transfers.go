package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

const (
	noDescription    = "<no description>"
	sourceConsumable = "consumable"
)

func registerTransfers(d *Deps, mustRegister func(*Command), mustRoute func(*callbacks.Table[callbacks.Handler])) {
	receiver := parsing.User(d.Ledger, d.AllowExternal)

	sendGrammar := parsing.NewGrammar("send")
	sendGrammar.AddArgument("amount", parsing.WithType(d.Amounts.Convert))
	sendGrammar.AddArgument("receiver", parsing.WithType(receiver))
	sendGrammar.AddArgument("reason", parsing.WithArity(parsing.ZeroOrMore), parsing.Joined(), parsing.WithDefault(noDescription))
	sendGrammar.NewUsage().
		AddArgument("receiver", parsing.WithType(receiver)).
		AddArgument("amount", parsing.WithType(d.Amounts.Convert)).
		AddArgument("reason", parsing.WithArity(parsing.ZeroOrMore), parsing.Joined(), parsing.WithDefault(noDescription))
	mustRegister(&Command{
		Name:        "send",
		Description: "Send money to another user",
		Help: "The receiver of your transaction has to be registered with this bot. The bot " +
			"asks you to confirm the transaction before any money is transferred. Every word " +
			"after the amount and the receiver is used as description of the transaction.",
		Grammar:  sendGrammar,
		Category: "money",
		Source:   "builtin",
		Handler:  d.send,
	})

	donateGrammar := parsing.NewGrammar("donate")
	donateGrammar.AddArgument("amount", parsing.WithType(d.Amounts.Convert))
	mustRegister(&Command{
		Name:        "donate",
		Description: "Donate money to the community",
		Help:        "Transfers money to the community user. It works similar to /send.",
		Grammar:     donateGrammar,
		Category:    "money",
		Source:      "builtin",
		Handler:     d.donate,
	})

	consumeGrammar := parsing.NewGrammar("consume")
	consumeGrammar.AddArgument("consumable", parsing.WithType(parsing.ConsumableOrWildcard(d.Ledger, "?")))
	consumeGrammar.AddArgument("number",
		parsing.WithType(parsing.Natural),
		parsing.WithArity(parsing.Optional),
		parsing.WithDefault(1))
	mustRegister(&Command{
		Name:        "consume",
		Description: "Consume consumable goods",
		Help: "The first argument selects the good you want to consume, the optional second " +
			"argument the number of goods (default 1). Use `?` to list every consumable.",
		Grammar:  consumeGrammar,
		Category: "money",
		Source:   "builtin",
		Handler:  d.consume,
	})

	mustRoute(callbacks.MustTable("send", "^send", map[string]callbacks.Handler{
		"confirm": d.confirmSend,
		"abort":   abortTransfer("transaction", "No money has been sent."),
	}))
	mustRoute(callbacks.MustTable("donate", "^donate", map[string]callbacks.Handler{
		"confirm": d.confirmDonation,
		"abort":   abortTransfer("donation", "No money has been donated."),
	}))
}

func confirmKeyboard(table, data string) callbacks.Keyboard {
	return callbacks.Keyboard{{
		{Text: "CONFIRM", Data: table + " confirm " + data},
		{Text: "ABORT", Data: table + " abort " + data},
	}}
}

func (d *Deps) send(ctx context.Context, inv *Invocation) (*Result, error) {
	issuer, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	if !canTransact(issuer) {
		return nil, userError(notPermitted)
	}
	receiver, _ := inv.Namespace.Get("receiver").(*ledger.User)
	if receiver == nil {
		return nil, fmt.Errorf("send: receiver not bound")
	}
	if receiver.ID == issuer.ID {
		return nil, userError("You can't send money to yourself.")
	}

	amount := inv.Namespace.Int("amount")
	reason := "send: " + strings.ReplaceAll(inv.Namespace.String("reason"), "`", "'")
	data := fmt.Sprintf("%d %d %d", amount, inv.Sender.ID, receiver.ID)
	return &Result{
		Text: fmt.Sprintf("Do you want to send %s to %s?\nDescription: `%s`",
			d.Currency.Format(amount), ledger.DisplayName(receiver), reason),
		Markdown: true,
		Keyboard: confirmKeyboard("send", data),
	}, nil
}

func (d *Deps) confirmSend(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 3)
	if err != nil {
		return nil, err
	}
	amount, originalSender, receiverID := args[0], args[1], args[2]
	if q.From.ID != originalSender {
		return &callbacks.Answer{Text: "Only the creator of this transaction can confirm it!"}, nil
	}

	sender, err := d.issuer(ctx, q.From)
	if err != nil {
		return userAnswer(err)
	}
	receiver, err := d.Ledger.GetUser(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	reason := q.Quoted
	if reason == "" {
		reason = "send: " + noDescription
	}

	tx, err := d.Ledger.Send(ctx, sender.ID, receiver.ID, amount, reason)
	if msg, ok := ledger.RejectionMessage(err); ok {
		return &callbacks.Answer{Edit: &callbacks.Edit{
			Text: "Your request has been rejected. No money has been transferred:\n" + msg,
		}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &callbacks.Answer{Edit: &callbacks.Edit{
		Text: fmt.Sprintf("Okay, you sent %s to %s!", d.Currency.Format(tx.Amount), ledger.DisplayName(receiver)),
	}}, nil
}

func (d *Deps) donate(ctx context.Context, inv *Invocation) (*Result, error) {
	issuer, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	if !canTransact(issuer) {
		return nil, userError(notPermitted)
	}
	amount := inv.Namespace.Int("amount")
	return &Result{
		Text:     fmt.Sprintf("Do you want to donate %s to the community?", d.Currency.Format(amount)),
		Keyboard: confirmKeyboard("donate", fmt.Sprintf("%d %d", amount, inv.Sender.ID)),
	}, nil
}

func (d *Deps) confirmDonation(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 2)
	if err != nil {
		return nil, err
	}
	amount, originalSender := args[0], args[1]
	if q.From.ID != originalSender {
		return &callbacks.Answer{Text: "Only the creator of this donation can confirm it!"}, nil
	}

	sender, err := d.issuer(ctx, q.From)
	if err != nil {
		return userAnswer(err)
	}
	tx, err := d.Ledger.Donate(ctx, sender.ID, amount, "donation")
	if msg, ok := ledger.RejectionMessage(err); ok {
		return &callbacks.Answer{Edit: &callbacks.Edit{
			Text: "Your donation has been rejected. No money has been transferred:\n" + msg,
		}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &callbacks.Answer{Edit: &callbacks.Edit{
		Text: fmt.Sprintf("Okay, you sent %s to the community!", d.Currency.Format(tx.Amount)),
	}}, nil
}

// abortTransfer drops a pending confirmation. The sender's Telegram id is
// the second argument of the payload.
func abortTransfer(what, outcome string) callbacks.Handler {
	return func(_ context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
		args, err := callbackInts(q, 2)
		if err != nil {
			return nil, err
		}
		if q.From.ID != args[1] {
			return &callbacks.Answer{Text: fmt.Sprintf("Only the creator of this %s can abort it!", what)}, nil
		}
		return &callbacks.Answer{Edit: &callbacks.Edit{Text: "You aborted the operation. " + outcome}}, nil
	}
}

// userAnswer turns a UserError into an alert and passes other errors on.
func userAnswer(err error) (*callbacks.Answer, error) {
	var ue *UserError
	if errors.As(err, &ue) {
		return &callbacks.Answer{Text: ue.Message, ShowAlert: true}, nil
	}
	return nil, err
}

func (d *Deps) consume(ctx context.Context, inv *Invocation) (*Result, error) {
	if _, ok := inv.Namespace.Get("consumable").(parsing.WildcardMarker); ok {
		return d.consumableList(ctx)
	}
	item, _ := inv.Namespace.Get("consumable").(*ledger.Consumable)
	if item == nil {
		return nil, fmt.Errorf("consume: consumable not bound")
	}
	return d.consumeItem(ctx, inv, *item, false)
}

func (d *Deps) consumableList(ctx context.Context) (*Result, error) {
	items, err := d.Ledger.ListConsumables(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &Result{Text: "There are no consumables available right now."}, nil
	}
	lines := make([]string, len(items))
	for i, c := range items {
		lines[i] = fmt.Sprintf("- %s (price %s): %s", c.Name, d.Currency.Format(c.Price), c.Description)
	}
	return &Result{Text: "The following consumables are currently available:\n\n" + strings.Join(lines, "\n")}, nil
}

func (d *Deps) consumeItem(ctx context.Context, inv *Invocation, item ledger.Consumable, withEmoji bool) (*Result, error) {
	issuer, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	if !canTransact(issuer) {
		return nil, userError(notPermitted)
	}
	number := int(inv.Namespace.Int("number"))
	if number <= 0 {
		number = 1
	}

	tx, err := d.Ledger.Consume(ctx, issuer.ID, item.Name, number)
	if err != nil {
		return nil, err
	}

	count, plural := "", ""
	if number != 1 {
		count, plural = fmt.Sprintf(" %d", number), "s"
	}
	text := fmt.Sprintf("Enjoy your%s %s%s! You paid %s to the community.", count, item.Name, plural, d.Currency.Format(tx.Amount))
	if withEmoji && item.Emoji != "" {
		text += " " + strings.Repeat(item.Emoji, number)
	}
	return &Result{Text: text}, nil
}

var commandNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// RegisterConsumables adds one command per catalog item, e.g. /mate [number].
// Items whose name is not a valid command or collides with an existing
// command are skipped. It returns the names that were registered.
func RegisterConsumables(ctx context.Context, r *Registry, deps Deps) ([]string, error) {
	items, err := deps.Ledger.ListConsumables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list consumables: %w", err)
	}
	d := &deps

	var names []string
	for _, item := range items {
		name := strings.ToLower(item.Name)
		if !commandNameRe.MatchString(name) {
			r.logger.Warn("consumable name is not a valid command", "consumable", item.Name)
			continue
		}

		g := parsing.NewGrammar(name)
		g.AddArgument("number",
			parsing.WithType(parsing.Natural),
			parsing.WithArity(parsing.Optional),
			parsing.WithDefault(1))

		item := item
		err := r.Register(&Command{
			Name:        name,
			Description: fmt.Sprintf("%s (%s)", item.Description, d.Currency.Format(item.Price)),
			Grammar:     g,
			Category:    "consumables",
			Source:      sourceConsumable,
			Handler: func(ctx context.Context, inv *Invocation) (*Result, error) {
				return d.consumeItem(ctx, inv, item, true)
			},
		})
		if err != nil {
			r.logger.Warn("skipping consumable command", "consumable", item.Name, "error", err)
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

const noActiveCommunism = "You don't have a communism in progress."

func registerCommunism(d *Deps, mustRegister func(*Command), mustRoute func(*callbacks.Table[callbacks.Handler])) {
	g := parsing.NewGrammar("communism")
	g.AddArgument("amount", parsing.WithType(d.Amounts.Convert))
	g.AddArgument("reason", parsing.WithArity(parsing.OneOrMore), parsing.Joined())
	g.NewUsage().AddArgument("subcommand",
		parsing.WithType(parsing.Lower),
		parsing.WithChoices("stop", "show"))
	mustRegister(&Command{
		Name:        "communism",
		Description: "Start a new communism",
		Help: "A communism splits a bill among everybody who joins it. The creator pays the " +
			"bill and every participant pays their share to the creator once the communism " +
			"is closed. Use `stop` to abort your most recent communism and `show` to post it again.",
		Grammar:  g,
		Category: "money",
		Source:   "builtin",
		Handler:  d.communism,
	})

	mustRoute(callbacks.MustTable("communism", "^communism", map[string]callbacks.Handler{
		"join":  d.communismAction(d.Ledger.JoinCommunism),
		"leave": d.communismAction(d.Ledger.LeaveCommunism),
		"close": d.communismAction(d.Ledger.CloseCommunism),
		"abort": d.communismAction(d.Ledger.AbortCommunism),
	}))
}

func (d *Deps) communism(ctx context.Context, inv *Invocation) (*Result, error) {
	issuer, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	if !canTransact(issuer) {
		return nil, userError(notPermitted)
	}

	switch inv.Namespace.String("subcommand") {
	case "stop":
		c, err := d.lastCommunism(ctx, issuer.ID)
		if err != nil {
			return nil, err
		}
		if _, err := d.Ledger.AbortCommunism(ctx, c.ID, issuer.ID); err != nil {
			return nil, err
		}
		return &Result{Text: fmt.Sprintf("You have aborted your most recent communism of %s!", d.Currency.Format(c.Amount))}, nil
	case "show":
		c, err := d.lastCommunism(ctx, issuer.ID)
		if err != nil {
			return nil, err
		}
		return d.communismResult(ctx, c)
	}

	if active, err := d.Ledger.ActiveCommunisms(ctx, issuer.ID); err != nil {
		return nil, err
	} else if len(active) > 0 {
		return nil, userError("You already have a communism in progress. Please handle it first.")
	}

	c, err := d.Ledger.CreateCommunism(ctx, issuer.ID, inv.Namespace.Int("amount"), inv.Namespace.String("reason"))
	if err != nil {
		return nil, err
	}
	return d.communismResult(ctx, c)
}

func (d *Deps) lastCommunism(ctx context.Context, creatorID int64) (*ledger.Communism, error) {
	active, err := d.Ledger.ActiveCommunisms(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, userError(noActiveCommunism)
	}
	return &active[len(active)-1], nil
}

func (d *Deps) communismResult(ctx context.Context, c *ledger.Communism) (*Result, error) {
	text, err := d.describeCommunism(ctx, c)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Markdown: true, Keyboard: communismKeyboard(c)}, nil
}

func (d *Deps) describeCommunism(ctx context.Context, c *ledger.Communism) (string, error) {
	names := make(map[int64]string)
	creator, err := d.userName(ctx, names, c.CreatorID)
	if err != nil {
		return "", err
	}
	joined := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		name, err := d.userName(ctx, names, p.UserID)
		if err != nil {
			return "", err
		}
		joined = append(joined, fmt.Sprintf("%s (%dx)", name, p.Quantity))
	}

	state := "_The communism is currently active._"
	if !c.Active {
		state = "_The communism has been closed._"
	}
	return fmt.Sprintf("*Communism by %s*\n\nReason: %s\nAmount: %s\nJoined users (%d): %s\n\n%s",
		creator, c.Description, d.Currency.Format(c.Amount), c.Shares(), strings.Join(joined, ", "), state), nil
}

func communismKeyboard(c *ledger.Communism) callbacks.Keyboard {
	if !c.Active {
		return nil
	}
	id := fmt.Sprint(c.ID)
	return callbacks.Keyboard{
		{
			{Text: "JOIN (+)", Data: "communism join " + id},
			{Text: "LEAVE (-)", Data: "communism leave " + id},
		},
		{
			{Text: "COMPLETE", Data: "communism close " + id},
			{Text: "ABORT", Data: "communism abort " + id},
		},
	}
}

type communismOp func(ctx context.Context, id, userID int64) (*ledger.Communism, error)

// communismAction applies op for the pressing user and re-renders the
// communism message.
func (d *Deps) communismAction(op communismOp) callbacks.Handler {
	return func(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
		args, err := callbackInts(q, 1)
		if err != nil {
			return nil, err
		}
		user, err := d.issuer(ctx, q.From)
		if err != nil {
			return userAnswer(err)
		}
		if q.Key == "join" && !canTransact(user) {
			return &callbacks.Answer{Text: notPermitted, ShowAlert: true}, nil
		}

		c, err := op(ctx, args[0], user.ID)
		if msg, ok := ledger.RejectionMessage(err); ok {
			return &callbacks.Answer{Text: msg, ShowAlert: true}, nil
		}
		if err != nil {
			return nil, err
		}

		text, err := d.describeCommunism(ctx, c)
		if err != nil {
			return nil, err
		}
		if q.Key == "abort" {
			text = strings.Replace(text, "_The communism has been closed._", "_The communism has been aborted._", 1)
		}
		return &callbacks.Answer{Edit: &callbacks.Edit{
			Text:     text,
			Markdown: true,
			Keyboard: communismKeyboard(c),
		}}, nil
	}
}

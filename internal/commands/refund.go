package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

const noActiveRefund = "You don't have a refund request in progress."

func registerRefund(d *Deps, mustRegister func(*Command), mustRoute func(*callbacks.Table[callbacks.Handler])) {
	g := parsing.NewGrammar("refund")
	g.AddArgument("amount", parsing.WithType(d.Amounts.Convert))
	g.AddArgument("reason", parsing.WithArity(parsing.OneOrMore), parsing.Joined())
	g.NewUsage().AddArgument("subcommand",
		parsing.WithType(parsing.Lower),
		parsing.WithChoices("stop", "show"))
	mustRegister(&Command{
		Name:        "refund",
		Description: "Request a refund from the community",
		Help: "If you paid something for the community, ask for your money back with a " +
			"refund request. Users with extended permissions vote on it; once enough of " +
			"them approve, the amount is paid from the community balance to you. Use " +
			"`stop` to abort your most recent request and `show` to post it again.",
		Grammar:  g,
		Category: "money",
		Source:   "builtin",
		Handler:  d.refund,
	})

	mustRoute(callbacks.MustTable("refund", "^refund", map[string]callbacks.Handler{
		"approve":    d.voteRefund(true),
		"disapprove": d.voteRefund(false),
		"abort":      d.abortRefund,
	}))
}

func (d *Deps) refund(ctx context.Context, inv *Invocation) (*Result, error) {
	issuer, err := d.internalIssuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}

	switch inv.Namespace.String("subcommand") {
	case "stop":
		r, err := d.lastRefund(ctx, issuer.ID)
		if err != nil {
			return nil, err
		}
		if _, err := d.Ledger.AbortRefund(ctx, r.ID, issuer.ID); err != nil {
			return nil, err
		}
		return &Result{Text: fmt.Sprintf("You have aborted your most recent refund request of %s!", d.Currency.Format(r.Amount))}, nil
	case "show":
		r, err := d.lastRefund(ctx, issuer.ID)
		if err != nil {
			return nil, err
		}
		return d.refundResult(ctx, r)
	}

	if active, err := d.Ledger.ActiveRefunds(ctx, issuer.ID); err != nil {
		return nil, err
	} else if len(active) > 0 {
		return nil, userError("You already have a refund request in progress. Please handle it first.")
	}

	r, err := d.Ledger.CreateRefund(ctx, issuer.ID, inv.Namespace.Int("amount"), inv.Namespace.String("reason"))
	if err != nil {
		return nil, err
	}
	return d.refundResult(ctx, r)
}

func (d *Deps) lastRefund(ctx context.Context, creatorID int64) (*ledger.Refund, error) {
	active, err := d.Ledger.ActiveRefunds(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, userError(noActiveRefund)
	}
	return &active[len(active)-1], nil
}

func (d *Deps) refundResult(ctx context.Context, r *ledger.Refund) (*Result, error) {
	text, err := d.describeRefund(ctx, r)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text, Markdown: true, Keyboard: refundKeyboard(r)}, nil
}

func (d *Deps) describeRefund(ctx context.Context, r *ledger.Refund) (string, error) {
	names := make(map[int64]string)
	creator, err := d.userName(ctx, names, r.CreatorID)
	if err != nil {
		return "", err
	}
	var proponents, opponents []string
	for _, v := range r.Votes {
		name, err := d.userName(ctx, names, v.UserID)
		if err != nil {
			return "", err
		}
		if v.Approve {
			proponents = append(proponents, name)
		} else {
			opponents = append(opponents, name)
		}
	}

	var state string
	switch {
	case r.Active:
		state = "_The refund request is currently active._"
	case r.Allowed == nil:
		state = "_The request has been aborted. No transactions have been processed._"
	case *r.Allowed:
		state = "_The request was allowed. The transaction has been processed. Take a look at your history for more details._"
	default:
		state = "_The request was rejected. No transactions have been processed._"
	}
	return fmt.Sprintf("*Refund by %s*\nReason: %s\nAmount: %s\n\n*Votes (%d)*\nProponents (%d): %s\nOpponents (%d): %s\n\n%s",
		creator, r.Description, d.Currency.Format(r.Amount), len(r.Votes),
		len(proponents), joinOrNone(proponents), len(opponents), joinOrNone(opponents), state), nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, ", ")
}

func refundKeyboard(r *ledger.Refund) callbacks.Keyboard {
	if !r.Active {
		return nil
	}
	id := fmt.Sprint(r.ID)
	return callbacks.Keyboard{
		{
			{Text: "APPROVE", Data: "refund approve " + id},
			{Text: "DISAPPROVE", Data: "refund disapprove " + id},
		},
		{
			{Text: "ABORT", Data: "refund abort " + id},
		},
	}
}

func (d *Deps) voteRefund(approve bool) callbacks.Handler {
	return func(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
		args, err := callbackInts(q, 1)
		if err != nil {
			return nil, err
		}
		user, err := d.issuer(ctx, q.From)
		if err != nil {
			return userAnswer(err)
		}
		if user.External || !user.Permission {
			return &callbacks.Answer{Text: notPermitted, ShowAlert: true}, nil
		}

		r, err := d.Ledger.VoteRefund(ctx, args[0], user.ID, approve)
		if msg, ok := ledger.RejectionMessage(err); ok {
			return &callbacks.Answer{Text: msg, ShowAlert: true}, nil
		}
		if err != nil {
			return nil, err
		}
		toast := "You successfully voted against the request."
		if approve {
			toast = "You successfully voted for the request."
		}
		return d.refundAnswer(ctx, r, toast)
	}
}

func (d *Deps) abortRefund(ctx context.Context, q *callbacks.Query) (*callbacks.Answer, error) {
	args, err := callbackInts(q, 1)
	if err != nil {
		return nil, err
	}
	user, err := d.issuer(ctx, q.From)
	if err != nil {
		return userAnswer(err)
	}

	r, err := d.Ledger.AbortRefund(ctx, args[0], user.ID)
	if msg, ok := ledger.RejectionMessage(err); ok {
		return &callbacks.Answer{Text: msg, ShowAlert: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return d.refundAnswer(ctx, r, "")
}

func (d *Deps) refundAnswer(ctx context.Context, r *ledger.Refund, toast string) (*callbacks.Answer, error) {
	text, err := d.describeRefund(ctx, r)
	if err != nil {
		return nil, err
	}
	return &callbacks.Answer{Text: toast, Edit: &callbacks.Edit{
		Text:     text,
		Markdown: true,
		Keyboard: refundKeyboard(r),
	}}, nil
}

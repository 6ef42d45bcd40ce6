package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

const internalOnly = "You are not permitted to use this command. See /help for details."

func registerInfo(d *Deps, mustRegister func(*Command)) {
	blame := parsing.NewGrammar("blame")
	blame.AddArgument("count",
		parsing.WithType(parsing.Natural),
		parsing.WithArity(parsing.Optional),
		parsing.WithDefault(1))
	mustRegister(&Command{
		Name:        "blame",
		Description: "Show the users with the highest debts",
		Help:        "Lists the given number of users with the lowest balances (default 1).",
		Grammar:     blame,
		Category:    "money",
		Source:      "builtin",
		Handler:     d.blame,
	})

	mustRegister(&Command{
		Name:        "zwegat",
		Description: "Show the central funds",
		Help:        "Shows the balance of the community user.",
		Category:    "money",
		Source:      "builtin",
		Handler:     d.zwegat,
	})

	mustRegister(&Command{
		Name:        "data",
		Description: "Show the data the bot stores about you",
		Help:        "Prints an overview of your account. Only available in private chat.",
		Category:    "users",
		Source:      "builtin",
		Handler:     d.data,
	})
}

func (d *Deps) internalIssuer(ctx context.Context, s callbacks.Sender) (*ledger.User, error) {
	issuer, err := d.issuer(ctx, s)
	if err != nil {
		return nil, err
	}
	if issuer.External {
		return nil, userError(internalOnly)
	}
	return issuer, nil
}

func (d *Deps) blame(ctx context.Context, inv *Invocation) (*Result, error) {
	if _, err := d.internalIssuer(ctx, inv.Sender); err != nil {
		return nil, err
	}
	debtors, err := d.Ledger.TopDebtors(ctx, int(inv.Namespace.Int("count")))
	if err != nil {
		return nil, err
	}

	switch len(debtors) {
	case 0:
		return &Result{Text: "Good news! No one has to be blamed, all users have positive balances!"}, nil
	case 1:
		return &Result{Text: "The user with the highest debt is:\n" + ledger.DisplayName(&debtors[0])}, nil
	}
	names := make([]string, len(debtors))
	for i := range debtors {
		names[i] = ledger.DisplayName(&debtors[i])
	}
	return &Result{Text: "The users with the highest debts are:\n" + strings.Join(names, ", ")}, nil
}

func (d *Deps) zwegat(ctx context.Context, inv *Invocation) (*Result, error) {
	if _, err := d.internalIssuer(ctx, inv.Sender); err != nil {
		return nil, err
	}
	community, err := d.Ledger.Community(ctx)
	if err != nil {
		return nil, err
	}
	if community.Balance >= 0 {
		return &Result{Text: fmt.Sprintf("Peter errechnet ein massives Vermögen von %s!", d.Currency.Format(community.Balance))}, nil
	}
	return &Result{Text: fmt.Sprintf("Peter errechnet Gesamtschulden von %s!", d.Currency.Format(-community.Balance))}, nil
}

func (d *Deps) data(ctx context.Context, inv *Invocation) (*Result, error) {
	if !inv.Private {
		return nil, userError("This command can only be used in private chat.")
	}
	user, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}

	names := map[int64]string{user.ID: ledger.DisplayName(user)}
	var rows [][2]string
	add := func(label, value string) { rows = append(rows, [2]string{label, value}) }

	add("User ID", fmt.Sprint(user.ID))
	add("Telegram ID", fmt.Sprint(inv.Sender.ID))
	add("Username", ledger.DisplayName(user))
	add("Balance", d.Currency.Format(user.Balance))
	add("Extended permissions", yesNo(user.Permission))
	add("External user", yesNo(user.External))

	if user.External {
		voucher := "None"
		if user.VoucherID != nil {
			if voucher, err = d.userName(ctx, names, *user.VoucherID); err != nil {
				return nil, err
			}
		}
		add("Voucher user", voucher)
	} else {
		debtors, err := d.Ledger.Debtors(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		list := make([]string, len(debtors))
		for i := range debtors {
			list[i] = ledger.DisplayName(&debtors[i])
		}
		add("Debtor users", joinOrNone(list))
	}

	confirmed := 0
	for _, a := range user.Aliases {
		if a.Confirmed {
			confirmed++
		}
	}
	add("Aliases", fmt.Sprintf("%d (%d confirmed)", len(user.Aliases), confirmed))

	communisms, err := d.Ledger.ActiveCommunisms(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	add("Open communisms", fmt.Sprint(len(communisms)))
	refunds, err := d.Ledger.ActiveRefunds(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	add("Open refunds", fmt.Sprint(len(refunds)))

	last := "None"
	if txs, err := d.Ledger.History(ctx, user.ID, 1); err != nil {
		return nil, err
	} else if len(txs) > 0 {
		last = txs[0].Timestamp.Format("02.01.2006 15:04")
	}
	add("Last transaction", last)

	var sb strings.Builder
	sb.WriteString("Overview over currently stored data for " + ledger.DisplayName(user) + ":\n\n```\n")
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%-22s%s\n", row[0]+":", row[1]))
	}
	sb.WriteString("```\nUse the /history command to see your transaction log.")
	return &Result{Text: sb.String(), Markdown: true}, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

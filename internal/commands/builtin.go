package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

// Deps are the collaborators of the built-in commands.
type Deps struct {
	Ledger   ledger.Ledger
	Currency ledger.Currency
	Amounts  *parsing.AmountParser
	// AllowExternal lets /send address users without an alias for this bot.
	AllowExternal bool
	Logger        *slog.Logger
}

// UserError is a failure the sender can fix. Execute turns it into a reply.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userError(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

var errNotRegistered = &UserError{Message: "You are not registered yet. Use /start in a private chat with the bot to create your account."}

const notPermitted = "You are not permitted to use this feature. See /help for details."

// issuer resolves the ledger user behind the sender.
func (d *Deps) issuer(ctx context.Context, s callbacks.Sender) (*ledger.User, error) {
	u, err := d.Ledger.ResolveKnownIdentity(ctx, s.ID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, errNotRegistered
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, userError("Your user account has been disabled.")
	}
	return u, nil
}

// canTransact reports whether u may move money: internal users always,
// external users only while somebody vouches for them.
func canTransact(u *ledger.User) bool {
	return u.Active && (!u.External || u.VoucherID != nil)
}

// RegisterBuiltins registers the built-in commands and their callback tables.
func RegisterBuiltins(r *Registry, router *callbacks.Router, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "builtin")
	if deps.Amounts == nil {
		amounts, err := parsing.NewAmountParser(deps.Currency.Digits, 0)
		if err != nil {
			panic(fmt.Sprintf("invalid currency: %v", err))
		}
		deps.Amounts = amounts
	}
	d := &deps

	mustRegister := func(cmd *Command) {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}
	mustRoute := func(t *callbacks.Table[callbacks.Handler]) {
		if err := router.Register(t); err != nil {
			panic(fmt.Sprintf("failed to register callback table %q: %v", t.Name, err))
		}
	}

	helpGrammar := parsing.NewGrammar("help")
	helpGrammar.AddArgument("command",
		parsing.WithType(parsing.CommandName[*Command](r)),
		parsing.WithArity(parsing.Optional))
	mustRegister(&Command{
		Name:        "help",
		Description: "List available commands and inspect their usage",
		Help: "The `/help` command prints the help page for any command. If no argument " +
			"is passed, it prints its usage and a list of all available commands.",
		Grammar:  helpGrammar,
		Category: "system",
		Source:   "builtin",
		Handler:  helpHandler(r, d),
	})

	balanceGrammar := parsing.NewGrammar("balance")
	balanceGrammar.AddArgument("user",
		parsing.WithType(parsing.User(d.Ledger, true)),
		parsing.WithArity(parsing.Optional))
	mustRegister(&Command{
		Name:        "balance",
		Description: "Show a user's balance",
		Help: "Without arguments the bot replies with your current balance. If you " +
			"mention someone, the balance of this user is shown instead.",
		Grammar:  balanceGrammar,
		Category: "money",
		Source:   "builtin",
		Handler:  d.balance,
	})

	historyGrammar := parsing.NewGrammar("history")
	historyGrammar.AddArgument("length",
		parsing.WithType(parsing.Natural),
		parsing.WithArity(parsing.Optional),
		parsing.WithDefault(10))
	historyGrammar.NewUsage().AddArgument("export",
		parsing.WithType(parsing.Lower),
		parsing.WithChoices("json", "csv"))
	mustRegister(&Command{
		Name:        "history",
		Description: "Get an overview of your past transactions",
		Help: "You can specify the number of most recent transactions (default 10). " +
			"Use `json` or `csv` to export your whole history as a file; this only " +
			"works in your private chat with the bot.",
		Grammar:  historyGrammar,
		Category: "money",
		Source:   "builtin",
		Handler:  d.history,
	})

	registerTransfers(d, mustRegister, mustRoute)
	registerCommunism(d, mustRegister, mustRoute)
	registerVouch(d, mustRegister, mustRoute)
	registerRefund(d, mustRegister, mustRoute)
	registerStart(d, mustRegister, mustRoute)
	registerAccount(d, mustRegister, mustRoute)
	registerInfo(d, mustRegister)
}

func helpHandler(r *Registry, d *Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if cmd, ok := inv.Namespace.Get("command").(*Command); ok {
			return &Result{Text: commandHelp(cmd), Markdown: true}, nil
		}

		var sb strings.Builder
		sb.WriteString("*MateBot Telegram help page*\n\n")
		sb.WriteString(fmt.Sprintf("Usage of this command: `%s`\n\nList of commands:\n", inv.Command.UsageStrings()[0]))
		for _, cmd := range r.ListVisible() {
			if cmd.Source == sourceConsumable {
				continue
			}
			sb.WriteString(fmt.Sprintf(" - `%s`\n", cmd.Name))
		}

		items, err := d.Ledger.ListConsumables(ctx)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
			sb.WriteString("\nAdditionally, the following dynamic consumption commands are available:\n")
			for _, c := range items {
				sb.WriteString(fmt.Sprintf("- `%s` for %s\n", strings.ToLower(c.Name), d.Currency.Format(c.Price)))
			}
		}

		user, err := d.Ledger.ResolveKnownIdentity(ctx, inv.Sender.ID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
		case err != nil:
			return nil, err
		case !user.Active:
			sb.WriteString("\nYour user account has been disabled. You're not allowed to interact with the bot.")
		case user.External && user.VoucherID == nil:
			sb.WriteString("\nYou are an external user without a voucher. Your possible interactions " +
				"with the bot are very limited. Ask an internal user to run `/vouch <your username>`.")
		case user.External:
			sb.WriteString("\nYou are an external user. Some commands may be restricted.")
		case user.Permission:
			sb.WriteString("\nYou have been granted extended permissions. With great power comes great responsibility.")
		}

		return &Result{Text: strings.TrimRight(sb.String(), "\n"), Markdown: true}, nil
	}
}

func commandHelp(cmd *Command) string {
	var sb strings.Builder
	sb.WriteString("*Usages:*\n")
	for _, line := range cmd.UsageStrings() {
		sb.WriteString("`" + line + "`\n")
	}
	sb.WriteString("\n*Description:*\n")
	sb.WriteString(cmd.Description)
	if cmd.Help != "" {
		sb.WriteString("\n\n" + cmd.Help)
	}
	return sb.String()
}

func (d *Deps) balance(ctx context.Context, inv *Invocation) (*Result, error) {
	issuer, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	if other, ok := inv.Namespace.Get("user").(*ledger.User); ok {
		if !canTransact(issuer) {
			return nil, userError("You are not permitted to use this command.")
		}
		return &Result{Text: fmt.Sprintf("Balance of %s is: %s", ledger.DisplayName(other), d.Currency.Format(other.Balance))}, nil
	}
	return &Result{Text: "Your balance is: " + d.Currency.Format(issuer.Balance)}, nil
}

func (d *Deps) history(ctx context.Context, inv *Invocation) (*Result, error) {
	user, err := d.issuer(ctx, inv.Sender)
	if err != nil {
		return nil, err
	}
	if format := inv.Namespace.String("export"); format != "" {
		return d.exportHistory(ctx, inv, user, format)
	}

	txs, err := d.Ledger.History(ctx, user.ID, int(inv.Namespace.Int("length")))
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return &Result{Text: "You don't have any registered transactions yet."}, nil
	}

	names := map[int64]string{user.ID: ledger.DisplayName(user)}
	lines := make([]string, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		direction, partnerID, amount := "<<", tx.SenderID, tx.Amount
		if tx.SenderID == user.ID {
			direction, partnerID, amount = ">>", tx.Receiver, -tx.Amount
		}
		partner, err := d.userName(ctx, names, partnerID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fmt.Sprintf("%s: %9s: me %s %s :: %s",
			tx.Timestamp.Format("02.01.2006 15:04"), d.Currency.Format(amount), direction, partner, tx.Reason))
	}
	return &Result{Text: "```\n" + strings.Join(lines, "\n") + "\n```", Markdown: true}, nil
}

func (d *Deps) userName(ctx context.Context, cache map[int64]string, id int64) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}
	u, err := d.Ledger.GetUser(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		cache[id] = fmt.Sprintf("user %d", id)
		return cache[id], nil
	}
	if err != nil {
		return "", err
	}
	cache[id] = ledger.DisplayName(u)
	return cache[id], nil
}

type exportedTransaction struct {
	ID              int64  `json:"id"`
	Amount          int64  `json:"amount"`
	AmountFormatted string `json:"amount_formatted"`
	Sender          int64  `json:"sender"`
	Receiver        int64  `json:"receiver"`
	Reason          string `json:"reason"`
	Registered      int64  `json:"registered"`
}

func (d *Deps) exportHistory(ctx context.Context, inv *Invocation, user *ledger.User, format string) (*Result, error) {
	if !inv.Private {
		return nil, userError("This command can only be used in private chat.")
	}
	txs, err := d.Ledger.History(ctx, user.ID, 0)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return &Result{Text: "You don't have any registered transactions yet."}, nil
	}

	rows := make([]exportedTransaction, len(txs))
	for i, tx := range txs {
		rows[i] = exportedTransaction{
			ID:              tx.ID,
			Amount:          tx.Amount,
			AmountFormatted: d.Currency.Format(tx.Amount),
			Sender:          tx.SenderID,
			Receiver:        tx.Receiver,
			Reason:          tx.Reason,
			Registered:      tx.Timestamp.Unix(),
		}
	}

	var buf bytes.Buffer
	switch format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "    ")
		if err := enc.Encode(rows); err != nil {
			return nil, err
		}
	case "csv":
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"id", "amount", "amount_formatted", "sender", "receiver", "reason", "registered"})
		for _, r := range rows {
			_ = w.Write([]string{
				strconv.FormatInt(r.ID, 10),
				strconv.FormatInt(r.Amount, 10),
				r.AmountFormatted,
				strconv.FormatInt(r.Sender, 10),
				strconv.FormatInt(r.Receiver, 10),
				r.Reason,
				strconv.FormatInt(r.Registered, 10),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	return &Result{Document: &Document{
		Name:    "transactions." + format,
		Caption: "You requested the export of your transaction log. This file contains all known transactions of " + ledger.DisplayName(user) + ".",
		Content: buf.Bytes(),
	}}, nil
}

// callbackInts parses the leading numeric arguments of a button payload.
func callbackInts(q *callbacks.Query, n int) ([]int64, error) {
	if len(q.Args) < n {
		return nil, fmt.Errorf("callback %q: want %d arguments, got %d", q.Payload, n, len(q.Args))
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseInt(q.Args[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("callback %q: argument %d: %w", q.Payload, i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

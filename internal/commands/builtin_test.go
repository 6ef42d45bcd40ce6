package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
)

var testCurrency = ledger.Currency{Digits: 2, Factor: 100, Symbol: "€"}

var (
	aliceTG    = callbacks.Sender{ID: 1001, Username: "alice", FirstName: "Alice"}
	bobTG      = callbacks.Sender{ID: 1002, Username: "bob", FirstName: "Bob", LastName: "Builder"}
	daveTG     = callbacks.Sender{ID: 1004, Username: "dave", FirstName: "Dave"}
	strangerTG = callbacks.Sender{ID: 4242, Username: "stranger", FirstName: "Stranger"}
)

// testBot wires the built-in commands to a seeded in-memory ledger and
// drives them the way the Telegram adapter does.
type testBot struct {
	t        *testing.T
	registry *Registry
	router   *callbacks.Router
	ledger   *ledger.Memory
	parser   *Parser
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := ledger.NewMemory(7, nil)
	mem.SeedDemo()

	r := NewRegistry(logger, nil)
	router := callbacks.NewRouter(logger, nil)
	deps := Deps{Ledger: mem, Currency: testCurrency, Logger: logger}
	RegisterBuiltins(r, router, deps)
	if _, err := RegisterConsumables(context.Background(), r, deps); err != nil {
		t.Fatalf("RegisterConsumables() error = %v", err)
	}

	return &testBot{t: t, registry: r, router: router, ledger: mem, parser: NewParser("matebot")}
}

// exec runs a command message and fails the test on internal errors.
func (b *testBot) exec(from callbacks.Sender, text string, private bool) *Result {
	b.t.Helper()
	parsed := b.parser.ParseCommand(text, nil)
	if parsed == nil {
		b.t.Fatalf("%q is not a command", text)
	}
	res, err := b.registry.Execute(context.Background(), &Invocation{
		Name:    parsed.Name,
		Args:    parsed.Args,
		RawText: text,
		ChatID:  from.ID,
		Private: private,
		Sender:  from,
	})
	if err != nil {
		b.t.Fatalf("Execute(%q) error = %v", text, err)
	}
	if res == nil {
		b.t.Fatalf("Execute(%q) returned no result", text)
	}
	return res
}

func (b *testBot) run(from callbacks.Sender, text string) *Result {
	b.t.Helper()
	return b.exec(from, text, true)
}

// press dispatches a button payload, with quoted as the message's code span.
func (b *testBot) press(from callbacks.Sender, payload, quoted string) *callbacks.Answer {
	b.t.Helper()
	answer, err := b.router.Dispatch(context.Background(), &callbacks.Query{
		ID:      "q",
		From:    from,
		Quoted:  quoted,
		Payload: payload,
	})
	if err != nil {
		b.t.Fatalf("Dispatch(%q) error = %v", payload, err)
	}
	return answer
}

func (b *testBot) user(name string) *ledger.User {
	b.t.Helper()
	u, err := b.ledger.ResolveIdentityByText(context.Background(), name, true)
	if err != nil {
		b.t.Fatalf("user %q: %v", name, err)
	}
	return u
}

func (b *testBot) balance(name string) int64 {
	b.t.Helper()
	return b.user(name).Balance
}

func buttonData(kb callbacks.Keyboard) []string {
	var out []string
	for _, row := range kb {
		for _, btn := range row {
			out = append(out, btn.Data)
		}
	}
	return out
}

func TestRegisterBuiltins(t *testing.T) {
	b := newTestBot(t)

	for _, name := range []string{"help", "balance", "history", "send", "donate", "consume", "communism", "vouch", "refund", "start", "blame", "zwegat", "data", "username", "alias", "mate", "pizza", "cola"} {
		if _, ok := b.registry.Get(name); !ok {
			t.Errorf("command %q not registered", name)
		}
	}
	if got := strings.Join(b.router.Tables(), ","); got != "send,donate,communism,vouch,refund,start,alias" {
		t.Errorf("callback tables = %s", got)
	}
	for _, cmd := range b.registry.List() {
		if !cmd.Grammar.Frozen() {
			t.Errorf("grammar of %q is not frozen", cmd.Name)
		}
	}
}

func TestHelp(t *testing.T) {
	b := newTestBot(t)

	t.Run("overview", func(t *testing.T) {
		res := b.run(aliceTG, "/help")
		for _, want := range []string{
			"*MateBot Telegram help page*",
			"Usage of this command: `/help [command]`",
			" - `send`\n",
			"- `mate` for 1.50€",
			"extended permissions",
		} {
			if !strings.Contains(res.Text, want) {
				t.Errorf("help page misses %q:\n%s", want, res.Text)
			}
		}
		if strings.Contains(res.Text, " - `mate`") {
			t.Error("consumable commands belong to the dynamic section only")
		}
		if !res.Markdown {
			t.Error("help page should be markdown")
		}
	})

	t.Run("command page", func(t *testing.T) {
		res := b.run(aliceTG, "/help send")
		want := "*Usages:*\n`/send <amount> <receiver> [reason ...]`\n`/send <receiver> <amount> [reason ...]`\n\n*Description:*\nSend money to another user"
		if !strings.HasPrefix(res.Text, want) {
			t.Errorf("Text = %q", res.Text)
		}
	})

	t.Run("typo", func(t *testing.T) {
		res := b.run(aliceTG, "/help sendd")
		if !strings.HasPrefix(res.Text, "sendd is an unknown command. Did you mean /send?") {
			t.Errorf("Text = %q", res.Text)
		}
	})

	t.Run("external user without voucher", func(t *testing.T) {
		res := b.run(daveTG, "/help")
		if !strings.Contains(res.Text, "external user without a voucher") {
			t.Errorf("Text = %q", res.Text)
		}
	})

	t.Run("unregistered user", func(t *testing.T) {
		res := b.run(strangerTG, "/help")
		if !strings.Contains(res.Text, "List of commands") {
			t.Errorf("Text = %q", res.Text)
		}
	})
}

func TestBalance(t *testing.T) {
	b := newTestBot(t)

	if res := b.run(aliceTG, "/balance"); res.Text != "Your balance is: 0.00€" {
		t.Errorf("own balance = %q", res.Text)
	}

	b.run(bobTG, "/mate 2")
	if res := b.run(aliceTG, "/balance @bob"); res.Text != "Balance of bob is: -3.00€" {
		t.Errorf("other balance = %q", res.Text)
	}

	res := b.run(daveTG, "/balance @alice")
	if res.Text != "You are not permitted to use this command." {
		t.Errorf("external without voucher = %q", res.Text)
	}

	res = b.run(strangerTG, "/balance")
	if res.Text != errNotRegistered.Message || res.Error == "" {
		t.Errorf("unregistered = %+v", res)
	}

	res = b.run(aliceTG, "/balance @nobody")
	if !strings.HasPrefix(res.Text, "No user found as @nobody.") {
		t.Errorf("unknown user = %q", res.Text)
	}

	res = b.run(aliceTG, "/balance 42")
	if !strings.HasPrefix(res.Text, `No user mentioned. Try with "@".`) {
		t.Errorf("number as user = %q", res.Text)
	}
}

func TestHistory(t *testing.T) {
	b := newTestBot(t)

	if res := b.run(aliceTG, "/history"); res.Text != "You don't have any registered transactions yet." {
		t.Errorf("empty history = %q", res.Text)
	}

	b.run(aliceTG, "/mate")
	b.run(aliceTG, "/pizza 2")
	b.run(aliceTG, "/cola")

	res := b.run(aliceTG, "/history 2")
	lines := strings.Split(strings.Trim(res.Text, "`\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("history lines = %q", lines)
	}
	if !strings.Contains(lines[0], "-5.00€: me >> Community :: consume: 2 x pizza") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "-1.00€: me >> Community :: consume: 1 x cola") {
		t.Errorf("second line = %q", lines[1])
	}

	res = b.run(aliceTG, "/history 0")
	if !strings.Contains(res.Text, "- 0 is not a positive number.") {
		t.Errorf("zero length = %q", res.Text)
	}
}

func TestHistoryExport(t *testing.T) {
	b := newTestBot(t)
	b.run(aliceTG, "/mate")
	b.run(aliceTG, "/cola 3")

	res := b.exec(aliceTG, "/history json", false)
	if res.Text != "This command can only be used in private chat." {
		t.Errorf("group export = %q", res.Text)
	}

	res = b.run(aliceTG, "/history JSON")
	if res.Document == nil || res.Document.Name != "transactions.json" {
		t.Fatalf("json export = %+v", res)
	}
	var rows []exportedTransaction
	if err := json.Unmarshal(res.Document.Content, &rows); err != nil {
		t.Fatalf("export is not json: %v", err)
	}
	if len(rows) != 2 || rows[0].Amount != 300 || rows[0].AmountFormatted != "3.00€" {
		t.Errorf("rows = %+v", rows)
	}

	res = b.run(aliceTG, "/history csv")
	if res.Document == nil || res.Document.Name != "transactions.csv" {
		t.Fatalf("csv export = %+v", res)
	}
	records, err := csv.NewReader(bytes.NewReader(res.Document.Content)).ReadAll()
	if err != nil {
		t.Fatalf("export is not csv: %v", err)
	}
	if len(records) != 3 || records[0][0] != "id" || records[2][5] != "consume: 1 x mate" {
		t.Errorf("records = %v", records)
	}

	res = b.run(aliceTG, "/history xml")
	if !strings.Contains(res.Text, "Usage:") {
		t.Errorf("unknown format = %q", res.Text)
	}
}

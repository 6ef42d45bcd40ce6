package parsing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hopfenspace/matebot-telegram/internal/ledger"
)

func TestAmountParser_Parse(t *testing.T) {
	p, err := NewAmountParser(2, 100000)
	if err != nil {
		t.Fatalf("NewAmountParser() error = %v", err)
	}

	tests := []struct {
		input   string
		want    int64
		wantErr error
	}{
		{input: "13.37", want: 1337},
		{input: "13", want: 1300},
		{input: "13.3", want: 1330},
		{input: "13,05", want: 1305},
		{input: "0.01", want: 1},
		{input: "1000", want: 100000},
		{input: "0", wantErr: ErrZero},
		{input: "0.00", wantErr: ErrZero},
		{input: "13.", wantErr: ErrInvalidFormat},
		{input: ".5", wantErr: ErrInvalidFormat},
		{input: "1.234", wantErr: ErrInvalidFormat},
		{input: "-5", wantErr: ErrInvalidFormat},
		{input: "abc", wantErr: ErrInvalidFormat},
		{input: "1000.01", wantErr: ErrTooLarge},
		{input: "21474837", wantErr: ErrOutOfRange},
		{input: "99999999999999999999", wantErr: ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := p.Parse(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				var convErr *ConversionError
				if !errors.As(err, &convErr) || convErr.Reason == "" {
					t.Errorf("Parse(%q) error is not a user-facing ConversionError: %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestAmountParser_Precision(t *testing.T) {
	t.Run("no digits", func(t *testing.T) {
		p, _ := NewAmountParser(0, 0)
		if got, err := p.Parse("42"); err != nil || got != 42 {
			t.Errorf("Parse(42) = %d, %v; want 42", got, err)
		}
		if _, err := p.Parse("4.2"); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Parse(4.2) error = %v, want ErrInvalidFormat", err)
		}
	})

	t.Run("three digits", func(t *testing.T) {
		p, _ := NewAmountParser(3, 0)
		if got, err := p.Parse("1.05"); err != nil || got != 1050 {
			t.Errorf("Parse(1.05) = %d, %v; want 1050", got, err)
		}
	})

	t.Run("negative digits", func(t *testing.T) {
		if _, err := NewAmountParser(-1, 0); err == nil {
			t.Error("expected error for negative digits")
		}
	})
}

func TestNatural(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr error
	}{
		{input: "5", want: 5},
		{input: "2147483647", want: 2147483647},
		{input: "0", wantErr: ErrNotPositive},
		{input: "-1", wantErr: ErrNotPositive},
		{input: "2147483648", wantErr: ErrOutOfRange},
		{input: "99999999999999999999", wantErr: ErrOutOfRange},
		{input: "five", wantErr: ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Natural(context.Background(), Token{Text: tt.input})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Natural(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Natural(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Natural(%q) = %v, want %d", tt.input, got, tt.want)
			}
		})
	}
}

type fakeDirectory struct {
	known    map[int64]*ledger.User
	byText   map[string]*ledger.User
	external map[string]*ledger.User
	err      error
	calls    []string
}

func (d *fakeDirectory) ResolveKnownIdentity(_ context.Context, id int64) (*ledger.User, error) {
	d.calls = append(d.calls, "known")
	if d.err != nil {
		return nil, d.err
	}
	if u, ok := d.known[id]; ok {
		return u, nil
	}
	return nil, ledger.ErrNotFound
}

func (d *fakeDirectory) ResolveIdentityByText(_ context.Context, text string, allowUnknown bool) (*ledger.User, error) {
	d.calls = append(d.calls, "text")
	if d.err != nil {
		return nil, d.err
	}
	if text == "twins" {
		return nil, ledger.ErrAmbiguous
	}
	if u, ok := d.byText[text]; ok {
		return u, nil
	}
	if u, ok := d.external[text]; ok && allowUnknown {
		return u, nil
	}
	return nil, ledger.ErrNotFound
}

func TestUser(t *testing.T) {
	alice := &ledger.User{ID: 1, Name: "alice"}
	bob := &ledger.User{ID: 2, Name: "bob"}
	dir := &fakeDirectory{
		known:    map[int64]*ledger.User{4242: alice},
		byText:   map[string]*ledger.User{"alice": alice},
		external: map[string]*ledger.User{"bob": bob},
	}

	tests := []struct {
		name         string
		tok          Token
		allowUnknown bool
		want         *ledger.User
		wantErr      error
	}{
		{
			name: "text mention resolves by id",
			tok:  Token{Text: "Alice A", Entity: &EntityRef{Kind: EntityTextMention, User: &EntityUser{ID: 4242}}},
			want: alice,
		},
		{
			name: "mention resolves by text",
			tok:  Token{Text: "@alice", Entity: &EntityRef{Kind: EntityMention}},
			want: alice,
		},
		{
			name: "username without entity resolves by text",
			tok:  Token{Text: "@alice"},
			want: alice,
		},
		{
			name:    "bare name is not a mention",
			tok:     Token{Text: "alice"},
			wantErr: ErrNoMention,
		},
		{
			name:    "decimal is not a mention",
			tok:     Token{Text: "13.37"},
			wantErr: ErrNoMention,
		},
		{
			name:    "strict rejects foreign user",
			tok:     Token{Text: "@bob", Entity: &EntityRef{Kind: EntityMention}},
			wantErr: ErrUnknownUser,
		},
		{
			name:         "permissive accepts foreign user",
			tok:          Token{Text: "@bob", Entity: &EntityRef{Kind: EntityMention}},
			allowUnknown: true,
			want:         bob,
		},
		{
			name:    "ambiguous",
			tok:     Token{Text: "@twins", Entity: &EntityRef{Kind: EntityMention}},
			wantErr: ErrAmbiguousUser,
		},
		{
			name:    "not a mention",
			tok:     Token{Text: "12.50€"},
			wantErr: ErrNoMention,
		},
		{
			name:    "unrelated entity",
			tok:     Token{Text: "https://example.com", Entity: &EntityRef{Kind: EntityOther}},
			wantErr: ErrNoMention,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := User(dir, tt.allowUnknown)(context.Background(), tt.tok)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUser_RejectsNonMentionsLocally(t *testing.T) {
	dir := &fakeDirectory{}
	for _, text := range []string{"13.37", "42", "pizza", "@", "@bob.smith"} {
		_, err := User(dir, false)(context.Background(), Token{Text: text})
		if !errors.Is(err, ErrNoMention) {
			t.Errorf("User(%q) error = %v, want ErrNoMention", text, err)
		}
	}
	if len(dir.calls) != 0 {
		t.Errorf("directory calls = %v, want none", dir.calls)
	}
}

func TestUser_PassesRemoteErrorsThrough(t *testing.T) {
	outage := &ledger.RemoteError{Kind: ledger.Connectivity, Operation: "users", Err: errors.New("connection refused")}
	dir := &fakeDirectory{err: outage}

	_, err := User(dir, false)(context.Background(), Token{Text: "@alice", Entity: &EntityRef{Kind: EntityMention}})
	var convErr *ConversionError
	if errors.As(err, &convErr) {
		t.Fatalf("remote failure was turned into a conversion error: %v", err)
	}
	if !ledger.IsConnectivity(err) {
		t.Errorf("error = %v, want connectivity error", err)
	}
}

type fakeCatalog struct {
	items []ledger.Consumable
	calls int
}

func (c *fakeCatalog) ListConsumables(context.Context) ([]ledger.Consumable, error) {
	c.calls++
	return c.items, nil
}

func TestConsumableOrWildcard(t *testing.T) {
	cat := &fakeCatalog{items: []ledger.Consumable{{ID: 1, Name: "Mate"}, {ID: 2, Name: "Straße"}}}
	convert := ConsumableOrWildcard(cat, "?")
	ctx := context.Background()

	got, err := convert(ctx, Token{Text: " ? "})
	if err != nil || got != Wildcard {
		t.Fatalf("wildcard = %v, %v; want Wildcard", got, err)
	}
	if cat.calls != 0 {
		t.Error("wildcard should not query the catalog")
	}

	got, err = convert(ctx, Token{Text: "mATE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item, ok := got.(*ledger.Consumable); !ok || item.ID != 1 {
		t.Errorf("got %v, want Mate", got)
	}

	got, err = convert(ctx, Token{Text: "STRASSE"})
	if err != nil {
		t.Fatalf("case folding: unexpected error: %v", err)
	}
	if item, ok := got.(*ledger.Consumable); !ok || item.ID != 2 {
		t.Errorf("got %v, want Straße", got)
	}

	if _, err := convert(ctx, Token{Text: "club"}); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("error = %v, want ErrUnknownItem", err)
	}
}

type fakeLookup map[string]string

func (l fakeLookup) Get(name string) (string, bool) {
	v, ok := l[strings.ToLower(name)]
	return v, ok
}

func (l fakeLookup) Names() []string {
	names := make([]string, 0, len(l))
	for n := range l {
		names = append(names, n)
	}
	return names
}

func TestCommandName(t *testing.T) {
	convert := CommandName[string](fakeLookup{"send": "send-cmd", "balance": "balance-cmd"})
	ctx := context.Background()

	got, err := convert(ctx, Token{Text: "SEND"})
	if err != nil || got != "send-cmd" {
		t.Fatalf("got %v, %v; want send-cmd", got, err)
	}

	got, err = convert(ctx, Token{Text: "/balance"})
	if err != nil || got != "balance-cmd" {
		t.Fatalf("got %v, %v; want balance-cmd", got, err)
	}

	_, err = convert(ctx, Token{Text: "balnce"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("error = %v, want ErrUnknownCommand", err)
	}
	if !strings.Contains(err.Error(), "/balance") {
		t.Errorf("error %q should suggest /balance", err)
	}

	_, err = convert(ctx, Token{Text: "zwegat"})
	if err == nil || strings.Contains(err.Error(), "Did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

package commands

import (
	"reflect"
	"testing"

	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

func TestParser_ParseCommand(t *testing.T) {
	parser := NewParser("matebot")

	tests := []struct {
		name     string
		input    string
		wantNil  bool
		wantName string
		wantArgs string
		wantBot  string
	}{
		{name: "empty string", input: "", wantNil: true},
		{name: "no command", input: "hello world", wantNil: true},
		{name: "simple command", input: "/help", wantName: "help"},
		{name: "command with args", input: "/send 5 @bob pizza", wantName: "send", wantArgs: "5 @bob pizza"},
		{name: "uppercase name", input: "/Balance", wantName: "balance"},
		{name: "leading whitespace", input: "  /help  ", wantName: "help"},
		{name: "newline separates args", input: "/send 5\n@bob", wantName: "send", wantArgs: "5\n@bob"},
		{name: "addressed to this bot", input: "/help@MateBot send", wantName: "help", wantArgs: "send", wantBot: "MateBot"},
		{name: "addressed to another bot", input: "/help@otherbot", wantNil: true},
		{name: "digit after prefix", input: "/1abc", wantNil: true},
		{name: "punctuation glued to name", input: "/help-me", wantNil: true},
		{name: "prefix only", input: "/", wantNil: true},
		{name: "command later in text", input: "please /help", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parser.ParseCommand(tt.input, nil)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("ParseCommand(%q) = %+v, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseCommand(%q) = nil", tt.input)
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Args != tt.wantArgs {
				t.Errorf("Args = %q, want %q", got.Args, tt.wantArgs)
			}
			if got.Bot != tt.wantBot {
				t.Errorf("Bot = %q, want %q", got.Bot, tt.wantBot)
			}
			if got.Prefix != "/" {
				t.Errorf("Prefix = %q, want /", got.Prefix)
			}
		})
	}
}

func TestParser_EntitiesAreRebased(t *testing.T) {
	parser := NewParser("")
	text := "/send 5 @bob"
	entities := []parsing.EntityRef{
		{Kind: parsing.EntityOther, Offset: 0, Length: 5},
		{Kind: parsing.EntityMention, Offset: 8, Length: 4},
	}

	got := parser.ParseCommand(text, entities)
	if got == nil {
		t.Fatal("ParseCommand returned nil")
	}
	want := []parsing.EntityRef{{Kind: parsing.EntityMention, Offset: 2, Length: 4}}
	if !reflect.DeepEqual(got.Entities, want) {
		t.Errorf("Entities = %+v, want %+v", got.Entities, want)
	}

	tokens := parsing.Tokenize(got.Args, got.Entities)
	if len(tokens) != 2 || tokens[1].Entity == nil || tokens[1].Text != "@bob" {
		t.Errorf("tokens = %+v", tokens)
	}
}

func TestParser_EntitiesAfterWideRunes(t *testing.T) {
	parser := NewParser("")
	// The emoji takes two UTF-16 units.
	text := " /send🍕 x"
	if got := parser.ParseCommand(text, nil); got != nil {
		t.Fatalf("emoji glued to the name must not parse, got %+v", got)
	}

	text = "/send 5 @bob 🍕"
	entities := []parsing.EntityRef{{Kind: parsing.EntityMention, Offset: 8, Length: 4}}
	got := parser.ParseCommand(text, entities)
	if got == nil || len(got.Entities) != 1 || got.Entities[0].Offset != 2 {
		t.Fatalf("ParseCommand = %+v", got)
	}
	if got.Args != "5 @bob 🍕" {
		t.Errorf("Args = %q", got.Args)
	}
}

func TestParser_CustomPrefixes(t *testing.T) {
	parser := NewParser("", "/", "!")

	got := parser.ParseCommand("!balance", nil)
	if got == nil || got.Name != "balance" || got.Prefix != "!" {
		t.Fatalf("ParseCommand(!balance) = %+v", got)
	}
	if parser.ParseCommand("?balance", nil) != nil {
		t.Error("unknown prefix should not parse")
	}
}

func TestParser_SetBotName(t *testing.T) {
	parser := NewParser("")
	if parser.ParseCommand("/help@otherbot", nil) == nil {
		t.Fatal("empty bot name should accept every addressee")
	}
	parser.SetBotName("@matebot")
	if parser.ParseCommand("/help@otherbot", nil) != nil {
		t.Error("command for another bot should be ignored")
	}
	if parser.ParseCommand("/help@matebot", nil) == nil {
		t.Error("command for this bot should parse")
	}
}

func TestParser_IsCommand(t *testing.T) {
	parser := NewParser("")
	tests := []struct {
		input string
		want  bool
	}{
		{"/help", true},
		{"  /send 1 @bob", true},
		{"help", false},
		{"/", false},
		{"/ help", false},
	}
	for _, tt := range tests {
		if got := parser.IsCommand(tt.input); got != tt.want {
			t.Errorf("IsCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

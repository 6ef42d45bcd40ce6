// Package commands provides slash command detection, argument parsing and
// the built-in MateBot commands.
package commands

import (
	"context"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

// Command represents a registered slash command.
type Command struct {
	// Name is the command name without the leading slash (e.g., "help")
	Name string `json:"name"`

	// Aliases are alternative names for the command
	Aliases []string `json:"aliases,omitempty"`

	// Description is a short description of what the command does
	Description string `json:"description,omitempty"`

	// Help is the long description shown by /help <command>
	Help string `json:"help,omitempty"`

	// Grammar describes the accepted arguments. A nil grammar is replaced
	// with one that accepts no arguments.
	Grammar *parsing.Grammar `json:"-"`

	// Hidden hides the command from help listings
	Hidden bool `json:"hidden,omitempty"`

	// Handler is the function that executes the command
	Handler CommandHandler `json:"-"`

	// Source identifies where this command came from (builtin, consumable)
	Source string `json:"source,omitempty"`

	// Category groups commands in help output
	Category string `json:"category,omitempty"`
}

// UsageStrings returns the usage lines of the command's grammar.
func (c *Command) UsageStrings() []string {
	if c.Grammar == nil {
		return []string{"/" + c.Name}
	}
	return c.Grammar.UsageStrings()
}

// CommandHandler processes a command invocation.
type CommandHandler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation represents a parsed command invocation.
type Invocation struct {
	// Command is the matched command definition
	Command *Command

	// Name is the actual name/alias used to invoke
	Name string

	// Args is the text after the command name
	Args string

	// Entities are the rich-text spans of Args
	Entities []parsing.EntityRef

	// RawText is the original message text
	RawText string

	// ChatID identifies the chat
	ChatID int64

	// MessageID identifies the message carrying the command
	MessageID int

	// Private is set in one-to-one chats with the bot
	Private bool

	// Sender is the Telegram account that sent the command
	Sender callbacks.Sender

	// Namespace holds the parsed arguments, filled in by Registry.Execute
	Namespace parsing.Namespace
}

// Result is the output of a command execution.
type Result struct {
	// Text is the response message to send
	Text string `json:"text,omitempty"`

	// Markdown indicates if Text should be rendered as markdown
	Markdown bool `json:"markdown,omitempty"`

	// Keyboard attaches inline buttons to the response
	Keyboard callbacks.Keyboard `json:"keyboard,omitempty"`

	// Document is sent as a file instead of a text message
	Document *Document `json:"document,omitempty"`

	// Suppress indicates no response should be sent
	Suppress bool `json:"suppress,omitempty"`

	// Error is set if the command failed in a way the user can fix
	Error string `json:"error,omitempty"`
}

// Document is a file reply.
type Document struct {
	Name    string `json:"name"`
	Caption string `json:"caption,omitempty"`
	Content []byte `json:"-"`
}

// ParsedCommand represents a detected command in a message.
type ParsedCommand struct {
	// Name is the lowercase command name (without prefix)
	Name string

	// Bot is the bot username after "@", if the command was addressed
	Bot string

	// Args is the argument text
	Args string

	// Entities are the spans of the message re-based onto Args
	Entities []parsing.EntityRef

	// Prefix is the command prefix used (/, !, etc)
	Prefix string
}

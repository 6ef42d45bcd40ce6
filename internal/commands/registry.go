package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/observability"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

// ErrUnknownCommand is returned by Execute for names nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

// Registry manages command registrations and execution.
type Registry struct {
	commands   map[string]*Command // name -> command
	aliases    map[string]string   // alias -> name
	categories map[string][]*Command
	logger     *slog.Logger
	metrics    *observability.Metrics
	mu         sync.RWMutex
}

var _ parsing.CommandLookup[*Command] = (*Registry)(nil)

// NewRegistry creates a new command registry. Both arguments may be nil.
func NewRegistry(logger *slog.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		commands:   make(map[string]*Command),
		aliases:    make(map[string]string),
		categories: make(map[string][]*Command),
		logger:     logger.With("component", "commands"),
		metrics:    metrics,
	}
}

// Register adds a command to the registry and freezes its grammar.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	if cmd.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command handler is required")
	}

	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if cmd.Grammar == nil {
		cmd.Grammar = parsing.NewGrammar(name)
	}
	if err := cmd.Grammar.Err(); err != nil {
		return fmt.Errorf("command %q: invalid grammar: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for conflicts
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	if existingName, exists := r.aliases[name]; exists {
		return fmt.Errorf("command name %q conflicts with alias for %q", name, existingName)
	}

	cmd.Name = name
	cmd.Grammar.Freeze()
	r.commands[name] = cmd

	// Register aliases
	for _, alias := range cmd.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if aliasLower == "" || aliasLower == name {
			continue
		}
		if _, exists := r.commands[aliasLower]; exists {
			r.logger.Warn("alias conflicts with command", "alias", aliasLower, "command", name)
			continue
		}
		if _, exists := r.aliases[aliasLower]; exists {
			r.logger.Warn("alias already registered", "alias", aliasLower, "command", name)
			continue
		}
		r.aliases[aliasLower] = name
	}

	// Add to category
	category := cmd.Category
	if category == "" {
		category = "general"
	}
	r.categories[category] = append(r.categories[category], cmd)

	r.logger.Debug("registered command",
		"name", name,
		"aliases", cmd.Aliases,
		"usages", len(cmd.Grammar.Usages()),
		"category", category,
		"source", cmd.Source)

	return nil
}

// Unregister removes a command from the registry.
func (r *Registry) Unregister(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, exists := r.commands[name]
	if !exists {
		return false
	}

	for _, alias := range cmd.Aliases {
		aliasLower := strings.ToLower(strings.TrimSpace(alias))
		if r.aliases[aliasLower] == name {
			delete(r.aliases, aliasLower)
		}
	}

	category := cmd.Category
	if category == "" {
		category = "general"
	}
	commands := r.categories[category]
	for i, c := range commands {
		if c.Name == name {
			r.categories[category] = append(commands[:i], commands[i+1:]...)
			break
		}
	}

	delete(r.commands, name)
	r.logger.Debug("unregistered command", "name", name)
	return true
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Direct lookup
	if cmd, exists := r.commands[name]; exists {
		return cmd, true
	}

	// Alias lookup
	if realName, exists := r.aliases[name]; exists {
		if cmd, exists := r.commands[realName]; exists {
			return cmd, true
		}
	}

	return nil, false
}

// List returns all registered commands.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		commands = append(commands, cmd)
	}

	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name < commands[j].Name
	})

	return commands
}

// ListVisible returns commands that should be shown in help.
func (r *Registry) ListVisible() []*Command {
	all := r.List()
	visible := make([]*Command, 0, len(all))
	for _, cmd := range all {
		if !cmd.Hidden {
			visible = append(visible, cmd)
		}
	}
	return visible
}

// ListByCategory returns commands grouped by category.
func (r *Registry) ListByCategory() map[string][]*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]*Command)
	for category, commands := range r.categories {
		visible := make([]*Command, 0)
		for _, cmd := range commands {
			if !cmd.Hidden {
				visible = append(visible, cmd)
			}
		}
		if len(visible) > 0 {
			result[category] = visible
		}
	}
	return result
}

// Names returns all registered command names (not aliases).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Suggest returns the reply for an unknown command name, with a "did you
// mean" hint when a registered name is close.
func (r *Registry) Suggest(ctx context.Context, name string) string {
	_, err := parsing.CommandName[*Command](r)(ctx, parsing.Token{Text: "/" + name})
	var convErr *parsing.ConversionError
	if errors.As(err, &convErr) {
		return convErr.Reason
	}
	return ""
}

// Execute parses the invocation's arguments with the command's grammar and
// runs the handler. Argument errors become a reply that shows the reason
// and the usage; errors from remote lookups are returned.
func (r *Registry) Execute(ctx context.Context, inv *Invocation) (*Result, error) {
	if inv == nil {
		return nil, fmt.Errorf("invocation is nil")
	}

	cmd, exists := r.Get(inv.Name)
	if !exists {
		return nil, fmt.Errorf("command %q: %w", inv.Name, ErrUnknownCommand)
	}
	inv.Command = cmd

	ns, err := cmd.Grammar.Parse(ctx, inv.Args, inv.Entities)
	if err != nil {
		var failure *parsing.ParseFailure
		if !errors.As(err, &failure) {
			r.metrics.RecordParse(cmd.Name, "error")
			return nil, fmt.Errorf("parse /%s: %w", cmd.Name, err)
		}
		return r.parseFailure(cmd, failure), nil
	}
	r.metrics.RecordParse(cmd.Name, "ok")

	inv.Namespace = ns
	result, err := cmd.Handler(ctx, inv)
	if err != nil {
		var userErr *UserError
		if errors.As(err, &userErr) {
			return &Result{Text: userErr.Message, Error: userErr.Message}, nil
		}
		if msg, ok := ledger.RejectionMessage(err); ok {
			r.logger.Info("command rejected by ledger", "command", cmd.Name, "reason", msg)
			return &Result{Text: msg, Error: msg}, nil
		}
		return nil, err
	}
	return result, nil
}

func (r *Registry) parseFailure(cmd *Command, failure *parsing.ParseFailure) *Result {
	outcome := "rejected"
	if errors.Is(failure, parsing.ErrNoMatchingArity) {
		outcome = "arity"
	}
	r.metrics.RecordParse(cmd.Name, outcome)
	for _, rej := range failure.Rejections {
		r.metrics.RecordConversionFailure(cmd.Name, rej.Err.Argument)
	}
	r.logger.Debug("command arguments rejected",
		"command", cmd.Name,
		"outcome", outcome,
		"tokens", failure.Tokens,
		"rejections", len(failure.Rejections))

	msg := failure.Message()
	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\n\nUsage:")
	for _, line := range cmd.UsageStrings() {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return &Result{Text: b.String(), Error: msg}
}

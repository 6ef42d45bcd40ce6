package callbacks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/observability"
)

// FailureText is shown as an alert when a button press cannot be handled.
const FailureText = "There was an error processing your request. You may file a bug report."

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// Sender identifies the user who pressed a button.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Query is a button press being handled.
type Query struct {
	// ID is the callback query id, used to answer it.
	ID          string
	From        Sender
	ChatID      int64
	MessageID   int
	MessageText string
	// Quoted is the text of the first code span of the message, if any.
	Quoted string
	// Payload is the raw callback data of the button.
	Payload string

	// Filled in by the router before the handler runs.
	Table string
	Key   string
	Data  string
	Args  []string
}

// Answer is the reaction to a button press.
type Answer struct {
	// Text is shown as a toast, or as an alert with ShowAlert.
	Text      string
	ShowAlert bool

	// Edit replaces the text of the message carrying the button.
	Edit *Edit
}

// Edit is a replacement for the message that carried the pressed button.
type Edit struct {
	Text     string
	Markdown bool
	// Keyboard replaces the buttons; nil removes them.
	Keyboard Keyboard
}

// Handler processes a resolved button press.
type Handler func(ctx context.Context, q *Query) (*Answer, error)

// Router dispatches button payloads to the first table whose pattern
// matches.
type Router struct {
	tables  []*Table[Handler]
	logger  *slog.Logger
	metrics *observability.Metrics
	mu      sync.RWMutex
}

// NewRouter creates an empty router. Both arguments may be nil.
func NewRouter(logger *slog.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:  logger.With("component", "callbacks"),
		metrics: metrics,
	}
}

// Register appends a table. Tables are consulted in registration order.
func (r *Router) Register(t *Table[Handler]) error {
	if t == nil {
		return errors.New("callback table is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tables {
		if existing.Name == t.Name {
			return fmt.Errorf("callback table %q already registered", t.Name)
		}
	}
	r.tables = append(r.tables, t)
	r.logger.Debug("registered callback table", "name", t.Name, "pattern", t.Pattern.String(), "keys", t.Keys())
	return nil
}

// Tables returns the names of the registered tables in order.
func (r *Router) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.tables))
	for i, t := range r.tables {
		names[i] = t.Name
	}
	return names
}

func (r *Router) match(payload string) *Table[Handler] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tables {
		if t.Match(payload) {
			return t
		}
	}
	return nil
}

// Dispatch resolves q.Payload and runs the handler. It always returns an
// answer for the button press; the error, if any, has already been logged.
func (r *Router) Dispatch(ctx context.Context, q *Query) (*Answer, error) {
	failure := &Answer{Text: FailureText, ShowAlert: true}

	t := r.match(q.Payload)
	if t == nil {
		r.metrics.RecordCallback("", "no_match")
		r.logger.Warn("callback data matches no table", "data", q.Payload, "from", q.From.ID)
		return failure, &ResolutionError{Data: q.Payload, Err: ErrNoPatternMatch}
	}

	res, err := t.Resolve(q.Payload)
	if err != nil {
		switch {
		case errors.Is(err, ErrAmbiguous):
			r.metrics.RecordCallback(t.Name, "ambiguous")
			r.logger.Error("ambiguous callback targets", "table", t.Name, "data", q.Payload, "error", err)
		case errors.Is(err, ErrNotFound):
			r.metrics.RecordCallback(t.Name, "not_found")
			r.logger.Warn("no callback target", "table", t.Name, "data", q.Payload)
		default:
			r.metrics.RecordCallback(t.Name, "no_match")
			r.logger.Warn("callback resolution failed", "table", t.Name, "data", q.Payload, "error", err)
		}
		return failure, err
	}

	q.Table = t.Name
	q.Key = res.Key
	q.Data = res.Data
	q.Args = res.Args

	answer, err := res.Target(ctx, q)
	if err != nil {
		r.metrics.RecordCallback(t.Name, "error")
		if msg, ok := ledger.RejectionMessage(err); ok {
			r.logger.Info("callback rejected by ledger", "table", t.Name, "key", res.Key, "reason", msg)
			return &Answer{Text: msg, ShowAlert: true}, err
		}
		r.logger.Error("callback handler failed", "table", t.Name, "key", res.Key, "error", err)
		return failure, err
	}

	r.metrics.RecordCallback(t.Name, "ok")
	if answer == nil {
		answer = &Answer{}
	}
	return answer, nil
}

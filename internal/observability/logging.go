package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format specifies output format: "json" or "text"
	Format string

	// Output is the writer for log output (defaults to os.Stderr)
	Output io.Writer

	// AddSource includes file and line number in log records
	AddSource bool

	// RedactPatterns are additional regex patterns for sensitive data redaction
	RedactPatterns []string
}

// ContextKey is the type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for the id of an outgoing ledger request.
	RequestIDKey ContextKey = "request_id"

	// UpdateIDKey is the context key for the Telegram update being handled.
	UpdateIDKey ContextKey = "update_id"

	// UserIDKey is the context key for the Telegram user behind an update.
	UserIDKey ContextKey = "user_id"
)

// DefaultRedactPatterns contains regex patterns for secrets the bot handles.
var DefaultRedactPatterns = []string{
	// Telegram bot tokens, also inside api.telegram.org URLs
	`\d{6,12}:[A-Za-z0-9_-]{30,}`,

	// Bearer tokens for the ledger service
	`(?i)(bearer|token)[\s:=]+["']?([a-zA-Z0-9_\-\.]{16,})["']?`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,

	// JWT tokens
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"bot_token":     true,
	"authorization": true,
}

// NewLogger creates a structured logger that redacts secrets from messages
// and string attributes.
//
// If config.Output is nil, logs are written to os.Stderr.
// If config.Level is empty or invalid, defaults to "info".
// If config.Format is empty, defaults to "json".
//
// Example:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "debug",
//	    Format: "text",
//	})
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Format == "" {
		config.Format = "json"
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	patterns := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, p := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		re, err := regexp.Compile(p)
		if err != nil {
			// Invalid custom patterns are skipped.
			continue
		}
		patterns = append(patterns, re)
	}

	return slog.New(&redactingHandler{next: handler, patterns: patterns})
}

// redactingHandler masks secrets and adds correlation ids from the context.
type redactingHandler struct {
	next     slog.Handler
	patterns []*regexp.Regexp
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactString(rec.Message), rec.PC)
	if ctx != nil {
		for _, key := range []ContextKey{UpdateIDKey, RequestIDKey, UserIDKey} {
			if v := ctx.Value(key); v != nil {
				out.AddAttrs(slog.Any(string(key), v))
			}
		}
	}
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(clean), patterns: h.patterns}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), patterns: h.patterns}
}

func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(strings.ReplaceAll(a.Key, "-", "_"))] {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = h.redactAttr(g)
		}
		return slog.Group(a.Key, clean...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.redactString(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *redactingHandler) redactString(s string) string {
	for _, re := range h.patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// WithRequestID adds a ledger request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUpdate adds the Telegram update id and sender to the context.
//
// Example:
//
//	ctx = observability.WithUpdate(ctx, update.ID, update.Message.From.ID)
func WithUpdate(ctx context.Context, updateID, userID int64) context.Context {
	ctx = context.WithValue(ctx, UpdateIDKey, updateID)
	if userID != 0 {
		ctx = context.WithValue(ctx, UserIDKey, userID)
	}
	return ctx
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// LogLevelFromString converts a string to a slog.Level.
// Returns LevelInfo if the string is not recognized.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package observability provides structured logging and Prometheus metrics
// for the bot.
//
// # Logging
//
// NewLogger returns a slog.Logger that masks secrets before records reach
// the output: Telegram bot tokens, bearer tokens for the core service,
// passwords and JWTs are replaced with "[REDACTED]", in messages as well as
// in string attributes. Attributes with sensitive keys ("token", "password",
// "secret") are masked entirely.
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
// Correlation ids travel in the context. The handler adds them to every
// record logged with a *Context method:
//
//	ctx = observability.WithUpdate(ctx, update.ID, from.ID)
//	ctx = observability.WithRequestID(ctx, uuid.NewString())
//	logger.InfoContext(ctx, "command executed", "command", "send")
//
// # Metrics
//
// NewMetrics registers the collectors with the given registerer. Every
// method is safe to call on a nil *Metrics, so components built without
// metrics need no checks.
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.UpdateReceived("command")
//	metrics.RecordParse("send", "arity")
//	metrics.RecordConversionFailure("send", "amount")
//	metrics.RecordCallback("communism", "ok")
//	metrics.RecordLedgerRequest("send", "ok", time.Since(start).Seconds())
//
// The series are:
//   - matebot_updates_total{kind}
//   - matebot_messages_sent_total{kind,status}
//   - matebot_command_parses_total{command,outcome}
//   - matebot_argument_rejections_total{command,argument}
//   - matebot_callback_resolutions_total{table,outcome}
//   - matebot_ledger_request_duration_seconds{operation,status}
//
// Tests pass prometheus.NewRegistry() and read values with
// prometheus/testutil.
package observability

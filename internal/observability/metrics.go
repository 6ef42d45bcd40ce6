package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the bot's Prometheus metrics.
//
// The metrics track:
//   - Telegram updates received and messages sent
//   - Command parse outcomes and the arguments users get wrong
//   - Callback payload resolutions per table
//   - Latency and status of requests to the ledger service
//
// All Record methods are safe to call on a nil *Metrics, so components can
// be built without metrics in tests and one-shot CLI commands.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordParse("send", "ok")
//	metrics.RecordLedgerRequest("send", "ok", time.Since(start).Seconds())
type Metrics struct {
	// UpdateCounter tracks incoming Telegram updates.
	// Labels: kind (message|command|callback)
	UpdateCounter *prometheus.CounterVec

	// MessageCounter counts outgoing messages and edits.
	// Labels: kind (reply|edit|answer), status (ok|error)
	MessageCounter *prometheus.CounterVec

	// ParseCounter counts command parses.
	// Labels: command, outcome (ok|arity|rejected|error)
	ParseCounter *prometheus.CounterVec

	// ConversionFailures counts rejected argument values.
	// Labels: command, argument
	ConversionFailures *prometheus.CounterVec

	// CallbackCounter counts callback resolutions.
	// Labels: table, outcome (ok|no_match|not_found|ambiguous|error)
	CallbackCounter *prometheus.CounterVec

	// LedgerRequestDuration measures ledger request latency in seconds.
	// Labels: operation, status (ok|rejected|connectivity|not_found)
	// Buckets: 0.01s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
	LedgerRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to stay isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UpdateCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matebot_updates_total",
				Help: "Total number of Telegram updates by kind",
			},
			[]string{"kind"},
		),

		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matebot_messages_sent_total",
				Help: "Total number of outgoing Telegram messages by kind and status",
			},
			[]string{"kind", "status"},
		),

		ParseCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matebot_command_parses_total",
				Help: "Total number of command argument parses by command and outcome",
			},
			[]string{"command", "outcome"},
		),

		ConversionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matebot_argument_rejections_total",
				Help: "Total number of rejected argument values by command and argument",
			},
			[]string{"command", "argument"},
		),

		CallbackCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matebot_callback_resolutions_total",
				Help: "Total number of callback payload resolutions by table and outcome",
			},
			[]string{"table", "outcome"},
		),

		LedgerRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matebot_ledger_request_duration_seconds",
				Help:    "Duration of requests to the ledger service in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation", "status"},
		),
	}
}

// UpdateReceived counts an incoming update.
func (m *Metrics) UpdateReceived(kind string) {
	if m == nil {
		return
	}
	m.UpdateCounter.WithLabelValues(kind).Inc()
}

// MessageSent counts an outgoing message.
//
// Example:
//
//	metrics.MessageSent("reply", "ok")
func (m *Metrics) MessageSent(kind, status string) {
	if m == nil {
		return
	}
	m.MessageCounter.WithLabelValues(kind, status).Inc()
}

// RecordParse counts the outcome of parsing a command's arguments.
func (m *Metrics) RecordParse(command, outcome string) {
	if m == nil {
		return
	}
	m.ParseCounter.WithLabelValues(command, outcome).Inc()
}

// RecordConversionFailure counts a rejected argument value.
func (m *Metrics) RecordConversionFailure(command, argument string) {
	if m == nil {
		return
	}
	m.ConversionFailures.WithLabelValues(command, argument).Inc()
}

// RecordCallback counts a callback resolution.
//
// Example:
//
//	metrics.RecordCallback("send", "ambiguous")
func (m *Metrics) RecordCallback(table, outcome string) {
	if m == nil {
		return
	}
	m.CallbackCounter.WithLabelValues(table, outcome).Inc()
}

// RecordLedgerRequest records the latency of one ledger request.
func (m *Metrics) RecordLedgerRequest(operation, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LedgerRequestDuration.WithLabelValues(operation, status).Observe(durationSeconds)
}

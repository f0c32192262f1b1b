// Package metrics exposes Prometheus instruments for the token budget and
// the model provider. A nil *Metrics is valid and records nothing, so
// callers never need to check whether metrics are enabled.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neebs12/shell-chat/internal/budget"
)

const namespace = "shell_chat"

// Rejection reasons.
const (
	ReasonFileSet = "file_set"
	ReasonInput   = "input"
)

// Provider outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Metrics holds every instrument owned by the process.
type Metrics struct {
	// tokensUsed mirrors Report.TokensUsed from the latest token report.
	tokensUsed prometheus.Gauge

	// tokensRemaining mirrors Report.TotalTokensRemaining; negative when
	// the budget is overdrawn.
	tokensRemaining prometheus.Gauge

	conversationLimit prometheus.Gauge

	// historyTokens is the untruncated conversation history cost.
	historyTokens prometheus.Gauge

	rejectionsTotal *prometheus.CounterVec

	truncatedMessagesTotal prometheus.Counter

	providerRequestsTotal *prometheus.CounterVec

	providerDurationSeconds *prometheus.HistogramVec
}

// New registers all instruments against reg. Tests pass a fresh
// prometheus.NewRegistry() to stay hermetic.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		tokensUsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "tokens_used",
			Help:      "Tokens committed to the system prompt and reserves.",
		}),
		tokensRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "tokens_remaining",
			Help:      "Tokens left in the context window after committed usage.",
		}),
		conversationLimit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "conversation_limit",
			Help:      "User-adjustable soft cap on retained conversation tokens.",
		}),
		historyTokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "history_tokens",
			Help:      "Accounted length of the full conversation history.",
		}),
		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "rejections_total",
			Help:      "Admissibility rejections, partitioned by reason.",
		}, []string{"reason"}),
		truncatedMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "truncated_messages_total",
			Help:      "Messages left out of requests by history truncation.",
		}),
		providerRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Model requests completed, partitioned by outcome.",
		}, []string{"outcome"}),
		providerDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of model requests including streaming.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
	}
}

// ObserveReport records the gauges of a token report.
func (m *Metrics) ObserveReport(rep budget.Report) {
	if m == nil {
		return
	}
	m.tokensUsed.Set(float64(rep.TokensUsed))
	m.tokensRemaining.Set(float64(rep.TotalTokensRemaining))
	m.conversationLimit.Set(float64(rep.ConversationLimit))
	m.historyTokens.Set(float64(rep.UnaccountedConversationHistory))
}

// ObserveTruncation counts the messages a truncation dropped.
func (m *Metrics) ObserveTruncation(tr budget.Truncation) {
	if m == nil || tr.Dropped == 0 {
		return
	}
	m.truncatedMessagesTotal.Add(float64(tr.Dropped))
}

// Rejected counts one admissibility rejection.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveRequest records one model request.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequestsTotal.WithLabelValues(outcome).Inc()
	m.providerDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

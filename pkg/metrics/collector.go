// Package metrics exposes Prometheus instrumentation for the terminal
// fleet: applied actions, phase transitions, withdrawals, and reserves.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/session"
)

var (
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atm_actions_total",
			Help: "Total number of applied terminal actions labeled by kind and outcome",
		},
		[]string{"action", "outcome"},
	)
	actionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atm_action_duration_seconds",
			Help:    "Duration of action application in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	phaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atm_phase_transitions_total",
			Help: "Total number of authentication phase transitions",
		},
		[]string{"from", "to"},
	)
	withdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atm_withdrawals_total",
			Help: "Total number of withdrawal attempts by status",
		},
		[]string{"status"},
	)
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atm_auth_attempts_total",
			Help: "Total number of PIN confirmations by result",
		},
		[]string{"result"},
	)
	activeTerminals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atm_active_terminals",
			Help: "Current number of terminals with a stored session",
		},
	)
	terminalsByPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atm_terminals_by_phase",
			Help: "Number of terminals per authentication phase",
		},
		[]string{"phase"},
	)
	cashReserve = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atm_cash_reserve",
			Help: "Cash remaining inside each terminal",
		},
		[]string{"terminal_id"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atm_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

var trackedPhases = []atm.PhaseKind{
	atm.PhaseWaiting,
	atm.PhaseAuthenticating,
	atm.PhaseAuthenticated,
}

func init() {
	session.RegisterTransitionRecorder(RecordPhaseTransition)
}

// RecordAction increments action counters and records duration, deriving
// the withdrawal and auth-attempt series from the outcome.
func RecordAction(action string, outcome session.Outcome, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}

	actionsTotal.WithLabelValues(action, string(outcome)).Inc()
	actionDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())

	switch outcome {
	case session.OutcomeDispensed:
		withdrawalsTotal.WithLabelValues("dispensed").Inc()
	case session.OutcomeDeclined:
		withdrawalsTotal.WithLabelValues("declined").Inc()
	case session.OutcomeAuthenticated:
		authAttemptsTotal.WithLabelValues("success").Inc()
	case session.OutcomeAuthFailed:
		authAttemptsTotal.WithLabelValues("failure").Inc()
	case session.OutcomeThrottled:
		authAttemptsTotal.WithLabelValues("throttled").Inc()
	}
}

// RecordHTTPRequest tracks one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPhaseTransition tracks engine phase changes.
func RecordPhaseTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	phaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// SetCashReserve updates the reserve gauge for one terminal.
func SetCashReserve(terminalID string, amount uint64) {
	cashReserve.WithLabelValues(terminalID).Set(float64(amount))
}

// FleetCollector periodically gathers session phase counts and reserve
// levels and emits gauge metrics.
type FleetCollector struct {
	manager session.Manager
	log     *slog.Logger
}

// NewFleetCollector builds a metrics collector bound to the session manager.
func NewFleetCollector(manager session.Manager, log *slog.Logger) *FleetCollector {
	if log == nil {
		log = slog.Default()
	}

	return &FleetCollector{manager: manager, log: log}
}

// Run polls the fleet every 10 seconds until ctx is cancelled.
func (c *FleetCollector) Run(ctx context.Context) {
	if c == nil || c.manager == nil {
		return
	}

	for {
		if err := c.collect(ctx); err != nil {
			c.log.Warn("fleet metrics collection failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (c *FleetCollector) collect(ctx context.Context) error {
	sessions, err := c.manager.All(ctx)
	if err != nil {
		return err
	}

	activeTerminals.Set(float64(len(sessions)))

	phaseCounts := make(map[string]int, len(sessions))
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		phaseCounts[sess.Machine.Phase.Kind.String()]++
		SetCashReserve(sess.TerminalID, sess.Machine.CashInside)
	}

	terminalsByPhase.Reset()

	for _, tracked := range trackedPhases {
		label := tracked.String()
		terminalsByPhase.WithLabelValues(label).Set(float64(phaseCounts[label]))
		delete(phaseCounts, label)
	}

	for label, count := range phaseCounts {
		terminalsByPhase.WithLabelValues(label).Set(float64(count))
	}

	return nil
}

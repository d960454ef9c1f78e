package statemachine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zeebo/xxh3"
)

const (
	kindTrigger = "trigger"
	kindTimeout = "timeout"
)

// Metric definitions with appropriate labels.
var (
	// transitionTotal tracks committed transitions by kind (trigger or timeout).
	transitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of committed state transitions by machine, from_state, to_state and kind",
	}, []string{"machine_hash", "from_state", "to_state", "kind"})

	// triggersSkippedTotal tracks recognized triggers that were not valid from the current state.
	triggersSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_triggers_skipped_total",
		Help: "Total number of recognized triggers skipped because they were not valid from the current state",
	}, []string{"machine_hash", "state"})

	// unknownTriggersTotal tracks triggers no state recognizes.
	unknownTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_unknown_triggers_total",
		Help: "Total number of triggers rejected because no state recognizes them",
	}, []string{"machine_hash"})

	// staleTimeoutsTotal tracks timer firings discarded because their state was already left.
	staleTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_stale_timeouts_total",
		Help: "Total number of timeout firings discarded because the armed state was already left",
	}, []string{"machine_hash"})

	// timersArmedTotal tracks timeout timers armed on entering a timed state.
	timersArmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_timers_armed_total",
		Help: "Total number of timeout timers armed by machine and state",
	}, []string{"machine_hash", "state"})

	// notifyDuration tracks how long the change notifier takes per transition.
	notifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_notify_duration_seconds",
		Help:    "Duration of change notification by machine",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"machine_hash"})

	// compileFailuresTotal tracks schema validation failures by code.
	compileFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_compile_failures_total",
		Help: "Total number of schema validation errors by code",
	}, []string{"code"})

	// machinesAlive tracks running sequencers.
	machinesAlive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "statemachine_machines_alive",
		Help: "Number of machines whose sequencer is running",
	})
)

// hashLabel shortens an identity to a fixed-width label value.
func hashLabel(id string) string {
	if id == "" {
		return "unknown"
	}

	return fmt.Sprintf("%08x", uint32(xxh3.HashString(id))) //nolint:gosec // truncation intended
}

func recordCompileFailure(code string) {
	compileFailuresTotal.WithLabelValues(code).Inc()
}

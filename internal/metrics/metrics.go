package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server launches.",
		}, []string{"name"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of clean server stops (exit code 0).",
		}, []string{"name"},
	)
	serverCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "crashes_total",
			Help:      "Number of nonzero exits observed while starting or online.",
		}, []string{"name"},
	)
	autoRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "auto_restarts_total",
			Help:      "Number of automatic relaunches scheduled after a crash.",
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle state transitions.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "current_state",
			Help:      "Current lifecycle state (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	startToReady = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "start_to_ready_seconds",
			Help:      "Time from launch until the readiness marker was observed.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"name"},
	)
	residentMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minekeeper",
			Subsystem: "server",
			Name:      "resident_memory_bytes",
			Help:      "Last sampled RSS of the supervised server process.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverCrashes, autoRestarts, stateTransitions, currentStates, startToReady, residentMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}
func IncStop(name string) {
	if regOK.Load() {
		serverStops.WithLabelValues(name).Inc()
	}
}
func IncCrash(name string) {
	if regOK.Load() {
		serverCrashes.WithLabelValues(name).Inc()
	}
}
func IncAutoRestart(name string) {
	if regOK.Load() {
		autoRestarts.WithLabelValues(name).Inc()
	}
}
func ObserveStartToReady(name string, seconds float64) {
	if regOK.Load() {
		startToReady.WithLabelValues(name).Observe(seconds)
	}
}
func SetResidentMemory(name string, bytes float64) {
	if regOK.Load() {
		residentMemory.WithLabelValues(name).Set(bytes)
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

package navigator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsOpened counts sessions created per use case.
	SessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_sessions_opened_total",
			Help: "Total number of navigation sessions opened",
		},
		[]string{"use_case"},
	)

	// ActionsTotal counts applied actions by outcome.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_actions_total",
			Help: "Total number of navigation actions processed",
		},
		[]string{"op", "result"},
	)

	// StackDepth tracks stack depth after each change.
	StackDepth = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayfinder_stack_depth",
			Help:    "Depth of the navigation stack after a change",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"use_case"},
	)

	// StackTrims counts pushes that cut the stack back to a valid shape.
	StackTrims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_stack_trims_total",
			Help: "Total number of pushes that trimmed the navigation stack",
		},
		[]string{"use_case"},
	)

	// CacheLookups counts session cache hits and misses.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfinder_session_cache_lookups_total",
			Help: "Session cache lookups by result",
		},
		[]string{"result"},
	)

	// EventsPruned counts events removed by retention.
	EventsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfinder_events_pruned_total",
			Help: "Total number of events removed by the retention worker",
		},
	)

	// CacheSwept counts expired session cache entries removed by the worker.
	CacheSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfinder_session_cache_swept_total",
			Help: "Total number of expired session cache entries removed",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionsOpened)
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(StackDepth)
	prometheus.MustRegister(StackTrims)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(EventsPruned)
	prometheus.MustRegister(CacheSwept)
}

package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommand = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsearch_commands_total",
			Help: "Search, sort and thread calls by result.",
		},
		[]string{
			"command", // search, sort, thread
			"result",  // ok, error
		},
	)
	metricCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsearch_command_duration_seconds",
			Help:    "Duration of search, sort and thread calls.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20},
		},
		[]string{"command"},
	)
	metricLeaf = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsearch_leaf_evaluations_total",
			Help: "Leaf predicates evaluated, by strategy.",
		},
		[]string{
			"strategy", // query, snapshot, set
		},
	)
	metricSyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsearch_sync_errors_total",
			Help: "Rows referencing messages missing from the mailbox snapshot.",
		},
	)
)

func observeCommand(command string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metricCommand.WithLabelValues(command, result).Inc()
	metricCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

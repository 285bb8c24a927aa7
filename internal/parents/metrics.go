package parents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// propagateDuration tracks whole-run latency
	propagateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineage_propagate_duration_seconds",
		Help:    "Propagation run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	})

	// closureLeaves tracks how many leaves a run expanded to
	closureLeaves = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lineage_closure_leaves",
		Help:    "Number of leaves in the expanded closure of a run",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})

	// chainWritesTotal counts write-backs by result
	chainWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_chain_writes_total",
		Help: "Total ancestor chain write-backs by result",
	}, []string{"result"})

	// storeLookupsTotal counts synced-node store lookups by outcome
	storeLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_store_lookups_total",
		Help: "Total synced-node store lookups by outcome",
	}, []string{"outcome"})

	// nodeErrorsTotal counts per-node failures by type
	nodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lineage_node_errors_total",
		Help: "Total per-node propagation errors by type",
	}, []string{"error_type"})
)

package nestedset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_mutations_total",
	Help: "The total number of tree mutations, by operation and result",
}, []string{"op", "result"})

var mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "nestedset_mutation_duration_seconds",
	Help:    "A histogram of tree mutation latencies, rollbacks included",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
}, []string{"op"})

var rowsShifted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nestedset_rows_shifted_total",
	Help: "The total number of rows rewritten by ranged updates",
}, []string{"op"})

var rowsDeleted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "nestedset_rows_deleted_total",
	Help: "The total number of rows removed by subtree deletes",
})

var cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "nestedset_node_cache_hits_total",
	Help: "The total number of node cache hits",
})

var cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "nestedset_node_cache_misses_total",
	Help: "The total number of node cache misses",
})

// CacheStats reports the process-wide node cache hit and miss counts.
func CacheStats() (hits, misses uint64) {
	return counterValue(cacheHitsTotal), counterValue(cacheMissesTotal)
}

func counterValue(c prometheus.Counter) uint64 {
	var m = &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	CatalogOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "siodb",
			Subsystem: "iomgr",
			Name:      "catalog_operations_total",
			Help:      "Catalog operations by kind.",
		},
		[]string{"op"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "siodb",
			Subsystem: "iomgr",
			Name:      "cache_hits_total",
			Help:      "Object cache hits by cache kind.",
		},
		[]string{"cache"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "siodb",
			Subsystem: "iomgr",
			Name:      "cache_misses_total",
			Help:      "Object cache misses by cache kind.",
		},
		[]string{"cache"},
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "siodb",
			Subsystem: "iomgr",
			Name:      "cache_evictions_total",
			Help:      "Object cache evictions by cache kind.",
		},
		[]string{"cache"},
	)

	OpenDatabases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "siodb",
			Subsystem: "iomgr",
			Name:      "open_databases",
			Help:      "Number of databases currently loaded.",
		},
	)
)

func init() {
	Registry.MustRegister(
		CatalogOperations,
		CacheHits,
		CacheMisses,
		CacheEvictions,
		OpenDatabases,
	)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "annodoc_parse_seconds",
		Help:    "Time spent tokenizing and resolving one source file.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"language"})

	EntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annodoc_entities_total",
		Help: "Total number of entities produced, by kind.",
	}, []string{"kind"})

	ParseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annodoc_parse_errors_total",
		Help: "Total number of failed parses, by reason.",
	}, []string{"reason"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "annodoc_queue_depth",
		Help: "Current number of ingest jobs waiting for a worker.",
	})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annodoc_cache_hits_total",
		Help: "Total number of parse results served from the record cache.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "annodoc_cache_misses_total",
		Help: "Total number of parses that missed the record cache.",
	})
)

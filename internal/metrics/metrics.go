// Package metrics exposes the Prometheus instrumentation for the ranking
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine counters and histograms. A single instance is
// created at startup and shared by the ranker and correlation engine.
type Metrics struct {
	AssetsRanked   prometheus.Counter
	AssetsSkipped  *prometheus.CounterVec
	RankDuration   prometheus.Histogram
	QualityScored  prometheus.Counter
	CorrCacheHits  prometheus.Counter
	CorrCacheMiss  prometheus.Counter
	CorrComputed   prometheus.Counter
	BTCPriceCached prometheus.Counter
}

// New registers the engine metrics on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AssetsRanked: factory.NewCounter(prometheus.CounterOpts{
			Name: "ranker_assets_ranked_total",
			Help: "Assets that passed all gates and received a rank.",
		}),
		AssetsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ranker_assets_skipped_total",
			Help: "Assets excluded from ranking, by gate.",
		}, []string{"reason"}),
		RankDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ranker_batch_duration_seconds",
			Help:    "Wall time of a full ranking batch.",
			Buckets: prometheus.DefBuckets,
		}),
		QualityScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "quality_snapshots_scored_total",
			Help: "Indicator snapshots evaluated by the quality scorer.",
		}),
		CorrCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlation_cache_hits_total",
			Help: "Correlation records served from cache.",
		}),
		CorrCacheMiss: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlation_cache_misses_total",
			Help: "Correlation lookups that required recomputation.",
		}),
		CorrComputed: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlation_records_computed_total",
			Help: "Correlation records computed from price history.",
		}),
		BTCPriceCached: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlation_btc_price_cache_hits_total",
			Help: "BTC reference price reads served from the short-lived cache.",
		}),
	}
}

// NewDefault registers on the default Prometheus registry
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

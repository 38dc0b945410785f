// Package correlation computes Pearson correlation between an asset's
// hourly returns and BTC's, over rolling 24h, 7d and 30d windows. Results
// are cached; insufficient or broken data yields a neutral record so
// downstream consumers never block on correlation.
package correlation

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/cache"
	"crypto-signal-ranker/internal/market"
	"crypto-signal-ranker/internal/metrics"
)

// PricePoint is one timestamped close
type PricePoint struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// PriceFetcher supplies the hourly close history and the BTC reference
// price. Implementations talk to an exchange or a local store; the engine
// only assumes the closes are hourly and roughly aligned.
type PriceFetcher interface {
	HourlyCloses(ctx context.Context, symbol string, hours int) ([]PricePoint, error)
	BTCPrice(ctx context.Context) (float64, error)
}

// Record is the cached correlation outcome for one symbol
type Record struct {
	Symbol           string    `json:"symbol"`
	Corr24h          float64   `json:"corr_24h"`
	Corr7d           float64   `json:"corr_7d"`
	Corr30d          float64   `json:"corr_30d"`
	Strength         string    `json:"strength"` // "strong", "moderate", "weak"
	ImpactMultiplier float64   `json:"impact_multiplier"`
	SampleCount      int       `json:"sample_count"`
	ComputedAt       time.Time `json:"computed_at"`
}

// RecordStore is the cache behind the engine. Both the in-memory TTL
// store and the Redis-backed store satisfy it.
type RecordStore interface {
	Get(ctx context.Context, key string) (Record, bool)
	Set(ctx context.Context, key string, rec Record)
}

// memoryStore adapts the process-local TTL cache to RecordStore
type memoryStore struct {
	ttl *cache.TTL[string, Record]
}

// NewMemoryStore returns an in-process record store with the given TTL
func NewMemoryStore(ttl time.Duration) RecordStore {
	return &memoryStore{ttl: cache.NewTTL[string, Record](ttl)}
}

func (m *memoryStore) Get(_ context.Context, key string) (Record, bool) { return m.ttl.Get(key) }
func (m *memoryStore) Set(_ context.Context, key string, rec Record)   { m.ttl.Set(key, rec) }

const (
	hours24h = 24
	hours7d  = 24 * 7
	hours30d = 24 * 30
)

// Engine computes and caches BTC correlation records
type Engine struct {
	cfg      config.CorrelationConfig
	fetcher  PriceFetcher
	store    RecordStore
	btcPrice *cache.TTL[string, float64]
	btcHist  *cache.TTL[string, []PricePoint]
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewEngine creates a correlation engine. The store may be the in-memory
// TTL store or a Redis-backed one; mtr may be nil.
func NewEngine(cfg config.CorrelationConfig, fetcher PriceFetcher, store RecordStore, mtr *metrics.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		btcPrice: cache.NewTTL[string, float64](cfg.BTCPriceTTL),
		btcHist:  cache.NewTTL[string, []PricePoint](cfg.BTCPriceTTL),
		metrics:  mtr,
		log:      log.With().Str("component", "correlation").Logger(),
	}
}

// BTCReferencePrice returns the current BTC price through a short-lived
// cache so batch ranking does not hammer the fetcher
func (e *Engine) BTCReferencePrice(ctx context.Context) (float64, error) {
	if price, ok := e.btcPrice.Get("BTCUSDT"); ok {
		e.count(func(m *metrics.Metrics) { m.BTCPriceCached.Inc() })
		return price, nil
	}
	price, err := e.fetcher.BTCPrice(ctx)
	if err != nil {
		return 0, err
	}
	e.btcPrice.Set("BTCUSDT", price)
	return price, nil
}

// Correlation returns the cached record for symbol, computing it if the
// cache misses. Any failure degrades to a neutral record, which is cached
// so a broken feed does not trigger a recompute storm.
func (e *Engine) Correlation(ctx context.Context, symbol string) Record {
	key := strings.ToUpper(symbol)
	if rec, ok := e.store.Get(ctx, key); ok {
		e.count(func(m *metrics.Metrics) { m.CorrCacheHits.Inc() })
		return rec
	}
	e.count(func(m *metrics.Metrics) { m.CorrCacheMiss.Inc() })

	btc, err := e.btcHistory(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", key).Msg("btc history unavailable, using neutral correlation")
		rec := e.neutralRecord(key)
		e.store.Set(ctx, key, rec)
		return rec
	}
	rec := e.compute(ctx, key, btc)
	e.store.Set(ctx, key, rec)
	return rec
}

// Correlations computes records for a batch of symbols, fetching the BTC
// history once
func (e *Engine) Correlations(ctx context.Context, symbols []string) map[string]Record {
	out := make(map[string]Record, len(symbols))
	for _, sym := range symbols {
		out[strings.ToUpper(sym)] = e.Correlation(ctx, sym)
	}
	return out
}

func (e *Engine) btcHistory(ctx context.Context) ([]PricePoint, error) {
	if hist, ok := e.btcHist.Get("BTCUSDT"); ok {
		return hist, nil
	}
	hist, err := e.fetcher.HourlyCloses(ctx, "BTCUSDT", hours30d+1)
	if err != nil {
		return nil, err
	}
	e.btcHist.Set("BTCUSDT", hist)
	return hist, nil
}

func (e *Engine) compute(ctx context.Context, symbol string, btc []PricePoint) Record {
	asset, err := e.fetcher.HourlyCloses(ctx, symbol, hours30d+1)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("price history unavailable, using neutral correlation")
		return e.neutralRecord(symbol)
	}

	assetReturns, btcReturns, paired := pairedReturns(asset, btc)
	if paired < e.cfg.MinSamples {
		e.log.Debug().Str("symbol", symbol).Int("samples", paired).
			Msg("insufficient overlapping samples, using neutral correlation")
		rec := e.neutralRecord(symbol)
		rec.SampleCount = paired
		return rec
	}

	rec := Record{
		Symbol:      symbol,
		Corr24h:     windowCorrelation(assetReturns, btcReturns, hours24h),
		Corr7d:      windowCorrelation(assetReturns, btcReturns, hours7d),
		Corr30d:     windowCorrelation(assetReturns, btcReturns, hours30d),
		SampleCount: paired,
		ComputedAt:  time.Now().UTC(),
	}
	rec.Strength = e.strengthFor(rec)
	rec.ImpactMultiplier = market.Clamp(math.Abs(rec.Corr7d)*e.cfg.ImpactFactor, e.cfg.ImpactMin, e.cfg.ImpactMax)

	e.count(func(m *metrics.Metrics) { m.CorrComputed.Inc() })
	return rec
}

// strengthFor buckets the average absolute correlation across windows
func (e *Engine) strengthFor(rec Record) string {
	avg := (math.Abs(rec.Corr24h) + math.Abs(rec.Corr7d) + math.Abs(rec.Corr30d)) / 3
	switch {
	case avg > e.cfg.StrongAt:
		return "strong"
	case avg > e.cfg.ModerateAt:
		return "moderate"
	default:
		return "weak"
	}
}

// neutralRecord is the fail-soft outcome: zero correlation, weak strength,
// unit impact
func (e *Engine) neutralRecord(symbol string) Record {
	return Record{
		Symbol:           symbol,
		Strength:         "weak",
		ImpactMultiplier: 1,
		ComputedAt:       time.Now().UTC(),
	}
}

func (e *Engine) count(fn func(*metrics.Metrics)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}

// pairedReturns aligns the two close series on hour-truncated timestamps
// and converts the overlap to percentage returns. paired counts the
// aligned price points, which is one more than the returns they yield
// over a contiguous run. Non-positive or non-finite closes break the
// return at that point.
func pairedReturns(asset, btc []PricePoint) (assetReturns, btcReturns []float64, paired int) {
	btcByHour := make(map[time.Time]float64, len(btc))
	for _, p := range btc {
		if market.Finite(p.Close) && p.Close > 0 {
			btcByHour[p.Time.UTC().Truncate(time.Hour)] = p.Close
		}
	}

	var prevAsset, prevBTC float64
	havePrev := false
	for _, p := range asset {
		if !market.Finite(p.Close) || p.Close <= 0 {
			havePrev = false
			continue
		}
		btcClose, ok := btcByHour[p.Time.UTC().Truncate(time.Hour)]
		if !ok {
			havePrev = false
			continue
		}
		paired++
		if havePrev {
			assetReturns = append(assetReturns, (p.Close-prevAsset)/prevAsset*100)
			btcReturns = append(btcReturns, (btcClose-prevBTC)/prevBTC*100)
		}
		prevAsset, prevBTC = p.Close, btcClose
		havePrev = true
	}
	return assetReturns, btcReturns, paired
}

// windowCorrelation computes the Pearson correlation over the trailing
// window hours of the paired return series. Degenerate inputs (short
// series, zero variance) return 0.
func windowCorrelation(assetReturns, btcReturns []float64, window int) float64 {
	n := len(assetReturns)
	if n > window {
		assetReturns = assetReturns[n-window:]
		btcReturns = btcReturns[n-window:]
	}
	if len(assetReturns) < 2 {
		return 0
	}
	r := stat.Correlation(assetReturns, btcReturns, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return market.Clamp(r, -1, 1)
}

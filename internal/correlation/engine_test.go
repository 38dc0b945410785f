package correlation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/creasty/defaults"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/logging"
)

type stubFetcher struct {
	series     map[string][]PricePoint
	err        error
	closeCalls int
	priceCalls int
}

func (s *stubFetcher) HourlyCloses(_ context.Context, symbol string, _ int) ([]PricePoint, error) {
	s.closeCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.series[symbol], nil
}

func (s *stubFetcher) BTCPrice(context.Context) (float64, error) {
	s.priceCalls++
	if s.err != nil {
		return 0, s.err
	}
	return 65000, nil
}

func defaultCfg(t *testing.T) config.CorrelationConfig {
	t.Helper()
	var cfg config.CorrelationConfig
	if err := defaults.Set(&cfg); err != nil {
		t.Fatalf("setting defaults: %v", err)
	}
	return cfg
}

// series builds an hourly close series whose percentage returns follow
// pattern, scaled by factor
func series(start time.Time, n int, factor float64) []PricePoint {
	points := make([]PricePoint, n)
	price := 100.0
	for i := 0; i < n; i++ {
		points[i] = PricePoint{Time: start.Add(time.Duration(i) * time.Hour), Close: price}
		ret := 1.0
		if i%2 == 1 {
			ret = -0.5
		}
		price *= 1 + ret*factor/100
	}
	return points
}

func newEngine(t *testing.T, fetcher *stubFetcher) *Engine {
	t.Helper()
	cfg := defaultCfg(t)
	return NewEngine(cfg, fetcher, NewMemoryStore(cfg.RecordTTL), nil, logging.Nop())
}

func TestInsufficientSamplesNeutralAndCached(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Hour).Add(-24 * time.Hour)
	fetcher := &stubFetcher{series: map[string][]PricePoint{
		"BTCUSDT": series(start, 10, 1),
		"ALTUSDT": series(start, 10, 2),
	}}
	e := newEngine(t, fetcher)

	rec := e.Correlation(context.Background(), "altusdt")
	if rec.Corr24h != 0 || rec.Corr7d != 0 || rec.Corr30d != 0 {
		t.Errorf("expected zero correlations, got %+v", rec)
	}
	if rec.Strength != "weak" || rec.ImpactMultiplier != 1 {
		t.Errorf("expected weak/unit neutral record, got %+v", rec)
	}

	callsAfterFirst := fetcher.closeCalls
	again := e.Correlation(context.Background(), "ALTUSDT")
	if fetcher.closeCalls != callsAfterFirst {
		t.Error("neutral record must be cached, not recomputed")
	}
	if again.ComputedAt != rec.ComputedAt {
		t.Error("expected the identical cached record")
	}
}

func TestMinimumSampleBoundary(t *testing.T) {
	// Exactly MinSamples aligned hourly points (the default 24) must
	// compute a real correlation; one fewer degrades to neutral.
	start := time.Now().UTC().Truncate(time.Hour).Add(-30 * time.Hour)

	enough := &stubFetcher{series: map[string][]PricePoint{
		"BTCUSDT": series(start, 24, 1),
		"ALTUSDT": series(start, 24, 2),
	}}
	e := newEngine(t, enough)
	rec := e.Correlation(context.Background(), "ALTUSDT")
	if rec.SampleCount != 24 {
		t.Errorf("expected 24 paired samples reported, got %d", rec.SampleCount)
	}
	if math.Abs(rec.Corr24h-1) > 1e-6 {
		t.Errorf("24 aligned points must compute a correlation, got %.4f", rec.Corr24h)
	}
	if rec.Strength == "weak" && rec.ImpactMultiplier == 1 && rec.Corr7d == 0 {
		t.Errorf("expected a computed record, got the neutral one: %+v", rec)
	}

	short := &stubFetcher{series: map[string][]PricePoint{
		"BTCUSDT": series(start, 23, 1),
		"ALTUSDT": series(start, 23, 2),
	}}
	e = newEngine(t, short)
	rec = e.Correlation(context.Background(), "ALTUSDT")
	if rec.Strength != "weak" || rec.ImpactMultiplier != 1 || rec.Corr24h != 0 {
		t.Errorf("23 paired samples must stay neutral, got %+v", rec)
	}
	if rec.SampleCount != 23 {
		t.Errorf("expected 23 paired samples reported, got %d", rec.SampleCount)
	}
}

func TestPerfectCorrelation(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Hour).Add(-800 * time.Hour)
	fetcher := &stubFetcher{series: map[string][]PricePoint{
		"BTCUSDT": series(start, 750, 1),
		"ALTUSDT": series(start, 750, 2), // same return pattern, twice the size
	}}
	e := newEngine(t, fetcher)

	rec := e.Correlation(context.Background(), "ALTUSDT")
	for name, corr := range map[string]float64{
		"24h": rec.Corr24h, "7d": rec.Corr7d, "30d": rec.Corr30d,
	} {
		if math.Abs(corr-1) > 1e-6 {
			t.Errorf("window %s: expected correlation 1, got %.6f", name, corr)
		}
	}
	if rec.Strength != "strong" {
		t.Errorf("expected strong, got %q", rec.Strength)
	}
	if math.Abs(rec.ImpactMultiplier-1.5) > 1e-6 {
		t.Errorf("expected impact 1.5, got %.3f", rec.ImpactMultiplier)
	}
}

func TestFetchFailureDegradesToNeutral(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("exchange down")}
	e := newEngine(t, fetcher)

	rec := e.Correlation(context.Background(), "ALTUSDT")
	if rec.Strength != "weak" || rec.ImpactMultiplier != 1 {
		t.Errorf("expected neutral record on fetch failure, got %+v", rec)
	}
}

func TestZeroVarianceGuard(t *testing.T) {
	// Constant returns have zero variance; correlation must be 0, not NaN.
	start := time.Now().UTC().Truncate(time.Hour).Add(-100 * time.Hour)
	flat := make([]PricePoint, 40)
	price := 100.0
	for i := range flat {
		flat[i] = PricePoint{Time: start.Add(time.Duration(i) * time.Hour), Close: price}
		price *= 1.01
	}
	fetcher := &stubFetcher{series: map[string][]PricePoint{
		"BTCUSDT": flat,
		"ALTUSDT": flat,
	}}
	e := newEngine(t, fetcher)

	rec := e.Correlation(context.Background(), "ALTUSDT")
	if math.IsNaN(rec.Corr24h) || math.IsNaN(rec.Corr7d) || math.IsNaN(rec.Corr30d) {
		t.Errorf("zero-variance input must not produce NaN: %+v", rec)
	}
}

func TestBatchSharesBTCFetch(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Hour).Add(-800 * time.Hour)
	fetcher := &stubFetcher{series: map[string][]PricePoint{
		"BTCUSDT": series(start, 750, 1),
		"AUSDT":   series(start, 750, 2),
		"BUSDT":   series(start, 750, 3),
	}}
	e := newEngine(t, fetcher)

	records := e.Correlations(context.Background(), []string{"AUSDT", "BUSDT"})
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// One BTC history fetch plus one per asset.
	if fetcher.closeCalls != 3 {
		t.Errorf("expected 3 close fetches (1 BTC + 2 assets), got %d", fetcher.closeCalls)
	}
}

func TestBTCPriceCache(t *testing.T) {
	fetcher := &stubFetcher{}
	e := newEngine(t, fetcher)

	first, err := e.BTCReferencePrice(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.BTCReferencePrice(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected the cached price, got %.2f then %.2f", first, second)
	}
	if fetcher.priceCalls != 1 {
		t.Errorf("expected a single upstream price fetch, got %d", fetcher.priceCalls)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/conflict"
	"crypto-signal-ranker/internal/correlation"
	"crypto-signal-ranker/internal/justify"
	"crypto-signal-ranker/internal/logging"
	"crypto-signal-ranker/internal/market"
	"crypto-signal-ranker/internal/quality"
	"crypto-signal-ranker/internal/ranker"
)

type noopFetcher struct{}

func (noopFetcher) HourlyCloses(context.Context, string, int) ([]correlation.PricePoint, error) {
	return nil, nil
}
func (noopFetcher) BTCPrice(context.Context) (float64, error) { return 65000, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}

	log := logging.Nop()
	scorer := quality.NewScorer(cfg.Quality, conflict.NewCalculator(cfg.Conflict), log)
	ledger := justify.NewLedger(cfg.Justify)
	rnk := ranker.NewRanker(cfg.Ranker, scorer, nil, log)
	corr := correlation.NewEngine(cfg.Correlation, noopFetcher{},
		correlation.NewMemoryStore(cfg.Correlation.RecordTTL), nil, log)

	return NewServer(cfg.Server, scorer, ledger, rnk, corr, log)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestQualityEndpoint(t *testing.T) {
	s := newTestServer(t)

	bundle := market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			RSI14: market.Float(50),
		},
	}
	body, _ := json.Marshal(bundle)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quality/solusdt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var score quality.Score
	if err := json.Unmarshal(rec.Body.Bytes(), &score); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if score.Symbol != "SOLUSDT" {
		t.Errorf("expected uppercased symbol, got %q", score.Symbol)
	}
	if score.IndicatorsCount != 1 {
		t.Errorf("expected 1 indicator counted, got %d", score.IndicatorsCount)
	}
}

func TestQualityEndpointRejectsBadJSON(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quality/solusdt", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestJustifyEndpoint(t *testing.T) {
	s := newTestServer(t)

	payload := map[string]interface{}{
		"direction": "long",
		"bundle": market.AssetBundle{
			Snapshot: &market.IndicatorSnapshot{
				Price: 100,
				EMA8:  market.Float(90),
			},
		},
	}
	body, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/justify/ethusdt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res justify.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.Direction != justify.DirectionLong {
		t.Errorf("expected long direction, got %q", res.Direction)
	}
	if len(res.Evidence) == 0 {
		t.Error("expected supporting evidence for price above EMA8")
	}
}

func TestJustifyEndpointRejectsBadDirection(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"direction":"sideways","bundle":{}}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/justify/ethusdt", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown direction, got %d", rec.Code)
	}
}

func TestRankEndpoint(t *testing.T) {
	s := newTestServer(t)

	payload := map[string]interface{}{
		"bundles": []market.AssetBundle{
			{
				Symbol: "AUSDT",
				Snapshot: &market.IndicatorSnapshot{
					Price: 100,
					RSI14: market.Float(50),
					MACD:  &market.MACD{Line: 0.5, Signal: 0.48, Histogram: 0.02},
					EMA20: market.Float(95),
					EMA50: market.Float(90),
					ADX:   &market.ADX{Value: 30},
				},
			},
			{Symbol: "EMPTYUSDT"},
		},
	}
	body, _ := json.Marshal(payload)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rank", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report ranker.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if report.TotalProcessed != 2 {
		t.Errorf("expected 2 processed, got %d", report.TotalProcessed)
	}
	if report.SkippedNoIndicators != 1 {
		t.Errorf("expected 1 zero-coverage skip, got %d", report.SkippedNoIndicators)
	}
	if report.BatchID == "" {
		t.Error("expected a batch id")
	}
}

func TestRankEndpointRequiresBundles(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rank", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing bundle list, got %d", rec.Code)
	}
}

func TestCorrelationEndpointDegradesToNeutral(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/correlation/altusdt", nil)
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var record correlation.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if record.Strength != "weak" || record.ImpactMultiplier != 1 {
		t.Errorf("expected the neutral record for an empty feed, got %+v", record)
	}
}

package conflict

import (
	"testing"

	"github.com/creasty/defaults"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/market"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	var cfg config.ConflictConfig
	if err := defaults.Set(&cfg); err != nil {
		t.Fatalf("setting defaults: %v", err)
	}
	return NewCalculator(cfg)
}

func TestTrendStructureConflict(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Symbol: "TESTUSDT",
		Trend:  &market.TrendAlignment{DailyTrend: "uptrend"},
		Snapshot: &market.IndicatorSnapshot{
			Price: 90,
			EMA20: market.Float(95),
			EMA50: market.Float(100),
		},
	}

	res := calc.Evaluate(bundle)
	if res.Penalty < 40 {
		t.Errorf("expected penalty >= 40, got %.1f", res.Penalty)
	}
	if res.MajorMismatches != 1 {
		t.Errorf("expected 1 major mismatch, got %d", res.MajorMismatches)
	}
	if !contains(res.Reasons, "Trend×EMA×Aroon conflict") {
		t.Errorf("expected trend conflict reason, got %v", res.Reasons)
	}
}

func TestAroonDominanceConflict(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Trend: &market.TrendAlignment{DailyTrend: "uptrend"},
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			Aroon: &market.Aroon{Up: 20, Down: 80},
		},
	}

	res := calc.Evaluate(bundle)
	if !contains(res.Reasons, "Trend×EMA×Aroon conflict") {
		t.Errorf("expected Aroon dominance to trigger the trend conflict, got %v", res.Reasons)
	}
}

func TestVolumeInvalidBeatsDeltaRule(t *testing.T) {
	calc := newCalculator(t)

	// Invalid confirmation short-circuits; the delta rule must not also fire.
	bundle := &market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			MACD:  &market.MACD{Histogram: 0.05},
		},
		Context: &market.ExternalContext{
			Volume: &market.VolumeAnalysis{
				VolumeConfirmed: market.Bool(false),
				NetDelta:        market.Float(-500),
			},
		},
	}

	res := calc.Evaluate(bundle)
	if res.Penalty != 25 {
		t.Errorf("expected only the invalid-confirmation penalty 25, got %.1f", res.Penalty)
	}
}

func TestNetDeltaOpposesMACD(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			MACD:  &market.MACD{Histogram: 0.05},
		},
		Context: &market.ExternalContext{
			Volume: &market.VolumeAnalysis{
				VolumeConfirmed: market.Bool(true),
				NetDelta:        market.Float(-500),
			},
		},
	}

	res := calc.Evaluate(bundle)
	if !contains(res.Reasons, "net delta opposes MACD histogram") {
		t.Errorf("expected delta/MACD conflict, got %v", res.Reasons)
	}
}

func TestChoppyADX(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			ADX:   &market.ADX{Value: 12},
		},
	}

	res := calc.Evaluate(bundle)
	if res.Penalty != 20 {
		t.Errorf("expected choppy penalty 20, got %.1f", res.Penalty)
	}
}

func TestSidewaysRequiresTrendingADX(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price:     100,
			ADX:       &market.ADX{Value: 25},
			Bollinger: &market.BollingerBands{Upper: 100.4, Middle: 100, Lower: 99.6},
		},
	}

	res := calc.Evaluate(bundle)
	if !contains(res.Reasons, "sideways, no volume") {
		t.Errorf("expected sideways reason, got %v", res.Reasons)
	}
	if res.Penalty != 15 {
		t.Errorf("expected sideways penalty 15, got %.1f", res.Penalty)
	}
}

func TestLiquidationDistance(t *testing.T) {
	calc := newCalculator(t)

	near := &market.AssetBundle{
		Context: &market.ExternalContext{
			Futures: &market.FuturesData{LiquidationDistancePct: market.Float(1.5)},
		},
	}
	res := calc.Evaluate(near)
	if res.Penalty != 25 || res.MajorMismatches != 1 {
		t.Errorf("near liquidation: expected (25, 1 major), got (%.1f, %d)", res.Penalty, res.MajorMismatches)
	}

	warn := &market.AssetBundle{
		Context: &market.ExternalContext{
			Futures: &market.FuturesData{LiquidationDistancePct: market.Float(3.0)},
		},
	}
	res = calc.Evaluate(warn)
	if res.Penalty != 15 || res.MajorMismatches != 0 {
		t.Errorf("warn liquidation: expected (15, 0 major), got (%.1f, %d)", res.Penalty, res.MajorMismatches)
	}
}

func TestNeutralMomentum(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			RSI14: market.Float(50),
			MACD:  &market.MACD{Histogram: 0.0005},
		},
	}

	res := calc.Evaluate(bundle)
	if !contains(res.Reasons, "neutral RSI with flat MACD histogram") {
		t.Errorf("expected neutral momentum reason, got %v", res.Reasons)
	}
}

func TestBTCCouplingHalfWeight(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Context: &market.ExternalContext{
			Futures: &market.FuturesData{BTCCorrelation7d: market.Float(-0.85)},
		},
	}

	res := calc.Evaluate(bundle)
	if res.Penalty != 10 {
		t.Errorf("expected half-weight coupling penalty 10, got %.1f", res.Penalty)
	}
}

func TestShockRegime(t *testing.T) {
	calc := newCalculator(t)

	bundle := &market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{
			Price:     100,
			Bollinger: &market.BollingerBands{Upper: 110, Middle: 100, Lower: 90},
		},
	}

	res := calc.Evaluate(bundle)
	if !contains(res.Reasons, "shock regime") {
		t.Errorf("expected shock regime reason, got %v", res.Reasons)
	}
}

func TestEmptyBundle(t *testing.T) {
	calc := newCalculator(t)

	res := calc.Evaluate(&market.AssetBundle{})
	if res.Penalty != 0 || len(res.Reasons) != 0 || res.MajorMismatches != 0 {
		t.Errorf("expected zero result for empty bundle, got %+v", res)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

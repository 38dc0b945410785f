package quality

import (
	"errors"
	"testing"

	"github.com/creasty/defaults"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/conflict"
	"crypto-signal-ranker/internal/logging"
	"crypto-signal-ranker/internal/market"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	var qcfg config.QualityConfig
	var ccfg config.ConflictConfig
	if err := defaults.Set(&qcfg); err != nil {
		t.Fatalf("setting quality defaults: %v", err)
	}
	if err := defaults.Set(&ccfg); err != nil {
		t.Fatalf("setting conflict defaults: %v", err)
	}
	return NewScorer(qcfg, conflict.NewCalculator(ccfg), logging.Nop())
}

func solidBundle() *market.AssetBundle {
	return &market.AssetBundle{
		Symbol: "SOLUSDT",
		Snapshot: &market.IndicatorSnapshot{
			Price: 100,
			RSI14: market.Float(50),
			MACD:  &market.MACD{Line: 0.5, Signal: 0.48, Histogram: 0.02},
			EMA20: market.Float(95),
			EMA50: market.Float(90),
			ADX:   &market.ADX{Value: 30, PlusDI: 28, MinusDI: 12},
		},
	}
}

func TestEvaluateEmptyBundle(t *testing.T) {
	s := newScorer(t)

	res := s.Evaluate(&market.AssetBundle{Symbol: "EMPTYUSDT"})
	if res.Score != 0 {
		t.Errorf("expected score 0, got %.1f", res.Score)
	}
	if res.IndicatorsCount != 0 {
		t.Errorf("expected 0 indicators, got %d", res.IndicatorsCount)
	}
	if res.Quality != LabelPoor {
		t.Errorf("expected quality %q, got %q", LabelPoor, res.Quality)
	}
	if len(res.Weaknesses) != 1 || res.Weaknesses[0] != "No indicators available" {
		t.Errorf("expected the canonical weakness, got %v", res.Weaknesses)
	}
}

func TestEvaluateSolidBundle(t *testing.T) {
	s := newScorer(t)

	res := s.Evaluate(solidBundle())
	if res.IndicatorsCount < 4 {
		t.Errorf("expected at least 4 indicators counted, got %d", res.IndicatorsCount)
	}
	found := false
	for _, str := range res.Strengths {
		if str == "RSI in optimal neutral zone" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the neutral-zone RSI strength, got %v", res.Strengths)
	}
	if res.Quality.rank() < LabelFair.rank() {
		t.Errorf("expected quality at least %q, got %q", LabelFair, res.Quality)
	}
}

func TestCoverageCapsLabel(t *testing.T) {
	// Four indicators out of twenty is 20% coverage, which caps the label
	// at fair regardless of how high the raw score climbs.
	s := newScorer(t)

	res := s.Evaluate(solidBundle())
	if res.CoveragePct != 20 {
		t.Errorf("expected 20%% coverage, got %.1f", res.CoveragePct)
	}
	if res.Quality.rank() > LabelFair.rank() {
		t.Errorf("thin coverage must cap the label at fair, got %q", res.Quality)
	}
}

func TestExtremeRSIWeakness(t *testing.T) {
	s := newScorer(t)

	res := s.Evaluate(&market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{Price: 100, RSI14: market.Float(95)},
	})
	if len(res.Weaknesses) == 0 {
		t.Error("expected an extreme RSI weakness")
	}
	if res.Score >= 18*0.35 {
		t.Errorf("extreme RSI must score in the lowest band, got %.1f", res.Score)
	}
}

func TestInvalidNumericExcluded(t *testing.T) {
	s := newScorer(t)

	nan := market.Float(0)
	*nan = *nan / *nan // NaN
	res := s.Evaluate(&market.AssetBundle{
		Snapshot: &market.IndicatorSnapshot{Price: 100, RSI14: nan},
	})
	if res.IndicatorsCount != 0 {
		t.Errorf("invalid RSI must not count as coverage, got %d", res.IndicatorsCount)
	}
}

type failingAdjuster struct{}

func (failingAdjuster) Name() string { return "broken" }
func (failingAdjuster) Adjust(*market.AssetBundle) (AdjusterResult, error) {
	return AdjusterResult{}, errors.New("boom")
}

func TestAdjusterFailureIsNoOp(t *testing.T) {
	plain := newScorer(t)
	withBroken := newScorer(t)
	withBroken.RegisterInfluence(failingAdjuster{})
	withBroken.RegisterReward(failingAdjuster{})

	a := plain.Evaluate(solidBundle())
	b := withBroken.Evaluate(solidBundle())
	if a.Score != b.Score {
		t.Errorf("failing adjusters must not change the score: %.2f vs %.2f", a.Score, b.Score)
	}
	if a.Quality != b.Quality {
		t.Errorf("failing adjusters must not change the label: %q vs %q", a.Quality, b.Quality)
	}
}

type fixedAdjuster struct {
	res AdjusterResult
}

func (fixedAdjuster) Name() string { return "fixed" }
func (f fixedAdjuster) Adjust(*market.AssetBundle) (AdjusterResult, error) {
	return f.res, nil
}

func TestMajorMismatchCutsScore(t *testing.T) {
	plain := newScorer(t)
	cut := newScorer(t)
	cut.RegisterInfluence(fixedAdjuster{res: AdjusterResult{MajorMismatches: 1}})

	a := plain.Evaluate(solidBundle())
	b := cut.Evaluate(solidBundle())
	if b.Score != a.Score*0.5 {
		t.Errorf("expected the mismatch cut to halve the score: %.2f vs %.2f", a.Score, b.Score)
	}
}

func TestRewardBonus(t *testing.T) {
	plain := newScorer(t)
	rewarded := newScorer(t)
	rewarded.RegisterReward(fixedAdjuster{res: AdjusterResult{Bonus: 7}})

	a := plain.Evaluate(solidBundle())
	b := rewarded.Evaluate(solidBundle())
	if b.Score != a.Score+7 {
		t.Errorf("expected the reward bonus applied: %.2f vs %.2f", a.Score, b.Score)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	s := newScorer(t)

	// A weak single indicator plus a heavy conflict stack drives the raw
	// score below zero; the result must clamp at zero.
	res := s.Evaluate(&market.AssetBundle{
		Trend: &market.TrendAlignment{DailyTrend: "uptrend"},
		Snapshot: &market.IndicatorSnapshot{
			Price: 90,
			RSI14: market.Float(95),
			EMA20: market.Float(95),
			EMA50: market.Float(100),
			ADX:   &market.ADX{Value: 10},
		},
	})
	if res.Score < 0 {
		t.Errorf("score must clamp at zero, got %.2f", res.Score)
	}
}

func TestLabelLadder(t *testing.T) {
	cases := []struct {
		coverage float64
		score    float64
		want     Label
	}{
		{80, 160, LabelExcellent},
		{80, 125, LabelVeryGood},
		{80, 95, LabelGood},
		{80, 60, LabelFair},
		{80, 30, LabelPoor},
		{80, 10, LabelVeryPoor},
		{40, 160, LabelGood},     // ceiling
		{60, 160, LabelVeryGood}, // ceiling
		{20, 160, LabelFair},     // ceiling
		{20, 10, LabelVeryPoor},  // ladder below ceiling
	}
	for _, tc := range cases {
		if got := labelFor(tc.coverage, tc.score); got != tc.want {
			t.Errorf("labelFor(%.0f, %.0f) = %q, want %q", tc.coverage, tc.score, got, tc.want)
		}
	}
}

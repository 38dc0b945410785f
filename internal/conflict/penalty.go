// Package conflict detects structural disagreements inside one asset's
// data bundle. Each rule is all-or-nothing: it either fires with its
// configured magnitude or stays silent. Rules never fail a call; missing
// data simply keeps a rule silent.
package conflict

import (
	"fmt"
	"math"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/market"
)

// Result is the aggregate of all triggered conflict rules
type Result struct {
	Penalty         float64  `json:"penalty"`
	Reasons         []string `json:"reasons"`
	MajorMismatches int      `json:"major_mismatches"`
}

// Calculator applies the six structural conflict rules
type Calculator struct {
	cfg config.ConflictConfig
}

// NewCalculator creates a calculator with the given rule configuration
func NewCalculator(cfg config.ConflictConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Evaluate runs every rule against the bundle and sums the triggered
// penalties. MajorMismatches counts only rules marked major (trend
// structure and near liquidation).
func (c *Calculator) Evaluate(bundle *market.AssetBundle) Result {
	res := Result{Reasons: []string{}}
	if bundle == nil {
		return res
	}

	c.trendStructureRule(bundle, &res)
	c.volumeDeltaRule(bundle, &res)
	c.regimeRule(bundle, &res)
	c.liquidationRule(bundle, &res)
	c.neutralMomentumRule(bundle, &res)
	c.btcCouplingRule(bundle, &res)

	return res
}

// trendStructureRule fires when the labeled daily trend disagrees with the
// price/EMA stack or with Aroon dominance. This is a major mismatch.
func (c *Calculator) trendStructureRule(bundle *market.AssetBundle, res *Result) {
	trend := bundle.TrendFor()
	snap := bundle.Snapshot
	if trend == nil || snap == nil {
		return
	}
	if trend.DailyTrend != "uptrend" && trend.DailyTrend != "downtrend" {
		return
	}

	conflicted := false
	if snap.EMA20 != nil && snap.EMA50 != nil && market.Finite(*snap.EMA20) && market.Finite(*snap.EMA50) {
		bearishStack := snap.Price < *snap.EMA20 && *snap.EMA20 < *snap.EMA50
		bullishStack := snap.Price > *snap.EMA20 && *snap.EMA20 > *snap.EMA50
		if trend.DailyTrend == "uptrend" && bearishStack {
			conflicted = true
		}
		if trend.DailyTrend == "downtrend" && bullishStack {
			conflicted = true
		}
	}
	if snap.Aroon != nil {
		if trend.DailyTrend == "uptrend" && snap.Aroon.Down > snap.Aroon.Up {
			conflicted = true
		}
		if trend.DailyTrend == "downtrend" && snap.Aroon.Up > snap.Aroon.Down {
			conflicted = true
		}
	}

	if conflicted {
		res.Penalty += c.cfg.TrendStructurePenalty
		res.Reasons = append(res.Reasons, "Trend×EMA×Aroon conflict")
		res.MajorMismatches++
	}
}

// volumeDeltaRule fires on an invalid volume confirmation, or failing that,
// on a net delta whose sign opposes the MACD histogram
func (c *Calculator) volumeDeltaRule(bundle *market.AssetBundle, res *Result) {
	if bundle.Context == nil || bundle.Context.Volume == nil {
		return
	}
	vol := bundle.Context.Volume

	if vol.VolumeConfirmed != nil && !*vol.VolumeConfirmed {
		res.Penalty += c.cfg.VolumeInvalidPenalty
		res.Reasons = append(res.Reasons, "volume confirmation invalid")
		return
	}

	if vol.NetDelta != nil && market.Finite(*vol.NetDelta) &&
		bundle.Snapshot != nil && bundle.Snapshot.MACD != nil {
		hist := bundle.Snapshot.MACD.Histogram
		if *vol.NetDelta*hist < 0 {
			res.Penalty += c.cfg.DeltaMACDPenalty
			res.Reasons = append(res.Reasons, "net delta opposes MACD histogram")
		}
	}
}

// regimeRule fires on a choppy ADX reading, or failing that, on a trending
// ADX with a collapsed Bollinger width
func (c *Calculator) regimeRule(bundle *market.AssetBundle, res *Result) {
	snap := bundle.Snapshot
	if snap == nil || snap.ADX == nil || !market.Finite(snap.ADX.Value) {
		return
	}
	if snap.ADX.Value < c.cfg.ADXChoppyMax {
		res.Penalty += c.cfg.ChoppyADXPenalty
		res.Reasons = append(res.Reasons, fmt.Sprintf("choppy market (ADX %.1f < %.0f)", snap.ADX.Value, c.cfg.ADXChoppyMax))
		return
	}
	if snap.Bollinger != nil && snap.Bollinger.WidthPercent() < c.cfg.BBWidthSidewaysMax {
		res.Penalty += c.cfg.SidewaysPenalty
		res.Reasons = append(res.Reasons, "sideways, no volume")
	}
}

// liquidationRule fires when the nearest liquidation cluster sits too close
// to price. Inside the near threshold this is a major mismatch.
func (c *Calculator) liquidationRule(bundle *market.AssetBundle, res *Result) {
	if bundle.Context == nil || bundle.Context.Futures == nil {
		return
	}
	dist := bundle.Context.Futures.LiquidationDistancePct
	if dist == nil || !market.Finite(*dist) {
		return
	}
	if *dist < c.cfg.LiquidationNearPct {
		res.Penalty += c.cfg.LiquidationNearPenalty
		res.Reasons = append(res.Reasons, fmt.Sprintf("liquidation cluster within %.1f%%", c.cfg.LiquidationNearPct))
		res.MajorMismatches++
		return
	}
	if *dist < c.cfg.LiquidationWarnPct {
		res.Penalty += c.cfg.LiquidationWarnPenalty
		res.Reasons = append(res.Reasons, fmt.Sprintf("liquidation cluster within %.1f%%", c.cfg.LiquidationWarnPct))
	}
}

// neutralMomentumRule fires when RSI is dead-neutral and the MACD histogram
// is flat: there is no momentum signal to act on
func (c *Calculator) neutralMomentumRule(bundle *market.AssetBundle, res *Result) {
	snap := bundle.Snapshot
	if snap == nil || snap.RSI14 == nil || snap.MACD == nil {
		return
	}
	rsi := *snap.RSI14
	if !market.FiniteIn(rsi, 0, 100) {
		return
	}
	if rsi >= 40 && rsi <= 60 && math.Abs(snap.MACD.Histogram) < c.cfg.FlatHistogramEps {
		res.Penalty += c.cfg.NeutralMomentumPenalty
		res.Reasons = append(res.Reasons, "neutral RSI with flat MACD histogram")
	}
}

// btcCouplingRule fires a half-weight penalty when the asset is strongly
// coupled to BTC, and a shock-regime penalty when the Bollinger-width
// volatility proxy blows out
func (c *Calculator) btcCouplingRule(bundle *market.AssetBundle, res *Result) {
	if bundle.Context != nil && bundle.Context.Futures != nil {
		corr := bundle.Context.Futures.BTCCorrelation7d
		if corr != nil && market.Finite(*corr) && math.Abs(*corr) >= c.cfg.BTCCorrThreshold {
			res.Penalty += c.cfg.BTCCoupledPenalty * 0.5
			res.Reasons = append(res.Reasons, fmt.Sprintf("BTC-coupled (|7d corr| %.2f)", math.Abs(*corr)))
		}
	}
	if bundle.Snapshot != nil && bundle.Snapshot.Bollinger != nil {
		if bundle.Snapshot.Bollinger.WidthPercent() > c.cfg.ShockWidthPct {
			res.Penalty += c.cfg.ShockRegimePenalty
			res.Reasons = append(res.Reasons, "shock regime")
		}
	}
}

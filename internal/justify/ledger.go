// Package justify accumulates weighted supporting and opposing evidence
// for a candidate trade direction. Opposing findings are recorded as
// contradictions and never feed the supporting score; their aggregate
// severity degrades the final confidence instead.
package justify

import (
	"fmt"
	"math"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/market"
)

// Direction is the candidate trade direction being justified
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// opposite returns the other direction
func (d Direction) opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Impact grades how decisive a single evidence item is
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

func (i Impact) factor() float64 {
	switch i {
	case ImpactHigh:
		return 1.5
	case ImpactLow:
		return 0.6
	default:
		return 1.0
	}
}

// Severity is the aggregate contradiction risk level
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// EvidenceItem is one weighted supporting finding
type EvidenceItem struct {
	Name            string  `json:"name"`
	Weight          float64 `json:"weight"`
	Category        string  `json:"category"`
	Impact          Impact  `json:"impact"`
	Description     string  `json:"description"`
	IsRedundant     bool    `json:"is_redundant"`
	RedundancyGroup string  `json:"redundancy_group,omitempty"`
}

// Contradiction is one finding that opposes the candidate direction
type Contradiction struct {
	Type          string  `json:"type"`
	Description   string  `json:"description"`
	SeverityScore float64 `json:"severity_score"`
}

// Result is the full justification outcome for one direction
type Result struct {
	Direction          Direction       `json:"direction"`
	BullishScore       float64         `json:"bullish_score"`
	BearishScore       float64         `json:"bearish_score"`
	UniqueSupporting   int             `json:"unique_supporting"`
	UniqueOpposing     int             `json:"unique_opposing"`
	Evidence           []EvidenceItem  `json:"evidence"`
	Contradictions     []Contradiction `json:"contradictions"`
	RedundantGroups    []string        `json:"redundant_groups"`
	QualityRatio       float64         `json:"quality_ratio"`
	ConflictSeverity   Severity        `json:"conflict_severity"`
	ConflictScore      float64         `json:"conflict_score"`
	BaseConfidence     float64         `json:"base_confidence"`
	AdjustedConfidence float64         `json:"adjusted_confidence"`
	RedundancyPenalty  float64         `json:"redundancy_penalty"`
}

const groupPricePosition = "price-position"

// aroonEMAType marks the contradiction that carries its own severity rule
const aroonEMAType = "aroon_ema_conflict"

// finding is one classified check before accumulation
type finding struct {
	name        string
	category    string
	impact      Impact
	weight      float64 // post-modulation
	signal      Direction
	description string
	group       string
}

// Ledger classifies the evidence checks and folds them into a
// conflict-adjusted confidence
type Ledger struct {
	cfg config.JustifyConfig
}

// NewLedger creates a ledger with the given weights
func NewLedger(cfg config.JustifyConfig) *Ledger {
	return &Ledger{cfg: cfg}
}

// Justify evaluates every check against the bundle for the candidate
// direction. A missing snapshot yields a zeroed result rather than an
// error.
func (l *Ledger) Justify(direction Direction, bundle *market.AssetBundle) Result {
	res := Result{
		Direction:        direction,
		ConflictSeverity: SeverityLow,
		Evidence:         []EvidenceItem{},
		Contradictions:   []Contradiction{},
		RedundantGroups:  []string{},
	}
	if bundle == nil || bundle.Snapshot == nil {
		return res
	}

	findings := l.collect(direction, bundle)
	supportScore, opposeScore := l.accumulate(direction, findings, &res)

	if supportScore+opposeScore > 0 {
		res.QualityRatio = supportScore / (supportScore + opposeScore)
	}
	res.BaseConfidence = res.QualityRatio

	res.ConflictSeverity = l.severityFor(res.ConflictScore)
	factor := l.conflictFactor(res.ConflictSeverity, res.Contradictions)

	res.AdjustedConfidence = market.Clamp(
		res.BaseConfidence*factor*(1-res.RedundancyPenalty*l.cfg.RedundancyDiscount), 0, 1)

	if direction == DirectionLong {
		res.BullishScore, res.BearishScore = supportScore, opposeScore
	} else {
		res.BullishScore, res.BearishScore = opposeScore, supportScore
	}
	return res
}

// accumulate splits findings into supporting evidence and contradictions,
// resolving the price-position redundancy group so only its best member
// contributes score
func (l *Ledger) accumulate(direction Direction, findings []finding, res *Result) (supportScore, opposeScore float64) {
	var groupMembers []finding

	for _, f := range findings {
		switch f.signal {
		case direction:
			if f.group == groupPricePosition {
				groupMembers = append(groupMembers, f)
				continue
			}
			supportScore += f.weight
			res.Evidence = append(res.Evidence, f.evidence(false))
			res.UniqueSupporting++
		case direction.opposite():
			sev := f.weight * f.impact.factor()
			res.Contradictions = append(res.Contradictions, Contradiction{
				Type:          f.name,
				Description:   f.description,
				SeverityScore: sev,
			})
			res.ConflictScore += sev
			res.UniqueOpposing++
			opposeScore += f.weight
		}
	}

	if len(groupMembers) > 0 {
		best := 0
		for i, f := range groupMembers {
			if f.weight > groupMembers[best].weight {
				best = i
			}
		}
		supportScore += groupMembers[best].weight
		res.UniqueSupporting++
		for i, f := range groupMembers {
			res.Evidence = append(res.Evidence, f.evidence(i != best))
		}
		if len(groupMembers) > 1 {
			res.RedundantGroups = append(res.RedundantGroups, groupPricePosition)
			res.RedundancyPenalty = float64(len(res.RedundantGroups))
		}
	}
	return supportScore, opposeScore
}

func (f finding) evidence(redundant bool) EvidenceItem {
	return EvidenceItem{
		Name:            f.name,
		Weight:          f.weight,
		Category:        f.category,
		Impact:          f.impact,
		Description:     f.description,
		IsRedundant:     redundant,
		RedundancyGroup: f.group,
	}
}

// severityFor buckets the aggregate contradiction score
func (l *Ledger) severityFor(total float64) Severity {
	switch {
	case total >= l.cfg.CriticalAt:
		return SeverityCritical
	case total >= l.cfg.HighAt:
		return SeverityHigh
	case total >= l.cfg.MediumAt:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// conflictFactor maps the severity to its confidence multiplier. A MEDIUM
// severity that includes an Aroon/EMA structural conflict uses the
// critical factor; this is an intentional business rule, not a bug.
func (l *Ledger) conflictFactor(sev Severity, contradictions []Contradiction) float64 {
	switch sev {
	case SeverityCritical:
		return l.cfg.CriticalFactor
	case SeverityHigh:
		return l.cfg.HighFactor
	case SeverityMedium:
		for _, c := range contradictions {
			if c.Type == aroonEMAType {
				return l.cfg.CriticalFactor
			}
		}
		return l.cfg.MediumFactor
	default:
		return 1.0
	}
}

// modulation returns the context-dependent weight multipliers for each
// category, derived from the snapshot's regime classification
func (l *Ledger) modulation(snap *market.IndicatorSnapshot) (trendFactor, oscFactor, divFactor float64) {
	trendFactor, oscFactor, divFactor = 1, 1, 1
	if snap.Regime == nil {
		return
	}
	switch snap.Regime.Regime {
	case "trending":
		trendFactor = l.cfg.TrendingBoost
		oscFactor = l.cfg.OscillatorDamp
	case "ranging", "choppy":
		trendFactor = l.cfg.OscillatorDamp
		oscFactor = l.cfg.TrendingBoost
	}
	if snap.Regime.Volatility == "high" {
		divFactor = l.cfg.DivergenceDamp
	}
	return
}

// collect runs every check and returns the classified findings. Checks
// with missing inputs stay silent.
func (l *Ledger) collect(direction Direction, bundle *market.AssetBundle) []finding {
	snap := bundle.Snapshot
	trendFactor, oscFactor, divFactor := l.modulation(snap)

	var out []finding
	add := func(f finding) {
		switch f.category {
		case "trend", "momentum":
			f.weight *= trendFactor
		case "oscillator":
			f.weight *= oscFactor
		case "divergence":
			f.weight *= divFactor
		}
		out = append(out, f)
	}

	l.macdChecks(snap, add)
	l.pricePositionChecks(snap, add)
	l.trendChecks(snap, add)
	l.oscillatorChecks(snap, add)
	l.aroonEMACheck(direction, snap, add)
	l.divergenceChecks(snap, add)
	l.structureChecks(snap, add)
	l.fundingCheck(bundle, add)

	return out
}

func (l *Ledger) macdChecks(snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.MACD == nil || !market.Finite(snap.MACD.Histogram) {
		return
	}
	if dir, ok := signFor(snap.MACD.Histogram, 1e-9); ok {
		add(finding{
			name:        "macd_histogram",
			category:    "momentum",
			impact:      ImpactHigh,
			weight:      l.cfg.MACDHistWeight,
			signal:      dir,
			description: fmt.Sprintf("MACD histogram %.4f", snap.MACD.Histogram),
		})
	}
	if market.Finite(snap.MACD.Line) && market.Finite(snap.MACD.Signal) {
		if dir, ok := signFor(snap.MACD.Line-snap.MACD.Signal, 1e-9); ok {
			add(finding{
				name:        "macd_crossover",
				category:    "momentum",
				impact:      ImpactMedium,
				weight:      l.cfg.MACDCrossWeight,
				signal:      dir,
				description: "MACD line vs signal line",
			})
		}
	}
}

// pricePositionChecks form the price-position redundancy group: all four
// answer the same underlying question of where price sits relative to a
// reference level
func (l *Ledger) pricePositionChecks(snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.Price <= 0 {
		return
	}
	refs := []struct {
		name   string
		level  *float64
		weight float64
	}{
		{"price_vs_ema8", snap.EMA8, l.cfg.PriceEMA8Weight},
		{"price_vs_ema20", snap.EMA20, l.cfg.PriceEMA20Weight},
		{"price_vs_vwap", snap.VWAP, l.cfg.PriceVWAPWeight},
		{"price_vs_bb_mid", bbMid(snap.Bollinger), l.cfg.PriceBBMidWeight},
	}
	for _, ref := range refs {
		if ref.level == nil || !market.Finite(*ref.level) || *ref.level <= 0 {
			continue
		}
		if dir, ok := signFor(snap.Price-*ref.level, 0); ok {
			add(finding{
				name:        ref.name,
				category:    "trend",
				impact:      ImpactMedium,
				weight:      ref.weight,
				signal:      dir,
				description: fmt.Sprintf("price %.4f vs reference %.4f", snap.Price, *ref.level),
				group:       groupPricePosition,
			})
		}
	}
}

func bbMid(bb *market.BollingerBands) *float64 {
	if bb == nil {
		return nil
	}
	return &bb.Middle
}

func (l *Ledger) trendChecks(snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.EMA20 != nil && snap.EMA50 != nil &&
		market.Finite(*snap.EMA20) && market.Finite(*snap.EMA50) {
		if dir, ok := signFor(*snap.EMA20-*snap.EMA50, 0); ok {
			add(finding{
				name:        "ema_structure",
				category:    "trend",
				impact:      ImpactHigh,
				weight:      l.cfg.EMAStackWeight,
				signal:      dir,
				description: "EMA20 vs EMA50 structural alignment",
			})
		}
	}

	if snap.ADX == nil || !market.Finite(snap.ADX.Value) {
		return
	}
	if dir, ok := signFor(snap.ADX.PlusDI-snap.ADX.MinusDI, 0); ok {
		if snap.ADX.Value >= 25 {
			add(finding{
				name:        "adx_strong_trend",
				category:    "trend",
				impact:      ImpactHigh,
				weight:      l.cfg.ADXTrendWeight,
				signal:      dir,
				description: fmt.Sprintf("ADX %.1f trending", snap.ADX.Value),
			})
		}
		add(finding{
			name:        "di_dominance",
			category:    "trend",
			impact:      ImpactMedium,
			weight:      l.cfg.DIDominanceWeight,
			signal:      dir,
			description: "+DI vs -DI dominance",
		})
	}
}

// oscillatorChecks cover the dual and triple overbought/oversold
// combinations. Overbought readings argue for shorts, oversold for longs.
func (l *Ledger) oscillatorChecks(snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.RSI14 == nil || snap.Stochastic == nil {
		return
	}
	rsi, k := *snap.RSI14, snap.Stochastic.K
	if !market.FiniteIn(rsi, 0, 100) || !market.FiniteIn(k, 0, 100) {
		return
	}

	overbought := rsi >= l.cfg.OverboughtRSI && k >= l.cfg.OverboughtStoch
	oversold := rsi <= l.cfg.OversoldRSI && k <= l.cfg.OversoldStoch
	if !overbought && !oversold {
		return
	}

	dir := DirectionShort
	desc := "RSI and stochastic both overbought"
	if oversold {
		dir = DirectionLong
		desc = "RSI and stochastic both oversold"
	}
	add(finding{
		name:        "dual_overbought_oversold",
		category:    "oscillator",
		impact:      ImpactHigh,
		weight:      l.cfg.DualOBOSWeight,
		signal:      dir,
		description: desc,
	})

	if snap.WilliamsR == nil || !market.Finite(*snap.WilliamsR) {
		return
	}
	wr := *snap.WilliamsR
	if (overbought && wr >= l.cfg.OverboughtWilliams) || (oversold && wr <= l.cfg.OversoldWilliams) {
		add(finding{
			name:        "triple_overbought_oversold",
			category:    "oscillator",
			impact:      ImpactHigh,
			weight:      l.cfg.TripleOBOSWeight,
			signal:      dir,
			description: "RSI, stochastic and Williams %R agree on exhaustion",
		})
	}
}

// aroonEMACheck emits a structural contradiction when Aroon dominance and
// the EMA stack disagree. The disagreement undermines whichever direction
// is being justified, so it always lands as a contradiction.
func (l *Ledger) aroonEMACheck(direction Direction, snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.Aroon == nil || snap.EMA20 == nil || snap.EMA50 == nil {
		return
	}
	if !market.FiniteIn(snap.Aroon.Up, 0, 100) || !market.FiniteIn(snap.Aroon.Down, 0, 100) ||
		!market.Finite(*snap.EMA20) || !market.Finite(*snap.EMA50) {
		return
	}
	aroonDir, aroonOK := signFor(snap.Aroon.Up-snap.Aroon.Down, 0)
	emaDir, emaOK := signFor(*snap.EMA20-*snap.EMA50, 0)
	if !aroonOK || !emaOK || aroonDir == emaDir {
		return
	}
	add(finding{
		name:        aroonEMAType,
		category:    "structure",
		impact:      ImpactMedium,
		weight:      l.cfg.AroonEMAWeight,
		signal:      direction.opposite(),
		description: "Aroon dominance contradicts EMA structure",
	})
}

func (l *Ledger) divergenceChecks(snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.Divergence == nil {
		return
	}
	checks := []struct {
		name   string
		value  string
		weight float64
		impact Impact
	}{
		{"macd_divergence", snap.Divergence.MACD, l.cfg.MACDDivWeight, ImpactMedium},
		{"rsi_divergence", snap.Divergence.RSI, l.cfg.RSIDivWeight, ImpactMedium},
		{"volume_price_divergence", snap.Divergence.Volume, l.cfg.VolumeDivWeight, ImpactMedium},
		{"obv_divergence", snap.Divergence.OBV, l.cfg.OBVDivWeight, ImpactLow},
	}
	for _, c := range checks {
		var dir Direction
		switch c.value {
		case "bullish":
			dir = DirectionLong
		case "bearish":
			dir = DirectionShort
		default:
			continue
		}
		add(finding{
			name:        c.name,
			category:    "divergence",
			impact:      c.impact,
			weight:      c.weight,
			signal:      dir,
			description: c.value + " divergence",
		})
	}
}

// structureChecks cover support/resistance proximity: price sitting on
// support argues for longs, pressing resistance argues for shorts
func (l *Ledger) structureChecks(snap *market.IndicatorSnapshot, add func(finding)) {
	if snap.Price <= 0 {
		return
	}
	if dist, ok := nearestDistancePct(snap.Price, snap.SupportLevels); ok && dist <= l.cfg.SRProximityPct {
		add(finding{
			name:        "support_proximity",
			category:    "structure",
			impact:      ImpactMedium,
			weight:      l.cfg.SRProximityWeight,
			signal:      DirectionLong,
			description: fmt.Sprintf("price within %.2f%% of support", dist),
		})
	}
	if dist, ok := nearestDistancePct(snap.Price, snap.ResistanceLevels); ok && dist <= l.cfg.SRProximityPct {
		add(finding{
			name:        "resistance_proximity",
			category:    "structure",
			impact:      ImpactMedium,
			weight:      l.cfg.SRProximityWeight,
			signal:      DirectionShort,
			description: fmt.Sprintf("price within %.2f%% of resistance", dist),
		})
	}
}

// fundingCheck is contrarian: extreme positive funding (crowded longs)
// argues for shorts and extreme negative funding for longs
func (l *Ledger) fundingCheck(bundle *market.AssetBundle, add func(finding)) {
	if bundle.Context == nil || bundle.Context.Futures == nil {
		return
	}
	funding := bundle.Context.Futures.FundingRate
	if funding == nil || !market.Finite(*funding) {
		return
	}
	switch {
	case *funding >= l.cfg.FundingExtreme:
		add(finding{
			name:        "funding_extreme",
			category:    "sentiment",
			impact:      ImpactMedium,
			weight:      l.cfg.FundingWeight,
			signal:      DirectionShort,
			description: "extreme positive funding rate",
		})
	case *funding <= -l.cfg.FundingExtreme:
		add(finding{
			name:        "funding_extreme",
			category:    "sentiment",
			impact:      ImpactMedium,
			weight:      l.cfg.FundingWeight,
			signal:      DirectionLong,
			description: "extreme negative funding rate",
		})
	}
}

// signFor maps a signed value to a direction; magnitudes at or below eps
// are silent
func signFor(v, eps float64) (Direction, bool) {
	if !market.Finite(v) || math.Abs(v) <= eps {
		return "", false
	}
	if v > 0 {
		return DirectionLong, true
	}
	return DirectionShort, true
}

// nearestDistancePct returns the percentage distance from price to the
// closest valid level
func nearestDistancePct(price float64, levels []float64) (float64, bool) {
	nearest := math.Inf(1)
	for _, level := range levels {
		if !market.Finite(level) || level <= 0 {
			continue
		}
		dist := math.Abs(price-level) / price * 100
		if dist < nearest {
			nearest = dist
		}
	}
	if math.IsInf(nearest, 1) {
		return 0, false
	}
	return nearest, true
}

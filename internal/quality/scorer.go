// Package quality scores one asset's indicator coverage and reliability.
// Each check validates its numeric domain before awarding points; invalid
// values become weaknesses, never failures. The final label comes from a
// two-dimensional lookup of coverage and score, so thin coverage caps the
// achievable rating no matter how well the few present indicators score.
package quality

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/conflict"
	"crypto-signal-ranker/internal/market"
)

// Label is the categorical reliability rating
type Label string

const (
	LabelVeryPoor  Label = "very poor"
	LabelPoor      Label = "poor"
	LabelFair      Label = "fair"
	LabelGood      Label = "good"
	LabelVeryGood  Label = "very good"
	LabelExcellent Label = "excellent"
)

// rank orders labels for the coverage cap lookup
func (l Label) rank() int {
	switch l {
	case LabelVeryPoor:
		return 0
	case LabelPoor:
		return 1
	case LabelFair:
		return 2
	case LabelGood:
		return 3
	case LabelVeryGood:
		return 4
	case LabelExcellent:
		return 5
	}
	return 0
}

// Score is the quality assessment of one asset's indicator bundle
type Score struct {
	Symbol          string   `json:"symbol"`
	Score           float64  `json:"score"`
	IndicatorsCount int      `json:"indicators_count"`
	CoveragePct     float64  `json:"coverage_pct"`
	Quality         Label    `json:"quality"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
}

// Scorer evaluates indicator bundles. It folds in the conflict calculator
// result and any registered score adjusters.
type Scorer struct {
	cfg         config.QualityConfig
	conflicts   *conflict.Calculator
	influencers []ScoreAdjuster
	rewarders   []ScoreAdjuster
	log         zerolog.Logger
}

// NewScorer creates a scorer. Adjusters are registered separately.
func NewScorer(cfg config.QualityConfig, conflicts *conflict.Calculator, log zerolog.Logger) *Scorer {
	return &Scorer{
		cfg:       cfg,
		conflicts: conflicts,
		log:       log.With().Str("component", "quality").Logger(),
	}
}

// RegisterInfluence adds an influence adjuster. Influence adjusters may
// report major mismatches, which trigger a global multiplicative score cut.
func (s *Scorer) RegisterInfluence(adj ScoreAdjuster) {
	s.influencers = append(s.influencers, adj)
}

// RegisterReward adds a reward adjuster; only its bonus is applied
func (s *Scorer) RegisterReward(adj ScoreAdjuster) {
	s.rewarders = append(s.rewarders, adj)
}

// scoreState accumulates check results
type scoreState struct {
	points     float64
	count      int
	strengths  []string
	weaknesses []string
}

func (st *scoreState) award(points float64) {
	st.points += points
	st.count++
}

func (st *scoreState) strength(msg string) { st.strengths = append(st.strengths, msg) }
func (st *scoreState) weakness(msg string) { st.weaknesses = append(st.weaknesses, msg) }

// Evaluate scores one asset. It never fails: an empty bundle yields the
// canonical zero result.
func (s *Scorer) Evaluate(bundle *market.AssetBundle) Score {
	st := &scoreState{}
	symbol := ""
	if bundle != nil {
		symbol = bundle.Symbol
		s.runChecks(bundle, st)
	}

	if st.count == 0 {
		return Score{
			Symbol:     symbol,
			Quality:    LabelPoor,
			Strengths:  []string{},
			Weaknesses: []string{"No indicators available"},
		}
	}

	score := st.points

	// Structural conflicts reduce the score and surface as weaknesses.
	conflicts := s.conflicts.Evaluate(bundle)
	score -= conflicts.Penalty
	st.weaknesses = append(st.weaknesses, conflicts.Reasons...)

	score = s.applyInfluence(bundle, score, st)
	score = s.applyRewards(bundle, score, st)

	if score < 0 {
		score = 0
	}

	coveragePct := market.Clamp(float64(st.count)/float64(s.cfg.CoverageDenominator)*100, 0, 100)

	return Score{
		Symbol:          symbol,
		Score:           score,
		IndicatorsCount: st.count,
		CoveragePct:     coveragePct,
		Quality:         labelFor(coveragePct, score),
		Strengths:       st.strengths,
		Weaknesses:      st.weaknesses,
	}
}

// applyInfluence folds in influence adjusters. Failures are logged and
// skipped; a reported major mismatch cuts the whole score once.
func (s *Scorer) applyInfluence(bundle *market.AssetBundle, score float64, st *scoreState) float64 {
	majors := 0
	for _, adj := range s.influencers {
		res, err := adj.Adjust(bundle)
		if err != nil {
			s.log.Warn().Err(err).Str("adjuster", adj.Name()).Msg("influence adjuster failed, skipping")
			continue
		}
		score += res.Bonus - res.Penalty
		majors += res.MajorMismatches
		if res.MajorMismatches > 0 || res.Penalty > res.Bonus {
			st.weaknesses = append(st.weaknesses, res.Notes...)
		} else {
			st.strengths = append(st.strengths, res.Notes...)
		}
	}
	if majors > 0 {
		score *= s.cfg.InfluenceMismatchCut
	}
	return score
}

// applyRewards folds in reward adjusters; only their bonuses count
func (s *Scorer) applyRewards(bundle *market.AssetBundle, score float64, st *scoreState) float64 {
	for _, adj := range s.rewarders {
		res, err := adj.Adjust(bundle)
		if err != nil {
			s.log.Warn().Err(err).Str("adjuster", adj.Name()).Msg("reward adjuster failed, skipping")
			continue
		}
		score += res.Bonus
		st.strengths = append(st.strengths, res.Notes...)
	}
	return score
}

// runChecks executes every base check against the bundle
func (s *Scorer) runChecks(bundle *market.AssetBundle, st *scoreState) {
	snap := bundle.Snapshot
	if snap != nil {
		s.checkRSI(snap, st)
		s.checkMACD(snap, st)
		s.checkBollinger(snap, st)
		s.checkEMA(snap, st)
		s.checkADX(snap, st)
		s.checkAroon(snap, st)
		s.checkSupportResistance(snap, st)
		s.checkFibonacci(snap, st)
		s.checkDivergence(snap, st)
	}
	s.checkTrendAlignment(bundle.TrendFor(), st)
	if bundle.Context != nil {
		s.checkVolume(bundle.Context.Volume, st)
		s.checkOrderBook(bundle.Context.OrderBook, st)
		s.checkFutures(bundle.Context.Futures, st)
	}
}

// checkRSI scores RSI for stability, not momentum: the 40-60 neutral zone
// is the most reliable reading and scores highest, while the classic
// overbought/oversold action zones score low because of reversal risk.
func (s *Scorer) checkRSI(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.RSI14 == nil {
		return
	}
	rsi := *snap.RSI14
	if !market.FiniteIn(rsi, 0, 100) {
		st.weakness("invalid RSI value")
		return
	}
	switch {
	case rsi >= 40 && rsi <= 60:
		st.award(s.cfg.RSIMax)
		st.strength("RSI in optimal neutral zone")
	case rsi >= 30 && rsi <= 70:
		st.award(s.cfg.RSIMax * 0.65)
		st.strength("RSI stable")
	case rsi >= 20 && rsi <= 80:
		st.award(s.cfg.RSIMax * 0.35)
		st.weakness(fmt.Sprintf("RSI %.0f in reversal-risk zone", rsi))
	default:
		st.award(s.cfg.RSIMax * 0.1)
		st.weakness(fmt.Sprintf("RSI %.0f extreme", rsi))
	}
}

func (s *Scorer) checkMACD(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.MACD == nil {
		return
	}
	hist := snap.MACD.Histogram
	if !market.Finite(hist) || !market.Finite(snap.MACD.Line) || !market.Finite(snap.MACD.Signal) {
		st.weakness("invalid MACD values")
		return
	}
	mag := math.Abs(hist)
	switch {
	case mag >= 0.05:
		st.award(s.cfg.MACDMax)
		st.strength("strong MACD histogram momentum")
	case mag >= 0.01:
		st.award(s.cfg.MACDMax * 0.75)
		st.strength("MACD histogram momentum")
	case mag >= 0.001:
		st.award(s.cfg.MACDMax * 0.5)
	default:
		st.award(s.cfg.MACDMax * 0.25)
		st.weakness("flat MACD histogram")
	}
}

func (s *Scorer) checkBollinger(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.Bollinger == nil {
		return
	}
	bb := snap.Bollinger
	if !market.Finite(bb.Upper) || !market.Finite(bb.Middle) || !market.Finite(bb.Lower) ||
		bb.Middle <= 0 || bb.Upper < bb.Lower {
		st.weakness("invalid Bollinger Bands")
		return
	}
	width := bb.WidthPercent()
	switch {
	case width >= 2 && width <= 6:
		st.award(s.cfg.BBWidthMax)
		st.strength("healthy Bollinger width")
	case width >= 1 && width <= 8:
		st.award(s.cfg.BBWidthMax * 0.6)
	case width < 1:
		st.award(s.cfg.BBWidthMax * 0.2)
		st.weakness("compressed Bollinger Bands")
	default:
		st.award(s.cfg.BBWidthMax * 0.2)
		st.weakness("Bollinger width blowout")
	}
}

func (s *Scorer) checkEMA(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.EMA20 == nil || snap.EMA50 == nil {
		return
	}
	ema20, ema50 := *snap.EMA20, *snap.EMA50
	if !market.Finite(ema20) || !market.Finite(ema50) || ema20 <= 0 || ema50 <= 0 {
		st.weakness("invalid EMA values")
		return
	}
	bullish := snap.Price > ema20 && ema20 > ema50
	bearish := snap.Price < ema20 && ema20 < ema50
	switch {
	case bullish || bearish:
		st.award(s.cfg.EMAMax)
		st.strength("clean EMA alignment")
	case (snap.Price > ema20) == (ema20 > ema50):
		st.award(s.cfg.EMAMax * 0.5)
	default:
		st.award(s.cfg.EMAMax * 0.25)
		st.weakness("mixed EMA structure")
	}
}

func (s *Scorer) checkADX(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.ADX == nil {
		return
	}
	adx := snap.ADX.Value
	if !market.FiniteIn(adx, 0, 100) {
		st.weakness("invalid ADX value")
		return
	}
	switch {
	case adx >= 25 && adx <= 50:
		st.award(s.cfg.ADXMax)
		st.strength(fmt.Sprintf("strong trend (ADX %.0f)", adx))
	case adx > 50:
		st.award(s.cfg.ADXMax * 0.7)
		st.weakness("overextended trend")
	case adx >= 20:
		st.award(s.cfg.ADXMax * 0.6)
	default:
		st.award(s.cfg.ADXMax * 0.2)
		st.weakness(fmt.Sprintf("weak trend (ADX %.0f)", adx))
	}
}

func (s *Scorer) checkAroon(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.Aroon == nil {
		return
	}
	up, down := snap.Aroon.Up, snap.Aroon.Down
	if !market.FiniteIn(up, 0, 100) || !market.FiniteIn(down, 0, 100) {
		st.weakness("invalid Aroon values")
		return
	}
	spread := math.Abs(up - down)
	switch {
	case spread >= 50:
		st.award(s.cfg.AroonMax)
		st.strength("decisive Aroon dominance")
	case spread >= 25:
		st.award(s.cfg.AroonMax * 0.6)
	default:
		st.award(s.cfg.AroonMax * 0.3)
	}
}

func (s *Scorer) checkTrendAlignment(trend *market.TrendAlignment, st *scoreState) {
	if trend == nil {
		return
	}
	strength := 0.5
	if trend.Strength != nil && market.FiniteIn(*trend.Strength, 0, 1) {
		strength = *trend.Strength
	}
	switch {
	case trend.Aligned != nil && *trend.Aligned:
		st.award(s.cfg.TrendMax * (0.6 + 0.4*strength))
		st.strength("multi-timeframe trend aligned")
	case (trend.H4Aligned != nil && *trend.H4Aligned) || (trend.H1Aligned != nil && *trend.H1Aligned):
		st.award(s.cfg.TrendMax * 0.4)
	default:
		st.award(s.cfg.TrendMax * 0.2)
		st.weakness("timeframes not aligned")
	}
}

func (s *Scorer) checkVolume(vol *market.VolumeAnalysis, st *scoreState) {
	if vol == nil || vol.VolumeRatio == nil {
		return
	}
	ratio := *vol.VolumeRatio
	if !market.Finite(ratio) || ratio < 0 {
		st.weakness("invalid volume ratio")
		return
	}
	switch {
	case ratio >= 1.5:
		st.award(s.cfg.VolumeMax)
		st.strength(fmt.Sprintf("volume surge (%.1fx average)", ratio))
	case ratio >= 1.0:
		st.award(s.cfg.VolumeMax * 0.6)
	case ratio >= 0.5:
		st.award(s.cfg.VolumeMax * 0.3)
	default:
		st.award(s.cfg.VolumeMax * 0.1)
		st.weakness("thin volume")
	}

	// Small bonuses for the finer-grained volume fields.
	if vol.CVD != nil && market.Finite(*vol.CVD) {
		st.award(s.cfg.CVDBonus)
	}
	if vol.NetDelta != nil && market.Finite(*vol.NetDelta) {
		st.award(s.cfg.NetDeltaBonus)
	}
}

func (s *Scorer) checkOrderBook(ob *market.OrderBookSnapshot, st *scoreState) {
	if ob == nil || ob.Imbalance == nil {
		return
	}
	imb := *ob.Imbalance
	if !market.FiniteIn(imb, -1, 1) {
		st.weakness("invalid order book imbalance")
		return
	}
	switch {
	case math.Abs(imb) >= 0.3:
		st.award(s.cfg.OrderBookMax)
		st.strength("one-sided order book")
	case math.Abs(imb) >= 0.1:
		st.award(s.cfg.OrderBookMax * 0.6)
	default:
		st.award(s.cfg.OrderBookMax * 0.3)
	}
}

func (s *Scorer) checkSupportResistance(snap *market.IndicatorSnapshot, st *scoreState) {
	if len(snap.SupportLevels) == 0 && len(snap.ResistanceLevels) == 0 {
		return
	}
	points := 0.0
	if len(snap.SupportLevels) > 0 {
		points += s.cfg.SRMax * 0.5
	}
	if len(snap.ResistanceLevels) > 0 {
		points += s.cfg.SRMax * 0.5
	}
	st.award(points)
}

func (s *Scorer) checkFibonacci(snap *market.IndicatorSnapshot, st *scoreState) {
	if len(snap.FibonacciLevels) == 0 || snap.Price <= 0 {
		return
	}
	nearest := math.Inf(1)
	for _, level := range snap.FibonacciLevels {
		if !market.Finite(level) || level <= 0 {
			continue
		}
		dist := math.Abs(snap.Price-level) / snap.Price * 100
		if dist < nearest {
			nearest = dist
		}
	}
	if math.IsInf(nearest, 1) {
		st.weakness("invalid Fibonacci levels")
		return
	}
	switch {
	case nearest <= s.cfg.FibProximityPct:
		st.award(s.cfg.FibMax)
		st.strength("price at Fibonacci level")
	case nearest <= s.cfg.FibProximityPct*2:
		st.award(s.cfg.FibMax * 0.5)
	default:
		st.award(s.cfg.FibMax * 0.2)
	}
}

func (s *Scorer) checkFutures(fut *market.FuturesData, st *scoreState) {
	if fut == nil {
		return
	}
	present := 0
	for _, field := range []*float64{
		fut.FundingRate, fut.OpenInterest, fut.LongShortRatio,
		fut.LiquidationDistancePct, fut.PremiumIndex,
	} {
		if field != nil && market.Finite(*field) {
			present++
		}
	}
	if present == 0 {
		return
	}
	st.award(s.cfg.FuturesMax * float64(present) / 5)
	if present >= 4 {
		st.strength("rich derivatives data")
	}
}

func (s *Scorer) checkDivergence(snap *market.IndicatorSnapshot, st *scoreState) {
	if snap.Divergence == nil {
		return
	}
	div := snap.Divergence
	if div.RSI == "" && div.MACD == "" && div.Volume == "" && div.OBV == "" {
		return
	}
	st.award(s.cfg.DivergenceBonus)
	st.strength("divergence detected")
}

// labelFor maps (coverage%, score) to a quality label. The score ladder
// sets the raw label; the coverage bucket caps what is achievable, so high
// scores on thin coverage cannot rate above the bucket ceiling.
func labelFor(coveragePct, score float64) Label {
	var raw Label
	switch {
	case score >= 150:
		raw = LabelExcellent
	case score >= 120:
		raw = LabelVeryGood
	case score >= 90:
		raw = LabelGood
	case score >= 55:
		raw = LabelFair
	case score >= 25:
		raw = LabelPoor
	default:
		raw = LabelVeryPoor
	}

	var ceiling Label
	switch {
	case coveragePct >= 75:
		ceiling = LabelExcellent
	case coveragePct >= 50:
		ceiling = LabelVeryGood
	case coveragePct >= 30:
		ceiling = LabelGood
	default:
		ceiling = LabelFair
	}

	if raw.rank() > ceiling.rank() {
		return ceiling
	}
	return raw
}

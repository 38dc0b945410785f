// Package ranker fans quality scoring across a batch of assets, applies
// the admission gates and contextual adjustments, and produces a
// deterministically ordered candidate list.
package ranker

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/market"
	"crypto-signal-ranker/internal/metrics"
	"crypto-signal-ranker/internal/quality"
)

// Diagnostics carries the per-entry raw observables used by the sort keys
// and surfaced for explanation
type Diagnostics struct {
	M60Pct            *float64 `json:"m60_pct,omitempty"`
	VolumeRatio       *float64 `json:"volume_ratio,omitempty"`
	SRDistPct         *float64 `json:"sr_dist_pct,omitempty"`
	BTC60mAbsPct      *float64 `json:"btc_60m_abs_pct,omitempty"`
	FundingAbsPct     *float64 `json:"funding_abs_pct,omitempty"`
	ConfidencePercent float64  `json:"confidence_percent"`
	PenaltiesApplied  []string `json:"penalties_applied,omitempty"`
}

// Entry is one ranked asset
type Entry struct {
	Symbol              string        `json:"symbol"`
	Rank                int           `json:"rank"`
	Quality             quality.Score `json:"quality"`
	MomentumComposite   float64       `json:"momentum_composite"`
	TrendAlignmentScore float64       `json:"trend_alignment_score"`
	ExternalDataScore   float64       `json:"external_data_score"`
	CompositeScore      float64       `json:"composite_score"`    // 0..1
	AggressivePercent   float64       `json:"aggressive_percent"` // 0..100
	Diagnostics         Diagnostics   `json:"diagnostics"`

	sortKeys [10]float64
}

// Report is the outcome of one ranking batch
type Report struct {
	BatchID             string        `json:"batch_id"`
	TotalProcessed      int           `json:"total_processed"`
	TotalRanked         int           `json:"total_ranked"`
	SkippedNoIndicators int           `json:"skipped_no_indicators"`
	SkippedQuality      int           `json:"skipped_quality"`
	SkippedBTC          int           `json:"skipped_btc"`
	Duration            time.Duration `json:"duration"`
	Entries             []Entry       `json:"entries"`
}

// Ranker runs the batch pipeline
type Ranker struct {
	cfg     config.RankerConfig
	scorer  *quality.Scorer
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewRanker creates a ranker around a quality scorer. mtr may be nil.
func NewRanker(cfg config.RankerConfig, scorer *quality.Scorer, mtr *metrics.Metrics, log zerolog.Logger) *Ranker {
	return &Ranker{
		cfg:     cfg,
		scorer:  scorer,
		metrics: mtr,
		log:     log.With().Str("component", "ranker").Logger(),
	}
}

type outcome struct {
	entry *Entry
	skip  string
}

const (
	skipNoIndicators = "no_indicators"
	skipQuality      = "quality"
	skipBTC          = "btc_move"
)

// Rank scores every bundle concurrently, applies the gates, and returns
// the sorted report. An optional allow-list restricts the batch to the
// named symbols before processing. Unscorable assets are counted, never
// fatal.
func (r *Ranker) Rank(ctx context.Context, bundles []*market.AssetBundle, allowed ...string) Report {
	if len(allowed) > 0 {
		set := make(map[string]bool, len(allowed))
		for _, sym := range allowed {
			set[strings.ToUpper(sym)] = true
		}
		kept := make([]*market.AssetBundle, 0, len(bundles))
		for _, bundle := range bundles {
			if set[strings.ToUpper(bundle.Symbol)] {
				kept = append(kept, bundle)
			}
		}
		bundles = kept
	}

	started := time.Now()
	report := Report{BatchID: uuid.NewString(), TotalProcessed: len(bundles)}

	jobs := make(chan *market.AssetBundle)
	results := make(chan outcome, len(bundles))

	var wg sync.WaitGroup
	workers := r.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.worker(jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for _, bundle := range bundles {
			select {
			case jobs <- bundle:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	var entries []Entry
	for res := range results {
		switch res.skip {
		case "":
			entries = append(entries, *res.entry)
		case skipNoIndicators:
			report.SkippedNoIndicators++
		case skipQuality:
			report.SkippedQuality++
		case skipBTC:
			report.SkippedBTC++
		}
		if r.metrics != nil && res.skip != "" {
			r.metrics.AssetsSkipped.WithLabelValues(res.skip).Inc()
		}
	}

	sortEntries(entries)
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if r.cfg.TopN > 0 && len(entries) > r.cfg.TopN {
		entries = entries[:r.cfg.TopN]
	}

	report.Entries = entries
	report.TotalRanked = len(entries)
	report.Duration = time.Since(started)

	if r.metrics != nil {
		r.metrics.AssetsRanked.Add(float64(report.TotalRanked))
		r.metrics.RankDuration.Observe(report.Duration.Seconds())
	}
	r.log.Info().
		Str("batch_id", report.BatchID).
		Int("processed", report.TotalProcessed).
		Int("ranked", report.TotalRanked).
		Int("skipped_no_indicators", report.SkippedNoIndicators).
		Int("skipped_quality", report.SkippedQuality).
		Int("skipped_btc", report.SkippedBTC).
		Dur("duration", report.Duration).
		Msg("ranking batch complete")
	return report
}

func (r *Ranker) worker(jobs <-chan *market.AssetBundle, results chan<- outcome, wg *sync.WaitGroup) {
	defer wg.Done()
	for bundle := range jobs {
		results <- r.evaluate(bundle)
	}
}

// evaluate runs one asset through scoring, the gates and the composite
func (r *Ranker) evaluate(bundle *market.AssetBundle) outcome {
	score := r.scorer.Evaluate(bundle)
	if r.metrics != nil {
		r.metrics.QualityScored.Inc()
	}

	if score.IndicatorsCount == 0 {
		return outcome{skip: skipNoIndicators}
	}
	if !r.admits(score) {
		return outcome{skip: skipQuality}
	}
	if btcMove := btc60mAbs(bundle); btcMove != nil && *btcMove > r.cfg.BTCMoveCapPct {
		return outcome{skip: skipBTC}
	}

	entry := r.buildEntry(bundle, score)
	return outcome{entry: entry}
}

// admits applies the quality gate: very poor is always rejected, poor
// needs high coverage, everything above passes
func (r *Ranker) admits(score quality.Score) bool {
	switch score.Quality {
	case quality.LabelVeryPoor:
		return false
	case quality.LabelPoor:
		return score.CoveragePct >= r.cfg.PoorCoverageMinPct
	default:
		return true
	}
}

func (r *Ranker) buildEntry(bundle *market.AssetBundle, score quality.Score) *Entry {
	entry := &Entry{
		Symbol:  bundle.Symbol,
		Quality: score,
	}
	entry.MomentumComposite = r.momentumComposite(bundle)
	entry.TrendAlignmentScore = trendComponent(bundle.TrendFor())
	entry.ExternalDataScore = externalCompleteness(bundle.Context)
	entry.Diagnostics = r.diagnostics(bundle)

	qualityNorm := market.Clamp(score.Score/r.cfg.QualityNormCap, 0, 1)
	composite := r.cfg.QualityWeight*qualityNorm +
		r.cfg.CoverageWeight*score.CoveragePct/100 +
		r.cfg.MomentumWeight*entry.MomentumComposite +
		r.cfg.TrendWeight*entry.TrendAlignmentScore +
		r.cfg.ExternalWeight*entry.ExternalDataScore
	composite = market.Clamp(composite, 0, 1)

	composite = r.applyAdjustments(bundle, composite, &entry.Diagnostics)
	entry.CompositeScore = composite

	entry.AggressivePercent = r.aggressiveScore(score.Score, composite, entry.Diagnostics)
	entry.sortKeys = sortKeysFor(entry)
	return entry
}

// momentumComposite blends the three momentum horizons, each clamped to
// the configured band and mapped linearly onto [0,1]
func (r *Ranker) momentumComposite(bundle *market.AssetBundle) float64 {
	if bundle.Momentum == nil {
		return 0.5
	}
	norm := func(v *float64) float64 {
		if v == nil || !market.Finite(*v) {
			return 0.5
		}
		clamped := market.Clamp(*v, -r.cfg.MomentumClampPct, r.cfg.MomentumClampPct)
		return (clamped + r.cfg.MomentumClampPct) / (2 * r.cfg.MomentumClampPct)
	}
	return 0.5*norm(bundle.Momentum.Change5m) +
		0.3*norm(bundle.Momentum.Change15m) +
		0.2*norm(bundle.Momentum.Change60m)
}

// applyAdjustments runs the sequential contextual penalties and rewards,
// re-clamping after each step and recording applied penalties
func (r *Ranker) applyAdjustments(bundle *market.AssetBundle, composite float64, diag *Diagnostics) float64 {
	trend := bundle.TrendFor()
	m60 := diag.M60Pct

	step := func(delta float64, penalty string) {
		composite = market.Clamp(composite+delta, 0, 1)
		if penalty != "" {
			diag.PenaltiesApplied = append(diag.PenaltiesApplied, penalty)
		}
	}

	trendDir := ""
	if trend != nil {
		trendDir = trend.DailyTrend
	}
	momentumAgrees := m60 != nil && ((trendDir == "uptrend" && *m60 > 0) || (trendDir == "downtrend" && *m60 < 0))
	momentumOpposes := m60 != nil && ((trendDir == "uptrend" && *m60 < 0) || (trendDir == "downtrend" && *m60 > 0))

	if momentumOpposes {
		step(-r.cfg.TrendMomentumPenalty, "trend/momentum mismatch")
	}
	if trend != nil && trend.Aligned != nil && !*trend.Aligned && composite > r.cfg.NotAlignedCap {
		composite = r.cfg.NotAlignedCap
		diag.PenaltiesApplied = append(diag.PenaltiesApplied, "not aligned cap")
	}
	if trend != nil && trend.H4Aligned != nil && !*trend.H4Aligned {
		step(-r.cfg.H4MisalignedPenalty, "4h misaligned")
	}
	if trend != nil && trend.H1Aligned != nil && !*trend.H1Aligned {
		step(-r.cfg.H1MisalignedPenalty, "1h misaligned")
	}
	if isChoppy(bundle, r.cfg.ChoppyATRMax, r.cfg.ChoppyADXMax) {
		step(-r.cfg.ChoppyPenalty, "choppy regime")
	}

	volumeConfirmed := volumeConfirmation(bundle)
	momentumNotable := m60 != nil && math.Abs(*m60) >= 1.0
	if momentumNotable && volumeConfirmed != nil && !*volumeConfirmed {
		step(-r.cfg.VolumeMomentumPenalty, "volume does not confirm momentum")
	}

	if momentumAgrees {
		step(r.cfg.MomentumTrendReward, "")
	}
	if trend != nil && trend.Aligned != nil && *trend.Aligned {
		step(r.cfg.AlignmentReward, "")
	}
	if momentumNotable && volumeConfirmed != nil && *volumeConfirmed {
		step(r.cfg.VolumeConfirmReward, "")
	}

	return composite
}

// aggressiveScore blends the raw score, composite, external confidence and
// scaled 60-minute momentum into the primary sort key
func (r *Ranker) aggressiveScore(rawScore, composite float64, diag Diagnostics) float64 {
	m60 := 0.0
	if diag.M60Pct != nil {
		m60 = *diag.M60Pct
	}
	blend := r.cfg.AggressiveScoreWeight*rawScore +
		r.cfg.AggressiveCompositeWeight*composite*100 +
		r.cfg.AggressiveConfidenceWeight*diag.ConfidencePercent +
		r.cfg.AggressiveMomentumWeight*m60*r.cfg.MomentumScale
	return market.Clamp(blend/r.cfg.AggressiveDenominator*100, 0, 100)
}

func (r *Ranker) diagnostics(bundle *market.AssetBundle) Diagnostics {
	diag := Diagnostics{ConfidencePercent: 50}
	if bundle.Context != nil && bundle.Context.ExpectedConfidence != nil &&
		market.FiniteIn(*bundle.Context.ExpectedConfidence, 0, 100) {
		diag.ConfidencePercent = *bundle.Context.ExpectedConfidence
	}
	if bundle.Momentum != nil && bundle.Momentum.Change60m != nil && market.Finite(*bundle.Momentum.Change60m) {
		diag.M60Pct = bundle.Momentum.Change60m
	}
	if bundle.Context != nil && bundle.Context.Volume != nil &&
		bundle.Context.Volume.VolumeRatio != nil && market.Finite(*bundle.Context.Volume.VolumeRatio) {
		diag.VolumeRatio = bundle.Context.Volume.VolumeRatio
	}
	diag.SRDistPct = srDistance(bundle.Snapshot)
	diag.BTC60mAbsPct = btc60mAbs(bundle)
	if bundle.Context != nil && bundle.Context.Futures != nil &&
		bundle.Context.Futures.FundingRate != nil && market.Finite(*bundle.Context.Futures.FundingRate) {
		diag.FundingAbsPct = market.Float(math.Abs(*bundle.Context.Futures.FundingRate) * 100)
	}
	return diag
}

// trendComponent scores multi-timeframe alignment with partial credit for
// single-timeframe agreement
func trendComponent(trend *market.TrendAlignment) float64 {
	if trend == nil {
		return 0.2
	}
	if trend.Aligned != nil && *trend.Aligned {
		strength := 0.5
		if trend.Strength != nil && market.FiniteIn(*trend.Strength, 0, 1) {
			strength = *trend.Strength
		}
		return market.Clamp(0.6+0.4*strength, 0, 1)
	}
	if (trend.H4Aligned != nil && *trend.H4Aligned) || (trend.H1Aligned != nil && *trend.H1Aligned) {
		return 0.4
	}
	return 0.2
}

// externalCompleteness counts the present context sections, capped at 5
func externalCompleteness(ctx *market.ExternalContext) float64 {
	if ctx == nil {
		return 0
	}
	present := 0
	if ctx.Futures != nil {
		present++
	}
	if ctx.Volume != nil {
		present++
	}
	if ctx.OrderBook != nil {
		present++
	}
	if ctx.TrendAlignment != nil {
		present++
	}
	if ctx.ExpectedConfidence != nil {
		present++
	}
	if present > 5 {
		present = 5
	}
	return float64(present) / 5
}

func isChoppy(bundle *market.AssetBundle, atrMax, adxMax float64) bool {
	snap := bundle.Snapshot
	if snap == nil || snap.ATRPercent == nil || snap.ADX == nil {
		return false
	}
	return *snap.ATRPercent < atrMax && snap.ADX.Value < adxMax
}

func volumeConfirmation(bundle *market.AssetBundle) *bool {
	if bundle.Context == nil || bundle.Context.Volume == nil {
		return nil
	}
	return bundle.Context.Volume.VolumeConfirmed
}

// srDistance returns the percentage distance from price to the nearest
// support or resistance level
func srDistance(snap *market.IndicatorSnapshot) *float64 {
	if snap == nil || snap.Price <= 0 {
		return nil
	}
	nearest := math.Inf(1)
	for _, levels := range [][]float64{snap.SupportLevels, snap.ResistanceLevels} {
		for _, level := range levels {
			if !market.Finite(level) || level <= 0 {
				continue
			}
			if dist := math.Abs(snap.Price-level) / snap.Price * 100; dist < nearest {
				nearest = dist
			}
		}
	}
	if math.IsInf(nearest, 1) {
		return nil
	}
	return market.Float(nearest)
}

func btc60mAbs(bundle *market.AssetBundle) *float64 {
	if bundle.Momentum == nil || bundle.Momentum.BTCChange60m == nil || !market.Finite(*bundle.Momentum.BTCChange60m) {
		return nil
	}
	return market.Float(math.Abs(*bundle.Momentum.BTCChange60m))
}

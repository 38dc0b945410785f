package quality

import (
	"crypto-signal-ranker/internal/futures"
	"crypto-signal-ranker/internal/market"
)

// AdjusterResult is the outcome of one pluggable score adjustment
type AdjusterResult struct {
	Bonus           float64  `json:"bonus"`
	Penalty         float64  `json:"penalty"`
	MajorMismatches int      `json:"major_mismatches"`
	Notes           []string `json:"notes,omitempty"`
}

// ScoreAdjuster is a pluggable scoring strategy run after the base checks.
// Implementations must be side-effect free; a returned error is logged by
// the scorer and treated as a no-op, never propagated.
type ScoreAdjuster interface {
	Name() string
	Adjust(bundle *market.AssetBundle) (AdjusterResult, error)
}

// ConsensusInfluence compares the multi-timeframe futures consensus with
// the labeled daily trend. A confident consensus that opposes the trend is
// a major mismatch; agreement earns a small bonus.
type ConsensusInfluence struct {
	aligner *futures.Aligner
}

// NewConsensusInfluence builds the influence adjuster around an aligner
func NewConsensusInfluence(aligner *futures.Aligner) *ConsensusInfluence {
	return &ConsensusInfluence{aligner: aligner}
}

func (ci *ConsensusInfluence) Name() string { return "futures_consensus" }

func (ci *ConsensusInfluence) Adjust(bundle *market.AssetBundle) (AdjusterResult, error) {
	var res AdjusterResult
	if bundle == nil || len(bundle.FuturesTimeframes) == 0 {
		return res, nil
	}
	trend := bundle.TrendFor()
	if trend == nil {
		return res, nil
	}

	consensus := ci.aligner.Align(bundle.FuturesTimeframes)
	if consensus.Consensus == futures.DirectionNeutral || consensus.Confidence < 0.5 {
		return res, nil
	}

	opposed := (consensus.Consensus == futures.DirectionShort && trend.DailyTrend == "uptrend") ||
		(consensus.Consensus == futures.DirectionLong && trend.DailyTrend == "downtrend")
	agreed := (consensus.Consensus == futures.DirectionLong && trend.DailyTrend == "uptrend") ||
		(consensus.Consensus == futures.DirectionShort && trend.DailyTrend == "downtrend")

	switch {
	case opposed:
		res.Penalty = 10
		res.MajorMismatches = 1
		res.Notes = append(res.Notes, "futures consensus opposes daily trend")
	case agreed:
		res.Bonus = 5
		res.Notes = append(res.Notes, "futures consensus confirms daily trend")
	}
	return res, nil
}

// CoherenceReward grants small bonuses when independent data sources tell
// the same story: confirmed volume behind an aligned trend, and a trending
// regime backed by a trending ADX
type CoherenceReward struct{}

// NewCoherenceReward builds the reward adjuster
func NewCoherenceReward() *CoherenceReward { return &CoherenceReward{} }

func (cr *CoherenceReward) Name() string { return "coherence_reward" }

func (cr *CoherenceReward) Adjust(bundle *market.AssetBundle) (AdjusterResult, error) {
	var res AdjusterResult
	if bundle == nil {
		return res, nil
	}

	trend := bundle.TrendFor()
	if trend != nil && trend.Aligned != nil && *trend.Aligned &&
		bundle.Context != nil && bundle.Context.Volume != nil &&
		bundle.Context.Volume.VolumeConfirmed != nil && *bundle.Context.Volume.VolumeConfirmed {
		res.Bonus += 5
		res.Notes = append(res.Notes, "volume-confirmed aligned trend")
	}

	if bundle.Snapshot != nil && bundle.Snapshot.Regime != nil &&
		bundle.Snapshot.Regime.Regime == "trending" &&
		bundle.Snapshot.ADX != nil && bundle.Snapshot.ADX.Value >= 25 {
		res.Bonus += 3
		res.Notes = append(res.Notes, "regime and ADX agree on trend")
	}

	return res, nil
}

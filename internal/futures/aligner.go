// Package futures aggregates funding-rate and open-interest readings
// across timeframes into a consensus direction and confidence.
package futures

import (
	"math"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/market"
)

// Direction is a per-timeframe or consensus trade direction
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// TimeframeSignal is the classification of a single timeframe
type TimeframeSignal struct {
	Timeframe string    `json:"timeframe"`
	Bias      Direction `json:"bias"`   // trend bias from funding/OI slope
	Signal    Direction `json:"signal"` // directional signal
	Reason    string    `json:"reason"`
}

// Result is the cross-timeframe consensus
type Result struct {
	Signals        []TimeframeSignal `json:"signals"`
	AlignmentScore float64           `json:"alignment_score"` // 0..100
	Consensus      Direction         `json:"consensus"`
	Confidence     float64           `json:"confidence"` // 0..1
}

// Aligner classifies per-timeframe futures data and scores their agreement
type Aligner struct {
	cfg config.FuturesConfig
}

// NewAligner creates an aligner with the given thresholds
func NewAligner(cfg config.FuturesConfig) *Aligner {
	return &Aligner{cfg: cfg}
}

// Align classifies every supplied timeframe and derives the consensus.
// Frames outside the configured timeframe set are ignored; timeframes
// not present in the input are simply absent from the result. An empty
// input yields a neutral, zero-confidence result.
func (a *Aligner) Align(frames []market.TimeframeFutures) Result {
	frames = a.filter(frames)

	res := Result{Consensus: DirectionNeutral}
	if len(frames) == 0 {
		return res
	}

	counts := map[Direction]int{}
	for _, tf := range frames {
		sig := a.classify(tf)
		res.Signals = append(res.Signals, sig)
		counts[sig.Signal]++
	}

	total := len(res.Signals)
	majorityDir, majority := DirectionNeutral, 0
	for _, dir := range []Direction{DirectionLong, DirectionShort} {
		if counts[dir] > majority {
			majorityDir, majority = dir, counts[dir]
		}
	}
	neutral := counts[DirectionNeutral]

	if majority == total {
		res.AlignmentScore = 100
	} else {
		score := float64(majority)/float64(total)*100 - float64(neutral)/float64(total)*a.cfg.NeutralPenalty
		res.AlignmentScore = math.Max(0, score)
	}

	if majority*2 > total {
		res.Consensus = majorityDir
	}

	nonNeutral := float64(total-neutral) / float64(total)
	res.Confidence = market.Clamp(0.7*(res.AlignmentScore/100)+0.3*nonNeutral, 0, 1)

	return res
}

// filter keeps only the configured timeframes. An empty configuration
// accepts every frame.
func (a *Aligner) filter(frames []market.TimeframeFutures) []market.TimeframeFutures {
	if len(a.cfg.Timeframes) == 0 {
		return frames
	}
	allowed := make(map[string]bool, len(a.cfg.Timeframes))
	for _, tf := range a.cfg.Timeframes {
		allowed[tf] = true
	}
	kept := make([]market.TimeframeFutures, 0, len(frames))
	for _, tf := range frames {
		if allowed[tf.Timeframe] {
			kept = append(kept, tf)
		}
	}
	return kept
}

// classify derives the trend bias and directional signal for one timeframe.
// Rising funding or rising open interest reads as a crowded-long bearish
// bias; falling reads bullish. The directional signal prefers an extreme
// funding level, then funding mean reversion, then OI-vs-price divergence.
func (a *Aligner) classify(tf market.TimeframeFutures) TimeframeSignal {
	sig := TimeframeSignal{Timeframe: tf.Timeframe, Bias: DirectionNeutral, Signal: DirectionNeutral}

	fundingRising := tf.FundingRate > tf.PrevFundingRate
	fundingFalling := tf.FundingRate < tf.PrevFundingRate
	oiRising := tf.OpenInterest > tf.PrevOpenInterest
	oiFalling := tf.OpenInterest < tf.PrevOpenInterest

	switch {
	case fundingRising || oiRising:
		sig.Bias = DirectionShort
	case fundingFalling || oiFalling:
		sig.Bias = DirectionLong
	}

	switch {
	case tf.FundingRate >= a.cfg.ExtremeFundingHigh:
		sig.Signal = DirectionShort
		sig.Reason = "extreme positive funding"
	case tf.FundingRate <= a.cfg.ExtremeFundingLow:
		sig.Signal = DirectionLong
		sig.Reason = "extreme negative funding"
	case tf.FundingRate > a.cfg.MeanReversionBand:
		sig.Signal = DirectionShort
		sig.Reason = "funding mean reversion"
	case tf.FundingRate < -a.cfg.MeanReversionBand:
		sig.Signal = DirectionLong
		sig.Reason = "funding mean reversion"
	default:
		sig.Signal, sig.Reason = a.oiPriceDivergence(tf)
	}

	return sig
}

// oiPriceDivergence classifies the open-interest vs price relationship:
// OI building while price falls reads as aggressive shorting into weakness
// (contrarian long once crowded), OI falling while price rises reads as a
// short-covering rally (long), and the remaining combinations are neutral.
func (a *Aligner) oiPriceDivergence(tf market.TimeframeFutures) (Direction, string) {
	priceRising := tf.Price > tf.PrevPrice
	priceFalling := tf.Price < tf.PrevPrice
	oiRising := tf.OpenInterest > tf.PrevOpenInterest
	oiFalling := tf.OpenInterest < tf.PrevOpenInterest

	switch {
	case oiRising && priceFalling:
		return DirectionLong, "OI building into weakness"
	case oiFalling && priceRising:
		return DirectionLong, "short covering"
	case oiRising && priceRising:
		return DirectionShort, "crowded long build-up"
	default:
		return DirectionNeutral, ""
	}
}

package ranker

import (
	"math"
	"sort"
)

// The ten sort keys, in precedence order. Each key stores a value where
// LOWER sorts FIRST, so descending-better observables are negated and
// missing values take the fallback that sorts them last.
const (
	keyAggressive = iota
	keyComposite
	keyRawScore
	keyCoverage
	keyWeaknesses
	keyVolumeRatio
	keySRDistance
	keyMomentum60
	keyBTCMove
	keyFundingAbs
)

// sortKeysFor precomputes the comparable key vector for an entry.
// Descending-better keys are negated (missing → −∞ raw, +∞ here);
// ascending-better keys are kept (missing → +∞).
func sortKeysFor(e *Entry) [10]float64 {
	desc := func(v *float64) float64 {
		if v == nil {
			return math.Inf(1) // raw −∞, sorts last
		}
		return -*v
	}
	asc := func(v *float64) float64 {
		if v == nil {
			return math.Inf(1)
		}
		return *v
	}
	abs := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		a := math.Abs(*v)
		return &a
	}

	return [10]float64{
		keyAggressive:  -e.AggressivePercent,
		keyComposite:   -e.CompositeScore,
		keyRawScore:    -e.Quality.Score,
		keyCoverage:    -e.Quality.CoveragePct,
		keyWeaknesses:  float64(len(e.Quality.Weaknesses)),
		keyVolumeRatio: desc(e.Diagnostics.VolumeRatio),
		keySRDistance:  desc(abs(e.Diagnostics.SRDistPct)),
		keyMomentum60:  desc(abs(e.Diagnostics.M60Pct)),
		keyBTCMove:     asc(e.Diagnostics.BTC60mAbsPct),
		keyFundingAbs:  asc(e.Diagnostics.FundingAbsPct),
	}
}

// sortEntries orders entries by the ten-key vector, with the symbol as
// the final tiebreak. The comparison is a total order over distinct
// symbols, so the result never depends on worker completion order.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].sortKeys, entries[j].sortKeys
		for k := 0; k < len(a); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return entries[i].Symbol < entries[j].Symbol
	})
}

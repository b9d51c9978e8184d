package indicators

import (
	"math"
	"sort"
)

// LevelsResult holds detected support/resistance levels
type LevelsResult struct {
	Supports          []float64 `json:"supports"`
	Resistances       []float64 `json:"resistances"`
	NearestSupport    *float64  `json:"nearest_support"`
	NearestResistance *float64  `json:"nearest_resistance"`
}

// SupportResistance detects levels from local pivot highs and lows.
// A point is a pivot when it equals the extreme of its ±lookback
// window. Returns up to 5 recent levels per side plus the nearest
// level on each side of the last close.
func SupportResistance(highs, lows, closes []float64, lookback int) LevelsResult {
	if lookback <= 0 {
		lookback = 5
	}
	if len(highs) < lookback*2+1 {
		return LevelsResult{}
	}

	var supports, resistances []float64
	for i := lookback; i < len(lows)-lookback; i++ {
		if lows[i] == windowMin(lows[i-lookback:i+lookback+1]) {
			supports = append(supports, lows[i])
		}
		if highs[i] == windowMax(highs[i-lookback:i+lookback+1]) {
			resistances = append(resistances, highs[i])
		}
	}

	price := closes[len(closes)-1]

	var nearestSupport, nearestResistance *float64
	for _, s := range supports {
		if s < price && (nearestSupport == nil || s > *nearestSupport) {
			v := s
			nearestSupport = &v
		}
	}
	for _, r := range resistances {
		if r > price && (nearestResistance == nil || r < *nearestResistance) {
			v := r
			nearestResistance = &v
		}
	}

	return LevelsResult{
		Supports:          dedupeLevels(supports),
		Resistances:       dedupeLevels(resistances),
		NearestSupport:    nearestSupport,
		NearestResistance: nearestResistance,
	}
}

// dedupeLevels keeps the 10 most recent levels, deduplicates at 8
// decimal places, sorts ascending and caps at 5.
func dedupeLevels(levels []float64) []float64 {
	if len(levels) > 10 {
		levels = levels[len(levels)-10:]
	}

	seen := make(map[float64]bool, len(levels))
	var unique []float64
	for _, l := range levels {
		r := math.Round(l*1e8) / 1e8
		if !seen[r] {
			seen[r] = true
			unique = append(unique, r)
		}
	}

	sort.Float64s(unique)
	if len(unique) > 5 {
		unique = unique[:5]
	}
	return unique
}

func windowMin(w []float64) float64 {
	m := w[0]
	for _, v := range w[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func windowMax(w []float64) float64 {
	m := w[0]
	for _, v := range w[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

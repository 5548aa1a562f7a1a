// Package dedupe implements tolerance-based near-duplicate suppression: a
// candidate alert whose (symbol, direction, magnitude) is within tolerance of
// something recently reported is not worth re-alerting. It complements the
// history store's exact fingerprint match, which only catches byte-identical
// repeats — a ratio oscillating between 1.20% and 1.22% across consecutive
// runs must not re-alert every minute.
package dedupe

import (
	"math"
	"time"
)

// Direction classifies a signed metric movement.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Classify maps a signed value to its direction.
func Classify(v float64) Direction {
	switch {
	case v > 0:
		return DirectionUp
	case v < 0:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// Record is the projection used purely for near-duplicate comparison.
type Record struct {
	Symbol    string
	Direction Direction
	Value     float64
	Timestamp time.Time
}

// Options tune the filter.
type Options struct {
	// Lookback bounds how old a historical record may be and still suppress
	// a candidate.
	Lookback time.Duration
	// ToleranceAbs is the maximum absolute value difference counted as "the
	// same situation".
	ToleranceAbs float64
	// TolerancePercent, when set, additionally treats a percentage
	// difference at or below it as a duplicate.
	TolerancePercent float64
	// DirectionSensitive requires matching directions; flat never matches
	// up or down, so a reversal is never masked as a duplicate of its own
	// opposite.
	DirectionSensitive bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Result partitions candidates into fresh and suppressed inputs.
type Result[I any] struct {
	Fresh      []I
	Duplicates []I
}

// Filter suppresses candidates that near-duplicate a recent historical
// record. Callers usually pre-filter history to the lookback window; the
// filter re-applies the cutoff defensively.
func Filter[I any](inputs []I, toRecord func(I) Record, history []Record, opts Options) Result[I] {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().Add(-opts.Lookback)

	recent := make([]Record, 0, len(history))
	for _, record := range history {
		if !record.Timestamp.Before(cutoff) {
			recent = append(recent, record)
		}
	}

	var result Result[I]
	for _, input := range inputs {
		candidate := toRecord(input)
		if matchesAny(candidate, recent, opts) {
			result.Duplicates = append(result.Duplicates, input)
			continue
		}
		result.Fresh = append(result.Fresh, input)
	}
	return result
}

func matchesAny(candidate Record, history []Record, opts Options) bool {
	for _, record := range history {
		if record.Symbol != candidate.Symbol {
			continue
		}
		if opts.DirectionSensitive && record.Direction != candidate.Direction {
			continue
		}
		if withinTolerance(candidate.Value, record.Value, opts) {
			return true
		}
	}
	return false
}

func withinTolerance(candidate, historical float64, opts Options) bool {
	diff := math.Abs(candidate - historical)
	if opts.ToleranceAbs > 0 && diff <= opts.ToleranceAbs {
		return true
	}
	if opts.TolerancePercent > 0 && historical != 0 {
		if diff/math.Abs(historical)*100 <= opts.TolerancePercent {
			return true
		}
	}
	if opts.ToleranceAbs <= 0 && opts.TolerancePercent <= 0 {
		return diff == 0
	}
	return false
}

// Package window implements sliding-time-window analysis of per-symbol
// metric series: change rate, volatility, and direction reversals derived
// from the oldest and newest samples in the live window.
//
// This is deliberately a two-point-anchored comparison rather than a
// regression or EMA; it is simple and auditable at the cost of sensitivity to
// the exact sampling cadence.
package window

import (
	"sort"
	"time"
)

// Sample is a single (value, timestamp) observation.
type Sample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Series is an append-only sequence of samples confined to a sliding time
// window. Samples older than the window are dropped on every Append.
type Series struct {
	window  time.Duration
	samples []Sample
	now     func() time.Time
}

// NewSeries constructs an empty Series with the given window.
func NewSeries(window time.Duration) *Series {
	return NewSeriesAt(window, time.Now)
}

// NewSeriesAt constructs an empty Series with an injected clock.
func NewSeriesAt(window time.Duration, now func() time.Time) *Series {
	if now == nil {
		now = time.Now
	}
	return &Series{window: window, now: now}
}

// Append adds a sample and prunes everything outside the window.
func (s *Series) Append(sample Sample) {
	s.samples = append(s.samples, sample)
	s.Prune()
}

// Prune drops samples at or older than now minus the window.
func (s *Series) Prune() {
	cutoff := s.now().Add(-s.window)
	kept := s.samples[:0]
	for _, sample := range s.samples {
		if sample.Timestamp.After(cutoff) {
			kept = append(kept, sample)
		}
	}
	s.samples = kept
}

// Samples returns the live window contents.
func (s *Series) Samples() []Sample {
	return s.samples
}

// Len reports the number of live samples.
func (s *Series) Len() int {
	return len(s.samples)
}

// Analysis summarises a window of samples.
type Analysis struct {
	Oldest Sample
	Newest Sample
	// ChangeRate is newest minus oldest, signed.
	ChangeRate float64
	// Volatility is max minus min over the whole window, not just endpoints.
	Volatility float64
	// DirectionChange reports a sign crossing between oldest and newest;
	// only meaningful for signed metrics such as funding rates.
	DirectionChange bool
}

// Analyze derives window statistics from samples already confined to the live
// window. Fewer than two samples is insufficient data, not an error: the
// result is nil. Samples are sorted ascending by timestamp before analysis.
func Analyze(samples []Sample) *Analysis {
	if len(samples) < 2 {
		return nil
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	oldest := sorted[0]
	newest := sorted[len(sorted)-1]

	min, max := sorted[0].Value, sorted[0].Value
	for _, sample := range sorted[1:] {
		if sample.Value < min {
			min = sample.Value
		}
		if sample.Value > max {
			max = sample.Value
		}
	}

	return &Analysis{
		Oldest:          oldest,
		Newest:          newest,
		ChangeRate:      newest.Value - oldest.Value,
		Volatility:      max - min,
		DirectionChange: sign(oldest.Value) != sign(newest.Value),
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// SeriesSet tracks one Series per symbol with a shared window. The set lives
// for the process lifetime only; losing one window's worth of history on
// restart is accepted.
type SeriesSet struct {
	window time.Duration
	now    func() time.Time
	series map[string]*Series
}

// NewSeriesSet constructs an empty set.
func NewSeriesSet(window time.Duration) *SeriesSet {
	return NewSeriesSetAt(window, time.Now)
}

// NewSeriesSetAt constructs an empty set with an injected clock.
func NewSeriesSetAt(window time.Duration, now func() time.Time) *SeriesSet {
	if now == nil {
		now = time.Now
	}
	return &SeriesSet{window: window, now: now, series: make(map[string]*Series)}
}

// Observe appends a sample for symbol, creating its series on first use.
func (ss *SeriesSet) Observe(symbol string, value float64, at time.Time) {
	ss.Ensure(symbol, 0).Append(Sample{Value: value, Timestamp: at})
}

// Ensure returns the symbol's series, creating it on first use with the given
// window. A non-positive window falls back to the set default. The window is
// fixed at creation; later calls with a different window keep the original.
func (ss *SeriesSet) Ensure(symbol string, window time.Duration) *Series {
	series, ok := ss.series[symbol]
	if !ok {
		if window <= 0 {
			window = ss.window
		}
		series = NewSeriesAt(window, ss.now)
		ss.series[symbol] = series
	}
	return series
}

// Analyze runs window analysis for symbol; nil when the symbol is unknown or
// has insufficient data.
func (ss *SeriesSet) Analyze(symbol string) *Analysis {
	series, ok := ss.series[symbol]
	if !ok {
		return nil
	}
	series.Prune()
	return Analyze(series.Samples())
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/dedupe"
	"market-signal-alerts/internal/exchange"
	"market-signal-alerts/internal/history"
	"market-signal-alerts/internal/notify"
	"market-signal-alerts/internal/storage"
	"market-signal-alerts/internal/task"
	"market-signal-alerts/internal/window"
)

type fundingSource interface {
	PremiumIndex(ctx context.Context, symbol string) (exchange.PremiumIndex, error)
}

// FundingAlert is one funding-rate signal, both the alert payload and the
// persisted history record.
type FundingAlert struct {
	Symbol          string           `json:"symbol"`
	DisplayName     string           `json:"displayName,omitempty"`
	Rate            float64          `json:"rate"`
	ChangeRate      float64          `json:"changeRate"`
	Direction       dedupe.Direction `json:"direction"`
	Reversal        bool             `json:"reversal"`
	NextFundingTime int64            `json:"nextFundingTime"`
	WindowMinutes   int              `json:"windowMinutes"`
	NotifiedAt      time.Time        `json:"notifiedAt"`
}

func (a FundingAlert) NotifiedTime() time.Time { return a.NotifiedAt }

func fundingFingerprint(a FundingAlert) (string, error) {
	if a.Symbol == "" {
		return "", errors.New("funding alert missing symbol")
	}
	return fmt.Sprintf("%s|%s|%d", a.Symbol, fixed(a.Rate, 4), a.NextFundingTime), nil
}

// FundingRateOptions configure the funding-rate monitor.
type FundingRateOptions struct {
	ConfigKey    string
	HistoryKey   string
	Retention    time.Duration
	Window       time.Duration
	Lookback     time.Duration
	ChannelID    string
	MessageLimit int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// FundingRate alerts on funding-rate window moves over threshold and on sign
// reversals. Sign reversals always alert regardless of magnitude: a rate
// flipping from positive to negative changes who pays whom.
type FundingRate struct {
	source fundingSource
	opts   FundingRateOptions
	series *window.SeriesSet
	store  *history.Store[FundingAlert]
	pub    *publisher[FundingAlert, FundingAlert]
	kv     storage.KV
	now    func() time.Time
	logger zerolog.Logger

	// mu serializes runs: a slow pass can still be in flight when the next
	// invocation arrives, and the series set and configs are not safe to
	// mutate concurrently.
	mu sync.Mutex
	// configs holds the symbol configs of the current run, guarded by mu.
	configs []Config
}

// NewFundingRate wires the monitor over its collaborators.
func NewFundingRate(source fundingSource, kv storage.KV, notifier notify.Notifier, opts FundingRateOptions, logger zerolog.Logger) *FundingRate {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger = logger.With().Str("component", "monitor").Str("task", "fundingrate").Logger()

	store := history.NewStore(kv, fundingFingerprint, history.Options{
		Key:       opts.HistoryKey,
		Retention: opts.Retention,
		Now:       now,
	}, logger)

	m := &FundingRate{
		source: source,
		opts:   opts,
		series: window.NewSeriesSetAt(opts.Window, now),
		store:  store,
		kv:     kv,
		now:    now,
		logger: logger,
	}
	m.pub = &publisher[FundingAlert, FundingAlert]{
		store:    store,
		sink:     newSink(notifier, opts.ChannelID, opts.MessageLimit, logger),
		toRecord: func(a FundingAlert) FundingAlert { return a },
		toDedupe: func(a FundingAlert) dedupe.Record {
			return dedupe.Record{Symbol: a.Symbol, Direction: a.Direction, Value: a.Rate, Timestamp: a.NotifiedAt}
		},
		fromRecord: func(a FundingAlert) dedupe.Record {
			return dedupe.Record{Symbol: a.Symbol, Direction: a.Direction, Value: a.Rate, Timestamp: a.NotifiedAt}
		},
		dedupeOpts: m.dedupeOptions,
		format:     formatFundingAlerts,
		logger:     logger,
	}
	return m
}

func (m *FundingRate) Name() string { return "fundingrate" }

func (m *FundingRate) dedupeOptions(a FundingAlert) dedupe.Options {
	return toleranceOptions(configFor(m.configs, a.Symbol), m.opts.Lookback, m.now)
}

// Run executes one monitoring pass. Overlapping invocations are serialized.
func (m *FundingRate) Run(ctx context.Context) task.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	configs, err := LoadConfigs(ctx, m.kv, m.opts.ConfigKey)
	if err != nil {
		return task.Error(task.Counts{}, err)
	}
	if len(configs) == 0 {
		return task.OK(task.Counts{}, "no symbols configured")
	}
	m.configs = configs

	counts := task.Counts{}
	var candidates []FundingAlert
	for _, cfg := range configs {
		counts.Processed++

		idx, err := m.source.PremiumIndex(ctx, cfg.Symbol)
		if err != nil {
			counts.Failed++
			m.logger.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("premium index fetch failed")
			continue
		}
		counts.Successful++

		rate, _ := idx.LastFundingRate.Float64()
		series := m.series.Ensure(cfg.Symbol, cfg.Window(m.opts.Window))
		series.Append(window.Sample{Value: rate, Timestamp: m.now()})

		analysis := window.Analyze(series.Samples())
		if analysis == nil {
			counts.Filtered++
			continue
		}
		overThreshold := abs(analysis.ChangeRate) > cfg.Threshold
		if !overThreshold && !analysis.DirectionChange {
			counts.Filtered++
			continue
		}

		candidates = append(candidates, FundingAlert{
			Symbol:          cfg.Symbol,
			DisplayName:     cfg.Name(),
			Rate:            rate,
			ChangeRate:      analysis.ChangeRate,
			Direction:       dedupe.Classify(analysis.ChangeRate),
			Reversal:        analysis.DirectionChange,
			NextFundingTime: idx.NextFundingTime,
			WindowMinutes:   int(cfg.Window(m.opts.Window) / time.Minute),
			NotifiedAt:      m.now(),
		})
	}

	deliveryErr := m.pub.publish(ctx, candidates, &counts)
	return resolve(counts, deliveryErr, "funding rate scan complete")
}

func formatFundingAlerts(alerts []FundingAlert) string {
	lines := []string{"📈 Funding rate alerts"}
	for _, a := range alerts {
		line := fmt.Sprintf("%s: rate %s%%, change %s over %dm",
			a.DisplayName, fixed(a.Rate*100, 4), signedPercent(a.ChangeRate*100, 4), a.WindowMinutes)
		if a.Reversal {
			line += " (sign reversal)"
		}
		line += fmt.Sprintf(", next funding %s", messageTime(time.UnixMilli(a.NextFundingTime)))
		lines = append(lines, line)
	}
	return joinLines(lines)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ Monitor = (*FundingRate)(nil)

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

type openInterestSource interface {
	OpenInterest(ctx context.Context, symbol string) (exchange.OpenInterest, error)
}

// OpenInterestAlert is one open-interest change signal.
type OpenInterestAlert struct {
	Symbol        string           `json:"symbol"`
	DisplayName   string           `json:"displayName,omitempty"`
	OpenInterest  float64          `json:"openInterest"`
	ChangePct     float64          `json:"changePct"`
	Direction     dedupe.Direction `json:"direction"`
	WindowMinutes int              `json:"windowMinutes"`
	NotifiedAt    time.Time        `json:"notifiedAt"`
}

func (a OpenInterestAlert) NotifiedTime() time.Time { return a.NotifiedAt }

func openInterestFingerprint(a OpenInterestAlert) (string, error) {
	if a.Symbol == "" {
		return "", errors.New("open interest alert missing symbol")
	}
	return fmt.Sprintf("%s|%s", a.Symbol, fixed(a.ChangePct, 2)), nil
}

// OpenInterestOptions configure the open-interest monitor.
type OpenInterestOptions struct {
	ConfigKey    string
	HistoryKey   string
	Retention    time.Duration
	Window       time.Duration
	Lookback     time.Duration
	ChannelID    string
	MessageLimit int
	Now          func() time.Time
}

// OpenInterestMonitor alerts when open interest moves more than the
// configured percent inside the window. Threshold is interpreted in percent.
type OpenInterestMonitor struct {
	source openInterestSource
	opts   OpenInterestOptions
	series *window.SeriesSet
	store  *history.Store[OpenInterestAlert]
	pub    *publisher[OpenInterestAlert, OpenInterestAlert]
	kv     storage.KV
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	configs []Config
}

// NewOpenInterest wires the monitor over its collaborators.
func NewOpenInterest(source openInterestSource, kv storage.KV, notifier notify.Notifier, opts OpenInterestOptions, logger zerolog.Logger) *OpenInterestMonitor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger = logger.With().Str("component", "monitor").Str("task", "openinterest").Logger()

	store := history.NewStore(kv, openInterestFingerprint, history.Options{
		Key:       opts.HistoryKey,
		Retention: opts.Retention,
		Now:       now,
	}, logger)

	m := &OpenInterestMonitor{
		source: source,
		opts:   opts,
		series: window.NewSeriesSetAt(opts.Window, now),
		store:  store,
		kv:     kv,
		now:    now,
		logger: logger,
	}
	project := func(a OpenInterestAlert) dedupe.Record {
		return dedupe.Record{Symbol: a.Symbol, Direction: a.Direction, Value: a.ChangePct, Timestamp: a.NotifiedAt}
	}
	m.pub = &publisher[OpenInterestAlert, OpenInterestAlert]{
		store:      store,
		sink:       newSink(notifier, opts.ChannelID, opts.MessageLimit, logger),
		toRecord:   func(a OpenInterestAlert) OpenInterestAlert { return a },
		toDedupe:   project,
		fromRecord: project,
		dedupeOpts: func(a OpenInterestAlert) dedupe.Options {
			return toleranceOptions(configFor(m.configs, a.Symbol), opts.Lookback, now)
		},
		format: formatOpenInterestAlerts,
		logger: logger,
	}
	return m
}

func (m *OpenInterestMonitor) Name() string { return "openinterest" }

// Run executes one monitoring pass. Overlapping invocations are serialized.
func (m *OpenInterestMonitor) Run(ctx context.Context) task.Result {
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
	var candidates []OpenInterestAlert
	for _, cfg := range configs {
		counts.Processed++

		oi, err := m.source.OpenInterest(ctx, cfg.Symbol)
		if err != nil {
			counts.Failed++
			m.logger.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("open interest fetch failed")
			continue
		}
		counts.Successful++

		value, _ := oi.OpenInterest.Float64()
		series := m.series.Ensure(cfg.Symbol, cfg.Window(m.opts.Window))
		series.Append(window.Sample{Value: value, Timestamp: m.now()})

		analysis := window.Analyze(series.Samples())
		if analysis == nil || analysis.Oldest.Value == 0 {
			counts.Filtered++
			continue
		}
		changePct := analysis.ChangeRate / analysis.Oldest.Value * 100
		if abs(changePct) <= cfg.Threshold {
			counts.Filtered++
			continue
		}

		candidates = append(candidates, OpenInterestAlert{
			Symbol:        cfg.Symbol,
			DisplayName:   cfg.Name(),
			OpenInterest:  value,
			ChangePct:     changePct,
			Direction:     dedupe.Classify(changePct),
			WindowMinutes: int(cfg.Window(m.opts.Window) / time.Minute),
			NotifiedAt:    m.now(),
		})
	}

	deliveryErr := m.pub.publish(ctx, candidates, &counts)
	return resolve(counts, deliveryErr, "open interest scan complete")
}

func formatOpenInterestAlerts(alerts []OpenInterestAlert) string {
	lines := []string{"📊 Open interest alerts"}
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("%s: open interest %s, change %s over %dm",
			a.DisplayName, fixed(a.OpenInterest, 2), signedPercent(a.ChangePct, 2), a.WindowMinutes))
	}
	return joinLines(lines)
}

var _ Monitor = (*OpenInterestMonitor)(nil)

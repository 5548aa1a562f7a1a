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

type ratioSource interface {
	LongShortRatio(ctx context.Context, symbol, period string) (exchange.LongShortRatio, error)
}

// RatioAlert is one long/short account ratio signal.
type RatioAlert struct {
	Symbol        string           `json:"symbol"`
	DisplayName   string           `json:"displayName,omitempty"`
	Ratio         float64          `json:"ratio"`
	Change        float64          `json:"change"`
	Direction     dedupe.Direction `json:"direction"`
	LongAccount   float64          `json:"longAccount"`
	ShortAccount  float64          `json:"shortAccount"`
	WindowMinutes int              `json:"windowMinutes"`
	NotifiedAt    time.Time        `json:"notifiedAt"`
}

func (a RatioAlert) NotifiedTime() time.Time { return a.NotifiedAt }

func ratioFingerprint(a RatioAlert) (string, error) {
	if a.Symbol == "" {
		return "", errors.New("ratio alert missing symbol")
	}
	return fmt.Sprintf("%s|%s", a.Symbol, fixed(a.Ratio, 2)), nil
}

// RatioOptions configure the long/short ratio monitor.
type RatioOptions struct {
	ConfigKey    string
	HistoryKey   string
	Retention    time.Duration
	Window       time.Duration
	Lookback     time.Duration
	Period       string
	ChannelID    string
	MessageLimit int
	Now          func() time.Time
}

// Ratio alerts when the global long/short account ratio moves more than the
// configured threshold inside the window.
type Ratio struct {
	source ratioSource
	opts   RatioOptions
	series *window.SeriesSet
	store  *history.Store[RatioAlert]
	pub    *publisher[RatioAlert, RatioAlert]
	kv     storage.KV
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	configs []Config
}

// NewRatio wires the monitor over its collaborators.
func NewRatio(source ratioSource, kv storage.KV, notifier notify.Notifier, opts RatioOptions, logger zerolog.Logger) *Ratio {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Period == "" {
		opts.Period = "5m"
	}
	logger = logger.With().Str("component", "monitor").Str("task", "ratio").Logger()

	store := history.NewStore(kv, ratioFingerprint, history.Options{
		Key:       opts.HistoryKey,
		Retention: opts.Retention,
		Now:       now,
	}, logger)

	m := &Ratio{
		source: source,
		opts:   opts,
		series: window.NewSeriesSetAt(opts.Window, now),
		store:  store,
		kv:     kv,
		now:    now,
		logger: logger,
	}
	project := func(a RatioAlert) dedupe.Record {
		return dedupe.Record{Symbol: a.Symbol, Direction: a.Direction, Value: a.Ratio, Timestamp: a.NotifiedAt}
	}
	m.pub = &publisher[RatioAlert, RatioAlert]{
		store:      store,
		sink:       newSink(notifier, opts.ChannelID, opts.MessageLimit, logger),
		toRecord:   func(a RatioAlert) RatioAlert { return a },
		toDedupe:   project,
		fromRecord: project,
		dedupeOpts: func(a RatioAlert) dedupe.Options {
			return toleranceOptions(configFor(m.configs, a.Symbol), opts.Lookback, now)
		},
		format: formatRatioAlerts,
		logger: logger,
	}
	return m
}

func (m *Ratio) Name() string { return "ratio" }

// Run executes one monitoring pass. Overlapping invocations are serialized.
func (m *Ratio) Run(ctx context.Context) task.Result {
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
	var candidates []RatioAlert
	for _, cfg := range configs {
		counts.Processed++

		bucket, err := m.source.LongShortRatio(ctx, cfg.Symbol, m.opts.Period)
		if err != nil {
			counts.Failed++
			m.logger.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("long/short ratio fetch failed")
			continue
		}
		counts.Successful++

		ratio, _ := bucket.LongShortRatio.Float64()
		series := m.series.Ensure(cfg.Symbol, cfg.Window(m.opts.Window))
		series.Append(window.Sample{Value: ratio, Timestamp: m.now()})

		analysis := window.Analyze(series.Samples())
		if analysis == nil || abs(analysis.ChangeRate) <= cfg.Threshold {
			counts.Filtered++
			continue
		}

		long, _ := bucket.LongAccount.Float64()
		short, _ := bucket.ShortAccount.Float64()
		candidates = append(candidates, RatioAlert{
			Symbol:        cfg.Symbol,
			DisplayName:   cfg.Name(),
			Ratio:         ratio,
			Change:        analysis.ChangeRate,
			Direction:     dedupe.Classify(analysis.ChangeRate),
			LongAccount:   long,
			ShortAccount:  short,
			WindowMinutes: int(cfg.Window(m.opts.Window) / time.Minute),
			NotifiedAt:    m.now(),
		})
	}

	deliveryErr := m.pub.publish(ctx, candidates, &counts)
	return resolve(counts, deliveryErr, "long/short ratio scan complete")
}

func formatRatioAlerts(alerts []RatioAlert) string {
	lines := []string{"⚖️ Long/short ratio alerts"}
	for _, a := range alerts {
		change := fixed(a.Change, 2)
		if a.Change > 0 {
			change = "+" + change
		}
		lines = append(lines, fmt.Sprintf("%s: ratio %s (long %s / short %s), change %s over %dm",
			a.DisplayName, fixed(a.Ratio, 2),
			fixed(a.LongAccount*100, 1)+"%", fixed(a.ShortAccount*100, 1)+"%",
			change, a.WindowMinutes))
	}
	return joinLines(lines)
}

var _ Monitor = (*Ratio)(nil)

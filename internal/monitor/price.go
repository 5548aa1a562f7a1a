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

type priceSource interface {
	TickerPrice(ctx context.Context, symbol string) (exchange.TickerPrice, error)
}

// PriceAlert is one price fluctuation signal.
type PriceAlert struct {
	Symbol        string           `json:"symbol"`
	DisplayName   string           `json:"displayName,omitempty"`
	Price         float64          `json:"price"`
	ChangePct     float64          `json:"changePct"`
	Direction     dedupe.Direction `json:"direction"`
	WindowMinutes int              `json:"windowMinutes"`
	NotifiedAt    time.Time        `json:"notifiedAt"`
}

func (a PriceAlert) NotifiedTime() time.Time { return a.NotifiedAt }

func priceFingerprint(a PriceAlert) (string, error) {
	if a.Symbol == "" {
		return "", errors.New("price alert missing symbol")
	}
	return fmt.Sprintf("%s|%s|%d", a.Symbol, fixed(a.ChangePct, 2), a.WindowMinutes), nil
}

// PriceOptions configure the price fluctuation monitor.
type PriceOptions struct {
	ConfigKey    string
	HistoryKey   string
	Retention    time.Duration
	Window       time.Duration
	Lookback     time.Duration
	ChannelID    string
	MessageLimit int
	Now          func() time.Time
}

// Price alerts when a symbol's price moves more than the configured percent
// inside the window. Threshold is interpreted in percent.
type Price struct {
	source priceSource
	opts   PriceOptions
	series *window.SeriesSet
	store  *history.Store[PriceAlert]
	pub    *publisher[PriceAlert, PriceAlert]
	kv     storage.KV
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	configs []Config
}

// NewPrice wires the monitor over its collaborators.
func NewPrice(source priceSource, kv storage.KV, notifier notify.Notifier, opts PriceOptions, logger zerolog.Logger) *Price {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger = logger.With().Str("component", "monitor").Str("task", "price").Logger()

	store := history.NewStore(kv, priceFingerprint, history.Options{
		Key:       opts.HistoryKey,
		Retention: opts.Retention,
		Now:       now,
	}, logger)

	m := &Price{
		source: source,
		opts:   opts,
		series: window.NewSeriesSetAt(opts.Window, now),
		store:  store,
		kv:     kv,
		now:    now,
		logger: logger,
	}
	project := func(a PriceAlert) dedupe.Record {
		return dedupe.Record{Symbol: a.Symbol, Direction: a.Direction, Value: a.ChangePct, Timestamp: a.NotifiedAt}
	}
	m.pub = &publisher[PriceAlert, PriceAlert]{
		store:      store,
		sink:       newSink(notifier, opts.ChannelID, opts.MessageLimit, logger),
		toRecord:   func(a PriceAlert) PriceAlert { return a },
		toDedupe:   project,
		fromRecord: project,
		dedupeOpts: func(a PriceAlert) dedupe.Options {
			return toleranceOptions(configFor(m.configs, a.Symbol), opts.Lookback, now)
		},
		format: formatPriceAlerts,
		logger: logger,
	}
	return m
}

func (m *Price) Name() string { return "price" }

// Run executes one monitoring pass. Overlapping invocations are serialized.
func (m *Price) Run(ctx context.Context) task.Result {
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
	var candidates []PriceAlert
	for _, cfg := range configs {
		counts.Processed++

		ticker, err := m.source.TickerPrice(ctx, cfg.Symbol)
		if err != nil {
			counts.Failed++
			m.logger.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("ticker price fetch failed")
			continue
		}
		counts.Successful++

		price, _ := ticker.Price.Float64()
		series := m.series.Ensure(cfg.Symbol, cfg.Window(m.opts.Window))
		series.Append(window.Sample{Value: price, Timestamp: m.now()})

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

		candidates = append(candidates, PriceAlert{
			Symbol:        cfg.Symbol,
			DisplayName:   cfg.Name(),
			Price:         price,
			ChangePct:     changePct,
			Direction:     dedupe.Classify(changePct),
			WindowMinutes: int(cfg.Window(m.opts.Window) / time.Minute),
			NotifiedAt:    m.now(),
		})
	}

	deliveryErr := m.pub.publish(ctx, candidates, &counts)
	return resolve(counts, deliveryErr, "price scan complete")
}

func formatPriceAlerts(alerts []PriceAlert) string {
	lines := []string{"💹 Price fluctuation alerts"}
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("%s: price %s, change %s over %dm",
			a.DisplayName, fixed(a.Price, 4), signedPercent(a.ChangePct, 2), a.WindowMinutes))
	}
	return joinLines(lines)
}

var _ Monitor = (*Price)(nil)

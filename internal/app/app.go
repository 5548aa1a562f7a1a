package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/config"
	"market-signal-alerts/internal/exchange"
	"market-signal-alerts/internal/monitor"
	"market-signal-alerts/internal/notify"
	"market-signal-alerts/internal/storage"
	"market-signal-alerts/internal/task"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openKV builds the configured KV backend. The returned closer is nil for
// backends without connections to release.
func (a *App) openKV(ctx context.Context) (storage.KV, func(), error) {
	switch a.Config.Storage.Driver {
	case "redis":
		kv, err := storage.NewRedisKV(ctx, storage.RedisOptions{
			Addr:     a.Config.Storage.Redis.Addr,
			Password: a.Config.Storage.Redis.Password,
			DB:       a.Config.Storage.Redis.DB,
			Prefix:   a.Config.Storage.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { kv.Close() }, nil
	case "postgres":
		kv, err := storage.NewPostgresKV(ctx, storage.PostgresOptions{
			DSN:             a.Config.Storage.Postgres.DSN,
			MaxOpenConns:    a.Config.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    a.Config.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: a.Config.Storage.Postgres.ConnMaxLifetime,
			Prefix:          a.Config.Storage.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { kv.Close() }, nil
	case "memory":
		a.Logger.Warn().Msg("memory storage configured; dedupe history will not survive restarts")
		return storage.NewMemoryKV(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
	}
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notify.Channel == "telegram" {
		cfg := a.Config.Notify.Telegram
		return notify.NewTelegram(cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return notify.NewConsole()
}

func (a *App) channelID() string {
	if a.Config.Notify.Channel == "telegram" {
		return a.Config.Notify.Telegram.ChatID
	}
	return "stdout"
}

func (a *App) newExchange() *exchange.Client {
	return exchange.NewClient(exchange.Options{
		BaseURL:         a.Config.Exchange.BaseURL,
		AnnouncementURL: a.Config.Exchange.AnnouncementURL,
		UserAgent:       a.Config.Exchange.UserAgent,
		Timeout:         a.Config.Exchange.RequestTimeout,
		Retries:         a.Config.Exchange.Retries,
		MinRequestDelay: a.Config.Exchange.MinRequestDelay,
		MaxRandomDelay:  a.Config.Exchange.MaxRandomDelay,
	}, a.Logger)
}

// configKey and historyKey name a task's two KV slots.
func configKey(name string) string  { return "config:" + name }
func historyKey(name string) string { return "history:" + name }

func (a *App) buildMonitors(kv storage.KV, client *exchange.Client, notifier notify.Notifier) []monitor.Monitor {
	channel := a.channelID()
	limit := a.Config.Notify.MessageLimit

	var monitors []monitor.Monitor
	for name, mc := range a.Config.EnabledMonitors() {
		switch name {
		case "fundingrate":
			monitors = append(monitors, monitor.NewFundingRate(client, kv, notifier, monitor.FundingRateOptions{
				ConfigKey:    configKey(name),
				HistoryKey:   historyKey(name),
				Retention:    mc.Retention,
				Window:       mc.Window,
				Lookback:     mc.Lookback,
				ChannelID:    channel,
				MessageLimit: limit,
			}, a.Logger))
		case "ratio":
			monitors = append(monitors, monitor.NewRatio(client, kv, notifier, monitor.RatioOptions{
				ConfigKey:    configKey(name),
				HistoryKey:   historyKey(name),
				Retention:    mc.Retention,
				Window:       mc.Window,
				Lookback:     mc.Lookback,
				Period:       mc.Period,
				ChannelID:    channel,
				MessageLimit: limit,
			}, a.Logger))
		case "openinterest":
			monitors = append(monitors, monitor.NewOpenInterest(client, kv, notifier, monitor.OpenInterestOptions{
				ConfigKey:    configKey(name),
				HistoryKey:   historyKey(name),
				Retention:    mc.Retention,
				Window:       mc.Window,
				Lookback:     mc.Lookback,
				ChannelID:    channel,
				MessageLimit: limit,
			}, a.Logger))
		case "price":
			monitors = append(monitors, monitor.NewPrice(client, kv, notifier, monitor.PriceOptions{
				ConfigKey:    configKey(name),
				HistoryKey:   historyKey(name),
				Retention:    mc.Retention,
				Window:       mc.Window,
				Lookback:     mc.Lookback,
				ChannelID:    channel,
				MessageLimit: limit,
			}, a.Logger))
		case "listings":
			monitors = append(monitors, monitor.NewListings(client, kv, notifier, monitor.ListingsOptions{
				ConfigKey:    configKey(name),
				HistoryKey:   historyKey(name),
				Retention:    mc.Retention,
				ChannelID:    channel,
				MessageLimit: limit,
			}, a.Logger))
		}
	}
	return monitors
}

// Run executes the long-running monitoring service until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, closeKV, err := a.openKV(ctx)
	if err != nil {
		return err
	}
	if closeKV != nil {
		defer closeKV()
	}

	client := a.newExchange()
	defer client.Close()

	monitors := a.buildMonitors(kv, client, a.newNotifier())
	if len(monitors) == 0 {
		return fmt.Errorf("no monitors enabled")
	}

	runner := task.NewRunner(ctx, a.Logger)
	enabled := a.Config.EnabledMonitors()
	for _, m := range monitors {
		if err := runner.Register(m.Name(), enabled[m.Name()].Interval, m.Run); err != nil {
			return err
		}
	}

	a.Logger.Info().Strs("tasks", runner.Names()).Msg("starting monitoring service")
	runner.Start()
	<-ctx.Done()
	runner.Stop()
	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// RunOnce executes one named task immediately and reports its result. The
// run goes through the scheduler's execution path so the result carries the
// same duration stamp and log line as a scheduled run.
func (a *App) RunOnce(ctx context.Context, name string) (task.Result, error) {
	kv, closeKV, err := a.openKV(ctx)
	if err != nil {
		return task.Result{}, err
	}
	if closeKV != nil {
		defer closeKV()
	}

	client := a.newExchange()
	defer client.Close()

	runner := task.NewRunner(ctx, a.Logger)
	enabled := a.Config.EnabledMonitors()
	for _, m := range a.buildMonitors(kv, client, a.newNotifier()) {
		if err := runner.Register(m.Name(), enabled[m.Name()].Interval, m.Run); err != nil {
			return task.Result{}, err
		}
	}

	result, err := runner.RunOnce(ctx, name)
	if err != nil {
		return task.Result{}, fmt.Errorf("unknown or disabled task %q", name)
	}
	return result, nil
}

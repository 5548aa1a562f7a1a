// Package monitor implements the scheduled market-signal tasks. Each task
// follows the same shape: fetch per-symbol data through the shared request
// queue, fold it into a time window, keep candidates over the alert threshold,
// drop exact and near duplicates against persisted history, notify, persist.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-signal-alerts/internal/storage"
)

// Config is one monitored symbol's alert parameters, stored per task as a
// JSON array in the KV store so symbols can be added without a redeploy.
type Config struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"displayName,omitempty"`
	// Threshold is the minimum absolute window change that raises an alert.
	Threshold float64 `json:"threshold"`
	// WindowMinutes bounds the analysis window for this symbol.
	WindowMinutes int `json:"windowMinutes,omitempty"`
	// LookbackMinutes bounds how far back the near-duplicate filter looks.
	LookbackMinutes int `json:"lookbackMinutes,omitempty"`
	// ToleranceAbs and TolerancePercent define "the same situation" for the
	// near-duplicate filter.
	ToleranceAbs     float64 `json:"toleranceAbs,omitempty"`
	TolerancePercent float64 `json:"tolerancePercent,omitempty"`
}

// Name returns the human-facing label for alert messages.
func (c Config) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Symbol
}

// Window returns the analysis window, falling back when unconfigured.
func (c Config) Window(fallback time.Duration) time.Duration {
	if c.WindowMinutes > 0 {
		return time.Duration(c.WindowMinutes) * time.Minute
	}
	return fallback
}

// Lookback returns the near-duplicate lookback, falling back when unconfigured.
func (c Config) Lookback(fallback time.Duration) time.Duration {
	if c.LookbackMinutes > 0 {
		return time.Duration(c.LookbackMinutes) * time.Minute
	}
	return fallback
}

// configFor finds a symbol's config within a run's loaded set, falling back
// to a zero config carrying only the symbol.
func configFor(configs []Config, symbol string) Config {
	for _, cfg := range configs {
		if cfg.Symbol == symbol {
			return cfg
		}
	}
	return Config{Symbol: symbol}
}

// LoadConfigs reads a task's symbol configs from the KV store. A missing key
// means the task is not configured yet and is a clean no-op, not an error.
func LoadConfigs(ctx context.Context, kv storage.KV, key string) ([]Config, error) {
	raw, err := kv.GetItem(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read monitor config %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var configs []Config
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, fmt.Errorf("parse monitor config %s: %w", key, err)
	}
	return configs, nil
}

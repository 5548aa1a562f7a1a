package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"market-signal-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Monitors MonitorsConfig `mapstructure:"monitors"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects and configures the KV backend holding monitor
// configuration and alert history.
type StorageConfig struct {
	// Driver is one of redis, postgres, memory.
	Driver   string         `mapstructure:"driver"`
	Prefix   string         `mapstructure:"prefix"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig encapsulates PostgreSQL connectivity.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExchangeConfig covers upstream market-data access.
type ExchangeConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	AnnouncementURL string        `mapstructure:"announcement_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	Retries         int           `mapstructure:"retries"`
	MinRequestDelay time.Duration `mapstructure:"min_request_delay"`
	MaxRandomDelay  time.Duration `mapstructure:"max_random_delay"`
}

// NotifyConfig defines alert routing.
type NotifyConfig struct {
	// Channel is one of telegram, console.
	Channel      string         `mapstructure:"channel"`
	MessageLimit int            `mapstructure:"message_limit"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MonitorConfig governs one scheduled task's cadence and dedupe windows. The
// per-symbol parameters live in the KV store, not here.
type MonitorConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	Window    time.Duration `mapstructure:"window"`
	Lookback  time.Duration `mapstructure:"lookback"`
	Retention time.Duration `mapstructure:"retention"`
	// Period applies to the ratio task only.
	Period string `mapstructure:"period"`
}

// MonitorsConfig groups the scheduled tasks.
type MonitorsConfig struct {
	FundingRate  MonitorConfig `mapstructure:"fundingrate"`
	Ratio        MonitorConfig `mapstructure:"ratio"`
	OpenInterest MonitorConfig `mapstructure:"openinterest"`
	Price        MonitorConfig `mapstructure:"price"`
	Listings     MonitorConfig `mapstructure:"listings"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sigwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.driver", "redis")
	v.SetDefault("storage.prefix", "sigwatch:")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.postgres.max_open_conns", 10)
	v.SetDefault("storage.postgres.max_idle_conns", 5)
	v.SetDefault("storage.postgres.conn_max_lifetime", "30m")

	v.SetDefault("exchange.base_url", "https://fapi.binance.com")
	v.SetDefault("exchange.announcement_url", "https://www.binance.com")
	v.SetDefault("exchange.user_agent", "sigwatch/1.0")
	v.SetDefault("exchange.request_timeout", "8s")
	v.SetDefault("exchange.retries", 2)
	v.SetDefault("exchange.min_request_delay", "500ms")
	v.SetDefault("exchange.max_random_delay", "1s")

	v.SetDefault("notify.channel", "console")
	v.SetDefault("notify.message_limit", 4096)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	for _, name := range []string{"fundingrate", "ratio", "openinterest", "price", "listings"} {
		v.SetDefault("monitors."+name+".enabled", false)
		v.SetDefault("monitors."+name+".interval", "1m")
		v.SetDefault("monitors."+name+".window", "30m")
		v.SetDefault("monitors."+name+".lookback", "1h")
		v.SetDefault("monitors."+name+".retention", "24h")
	}
	v.SetDefault("monitors.fundingrate.interval", "5m")
	v.SetDefault("monitors.ratio.period", "5m")
	v.SetDefault("monitors.listings.interval", "10m")
	v.SetDefault("monitors.listings.retention", "168h")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be redis, postgres, or memory")
	}
	if c.Storage.Driver == "postgres" && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn 必须配置")
	}
	if c.Exchange.RequestTimeout <= 0 {
		return fmt.Errorf("exchange.request_timeout must be greater than zero")
	}
	if c.Exchange.Retries < 0 {
		return fmt.Errorf("exchange.retries cannot be negative")
	}
	if c.Notify.MessageLimit <= 0 {
		return fmt.Errorf("notify.message_limit must be greater than zero")
	}
	switch c.Notify.Channel {
	case "telegram":
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	case "console":
	default:
		return fmt.Errorf("notify.channel must be telegram or console")
	}
	for name, m := range c.EnabledMonitors() {
		if m.Interval <= 0 {
			return fmt.Errorf("monitors.%s.interval must be greater than zero", name)
		}
		if m.Retention <= 0 {
			return fmt.Errorf("monitors.%s.retention must be greater than zero", name)
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// EnabledMonitors returns the enabled tasks keyed by task name.
func (c *Config) EnabledMonitors() map[string]MonitorConfig {
	all := map[string]MonitorConfig{
		"fundingrate":  c.Monitors.FundingRate,
		"ratio":        c.Monitors.Ratio,
		"openinterest": c.Monitors.OpenInterest,
		"price":        c.Monitors.Price,
		"listings":     c.Monitors.Listings,
	}
	enabled := make(map[string]MonitorConfig)
	for name, m := range all {
		if m.Enabled {
			enabled[name] = m
		}
	}
	return enabled
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

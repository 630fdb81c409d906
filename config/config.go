package config

import (
	"fmt"
	"strings"
	"time"

	"bybitfeed/pkg/bybit"

	"github.com/spf13/viper"
)

type Config struct {
	Bybit BybitConfig `mapstructure:"bybit"`
	Feed  FeedConfig  `mapstructure:"feed"`
	Log   LogConfig   `mapstructure:"log"`
}

type BybitConfig struct {
	Testnet bool       `mapstructure:"testnet"`
	REST    RESTConfig `mapstructure:"rest"`
	WS      WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL          string        `mapstructure:"url"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

type FeedConfig struct {
	Symbol            string        `mapstructure:"symbol"`
	Intervals         []string      `mapstructure:"intervals"`
	TradeBuffer       int           `mapstructure:"trade_buffer"`
	LiquidationBuffer int           `mapstructure:"liquidation_buffer"`
	CandleBuffer      int           `mapstructure:"candle_buffer"`
	Backfill          bool          `mapstructure:"backfill"`
	Staleness         time.Duration `mapstructure:"staleness"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// WSURL resolves the stream endpoint: an explicit URL wins, otherwise the
// testnet flag picks between the public endpoints.
func (c *Config) WSURL() string {
	if c.Bybit.WS.URL != "" {
		return c.Bybit.WS.URL
	}
	if c.Bybit.Testnet {
		return bybit.TestnetWSURL
	}
	return bybit.MainnetWSURL
}

// RESTURL resolves the REST endpoint the same way.
func (c *Config) RESTURL() string {
	if c.Bybit.REST.BaseURL != "" {
		return c.Bybit.REST.BaseURL
	}
	if c.Bybit.Testnet {
		return bybit.TestnetRESTURL
	}
	return bybit.MainnetRESTURL
}

// Load loads application configuration using Viper.
// It reads config.yaml from the given directory and overrides with
// environment variables (e.g. FEED_SYMBOL, BYBIT_WS_URL).
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// Support environment variables with dot notation (e.g., BYBIT_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bybit.rest.timeout", 10*time.Second)
	v.SetDefault("bybit.ws.ping_interval", 20*time.Second)
	v.SetDefault("bybit.ws.read_timeout", 40*time.Second)
	v.SetDefault("feed.intervals", []string{"1", "5", "15"})
	v.SetDefault("feed.trade_buffer", 100)
	v.SetDefault("feed.liquidation_buffer", 100)
	v.SetDefault("feed.candle_buffer", 500)
	v.SetDefault("feed.backfill", true)
	v.SetDefault("feed.staleness", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "prod")
}

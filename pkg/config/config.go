package config

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Overflow policies for a subscriber's outbound queue.
const (
	OverflowDisconnect = "disconnect"
	OverflowDropOldest = "drop_oldest"
	OverflowDropNewest = "drop_newest"
)

// Feed sources.
const (
	SourceKafka   = "kafka"
	SourceBinance = "binance"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Symbols   SymbolsConfig   `mapstructure:"symbols"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Query     QueryConfig     `mapstructure:"query"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type AppConfig struct {
	Port   string `mapstructure:"port"`    // HTTP query surface
	WSPort string `mapstructure:"ws_port"` // push socket
	Env    string `mapstructure:"env"`     // e.g., "local", "prod"
}

type RelayConfig struct {
	Spread         string `mapstructure:"spread"`
	PriceScale     int32  `mapstructure:"price_scale"`
	Workers        int    `mapstructure:"workers"`
	WorkerBuffer   int    `mapstructure:"worker_buffer"`
	QueueSize      int    `mapstructure:"queue_size"`
	OverflowPolicy string `mapstructure:"overflow_policy"`
}

// SpreadDecimal returns the configured additive spread.
func (r RelayConfig) SpreadDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(r.Spread))
}

type SymbolsConfig struct {
	// Mapping is upstream symbol -> downstream symbol.
	Mapping map[string]string `mapstructure:"mapping"`
}

type FeedConfig struct {
	Source string `mapstructure:"source"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type BinanceConfig struct {
	URL     string   `mapstructure:"url"`
	Symbols []string `mapstructure:"symbols"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type QueryConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	QPS     float64 `mapstructure:"qps"`
	Burst   int     `mapstructure:"burst"`
}

type GeneratorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultMapping is the MT4-compatible symbol table used when none is configured.
var DefaultMapping = map[string]string{
	"BTCUSDT":  "BTCUSD",
	"ETHUSDT":  "ETHUSD",
	"BNBUSDT":  "BNBUSD",
	"XRPUSDT":  "XRPUSD",
	"ADAUSDT":  "ADAUSD",
	"DOGEUSDT": "DOGEUSD",
	"SOLUSDT":  "SOLUSD",
}

// LoadConfig reads configuration from defaults, an optional config file, .env and environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment if present
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8000")
	v.SetDefault("app.ws_port", ":8001")
	v.SetDefault("app.env", "local")

	v.SetDefault("relay.spread", "0.00001")
	v.SetDefault("relay.price_scale", 8)
	v.SetDefault("relay.workers", 4)
	v.SetDefault("relay.worker_buffer", 1024)
	v.SetDefault("relay.queue_size", 256)
	v.SetDefault("relay.overflow_policy", OverflowDisconnect)

	v.SetDefault("symbols.mapping", DefaultMapping)

	v.SetDefault("feed.source", SourceKafka)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_trades")
	v.SetDefault("kafka.group_id", "price-relay")

	v.SetDefault("binance.url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.symbols", []string{})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("query.rate_limit.enabled", false)
	v.SetDefault("query.rate_limit.qps", 50.0)
	v.SetDefault("query.rate_limit.burst", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("generator.interval", 100*time.Millisecond)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", path, err)
		}
	}

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.ws_port", "app.env")
	bindEnv(v, "relay.spread", "relay.price_scale", "relay.workers", "relay.worker_buffer", "relay.queue_size", "relay.overflow_policy")
	bindEnv(v, "feed.source")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "binance.url", "binance.symbols")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.ttl")
	bindEnv(v, "query.rate_limit.enabled", "query.rate_limit.qps", "query.rate_limit.burst")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "generator.interval")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Viper lower-cases map keys; symbols are upper case on both sides.
	mapping := cfg.Symbols.Mapping
	if raw := os.Getenv("SYMBOLS_MAPPING"); raw != "" {
		parsed, err := ParseMapping(raw)
		if err != nil {
			return nil, err
		}
		mapping = parsed
	}
	cfg.Symbols.Mapping = upperMapping(mapping)

	if len(cfg.Binance.Symbols) == 0 {
		cfg.Binance.Symbols = cfg.Symbols.Upstream()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the relay cannot run without.
func (c *Config) Validate() error {
	spread, err := c.Relay.SpreadDecimal()
	if err != nil {
		return fmt.Errorf("relay.spread %q is not a decimal: %w", c.Relay.Spread, err)
	}
	if spread.IsNegative() {
		return fmt.Errorf("relay.spread cannot be negative")
	}
	if c.Relay.PriceScale < 0 {
		return fmt.Errorf("relay.price_scale cannot be negative")
	}
	if !spread.Equal(spread.Round(c.Relay.PriceScale)) {
		return fmt.Errorf("relay.spread %s has more than %d fractional digits", spread, c.Relay.PriceScale)
	}
	if c.Relay.Workers <= 0 {
		return fmt.Errorf("relay.workers must be positive")
	}
	if c.Relay.WorkerBuffer <= 0 {
		return fmt.Errorf("relay.worker_buffer must be positive")
	}
	if c.Relay.QueueSize <= 0 {
		return fmt.Errorf("relay.queue_size must be positive")
	}
	switch c.Relay.OverflowPolicy {
	case OverflowDisconnect, OverflowDropOldest, OverflowDropNewest:
	default:
		return fmt.Errorf("unknown relay.overflow_policy %q", c.Relay.OverflowPolicy)
	}
	switch c.Feed.Source {
	case SourceKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers cannot be empty")
		}
	case SourceBinance:
		if len(c.Binance.Symbols) == 0 {
			return fmt.Errorf("binance.symbols cannot be empty")
		}
	default:
		return fmt.Errorf("unknown feed.source %q", c.Feed.Source)
	}
	return nil
}

// Upstream returns the mapped upstream symbols in sorted order.
func (s SymbolsConfig) Upstream() []string {
	out := make([]string, 0, len(s.Mapping))
	for k := range s.Mapping {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseMapping parses "BTCUSDT:BTCUSD,ETHUSDT:ETHUSD".
func ParseMapping(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("invalid symbol mapping entry %q", pair)
		}
		out[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	return out, nil
}

func upperMapping(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return out
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}

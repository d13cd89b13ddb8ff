package config_test

import (
	"testing"
	"time"

	"github.com/shok8899/hq11/pkg/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Port != ":8000" || cfg.App.WSPort != ":8001" {
		t.Errorf("unexpected ports %q %q", cfg.App.Port, cfg.App.WSPort)
	}
	if cfg.Relay.Spread != "0.00001" || cfg.Relay.PriceScale != 8 {
		t.Errorf("unexpected spread settings %+v", cfg.Relay)
	}
	if cfg.Symbols.Mapping["BTCUSDT"] != "BTCUSD" {
		t.Errorf("default mapping missing BTCUSDT, got %v", cfg.Symbols.Mapping)
	}
	if len(cfg.Binance.Symbols) != len(config.DefaultMapping) {
		t.Errorf("binance symbols should default to mapping keys, got %v", cfg.Binance.Symbols)
	}
	if cfg.Redis.TTL != time.Hour {
		t.Errorf("expected 1h redis ttl, got %s", cfg.Redis.TTL)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", ":9000")
	t.Setenv("RELAY_OVERFLOW_POLICY", "drop_oldest")
	t.Setenv("SYMBOLS_MAPPING", "btcusdt:xbtusd, ethusdt:ethusd")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Port != ":9000" {
		t.Errorf("APP_PORT not applied, got %q", cfg.App.Port)
	}
	if cfg.Relay.OverflowPolicy != config.OverflowDropOldest {
		t.Errorf("overflow policy not applied, got %q", cfg.Relay.OverflowPolicy)
	}
	if got := cfg.Symbols.Mapping["BTCUSDT"]; got != "XBTUSD" {
		t.Errorf("expected upper-cased mapping XBTUSD, got %q", got)
	}
	if len(cfg.Symbols.Mapping) != 2 {
		t.Errorf("mapping should be replaced, got %v", cfg.Symbols.Mapping)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoadConfig_RejectsBadSettings(t *testing.T) {
	cases := map[string][2]string{
		"unknown policy":   {"RELAY_OVERFLOW_POLICY", "block"},
		"spread not dec":   {"RELAY_SPREAD", "abc"},
		"negative spread":  {"RELAY_SPREAD", "-0.1"},
		"spread too fine":  {"RELAY_SPREAD", "0.000000001"},
		"zero queue":       {"RELAY_QUEUE_SIZE", "0"},
		"unknown source":   {"FEED_SOURCE", "carrier-pigeon"},
		"bad mapping pair": {"SYMBOLS_MAPPING", "BTCUSDT"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := config.LoadConfig(); err == nil {
				t.Errorf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := config.NewLogger(config.LoggerConfig{Level: "debug", Encoding: "console"}); err != nil {
		t.Errorf("expected valid logger, got %v", err)
	}
	if _, err := config.NewLogger(config.LoggerConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := config.NewLogger(config.LoggerConfig{Encoding: "xml"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

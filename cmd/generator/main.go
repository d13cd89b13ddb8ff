package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/generator/internal/generator"
	"github.com/shok8899/hq11/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure the topic exists
	tc := generator.NewTopicCreator(logger, generator.BrokerDialer{Dialer: kafka.DefaultDialer}, generator.SystemClock{})
	if err := tc.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 4); err != nil {
		logger.Warn("Topic setup incomplete", zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // same symbol, same partition
		// Send batches to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	gen := generator.NewTradeGenerator(logger, writer, basePrices(cfg.Symbols.Upstream()), generator.NewRealRand(), generator.SystemClock{}, cfg.Generator.Interval)
	gen.Run(ctx)

	logger.Info("Shutdown signal received")

	// Flush Kafka buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}

// basePrices seeds every configured upstream symbol, falling back to 100 for
// pairs without a known reference price.
func basePrices(upstream []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(upstream))
	for _, s := range upstream {
		if p, ok := generator.DefaultBasePrices[s]; ok {
			out[s] = p
		} else {
			out[s] = decimal.NewFromInt(100)
		}
	}
	return out
}

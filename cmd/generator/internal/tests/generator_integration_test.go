package tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/generator/internal/generator"
	"github.com/shok8899/hq11/cmd/generator/internal/testutils"
	"github.com/shok8899/hq11/pkg/models"
)

func TestGenerator_ComponentWiring(t *testing.T) {
	// Simulates the main loop with a fake output
	logger := zap.NewNop()
	mockWriter := &testutils.MockKafkaWriter{}

	mockClock := &testutils.MockClock{CurrentTime: time.Now()}
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.9}

	basePrices := map[string]decimal.Decimal{
		"BTCUSDT": decimal.NewFromInt(27000),
		"ETHUSDT": decimal.NewFromInt(1650),
	}

	gen := generator.NewTradeGenerator(logger, mockWriter, basePrices, mockRand, mockClock, 100*time.Millisecond)

	// MockClock.Sleep only advances virtual time, so the loop runs as fast as the CPU allows
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	gen.Run(ctx)

	mockWriter.Mu.Lock()
	defer mockWriter.Mu.Unlock()

	if len(mockWriter.Messages) == 0 {
		t.Fatal("Generator failed to produce any messages in component test")
	}

	// Symbols are sorted, so index 0 is BTCUSDT; 0.9 walks the price upward
	prev := decimal.NewFromInt(27000)
	for _, msg := range mockWriter.Messages {
		if string(msg.Key) != "BTCUSDT" {
			t.Fatalf("Expected BTCUSDT based on MockRand, got %s", msg.Key)
		}
		var ev models.TradeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			t.Fatalf("invalid payload %s", msg.Value)
		}
		price, err := ev.Price.Decimal()
		if err != nil {
			t.Fatalf("price %q is not a decimal", ev.Price)
		}
		if !price.GreaterThan(prev) {
			t.Errorf("Expected an increasing walk, %s after %s", price, prev)
		}
		prev = price
	}
}

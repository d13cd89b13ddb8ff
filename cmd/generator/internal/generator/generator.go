package generator

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/pkg/models"
)

var (
	// maxStep bounds one random-walk move as a fraction of the base price.
	maxStep  = decimal.RequireFromString("0.002")
	floorPct = decimal.RequireFromString("0.5")
	maxQty   = decimal.NewFromInt(2)
	minQty   = decimal.RequireFromString("0.0001")
	half     = decimal.RequireFromString("0.5")
)

// DefaultBasePrices seeds the walk for the default upstream pairs.
var DefaultBasePrices = map[string]decimal.Decimal{
	"BTCUSDT":  decimal.NewFromInt(27000),
	"ETHUSDT":  decimal.NewFromInt(1650),
	"BNBUSDT":  decimal.NewFromInt(215),
	"XRPUSDT":  decimal.RequireFromString("0.52"),
	"ADAUSDT":  decimal.RequireFromString("0.26"),
	"DOGEUSDT": decimal.RequireFromString("0.062"),
	"SOLUSDT":  decimal.NewFromInt(21),
}

// TradeGenerator writes synthetic upstream trades to Kafka.
type TradeGenerator struct {
	logger     *zap.Logger
	writer     KafkaWriter
	symbols    []string
	basePrices map[string]decimal.Decimal
	last       map[string]decimal.Decimal
	rand       Rand
	clock      Clock
	interval   time.Duration
}

func NewTradeGenerator(
	logger *zap.Logger,
	writer KafkaWriter,
	basePrices map[string]decimal.Decimal,
	rnd Rand,
	clock Clock,
	interval time.Duration,
) *TradeGenerator {
	symbols := make([]string, 0, len(basePrices))
	last := make(map[string]decimal.Decimal, len(basePrices))
	for s, p := range basePrices {
		symbols = append(symbols, s)
		last[s] = p
	}
	sort.Strings(symbols)

	return &TradeGenerator{
		logger:     logger,
		writer:     writer,
		symbols:    symbols,
		basePrices: basePrices,
		last:       last,
		rand:       rnd,
		clock:      clock,
		interval:   interval,
	}
}

// Next produces one trade for a random symbol and advances its walk.
func (g *TradeGenerator) Next() models.TradeEvent {
	symbol := g.symbols[g.rand.Intn(len(g.symbols))]
	base := g.basePrices[symbol]

	// step in [-maxStep, +maxStep) of the base price
	r := decimal.NewFromFloat(g.rand.Float64())
	step := base.Mul(maxStep).Mul(r.Sub(half).Mul(decimal.NewFromInt(2)))
	price := g.last[symbol].Add(step)
	if floor := base.Mul(floorPct); price.LessThan(floor) {
		price = floor
	}
	g.last[symbol] = price

	qty := maxQty.Mul(decimal.NewFromFloat(g.rand.Float64())).Round(4)
	if qty.LessThan(minQty) {
		qty = minQty
	}

	return models.TradeEvent{
		Symbol:    symbol,
		Price:     models.Amount(price.StringFixed(priceScale(base))),
		Quantity:  models.Amount(qty.StringFixed(4)),
		TradeTime: g.clock.Now().UnixMilli(),
	}
}

// priceScale keeps two decimals for ordinary prices and enough digits for
// sub-dollar pairs to still move.
func priceScale(base decimal.Decimal) int32 {
	if base.LessThan(decimal.NewFromInt(1)) {
		return 5
	}
	return 2
}

func (g *TradeGenerator) Run(ctx context.Context) {
	g.logger.Info("Generator Started", zap.Strings("symbols", g.symbols))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(g.symbols) == 0 {
				g.clock.Sleep(1 * time.Second)
				continue
			}

			ev := g.Next()
			payload, err := json.Marshal(ev)
			if err != nil {
				g.logger.Error("JSON Marshal Error", zap.Error(err))
				continue
			}

			err = g.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(ev.Symbol), // Key ensures partition ordering
				Value: payload,
			})
			if err != nil {
				g.logger.Error("Kafka Write Error", zap.Error(err))
			} else {
				g.logger.Debug("Sent trade", zap.String("symbol", ev.Symbol), zap.Stringer("price", ev.Price))
			}

			g.clock.Sleep(g.interval)
		}
	}
}

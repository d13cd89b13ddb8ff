package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/pkg/models"
)

// binanceTrade is the payload of a <symbol>@trade stream.
type binanceTrade struct {
	Symbol    string        `json:"s"`
	Price     models.Amount `json:"p"`
	Quantity  models.Amount `json:"q"`
	TradeTime int64         `json:"T"`
}

// binanceEnvelope wraps every message on a combined stream.
type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceStreamURL builds the combined-stream URL for the trade streams of syms.
func BinanceStreamURL(base string, syms []string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse binance url")
	}
	streams := make([]string, 0, len(syms))
	for _, s := range syms {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			streams = append(streams, s+"@trade")
		}
	}
	if len(streams) == 0 {
		return "", errors.New("no binance symbols configured")
	}
	// Stream names go in unescaped; Binance rejects %40 and %2F.
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// BinanceSource reads trades from the Binance combined trade stream.
// It does not reconnect: once the socket fails, every read returns ErrClosed.
type BinanceSource struct {
	conn      *websocket.Conn
	logger    *zap.Logger
	watchOnce sync.Once
	closeOnce sync.Once
}

// DialBinance connects to the trade streams of syms.
func DialBinance(ctx context.Context, base string, syms []string, logger *zap.Logger) (*BinanceSource, error) {
	streamURL, err := BinanceStreamURL(base, syms)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial binance")
	}
	logger.Info("Connected to Binance", zap.String("url", streamURL), zap.Int("streams", len(syms)))
	return &BinanceSource{conn: conn, logger: logger}, nil
}

func (b *BinanceSource) ReadTrade(ctx context.Context) (models.TradeEvent, error) {
	// The socket read cannot observe ctx, so closing the socket unblocks it.
	b.watchOnce.Do(func() {
		context.AfterFunc(ctx, func() { _ = b.Close() })
	})

	_, msg, err := b.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return models.TradeEvent{}, ctx.Err()
		}
		return models.TradeEvent{}, errors.WithMessagef(ErrClosed, "binance read: %v", err)
	}
	return DecodeBinanceTrade(msg)
}

func (b *BinanceSource) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.logger.Info("Closing Binance stream")
		err = b.conn.Close()
	})
	return err
}

// DecodeBinanceTrade accepts either a combined-stream envelope or a bare
// trade payload.
func DecodeBinanceTrade(msg []byte) (models.TradeEvent, error) {
	payload := msg
	var env binanceEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return models.TradeEvent{}, errors.Wrap(err, "decode binance frame")
	}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		payload = env.Data
	}

	var t binanceTrade
	if err := json.Unmarshal(payload, &t); err != nil {
		return models.TradeEvent{}, errors.Wrapf(err, "decode binance trade from %q", env.Stream)
	}
	if t.Symbol == "" {
		return models.TradeEvent{}, errors.Errorf("binance frame without symbol from %q", env.Stream)
	}
	return models.TradeEvent{
		Symbol:    strings.ToUpper(t.Symbol),
		Price:     t.Price,
		Quantity:  t.Quantity,
		TradeTime: t.TradeTime,
	}, nil
}

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/pkg/config"
	"github.com/shok8899/hq11/pkg/models"
)

// ErrClosed reports that the upstream connection is gone. It wraps io.EOF so
// the relay treats it as the end of the feed.
var ErrClosed = fmt.Errorf("feed closed: %w", io.EOF)

// KafkaReader abstracts the input stream
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaReader builds a consumer-group reader for the trades topic.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 200,
		MaxBytes: 10e6,
		MaxWait:  200 * time.Millisecond,
		// Latest price is all that matters, so commit eagerly
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})
}

// KafkaSource decodes JSON trade events from a Kafka topic.
type KafkaSource struct {
	reader KafkaReader
	logger *zap.Logger
}

func NewKafkaSource(reader KafkaReader, logger *zap.Logger) *KafkaSource {
	return &KafkaSource{reader: reader, logger: logger}
}

func (s *KafkaSource) ReadTrade(ctx context.Context) (models.TradeEvent, error) {
	m, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.TradeEvent{}, ErrClosed
		}
		return models.TradeEvent{}, err
	}

	ev, err := DecodeTrade(m.Value)
	if err != nil {
		return models.TradeEvent{}, errors.Wrapf(err, "partition %d offset %d", m.Partition, m.Offset)
	}
	// Producers key messages by symbol; fall back to it for bare payloads
	if ev.Symbol == "" && len(m.Key) > 0 {
		ev.Symbol = string(m.Key)
	}
	ev.Symbol = strings.ToUpper(strings.TrimSpace(ev.Symbol))
	return ev, nil
}

func (s *KafkaSource) Close() error {
	s.logger.Info("Closing Kafka Reader...")
	return s.reader.Close()
}

// DecodeTrade parses one JSON TradeEvent.
func DecodeTrade(payload []byte) (models.TradeEvent, error) {
	var ev models.TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.TradeEvent{}, errors.Wrap(err, "decode trade")
	}
	return ev, nil
}

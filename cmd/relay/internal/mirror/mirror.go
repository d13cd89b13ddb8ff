// Package mirror copies price records into Redis for consumers outside the
// relay process.
package mirror

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/relay/internal/outbox"
	"github.com/shok8899/hq11/pkg/models"
)

const (
	keyPrefix     = "price:"
	channelPrefix = "prices."
)

// RedisClient abstracts the output storage connection
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Pipeline() redis.Pipeliner
	Close() error
}

// Mirror is a hub subscriber that writes every record it receives to
// price:<SYMBOL> and publishes it on prices.<SYMBOL>. Its queue drops the
// oldest records under pressure, so a slow Redis never disconnects it.
type Mirror struct {
	rdb    RedisClient
	box    *outbox.Outbox
	ttl    time.Duration
	batch  int
	logger *zap.Logger
}

func New(rdb RedisClient, ttl time.Duration, queueSize int, logger *zap.Logger) *Mirror {
	return &Mirror{
		rdb:    rdb,
		box:    outbox.New(queueSize, outbox.DropOldest),
		ttl:    ttl,
		batch:  max(queueSize, 1),
		logger: logger,
	}
}

func (m *Mirror) ID() string                          { return "redis-mirror" }
func (m *Mirror) Push(rec models.PriceRecord) error   { return m.box.Push(rec) }
func (m *Mirror) Prime(snapshot []models.PriceRecord) { m.box.Prime(snapshot) }
func (m *Mirror) Close()                              { m.box.Close() }

// Dropped reports records evicted because Redis fell behind.
func (m *Mirror) Dropped() uint64 { return m.box.Dropped() }

// Run drains the queue into Redis until ctx is done or the mirror is closed.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.rdb.Ping(ctx).Err(); err != nil {
		m.logger.Error("Redis unreachable, mirror will keep retrying per batch", zap.Error(err))
	}
	m.logger.Info("Redis mirror started", zap.Duration("ttl", m.ttl))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.box.Ready():
			if m.box.Closed() {
				m.logger.Info("Redis mirror stopped")
				return nil
			}
			// a full batch means more may be queued
			for ctx.Err() == nil {
				if m.flush() < m.batch {
					break
				}
			}
		}
	}
}

// flush writes up to one batch of queued records in a single pipeline and
// returns how many records it took off the queue.
func (m *Mirror) flush() int {
	// Background context prevents cancellation mid-Redis write
	ctx := context.Background()

	pipe := m.rdb.Pipeline()
	n, taken := 0, 0
	for taken < m.batch {
		rec, ok := m.box.Pop()
		if !ok {
			break
		}
		taken++
		payload, err := json.Marshal(rec)
		if err != nil {
			m.logger.Error("JSON Marshal Error", zap.Error(err), zap.String("symbol", rec.Symbol))
			continue
		}
		pipe.Set(ctx, keyPrefix+rec.Symbol, payload, m.ttl)
		pipe.Publish(ctx, channelPrefix+rec.Symbol, payload)
		n++
	}
	if n == 0 {
		return taken
	}

	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Error("Redis Pipeline Error", zap.Error(err), zap.Int("records", n))
		return taken
	}
	m.logger.Debug("Mirrored", zap.Int("records", n))
	return taken
}

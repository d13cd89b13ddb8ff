package testutils

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/shok8899/hq11/cmd/relay/internal/outbox"
	"github.com/shok8899/hq11/pkg/models"
)

// MockSubscriber records every push synchronously.
type MockSubscriber struct {
	IDVal    string
	Records  []models.PriceRecord
	Snapshot []models.PriceRecord
	Primed   bool
	Closed   bool
	FailWith error // returned from Push when set
	Mu       sync.Mutex
}

func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{IDVal: id}
}

func (m *MockSubscriber) ID() string { return m.IDVal }

func (m *MockSubscriber) Push(rec models.PriceRecord) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockSubscriber) Prime(snapshot []models.PriceRecord) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Primed = true
	m.Snapshot = append([]models.PriceRecord(nil), snapshot...)
}

func (m *MockSubscriber) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockSubscriber) Received() []models.PriceRecord {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.PriceRecord(nil), m.Records...)
}

func (m *MockSubscriber) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

// QueueSubscriber is backed by a real outbox. Nothing drains it unless the
// test calls Drain, which makes it a stand-in for a stalled connection.
type QueueSubscriber struct {
	IDVal string
	Box   *outbox.Outbox
}

func NewQueueSubscriber(id string, capacity int, policy outbox.Policy) *QueueSubscriber {
	return &QueueSubscriber{IDVal: id, Box: outbox.New(capacity, policy)}
}

func (q *QueueSubscriber) ID() string                          { return q.IDVal }
func (q *QueueSubscriber) Push(rec models.PriceRecord) error   { return q.Box.Push(rec) }
func (q *QueueSubscriber) Prime(snapshot []models.PriceRecord) { q.Box.Prime(snapshot) }
func (q *QueueSubscriber) Close()                              { q.Box.Close() }

func (q *QueueSubscriber) Drain() []models.PriceRecord {
	var out []models.PriceRecord
	for {
		rec, ok := q.Box.Pop()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

// MockTradeSource replays Events and then reports io.EOF.
type MockTradeSource struct {
	Events []models.TradeEvent
	Index  int
	Closed bool
	Mu     sync.Mutex
}

func (m *MockTradeSource) ReadTrade(ctx context.Context) (models.TradeEvent, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.TradeEvent{}, err
	}
	if m.Closed || m.Index >= len(m.Events) {
		return models.TradeEvent{}, io.EOF
	}
	ev := m.Events[m.Index]
	m.Index++
	return ev, nil
}

func (m *MockTradeSource) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockKafkaReader serves Messages in order, then returns context.DeadlineExceeded.
type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	Closed   bool
}

func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return kafka.Message{}, io.EOF
	}
	if m.Index >= len(m.Messages) {
		return kafka.Message{}, context.DeadlineExceeded
	}
	msg := m.Messages[m.Index]
	m.Index++
	return msg, nil
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

type MockPipeline struct {
	redis.Pipeliner // Embed interface to satisfy missing methods like ACLCat, etc.

	ExecCount    int
	MaxBatch     int // most commands sent in one Exec
	ExecErr      error
	RecordedCmds []string
	Pending      []string
	Mu           sync.Mutex
}

func (m *MockPipeline) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Pending = append(m.Pending, "SET "+key)
	return redis.NewStatusCmd(ctx)
}

func (m *MockPipeline) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Pending = append(m.Pending, "PUBLISH "+channel)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExecCount++
	if len(m.Pending) > m.MaxBatch {
		m.MaxBatch = len(m.Pending)
	}
	pending := m.Pending
	m.Pending = nil
	if m.ExecErr != nil {
		return nil, m.ExecErr
	}
	m.RecordedCmds = append(m.RecordedCmds, pending...)
	return nil, nil
}

func (m *MockPipeline) Commands() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]string(nil), m.RecordedCmds...)
}

func (m *MockPipeline) LargestBatch() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.MaxBatch
}

func (m *MockPipeline) Execs() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.ExecCount
}

// MockRedisClient hands out the same pipeline spy every time.
type MockRedisClient struct {
	PipelineSpy *MockPipeline
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{PipelineSpy: &MockPipeline{}}
}

func (m *MockRedisClient) Pipeline() redis.Pipeliner {
	return m.PipelineSpy
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusCmd(ctx)
}

func (m *MockRedisClient) Close() error { return nil }

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

package generator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/segmentio/kafka-go"
)

// Clock paces the trade loop and stamps trade_time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Rand picks the next symbol and drives the price walk and the trade size.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// KafkaWriter receives encoded trades keyed by upstream symbol.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDialer and KafkaConn cover the admin calls TopicCreator makes.
type KafkaDialer interface {
	DialContext(ctx context.Context, network, address string) (KafkaConn, error)
}

type KafkaConn interface {
	Controller() (kafka.Broker, error)
	Close() error
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
}

var _ KafkaConn = (*kafka.Conn)(nil)

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// NewRealRand seeds a PCG source from the wall clock. Not safe for concurrent use.
func NewRealRand() Rand {
	seed := uint64(time.Now().UnixNano())
	return &pcgRand{r: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

type pcgRand struct{ r *rand.Rand }

func (p *pcgRand) Intn(n int) int   { return p.r.IntN(n) }
func (p *pcgRand) Float64() float64 { return p.r.Float64() }

// BrokerDialer opens admin connections through a kafka.Dialer.
type BrokerDialer struct {
	Dialer *kafka.Dialer
}

func (d BrokerDialer) DialContext(ctx context.Context, network, address string) (KafkaConn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		// keep the interface nil so callers can test conn == nil
		return nil, err
	}
	return conn, nil
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shok8899/hq11/cmd/relay/internal/hub"
	"github.com/shok8899/hq11/cmd/relay/internal/pricing"
	"github.com/shok8899/hq11/cmd/relay/internal/store"
	"github.com/shok8899/hq11/cmd/relay/internal/symbols"
	"github.com/shok8899/hq11/pkg/models"
)

var ErrMissingSymbol = errors.New("trade has no symbol")

// TradeSource yields decoded upstream trades. ReadTrade returns an error
// wrapping io.EOF once the source is exhausted or closed.
type TradeSource interface {
	ReadTrade(ctx context.Context) (models.TradeEvent, error)
	Close() error
}

// Recorder receives pipeline events, typically for metrics.
type Recorder interface {
	TradeReceived()
	TradeMalformed()
	TradeDropped()
	RecordPublished(known int)
}

type nopRecorder struct{}

func (nopRecorder) TradeReceived()      {}
func (nopRecorder) TradeMalformed()     {}
func (nopRecorder) TradeDropped()       {}
func (nopRecorder) RecordPublished(int) {}

type Options struct {
	Workers      int
	WorkerBuffer int
	Recorder     Recorder
}

// Relay turns upstream trades into store updates and subscriber pushes.
type Relay struct {
	normalizer *symbols.Normalizer
	builder    *pricing.Builder
	store      *store.Store
	hub        *hub.Hub
	logger     *zap.Logger
	recorder   Recorder
	numWorkers int
	bufferSize int
	known      atomic.Int64
}

func New(n *symbols.Normalizer, b *pricing.Builder, s *store.Store, h *hub.Hub, logger *zap.Logger, opts Options) *Relay {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WorkerBuffer <= 0 {
		opts.WorkerBuffer = 100
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	r := &Relay{
		normalizer: n,
		builder:    b,
		store:      s,
		hub:        h,
		logger:     logger,
		recorder:   opts.Recorder,
		numWorkers: opts.Workers,
		bufferSize: opts.WorkerBuffer,
	}
	r.known.Store(int64(s.Len()))
	return r
}

// Process runs one trade through normalize, build, upsert and broadcast.
// The upsert is visible before any subscriber sees the push. A malformed
// trade changes nothing and is reported as an error wrapping pricing.ErrMalformedPrice.
func (r *Relay) Process(ev models.TradeEvent) error {
	if ev.Symbol == "" {
		r.recorder.TradeMalformed()
		return ErrMissingSymbol
	}

	symbol := r.normalizer.Normalize(ev.Symbol)
	rec, err := r.builder.BuildNow(symbol, ev.Price, ev.Quantity)
	if err != nil {
		r.recorder.TradeMalformed()
		return fmt.Errorf("trade %s: %w", ev.Symbol, err)
	}

	if r.store.Upsert(symbol, rec) {
		r.known.Add(1)
	}
	r.recorder.RecordPublished(int(r.known.Load()))

	r.hub.Broadcast(rec)
	return nil
}

// Attach registers sub and primes it with the current snapshot. Pushes that
// race with the snapshot are held by the subscriber and delivered after it,
// so nothing is missed; a record may arrive twice, which is harmless because
// consumers key by symbol.
func (r *Relay) Attach(sub hub.Subscriber) bool {
	if !r.hub.Register(sub) {
		return false
	}
	sub.Prime(r.store.Snapshot())
	return true
}

func (r *Relay) Detach(sub hub.Subscriber) {
	r.hub.Unregister(sub)
}

// Run reads src until it is exhausted or ctx is done. Trades are sharded by
// downstream symbol so each symbol has a single writer. A full worker queue
// drops the trade instead of stalling the feed.
func (r *Relay) Run(ctx context.Context, src TradeSource) error {
	workerChans := make([]chan models.TradeEvent, r.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < r.numWorkers; i++ {
		workerChans[i] = make(chan models.TradeEvent, r.bufferSize)
		wg.Add(1)
		go r.worker(i, workerChans[i], &wg)
	}

	r.logger.Info("Relay started", zap.Int("workers", r.numWorkers))
	err := r.ingest(ctx, src, workerChans)

	for _, ch := range workerChans {
		close(ch)
	}
	r.logger.Info("Waiting for workers to drain...")
	wg.Wait()
	r.logger.Info("Relay stopped")

	return err
}

func (r *Relay) ingest(ctx context.Context, src TradeSource, workerChans []chan models.TradeEvent) error {
	for {
		ev, err := src.ReadTrade(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, io.EOF) {
				r.logger.Info("Trade source exhausted")
				return nil
			}
			r.logger.Error("Trade source read error", zap.Error(err))
			continue
		}
		r.recorder.TradeReceived()

		workerID := getWorkerID(r.normalizer.Normalize(ev.Symbol), r.numWorkers)

		select {
		case workerChans[workerID] <- ev:
		case <-ctx.Done():
			return nil
		default:
			r.recorder.TradeDropped()
			r.logger.Warn("Dropping slow packet", zap.String("symbol", ev.Symbol), zap.Int("worker_id", workerID))
		}
	}
}

func (r *Relay) worker(id int, events <-chan models.TradeEvent, wg *sync.WaitGroup) {
	defer wg.Done()

	for ev := range events {
		if err := r.Process(ev); err != nil {
			r.logger.Warn("Dropping malformed trade", zap.String("symbol", ev.Symbol), zap.Int("worker_id", id), zap.Error(err))
			continue
		}
		r.logger.Debug("Processed", zap.String("symbol", ev.Symbol), zap.Int("worker_id", id))
	}
}

func getWorkerID(symbol string, numWorkers int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(numWorkers))
}

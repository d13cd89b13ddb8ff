package outbox

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shok8899/hq11/pkg/models"
)

var (
	ErrQueueFull = errors.New("outbox: queue full")
	ErrClosed    = errors.New("outbox: closed")
)

// Policy decides what Push does when the queue is at capacity.
type Policy int

const (
	// Disconnect rejects the record with ErrQueueFull; the owner is expected to drop the subscriber.
	Disconnect Policy = iota
	// DropOldest evicts the oldest queued record to make room.
	DropOldest
	// DropNewest discards the incoming record.
	DropNewest
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "disconnect":
		return Disconnect, nil
	case "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	}
	return Disconnect, fmt.Errorf("unknown overflow policy %q", s)
}

func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "disconnect"
	}
}

// Outbox is a bounded FIFO of records waiting to be written to one subscriber.
//
// It starts unprimed: records pushed before Prime are held back and are only
// released after the snapshot passed to Prime. Push never blocks.
type Outbox struct {
	mu       sync.Mutex
	items    []models.PriceRecord
	capacity int
	policy   Policy
	primed   bool
	closed   bool
	dropped  uint64

	ready chan struct{}
}

func New(capacity int, policy Policy) *Outbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Outbox{
		items:    make([]models.PriceRecord, 0, capacity),
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
	}
}

func (o *Outbox) Push(rec models.PriceRecord) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if len(o.items) >= o.capacity {
		switch o.policy {
		case DropNewest:
			o.dropped++
			o.mu.Unlock()
			return nil
		case DropOldest:
			copy(o.items, o.items[1:])
			o.items = o.items[:len(o.items)-1]
			o.dropped++
		default:
			o.mu.Unlock()
			return ErrQueueFull
		}
	}
	o.items = append(o.items, rec)
	primed := o.primed
	o.mu.Unlock()

	if primed {
		o.signal()
	}
	return nil
}

// Prime queues snapshot ahead of anything pushed so far and starts releasing
// records. The snapshot is not subject to the capacity limit. Calling Prime
// more than once has no effect.
func (o *Outbox) Prime(snapshot []models.PriceRecord) {
	o.mu.Lock()
	if o.primed || o.closed {
		o.mu.Unlock()
		return
	}
	items := make([]models.PriceRecord, 0, len(snapshot)+len(o.items))
	items = append(items, snapshot...)
	o.items = append(items, o.items...)
	o.primed = true
	o.mu.Unlock()

	o.signal()
}

// Pop returns the next record once the outbox is primed.
func (o *Outbox) Pop() (models.PriceRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.primed || o.closed || len(o.items) == 0 {
		return models.PriceRecord{}, false
	}
	rec := o.items[0]
	o.items[0] = models.PriceRecord{}
	o.items = o.items[1:]
	if len(o.items) == 0 {
		o.items = o.items[:0:0]
	}
	return rec, true
}

// Ready fires after records become available or the outbox is closed.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }

func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.items = nil
	o.mu.Unlock()

	o.signal()
}

func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Dropped counts records discarded by the DropOldest and DropNewest policies.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

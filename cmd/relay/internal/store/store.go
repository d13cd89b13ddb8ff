package store

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/shok8899/hq11/pkg/models"
)

const defaultShards = 32

// Store holds the latest PriceRecord per downstream symbol.
//
// Keys are spread over independently locked shards, so writers and readers of
// unrelated symbols rarely contend. Records are stored and returned by value;
// a reader always sees a whole record, never a mix of two writes.
// Entries are never deleted.
type Store struct {
	shards []*shard
}

type shard struct {
	mu      sync.RWMutex
	records map[string]models.PriceRecord
}

func New() *Store {
	return NewSharded(defaultShards)
}

func NewSharded(n int) *Store {
	if n <= 0 {
		n = 1
	}
	s := &Store{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]models.PriceRecord)}
	}
	return s
}

func (s *Store) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Upsert replaces the record for symbol and reports whether the symbol is new.
func (s *Store) Upsert(symbol string, rec models.PriceRecord) bool {
	sh := s.shardFor(symbol)
	sh.mu.Lock()
	_, existed := sh.records[symbol]
	sh.records[symbol] = rec
	sh.mu.Unlock()
	return !existed
}

// Get returns the current record for symbol, or false if it was never upserted.
func (s *Store) Get(symbol string) (models.PriceRecord, bool) {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	rec, ok := sh.records[symbol]
	sh.mu.RUnlock()
	return rec, ok
}

// Snapshot copies every known record, sorted by symbol. Each record is
// individually consistent; shards are read one at a time, so the set as a
// whole is not a single transaction.
func (s *Store) Snapshot() []models.PriceRecord {
	out := make([]models.PriceRecord, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, rec := range sh.records {
			out = append(out, rec)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols lists the known keys in sorted order.
func (s *Store) Symbols() []string {
	out := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for sym := range sh.records {
			out = append(out, sym)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

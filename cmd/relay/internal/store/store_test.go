package store_test

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shok8899/hq11/cmd/relay/internal/store"
	"github.com/shok8899/hq11/pkg/models"
)

func record(symbol string, n int) models.PriceRecord {
	v := strconv.Itoa(n)
	return models.PriceRecord{Symbol: symbol, Bid: v, Ask: v, Volume: v, CapturedAtMillis: int64(n)}
}

func TestStore_GetUnknown(t *testing.T) {
	s := store.New()

	_, ok := s.Get("UNKNOWN")
	assert.False(t, ok)

	s.Upsert("BTCUSD", record("BTCUSD", 1))
	_, ok = s.Get("UNKNOWN")
	assert.False(t, ok)
}

func TestStore_LastUpsertWins(t *testing.T) {
	s := store.New()
	for i := 1; i <= 100; i++ {
		s.Upsert("BTCUSD", record("BTCUSD", i))
	}

	got, ok := s.Get("BTCUSD")
	require.True(t, ok)
	assert.Equal(t, record("BTCUSD", 100), got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SnapshotAndSymbols(t *testing.T) {
	s := store.NewSharded(4)
	assert.True(t, s.Upsert("ETHUSD", record("ETHUSD", 2)))
	assert.True(t, s.Upsert("BTCUSD", record("BTCUSD", 1)))
	assert.False(t, s.Upsert("BTCUSD", record("BTCUSD", 3)))

	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, s.Symbols())

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, record("BTCUSD", 3), snap[0])
	assert.Equal(t, record("ETHUSD", 2), snap[1])
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := store.New()
	s.Upsert("BTCUSD", record("BTCUSD", 1))

	snap := s.Snapshot()
	snap[0].Bid = "mutated"

	got, _ := s.Get("BTCUSD")
	assert.Equal(t, "1", got.Bid)
}

// Writers hammer the same keys while readers check that every observed
// record carries fields from a single write.
func TestStore_NoTornReads(t *testing.T) {
	s := store.NewSharded(2)
	syms := []string{"A", "B", "C"}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				sym := syms[i%len(syms)]
				s.Upsert(sym, record(sym, w*100000+i))
			}
		}(w)
	}

	var readers sync.WaitGroup
	errs := make(chan string, 16)
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, sym := range syms {
					if rec, ok := s.Get(sym); ok {
						if rec.Bid != rec.Ask || rec.Bid != rec.Volume || rec.Bid != strconv.FormatInt(rec.CapturedAtMillis, 10) || rec.Symbol != sym {
							select {
							case errs <- rec.Symbol + " " + rec.Bid + "/" + rec.Ask + "/" + rec.Volume:
							default:
							}
						}
					}
				}
				for _, rec := range s.Snapshot() {
					if rec.Bid != rec.Ask {
						select {
						case errs <- "snapshot " + rec.Symbol:
						default:
						}
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
	close(errs)

	for e := range errs {
		t.Errorf("torn read: %s", e)
	}
	assert.Equal(t, 3, s.Len())
}

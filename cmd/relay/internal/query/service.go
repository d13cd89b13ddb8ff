package query

import (
	"github.com/shok8899/hq11/cmd/relay/internal/symbols"
	"github.com/shok8899/hq11/pkg/models"
)

// PriceReader is the read side of the latest-price store.
type PriceReader interface {
	Get(symbol string) (models.PriceRecord, bool)
	Symbols() []string
	Snapshot() []models.PriceRecord
}

// Service answers point-in-time questions about the latest prices.
type Service struct {
	prices     PriceReader
	normalizer *symbols.Normalizer
}

func NewService(prices PriceReader, normalizer *symbols.Normalizer) *Service {
	return &Service{prices: prices, normalizer: normalizer}
}

// ListSymbols returns every downstream symbol with a known price, sorted.
func (s *Service) ListSymbols() []string {
	syms := s.prices.Symbols()
	if syms == nil {
		return []string{}
	}
	return syms
}

// GetPrice looks symbol up as given, then as its normalized form, so both
// "BTCUSD" and "BTCUSDT" resolve.
func (s *Service) GetPrice(symbol string) (models.PriceRecord, bool) {
	if rec, ok := s.prices.Get(symbol); ok {
		return rec, true
	}
	if s.normalizer == nil {
		return models.PriceRecord{}, false
	}
	if alt := s.normalizer.Normalize(symbol); alt != symbol {
		return s.prices.Get(alt)
	}
	return models.PriceRecord{}, false
}

// GetPrices resolves each symbol with GetPrice and skips unknown ones.
func (s *Service) GetPrices(syms []string) []models.PriceRecord {
	out := make([]models.PriceRecord, 0, len(syms))
	for _, sym := range syms {
		if rec, ok := s.GetPrice(sym); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Service) Snapshot() []models.PriceRecord {
	snap := s.prices.Snapshot()
	if snap == nil {
		return []models.PriceRecord{}
	}
	return snap
}

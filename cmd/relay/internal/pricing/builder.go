package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shok8899/hq11/pkg/models"
)

// ErrMalformedPrice matches every *MalformedPriceError through errors.Is.
var ErrMalformedPrice = errors.New("malformed price")

// MalformedPriceError reports a trade whose price or quantity is not a non-negative decimal.
type MalformedPriceError struct {
	Field string // "price" or "quantity"
	Value string
	Err   error
}

func (e *MalformedPriceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed %s %q", e.Field, e.Value)
}

func (e *MalformedPriceError) Unwrap() error { return e.Err }

func (e *MalformedPriceError) Is(target error) bool { return target == ErrMalformedPrice }

var (
	errNegative  = errors.New("negative value")
	errMagnitude = errors.New("value out of range")
)

// Bounds on accepted amounts. Exponent notation can otherwise expand a short
// string into millions of digits once rounded.
const (
	maxIntegerDigits = 18
	maxDigits        = 64
)

// Builder turns raw trades into PriceRecords. Bid is the trade price at the
// configured scale and ask is bid plus a fixed additive spread. All arithmetic
// stays in base 10.
type Builder struct {
	spread decimal.Decimal
	scale  int32
	clock  func() time.Time
}

// NewBuilder panics if spread has more fractional digits than scale, since ask-bid
// could then no longer reproduce it; config validation rejects that earlier.
func NewBuilder(spread decimal.Decimal, scale int32, clock func() time.Time) *Builder {
	if !spread.Equal(spread.Round(scale)) {
		panic(fmt.Sprintf("pricing: spread %s exceeds scale %d", spread, scale))
	}
	if clock == nil {
		clock = time.Now
	}
	return &Builder{spread: spread, scale: scale, clock: clock}
}

func (b *Builder) Spread() decimal.Decimal { return b.spread }

// Build produces the record for symbol, which is already in its downstream form.
func (b *Builder) Build(symbol string, price, quantity models.Amount, now time.Time) (models.PriceRecord, error) {
	p, err := parseNonNegative("price", price)
	if err != nil {
		return models.PriceRecord{}, err
	}
	if _, err := parseNonNegative("quantity", quantity); err != nil {
		return models.PriceRecord{}, err
	}

	bid := p.Round(b.scale)
	ask := bid.Add(b.spread)

	return models.PriceRecord{
		Symbol:           symbol,
		Bid:              bid.StringFixed(b.scale),
		Ask:              ask.StringFixed(b.scale),
		Volume:           strings.TrimSpace(quantity.String()),
		CapturedAtMillis: now.UnixMilli(),
	}, nil
}

// BuildNow is Build stamped with the builder's clock.
func (b *Builder) BuildNow(symbol string, price, quantity models.Amount) (models.PriceRecord, error) {
	return b.Build(symbol, price, quantity, b.clock())
}

func parseNonNegative(field string, raw models.Amount) (decimal.Decimal, error) {
	d, err := raw.Decimal()
	if err != nil {
		return decimal.Decimal{}, &MalformedPriceError{Field: field, Value: raw.String(), Err: err}
	}
	if d.IsNegative() {
		return decimal.Decimal{}, &MalformedPriceError{Field: field, Value: raw.String(), Err: errNegative}
	}
	if !inRange(d) {
		return decimal.Decimal{}, &MalformedPriceError{Field: field, Value: raw.String(), Err: errMagnitude}
	}
	return d, nil
}

// inRange checks coefficient and exponent without expanding the value.
func inRange(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	digits := int64(d.NumDigits())
	if exp < -maxDigits || digits > maxDigits {
		return false
	}
	return d.IsZero() || digits+exp <= maxIntegerDigits
}

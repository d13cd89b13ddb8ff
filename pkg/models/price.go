package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a decimal quantity kept exactly as the upstream sent it.
// It accepts both JSON strings ("27000.10") and bare numbers (27000.10)
// without ever passing through float64.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(b)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

func (a Amount) String() string { return string(a) }

// Decimal parses the amount in base 10.
func (a Amount) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(string(a)))
}

// TradeEvent is one decoded upstream trade.
type TradeEvent struct {
	Symbol    string `json:"symbol"`
	Price     Amount `json:"price"`
	Quantity  Amount `json:"quantity"`
	TradeTime int64  `json:"trade_time,omitempty"` // unix millis, as reported upstream
}

// PriceRecord is the downstream view of the latest trade for a symbol.
// Field names match what MT4 bridge clients already parse.
type PriceRecord struct {
	Symbol           string `json:"symbol"`
	Bid              string `json:"bid"`
	Ask              string `json:"ask"`
	Volume           string `json:"volume"`
	CapturedAtMillis int64  `json:"timestamp"`
}

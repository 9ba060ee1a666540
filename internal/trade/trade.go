// Package trade holds the executed-trade record produced by the backfill walker.
package trade

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DatetimeLayout is the ISO-8601 form written to the datetime CSV column.
const DatetimeLayout = "2006-01-02T15:04:05.000Z"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts buy/sell in any case; anything else is rejected.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "b":
		return SideBuy, nil
	case "sell", "s":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown trade side %q", raw)
	}
}

// Trade is one executed transaction. BTCVolume is price*amount expressed in
// the quote asset (BTC for the pump datasets) and is filled by the walker.
type Trade struct {
	Symbol    string
	ID        ID
	Timestamp int64
	Datetime  string
	Side      Side
	Price     decimal.Decimal
	Amount    decimal.Decimal
	BTCVolume float64
}

// Volume computes price*amount. The decimal product is exact; only the final
// conversion to float64 rounds.
func Volume(price, amount decimal.Decimal) float64 {
	f, _ := price.Mul(amount).Float64()
	return f
}

// FormatDatetime renders an epoch-millisecond timestamp in DatetimeLayout.
func FormatDatetime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(DatetimeLayout)
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a finalized OHLC summary of one key over one bucket. The
// "open" and "close" of a classic candle are named First and Last here.
type Candle struct {
	Exchange Exchange
	Pair     Pair
	Start    time.Time
	End      time.Time

	FirstPrice decimal.Decimal
	FirstSize  decimal.Decimal
	HighPrice  decimal.Decimal
	HighSize   decimal.Decimal
	LowPrice   decimal.Decimal
	LowSize    decimal.Decimal
	LastPrice  decimal.Decimal
	LastSize   decimal.Decimal

	Count int64
}

package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/navid-fn/tickfold/internal/models"
)

type PriceSize struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Accumulation is the in-progress OHLC state of one key in the current
// bucket. First and Last follow fold order, not timestamp order.
type Accumulation struct {
	First PriceSize
	High  PriceSize
	Low   PriceSize
	Last  PriceSize
	Count int64
}

// NewAccumulation starts an accumulation from its first trade.
func NewAccumulation(t models.Trade) *Accumulation {
	ps := PriceSize{Price: t.Price, Size: t.Size}
	return &Accumulation{First: ps, High: ps, Low: ps, Last: ps, Count: 1}
}

// Fold applies one more trade. Ties keep the first-seen high and low.
func (a *Accumulation) Fold(t models.Trade) {
	ps := PriceSize{Price: t.Price, Size: t.Size}
	if t.Price.GreaterThan(a.High.Price) {
		a.High = ps
	} else if t.Price.LessThan(a.Low.Price) {
		a.Low = ps
	}
	a.Last = ps
	a.Count++
}

// Candle finalizes the accumulation for the bucket [start, end).
func (a *Accumulation) Candle(key models.Key, start, end time.Time) models.Candle {
	return models.Candle{
		Exchange:   key.Exchange,
		Pair:       key.Pair,
		Start:      start,
		End:        end,
		FirstPrice: a.First.Price,
		FirstSize:  a.First.Size,
		HighPrice:  a.High.Price,
		HighSize:   a.High.Size,
		LowPrice:   a.Low.Price,
		LowSize:    a.Low.Size,
		LastPrice:  a.Last.Price,
		LastSize:   a.Last.Size,
		Count:      a.Count,
	}
}

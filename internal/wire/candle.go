package wire

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/navid-fn/tickfold/internal/models"
)

// Candle is the published shape of a finalized candle.
type Candle struct {
	Exchange   string          `json:"exchange"`
	AssetPair  string          `json:"asset_pair"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	FirstPrice decimal.Decimal `json:"first_price"`
	FirstSize  decimal.Decimal `json:"first_size"`
	HighPrice  decimal.Decimal `json:"high_price"`
	HighSize   decimal.Decimal `json:"high_size"`
	LowPrice   decimal.Decimal `json:"low_price"`
	LowSize    decimal.Decimal `json:"low_size"`
	LastPrice  decimal.Decimal `json:"last_price"`
	LastSize   decimal.Decimal `json:"last_size"`
	Count      int64           `json:"count"`
}

func FromCandle(c models.Candle) Candle {
	return Candle{
		Exchange:   c.Exchange.String(),
		AssetPair:  c.Pair.String(),
		Start:      c.Start.UTC(),
		End:        c.End.UTC(),
		FirstPrice: c.FirstPrice,
		FirstSize:  c.FirstSize,
		HighPrice:  c.HighPrice,
		HighSize:   c.HighSize,
		LowPrice:   c.LowPrice,
		LowSize:    c.LowSize,
		LastPrice:  c.LastPrice,
		LastSize:   c.LastSize,
		Count:      c.Count,
	}
}

func FromCandles(cs []models.Candle) []Candle {
	out := make([]Candle, len(cs))
	for i, c := range cs {
		out[i] = FromCandle(c)
	}
	return out
}

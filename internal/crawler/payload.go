package crawler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/navid-fn/tickfold/internal/models"
)

// Payload is one of the exchange wire formats a producer receives. The set
// of variants is closed: KrakenTrades and BinanceTrade.
type Payload interface {
	isPayload()
}

// KrakenRow is one entry of the Kraken public trades array:
// [price, volume, time, side b|s, type m|l, misc]. Time is kept as its raw
// decimal text so sub-second digits are not lost to float rounding.
type KrakenRow struct {
	Price  string
	Volume string
	Time   string
	Side   string
	Type   string
}

// KrakenTrades is one poll result for one pair.
type KrakenTrades struct {
	Pair models.Pair
	Rows []KrakenRow
	// Last is the cursor to pass as "since" on the next poll.
	Last string
}

// BinanceTrade is the data object of a combined-stream trade event.
type BinanceTrade struct {
	EventTime     int64
	Symbol        string
	TradeID       uint64
	Price         string
	Quantity      string
	BuyerOrderID  uint64
	SellerOrderID uint64
	TradeTime     int64
	BuyerIsMaker  bool
}

func (KrakenTrades) isPayload() {}
func (BinanceTrade) isPayload() {}

// Normalize converts any payload variant into the batch key and trades the
// pipeline consumes.
func Normalize(p Payload) (models.Exchange, models.Pair, []models.Trade, error) {
	switch v := p.(type) {
	case KrakenTrades:
		trades, err := normalizeKraken(v)
		return models.Kraken, v.Pair, trades, err
	case BinanceTrade:
		pair, trade, err := normalizeBinance(v)
		if err != nil {
			return models.Binance, pair, nil, err
		}
		return models.Binance, pair, []models.Trade{trade}, nil
	}
	return "", models.Pair{}, nil, fmt.Errorf("unsupported payload %T", p)
}

func normalizeKraken(v KrakenTrades) ([]models.Trade, error) {
	trades := make([]models.Trade, 0, len(v.Rows))
	for i, row := range v.Rows {
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid price %q: %w", i, row.Price, err)
		}
		size, err := decimal.NewFromString(row.Volume)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid volume %q: %w", i, row.Volume, err)
		}
		ts, err := fractionalSeconds(row.Time)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		var side models.Side
		switch row.Side {
		case "b":
			side = models.Taker
		case "s":
			side = models.Maker
		default:
			return nil, fmt.Errorf("row %d: invalid side %q", i, row.Side)
		}

		var kind models.Kind
		switch row.Type {
		case "m":
			kind = models.Market
		case "l":
			kind = models.Limit
		default:
			return nil, fmt.Errorf("row %d: invalid type %q", i, row.Type)
		}

		trades = append(trades, models.Trade{
			Timestamp: ts,
			Size:      size,
			Price:     price,
			Side:      side,
			Kind:      kind,
		})
	}
	return trades, nil
}

var nanosPerSecond = decimal.NewFromInt(int64(time.Second))

// fractionalSeconds parses "1535271158.4026" into a UTC time.
func fractionalSeconds(s string) (time.Time, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	secs := d.IntPart()
	nanos := d.Sub(decimal.NewFromInt(secs)).Mul(nanosPerSecond).IntPart()
	return time.Unix(secs, nanos).UTC(), nil
}

func normalizeBinance(v BinanceTrade) (models.Pair, models.Trade, error) {
	pair, err := models.ParsePair(v.Symbol)
	if err != nil {
		return models.Pair{}, models.Trade{}, err
	}
	price, err := decimal.NewFromString(v.Price)
	if err != nil {
		return pair, models.Trade{}, fmt.Errorf("invalid price %q: %w", v.Price, err)
	}
	size, err := decimal.NewFromString(v.Quantity)
	if err != nil {
		return pair, models.Trade{}, fmt.Errorf("invalid quantity %q: %w", v.Quantity, err)
	}
	if v.TradeTime <= 0 {
		return pair, models.Trade{}, fmt.Errorf("missing trade time")
	}

	side := models.Taker
	if v.BuyerIsMaker {
		side = models.Maker
	}

	t := models.Trade{
		Timestamp:   time.UnixMilli(v.TradeTime).UTC(),
		Size:        size,
		Price:       price,
		Side:        side,
		Kind:        models.Market,
		MatchID:     v.TradeID,
		BuyOrderID:  v.BuyerOrderID,
		SellOrderID: v.SellerOrderID,
	}
	if v.EventTime > 0 {
		t.MatchTime = time.UnixMilli(v.EventTime).UTC()
	}
	return pair, t, nil
}

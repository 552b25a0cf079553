package storage

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func trade(ts time.Time, price, size string) models.Trade {
	return models.Trade{
		Timestamp: ts,
		Price:     decimal.RequireFromString(price),
		Size:      decimal.RequireFromString(size),
		Side:      models.Taker,
		Kind:      models.Limit,
	}
}

func TestSQLiteWriteTradesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		trade(base, "100.5", "0.1"),
		trade(base.Add(time.Second), "101", "0.2"),
	}

	require.NoError(t, s.WriteTrades(ctx, models.Kraken, models.BTCUSD, trades))
	require.NoError(t, s.WriteTrades(ctx, models.Kraken, models.BTCUSD, trades))

	n, err := s.CountTrades(ctx, models.Kraken, models.BTCUSD)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteLastTradeTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, ok, err := s.LastTradeTimestamp(ctx, models.Kraken, models.BTCUSD)
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, s.WriteTrades(ctx, models.Kraken, models.BTCUSD, []models.Trade{
		trade(base.Add(5*time.Second), "1", "1"),
		trade(base, "1", "1"),
	}))
	require.NoError(t, s.WriteTrades(ctx, models.Binance, models.BTCUSD, []models.Trade{
		trade(base.Add(time.Hour), "1", "1"),
	}))

	ts, ok, err := s.LastTradeTimestamp(ctx, models.Kraken, models.BTCUSD)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(base.Add(5*time.Second)), "got %s", ts)
}

func TestSQLiteKeepsFullRangeIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	tr := trade(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), "1", "1")
	tr.MatchID = math.MaxUint64
	tr.BuyOrderID = 1<<63 + 5
	tr.SellOrderID = 42
	require.NoError(t, s.WriteTrades(ctx, models.Binance, models.BTCUSD, []models.Trade{tr}))

	var match, buy, sell string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT match_id, buy_order_id, sell_order_id FROM trade_history`,
	).Scan(&match, &buy, &sell))

	assert.Equal(t, "18446744073709551615", match)
	assert.Equal(t, "9223372036854775813", buy)
	assert.Equal(t, "42", sell)
}

func TestSQLiteKnownAssetPairs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.WriteTrades(ctx, models.Kraken, models.BTCUSD, []models.Trade{trade(ts, "1", "1")}))
	require.NoError(t, s.WriteTrades(ctx, models.Binance, models.BTCUSD, []models.Trade{trade(ts, "1", "1")}))
	require.NoError(t, s.WriteTrades(ctx, models.Binance, models.ETHBTC, []models.Trade{trade(ts, "1", "1")}))

	pairs, err := s.KnownAssetPairs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Pair{models.BTCUSD, models.ETHBTC}, pairs)
}

func TestSQLiteWriteCandlesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []models.Candle{{
		Exchange:   models.Kraken,
		Pair:       models.BTCUSD,
		Start:      start,
		End:        start.Add(time.Minute),
		FirstPrice: decimal.RequireFromString("10"),
		FirstSize:  decimal.RequireFromString("1"),
		HighPrice:  decimal.RequireFromString("20"),
		HighSize:   decimal.RequireFromString("2"),
		LowPrice:   decimal.RequireFromString("5"),
		LowSize:    decimal.RequireFromString("3"),
		LastPrice:  decimal.RequireFromString("5"),
		LastSize:   decimal.RequireFromString("3"),
		Count:      3,
	}}

	require.NoError(t, s.WriteCandles(ctx, want))

	got, err := s.Candles(ctx, models.Kraken, models.BTCUSD)
	require.NoError(t, err)

	opt := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(want, got, opt); diff != "" {
		t.Errorf("candles mismatch (-want +got):\n%s", diff)
	}
}

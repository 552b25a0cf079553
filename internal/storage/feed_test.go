package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
)

type sent struct {
	key   string
	value []byte
}

type fakeSender struct {
	msgs []sent
	err  error
}

func (s *fakeSender) Send(key string, value []byte) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, sent{key, value})
	return nil
}

type candleSink struct {
	Gateway
	err     error
	written [][]models.Candle
}

func (c *candleSink) WriteCandles(ctx context.Context, candles []models.Candle) error {
	if c.err != nil {
		return c.err
	}
	c.written = append(c.written, candles)
	return nil
}

func feedCandle() models.Candle {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Candle{
		Exchange:   models.Binance,
		Pair:       models.ETHBTC,
		Start:      start,
		End:        start.Add(15 * time.Minute),
		FirstPrice: decimal.RequireFromString("0.051"),
		FirstSize:  decimal.NewFromInt(2),
		HighPrice:  decimal.RequireFromString("0.052"),
		HighSize:   decimal.NewFromInt(1),
		LowPrice:   decimal.RequireFromString("0.050"),
		LowSize:    decimal.NewFromInt(3),
		LastPrice:  decimal.RequireFromString("0.0515"),
		LastSize:   decimal.NewFromInt(4),
		Count:      4,
	}
}

func TestCandleFeedPublishesAfterWrite(t *testing.T) {
	sink := &candleSink{}
	sender := &fakeSender{}
	logger, _ := test.NewNullLogger()
	gw := WithCandleFeed(sink, sender, logger)

	require.NoError(t, gw.WriteCandles(context.Background(), []models.Candle{feedCandle()}))
	require.Len(t, sink.written, 1)
	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "binance/ETH/BTC", sender.msgs[0].key)

	var got map[string]any
	require.NoError(t, json.Unmarshal(sender.msgs[0].value, &got))
	assert.Equal(t, "ETH/BTC", got["asset_pair"])
	assert.Equal(t, "0.052", got["high_price"])
	assert.EqualValues(t, 4, got["count"])
}

func TestCandleFeedSkipsPublishOnWriteFailure(t *testing.T) {
	sink := &candleSink{err: errors.New("disk full")}
	sender := &fakeSender{}
	logger, _ := test.NewNullLogger()

	err := WithCandleFeed(sink, sender, logger).WriteCandles(context.Background(), []models.Candle{feedCandle()})
	require.Error(t, err)
	assert.Empty(t, sender.msgs)
}

func TestCandleFeedPublishFailureIsLogged(t *testing.T) {
	sender := &fakeSender{err: errors.New("queue full")}
	logger, hook := test.NewNullLogger()

	err := WithCandleFeed(&candleSink{}, sender, logger).WriteCandles(context.Background(), []models.Candle{feedCandle()})
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Failed to publish candle", hook.LastEntry().Message)
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
)

type flakyGateway struct {
	Gateway
	failures    int
	tradeCalls  int
	candleCalls int
}

func (f *flakyGateway) WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error {
	f.tradeCalls++
	if f.tradeCalls <= f.failures {
		return errors.New("connection reset")
	}
	return nil
}

func (f *flakyGateway) WriteCandles(ctx context.Context, candles []models.Candle) error {
	f.candleCalls++
	return errors.New("candles down")
}

func TestWithRetryRecovers(t *testing.T) {
	logger, hook := test.NewNullLogger()
	inner := &flakyGateway{failures: 2}
	gw := WithRetry(inner, 3, time.Millisecond, logger)

	err := gw.WriteTrades(context.Background(), models.Kraken, models.BTCUSD, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, inner.tradeCalls)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestWithRetryGivesUp(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inner := &flakyGateway{failures: 100}
	gw := WithRetry(inner, 2, time.Millisecond, logger)

	err := gw.WriteTrades(context.Background(), models.Kraken, models.BTCUSD, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 3, inner.tradeCalls)
}

func TestWithRetryDoesNotRetryCandles(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inner := &flakyGateway{}
	gw := WithRetry(inner, 5, time.Millisecond, logger)

	err := gw.WriteCandles(context.Background(), []models.Candle{{}})
	require.Error(t, err)
	assert.Equal(t, 1, inner.candleCalls)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	inner := &flakyGateway{failures: 100}
	gw := WithRetry(inner, 1000, 50*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gw.WriteTrades(ctx, models.Kraken, models.BTCUSD, nil)
	require.Error(t, err)
	assert.Less(t, inner.tradeCalls, 5)
}

package ingester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/pipeline"
)

type call struct {
	exchange models.Exchange
	pair     models.Pair
	count    int
}

type fakeStore struct {
	mu    sync.Mutex
	calls []call
	fail  map[models.Pair]error
}

func (s *fakeStore) WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{exchange, pair, len(trades)})
	return s.fail[pair]
}

func (s *fakeStore) recorded() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func batch(pair models.Pair, n int) models.Batch {
	trades := make([]models.Trade, n)
	for i := range trades {
		trades[i] = models.Trade{
			Timestamp: time.Unix(int64(1_700_000_000+i), 0),
			Price:     decimal.NewFromInt(100),
			Size:      decimal.NewFromInt(1),
			Side:      models.Taker,
			Kind:      models.Limit,
		}
	}
	return models.Batch{Key: models.Key{Exchange: models.Kraken, Pair: pair}, Trades: trades}
}

func TestTradeWriterWritesInOrder(t *testing.T) {
	store := &fakeStore{}
	logger, _ := test.NewNullLogger()
	w := NewTradeWriter(store, logger, TradeWriterConfig{QueueSize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.Forward(ctx, batch(models.BTCUSD, 2)))
	require.NoError(t, w.Forward(ctx, batch(models.ETHUSD, 3)))

	require.Eventually(t, func() bool { return len(store.recorded()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []call{
		{models.Kraken, models.BTCUSD, 2},
		{models.Kraken, models.ETHUSD, 3},
	}, store.recorded())
}

func TestTradeWriterLogsFailureAndContinues(t *testing.T) {
	store := &fakeStore{fail: map[models.Pair]error{models.BTCUSD: errors.New("disk full")}}
	logger, hook := test.NewNullLogger()
	w := NewTradeWriter(store, logger, TradeWriterConfig{})

	ctx := context.Background()
	w.write(ctx, batch(models.BTCUSD, 1))
	w.write(ctx, batch(models.ETHUSD, 1))

	assert.Len(t, store.recorded(), 2)

	var errs int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errs++
			assert.Equal(t, "BTC/USD", e.Data["asset_pair"])
		}
	}
	assert.Equal(t, 1, errs)
}

func TestTradeWriterDropOldestWhenFull(t *testing.T) {
	store := &fakeStore{}
	logger, _ := test.NewNullLogger()
	w := NewTradeWriter(store, logger, TradeWriterConfig{QueueSize: 1, Overflow: pipeline.DropOldest})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Forward(ctx, batch(models.BTCUSD, i+1)))
	}

	assert.Equal(t, uint64(3), w.queue.Dropped())
	b := <-w.queue.C()
	assert.Len(t, b.Trades, 4)
}

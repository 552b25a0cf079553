package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
)

func batchOf(n int) models.Batch {
	trades := make([]models.Trade, n)
	return models.Batch{Key: models.Key{Exchange: models.Kraken, Pair: models.BTCUSD}, Trades: trades}
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("drop-oldest")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)

	p, err = ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Block, p)

	_, err = ParseOverflowPolicy("drop-newest")
	assert.Error(t, err)
}

func TestQueueFIFO(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := NewQueue("fifo", 3, Block, logger)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Send(context.Background(), batchOf(i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		b := <-q.C()
		assert.Len(t, b.Trades, i)
	}
}

func TestQueueDropOldest(t *testing.T) {
	logger, hook := test.NewNullLogger()
	q := NewQueue("lossy", 2, DropOldest, logger)

	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Send(context.Background(), batchOf(i)))
	}

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Len(t, (<-q.C()).Trades, 3)
	assert.Len(t, (<-q.C()).Trades, 4)
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "Queue full, dropped oldest batch", hook.LastEntry().Message)
}

func TestQueueBlockHonoursContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := NewQueue("strict", 1, Block, logger)
	require.NoError(t, q.Send(context.Background(), batchOf(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Send(ctx, batchOf(2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueueBlockResumesWhenDrained(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := NewQueue("strict", 1, Block, logger)
	require.NoError(t, q.Send(context.Background(), batchOf(1)))

	done := make(chan error, 1)
	go func() { done <- q.Send(context.Background(), batchOf(2)) }()

	<-q.C()
	require.NoError(t, <-done)
	assert.Len(t, (<-q.C()).Trades, 2)
}

func TestQueueClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := NewQueue("closing", 1, Block, logger)
	q.Close()
	q.Close()

	_, ok := <-q.C()
	assert.False(t, ok)
	assert.ErrorIs(t, q.Send(context.Background(), batchOf(1)), ErrClosed)
}

package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/wire"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []*kafka.Message
	committed []*kafka.Message
	closed    bool
	drained   chan struct{}
}

func newFakeReader(msgs ...*kafka.Message) *fakeReader {
	return &fakeReader{messages: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
		time.Sleep(time.Millisecond)
		return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, m)
	return nil, nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeIngester struct {
	mu      sync.Mutex
	batches []models.Batch
	err     error
}

func (f *fakeIngester) Ingest(ctx context.Context, b models.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, b)
	return nil
}

func encoded(t *testing.T, key models.Key) *kafka.Message {
	t.Helper()
	data, err := wire.EncodeBatch(models.Batch{Key: key, Trades: []models.Trade{{
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		Price:     decimal.NewFromInt(10),
		Size:      decimal.NewFromInt(1),
		Side:      models.Taker,
		Kind:      models.Limit,
	}}})
	require.NoError(t, err)
	return &kafka.Message{Key: []byte(key.String()), Value: data}
}

func TestConsumerIngestsAndCommits(t *testing.T) {
	k1 := models.Key{Exchange: models.Kraken, Pair: models.BTCUSD}
	k2 := models.Key{Exchange: models.Binance, Pair: models.BNBBTC}
	bad := &kafka.Message{Value: []byte(`{"exchange":"kraken"}`)}
	reader := newFakeReader(encoded(t, k1), bad, encoded(t, k2))
	ing := &fakeIngester{}
	logger, hook := test.NewNullLogger()
	c := NewConsumer(reader, ing, time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	<-reader.drained
	cancel()
	require.NoError(t, <-done)

	require.Len(t, ing.batches, 2)
	assert.Equal(t, k1, ing.batches[0].Key)
	assert.Equal(t, k2, ing.batches[1].Key)
	assert.Len(t, reader.committed, 3, "malformed messages are committed too")
	assert.True(t, reader.closed)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Dropping malformed message" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestConsumerDoesNotCommitUnacceptedBatch(t *testing.T) {
	reader := newFakeReader(encoded(t, models.Key{Exchange: models.Kraken, Pair: models.BTCUSD}))
	ing := &fakeIngester{err: errors.New("inbox closed")}
	logger, _ := test.NewNullLogger()
	c := NewConsumer(reader, ing, time.Millisecond, logger)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Empty(t, reader.committed)
	assert.True(t, reader.closed)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(kafka.NewError(kafka.ErrTimedOut, "timed out", false)))
	assert.False(t, isTimeout(kafka.NewError(kafka.ErrAllBrokersDown, "down", false)))
	assert.False(t, isTimeout(errors.New("other")))
}

package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickfold/internal/models"
)

func drainSeeds(d *Deduplicator) {
	for {
		select {
		case s := <-d.seeds:
			d.applySeed(s)
		default:
			return
		}
	}
}

func TestBootstrapSeedsKnownKeys(t *testing.T) {
	binanceETH := models.Key{Exchange: models.Binance, Pair: models.ETHBTC}
	store := &fakeStore{
		pairs: []models.Pair{models.BTCUSD, models.ETHBTC},
		last: map[models.Key]time.Time{
			key:        at(100, 0).Timestamp,
			binanceETH: at(200, 0).Timestamp,
		},
	}
	d, _ := newTestDedup(store)

	d.bootstrap(context.Background())
	drainSeeds(d)

	assert.Equal(t, at(100, 0).Timestamp, d.watermark(key))
	assert.Equal(t, at(200, 0).Timestamp, d.watermark(binanceETH))
	assert.Equal(t, DefaultEpoch, d.watermark(models.Key{Exchange: models.Binance, Pair: models.BTCUSD}))
}

func TestBootstrapReadFailureLeavesEpoch(t *testing.T) {
	store := &fakeStore{
		pairs:   []models.Pair{models.BTCUSD},
		lastErr: map[models.Key]error{key: errors.New("timeout")},
	}
	d, hook := newTestDedup(store)

	d.bootstrap(context.Background())
	drainSeeds(d)

	assert.Equal(t, DefaultEpoch, d.watermark(key))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["exchange"] == models.Kraken {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestBootstrapListFailureIsLogged(t *testing.T) {
	d, hook := newTestDedup(&fakeStore{pairsErr: errors.New("connection refused")})

	d.bootstrap(context.Background())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Empty(t, d.seeds)
}

func TestRunBootstrapThenIngest(t *testing.T) {
	store := &fakeStore{
		pairs: []models.Pair{models.BTCUSD},
		last:  map[models.Key]time.Time{key: at(10, 0).Timestamp},
	}
	fwd := newRecorder()
	logger, _ := test.NewNullLogger()
	d := New(Config{Exchanges: []models.Exchange{models.Kraken}}, store, logger, fwd)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.NoError(t, d.Ingest(ctx, models.Batch{Key: key, Trades: []models.Trade{at(5, 1), at(11, 1)}}))

	select {
	case <-fwd.got:
	case <-time.After(time.Second):
		t.Fatal("batch was not forwarded")
	}

	cancel()
	require.NoError(t, <-done)

	// at(5) may only slip through if ingest won the race against bootstrap.
	got := fwd.all()
	require.NotEmpty(t, got)
	last := got[len(got)-1].Trades
	assert.Equal(t, int64(11), timestamps(last)[len(last)-1])
}

func TestIngestHonoursContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := New(Config{QueueSize: 1}, &fakeStore{}, logger)

	require.NoError(t, d.Ingest(context.Background(), models.Batch{Key: key}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := d.Ingest(ctx, models.Batch{Key: key})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunRejectsBadResyncSchedule(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := New(Config{ResyncSchedule: "not a schedule"}, &fakeStore{}, logger)

	err := d.Run(context.Background())
	assert.Error(t, err)
}

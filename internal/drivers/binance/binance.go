// Package binance streams trades from the Binance combined websocket stream
// and publishes them in per-pair batches.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/navid-fn/tickfold/internal/crawler"
	"github.com/navid-fn/tickfold/internal/models"
)

const (
	DefaultBaseURL       = "wss://stream.binance.com:9443"
	DefaultFlushInterval = 250 * time.Millisecond
)

var errNotTrade = errors.New("not a trade event")

type Config struct {
	BaseURL string
	Pairs   []models.Pair
	// MaxSubs caps the streams multiplexed on one connection.
	MaxSubs int

	// FlushInterval is how often buffered trades are published. The newest
	// millisecond of a pair waits until the pair was quiet this long.
	FlushInterval time.Duration
}

type BinanceCrawler struct {
	cfg       Config
	publisher crawler.Publisher
	logger    logrus.FieldLogger
	batches   *batcher
	now       func() time.Time
}

var _ crawler.Crawler = (*BinanceCrawler)(nil)

func NewBinanceCrawler(cfg Config, publisher crawler.Publisher, logger logrus.FieldLogger) *BinanceCrawler {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxSubs <= 0 {
		cfg.MaxSubs = crawler.MaxSubsPerConnection
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &BinanceCrawler{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.WithField("exchange", models.Binance),
		batches:   newBatcher(),
		now:       time.Now,
	}
}

func (bc *BinanceCrawler) GetName() string {
	return "binance"
}

// StreamName is the trade stream of a pair, e.g. "bnbbtc@trade".
func StreamName(pair models.Pair) string {
	return strings.ToLower(string(pair.Left)+string(pair.Right)) + "@trade"
}

// StreamURL builds the combined stream URL for a set of stream names.
func StreamURL(base string, streams []string) string {
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Run opens one connection per chunk of streams and waits for all of them.
// Buffered trades are published every FlushInterval and once more on exit.
func (bc *BinanceCrawler) Run(ctx context.Context) error {
	if len(bc.cfg.Pairs) == 0 {
		return errors.New("no binance pairs configured")
	}

	streams := make([]string, 0, len(bc.cfg.Pairs))
	for _, p := range bc.cfg.Pairs {
		streams = append(streams, StreamName(p))
	}

	worker := crawler.NewBaseWebSocketWorker(crawler.DefaultWebSocketConfig(bc.cfg.BaseURL), bc.logger)
	worker.BuildURL = func(chunk []string) string {
		return StreamURL(bc.cfg.BaseURL, chunk)
	}
	worker.OnMessage = bc.handleMessage

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bc.publishLoop(ctx)
	}()
	for _, chunk := range crawler.ChunkStreams(streams, bc.cfg.MaxSubs) {
		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()
			worker.RunWorker(ctx, chunk, "binance")
		}(chunk)
	}
	wg.Wait()
	return nil
}

func (bc *BinanceCrawler) handleMessage(ctx context.Context, message []byte) error {
	payload, err := ParseMessage(message)
	if errors.Is(err, errNotTrade) {
		return nil
	}
	if err != nil {
		return err
	}

	exchange, pair, trades, err := crawler.Normalize(payload)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	bc.batches.add(models.Key{Exchange: exchange, Pair: pair}, trades, bc.now())
	return nil
}

func (bc *BinanceCrawler) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(bc.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bc.publish(ctx, bc.batches.take(bc.now(), bc.cfg.FlushInterval))
		case <-ctx.Done():
			bc.publish(context.WithoutCancel(ctx), bc.batches.take(bc.now(), 0))
			return
		}
	}
}

func (bc *BinanceCrawler) publish(ctx context.Context, batches []models.Batch) {
	for _, b := range batches {
		if err := bc.publisher.Publish(ctx, b); err != nil {
			bc.logger.WithError(err).WithField("asset_pair", b.Key.Pair.String()).Error("Failed to publish trades")
			continue
		}
		bc.logger.WithFields(logrus.Fields{
			"asset_pair": b.Key.Pair.String(),
			"count":      len(b.Trades),
		}).Debug("Published trades")
	}
}

// ParseMessage extracts the trade from a combined stream frame such as
// {"stream":"bnbbtc@trade","data":{"e":"trade",...}}. Field names differ
// only by case ("m"/"M", "e"/"E"), so they are read with exact-case paths.
func ParseMessage(message []byte) (crawler.BinanceTrade, error) {
	if !gjson.ValidBytes(message) {
		return crawler.BinanceTrade{}, errors.New("invalid JSON frame")
	}

	data := gjson.GetBytes(message, "data")
	if data.Get("e").String() != "trade" {
		return crawler.BinanceTrade{}, errNotTrade
	}

	return crawler.BinanceTrade{
		EventTime:     data.Get("E").Int(),
		Symbol:        data.Get("s").String(),
		TradeID:       data.Get("t").Uint(),
		Price:         data.Get("p").String(),
		Quantity:      data.Get("q").String(),
		BuyerOrderID:  data.Get("b").Uint(),
		SellerOrderID: data.Get("a").Uint(),
		TradeTime:     data.Get("T").Int(),
		BuyerIsMaker:  data.Get("m").Bool(),
	}, nil
}

// Package kraken polls the Kraken public trades endpoint for each configured
// pair and publishes every new page as one batch.
package kraken

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/navid-fn/tickfold/internal/crawler"
	"github.com/navid-fn/tickfold/internal/models"
)

const (
	DefaultBaseURL      = "https://api.kraken.com"
	TradesPath          = "/0/public/Trades"
	DefaultPollInterval = 15 * time.Second
	RequestsPerSecond   = 1.0
)

var ErrUnsupportedPair = errors.New("pair not listed on kraken")

// krakenNames maps pairs to the result keys Kraken uses for them.
var krakenNames = map[models.Pair]string{
	models.BTCUSD: "XXBTZUSD",
	models.ETHUSD: "XETHZUSD",
	models.ETHBTC: "XETHXXBT",
}

// SymbolFor returns Kraken's name for pair.
func SymbolFor(pair models.Pair) (string, error) {
	name, ok := krakenNames[pair]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPair, pair)
	}
	return name, nil
}

type Config struct {
	BaseURL      string
	Pairs        []models.Pair
	PollInterval time.Duration
}

type KrakenCrawler struct {
	cfg        Config
	client     *http.Client
	httpConfig *crawler.HTTPConfig
	publisher  crawler.Publisher
	logger     logrus.FieldLogger

	// since cursor per Kraken symbol
	mu      sync.Mutex
	cursors map[string]string
	pairs   map[string]models.Pair
}

var _ crawler.Crawler = (*KrakenCrawler)(nil)

func NewKrakenCrawler(cfg Config, publisher crawler.Publisher, logger logrus.FieldLogger) (*KrakenCrawler, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	pairs := make(map[string]models.Pair, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		name, err := SymbolFor(p)
		if err != nil {
			return nil, err
		}
		pairs[name] = p
	}

	httpConfig := crawler.DefaultHTTPConfig(cfg.BaseURL, RequestsPerSecond)
	httpConfig.PollingDelay = cfg.PollInterval

	return &KrakenCrawler{
		cfg:        cfg,
		client:     &http.Client{},
		httpConfig: httpConfig,
		publisher:  publisher,
		logger:     logger.WithField("exchange", models.Kraken),
		cursors:    make(map[string]string),
		pairs:      pairs,
	}, nil
}

func (kc *KrakenCrawler) GetName() string {
	return "kraken"
}

// Run starts one polling worker per pair and waits for all of them.
func (kc *KrakenCrawler) Run(ctx context.Context) error {
	if len(kc.pairs) == 0 {
		return errors.New("no kraken pairs configured")
	}

	worker := crawler.NewBaseHTTPWorker(kc.httpConfig, kc.logger)

	var wg sync.WaitGroup
	for symbol := range kc.pairs {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			worker.RunWorker(ctx, symbol, kc.fetchTrades)
		}(symbol)
	}
	wg.Wait()
	return nil
}

func (kc *KrakenCrawler) cursor(symbol string) string {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.cursors[symbol]
}

func (kc *KrakenCrawler) setCursor(symbol, last string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.cursors[symbol] = last
}

// fetchTrades polls one page since the stored cursor and publishes it. The
// cursor only moves forward once the page has been handed to the publisher.
func (kc *KrakenCrawler) fetchTrades(ctx context.Context, symbol string) error {
	q := url.Values{"pair": {symbol}}
	if since := kc.cursor(symbol); since != "" {
		q.Set("since", since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, kc.cfg.BaseURL+TradesPath+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := kc.client.Do(req)
	if err != nil {
		return fmt.Errorf("request trades: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	payload, err := ParseTrades(body, kc.pairs[symbol])
	if err != nil {
		return err
	}

	_, pair, trades, err := crawler.Normalize(payload)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if len(trades) > 0 {
		b := models.Batch{Key: models.Key{Exchange: models.Kraken, Pair: pair}, Trades: trades}
		if err := kc.publisher.Publish(ctx, b); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		kc.logger.WithFields(logrus.Fields{
			"asset_pair": pair.String(),
			"count":      len(trades),
		}).Debug("Published trades")
	}

	if payload.Last != "" {
		kc.setCursor(symbol, payload.Last)
	}
	return nil
}

// ParseTrades reads a Trades response body. The result object holds one
// array keyed by Kraken's pair name next to the "last" cursor.
func ParseTrades(body []byte, pair models.Pair) (crawler.KrakenTrades, error) {
	if !gjson.ValidBytes(body) {
		return crawler.KrakenTrades{}, errors.New("invalid JSON response")
	}

	root := gjson.ParseBytes(body)
	if errs := root.Get("error").Array(); len(errs) > 0 {
		return crawler.KrakenTrades{}, fmt.Errorf("kraken error: %s", errs[0].String())
	}

	out := crawler.KrakenTrades{Pair: pair}
	var parseErr error
	root.Get("result").ForEach(func(key, value gjson.Result) bool {
		if key.String() == "last" {
			out.Last = value.String()
			return true
		}
		for _, row := range value.Array() {
			fields := row.Array()
			if len(fields) < 5 {
				parseErr = fmt.Errorf("trade row has %d fields", len(fields))
				return false
			}
			out.Rows = append(out.Rows, crawler.KrakenRow{
				Price:  fields[0].String(),
				Volume: fields[1].String(),
				Time:   rawNumber(fields[2]),
				Side:   fields[3].String(),
				Type:   fields[4].String(),
			})
		}
		return true
	})
	if parseErr != nil {
		return crawler.KrakenTrades{}, parseErr
	}
	return out, nil
}

// rawNumber keeps the literal digits of a JSON number.
func rawNumber(r gjson.Result) string {
	if r.Type == gjson.Number {
		return r.Raw
	}
	return r.String()
}

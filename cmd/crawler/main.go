package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/configs"
	"github.com/navid-fn/tickfold/internal/crawler"
	"github.com/navid-fn/tickfold/internal/drivers/binance"
	"github.com/navid-fn/tickfold/internal/drivers/kraken"
	"github.com/navid-fn/tickfold/internal/models"
)

func main() {
	var exchange string

	flag.StringVar(&exchange, "exchange", "", "Exchange to crawl: kraken, binance (required)")
	flag.Parse()

	if exchange == "" {
		fmt.Fprintf(os.Stderr, "Error: -exchange flag is required\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -exchange <name>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable exchanges:\n")
		fmt.Fprintf(os.Stderr, "  - kraken\n")
		fmt.Fprintf(os.Stderr, "  - binance\n")
		os.Exit(1)
	}

	cfg := configs.AppLoad()
	logger, err := crawler.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Infof("Starting crawler for exchange: %s", exchange)

	publisher, err := crawler.NewKafkaPublisher(cfg.KafkaTrade.Broker, cfg.KafkaTrade.Topic, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka publisher")
	}
	defer publisher.Close()

	c, err := newCrawler(exchange, cfg, publisher, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create crawler")
	}
	logger.Infof("Initialized %s crawler", c.GetName())

	err = crawler.RunWithGracefulShutdown(logger, func(ctx context.Context, wg *sync.WaitGroup) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				logger.WithError(err).Error("Crawler failed")
			}
		}()
	})
	if err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
}

func newCrawler(exchange string, cfg *configs.AppConfig, publisher crawler.Publisher, logger logrus.FieldLogger) (crawler.Crawler, error) {
	switch exchange {
	case "kraken":
		pairs, err := parsePairs(cfg.Kraken.Pairs)
		if err != nil {
			return nil, err
		}
		return kraken.NewKrakenCrawler(kraken.Config{
			Pairs:        pairs,
			PollInterval: cfg.Kraken.PollInterval,
		}, publisher, logger)
	case "binance":
		pairs, err := parsePairs(cfg.Binance.Pairs)
		if err != nil {
			return nil, err
		}
		return binance.NewBinanceCrawler(binance.Config{
			Pairs:         pairs,
			FlushInterval: cfg.Binance.FlushInterval,
		}, publisher, logger), nil
	}
	return nil, fmt.Errorf("unknown exchange: %s", exchange)
}

func parsePairs(names []string) ([]models.Pair, error) {
	pairs := make([]models.Pair, 0, len(names))
	for _, name := range names {
		p, err := models.ParsePair(name)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/navid-fn/tickfold/configs"
	"github.com/navid-fn/tickfold/internal/aggregator"
	"github.com/navid-fn/tickfold/internal/consumer"
	"github.com/navid-fn/tickfold/internal/crawler"
	"github.com/navid-fn/tickfold/internal/dedup"
	"github.com/navid-fn/tickfold/internal/ingester"
	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/pipeline"
	"github.com/navid-fn/tickfold/internal/server"
	"github.com/navid-fn/tickfold/internal/storage"
)

func main() {
	cfg := configs.AppLoad()

	logger, err := crawler.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Collector failed")
	}
	logger.Info("Collector stopped")
}

func run(cfg *configs.AppConfig, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := storage.Open(ctx, storage.Config{
		Driver:                  cfg.Storage.Driver,
		ClickHouseDSN:           cfg.Storage.ClickHouseDSN,
		SQLitePath:              cfg.Storage.SQLitePath,
		RetryAttempts:           cfg.Storage.RetryAttempts,
		RetryBase:               cfg.Storage.RetryBase,
		BreakerMaxFailures:      cfg.Storage.BreakerMaxFailures,
		BreakerTimeout:          cfg.Storage.BreakerTimeout,
		BreakerSuccessThreshold: cfg.Storage.BreakerSuccessThreshold,
	}, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer gw.Close()

	if cfg.CandleTopic != "" {
		publisher, err := crawler.NewKafkaPublisher(cfg.KafkaTrade.Broker, cfg.CandleTopic, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		gw = storage.WithCandleFeed(gw, publisher, logger)
	}

	storeOverflow, err := pipeline.ParseOverflowPolicy(cfg.TradeStore.Overflow)
	if err != nil {
		return err
	}
	aggOverflow, err := pipeline.ParseOverflowPolicy(cfg.Aggregator.Overflow)
	if err != nil {
		return err
	}
	exchanges, err := parseExchanges(cfg.Dedup.Exchanges)
	if err != nil {
		return err
	}

	writer := ingester.NewTradeWriter(gw, logger, ingester.TradeWriterConfig{
		QueueSize: cfg.TradeStore.QueueSize,
		Overflow:  storeOverflow,
	})
	agg := aggregator.New(aggregator.Config{
		Period:    cfg.Aggregator.Period,
		QueueSize: cfg.Aggregator.QueueSize,
		Overflow:  aggOverflow,
	}, gw, logger)
	dd := dedup.New(dedup.Config{
		Epoch:          cfg.Dedup.Epoch,
		QueueSize:      cfg.Dedup.QueueSize,
		RelayQueueSize: cfg.Dedup.RelayQueueSize,
		Exchanges:      exchanges,
		ResyncSchedule: cfg.Dedup.ResyncSchedule,
	}, gw, logger, writer, agg)

	reader, err := consumer.NewKafkaReader(consumer.Config{
		Broker:  cfg.KafkaTrade.Broker,
		Topic:   cfg.KafkaTrade.Topic,
		GroupID: cfg.KafkaTrade.GroupID,
	})
	if err != nil {
		return err
	}
	kafkaConsumer := consumer.NewConsumer(reader, dd, consumer.DefaultPollTimeout, logger)

	logger.WithFields(logrus.Fields{
		"storage": cfg.Storage.Driver,
		"period":  cfg.Aggregator.Period,
		"topic":   cfg.KafkaTrade.Topic,
	}).Info("Starting collector")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writer.Run(gctx) })
	g.Go(func() error { return agg.Run(gctx) })
	g.Go(func() error { return dd.Run(gctx) })
	g.Go(func() error { return kafkaConsumer.Start(gctx) })
	if cfg.HTTPListenAddr != "" {
		srv := server.New(cfg.HTTPListenAddr, dd, logger)
		g.Go(func() error { return srv.Start(gctx) })
	}

	return g.Wait()
}

func parseExchanges(names []string) ([]models.Exchange, error) {
	exchanges := make([]models.Exchange, 0, len(names))
	for _, name := range names {
		e, err := models.ParseExchange(name)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, e)
	}
	return exchanges, nil
}

package storage

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/wire"
)

// Sender queues a keyed message on a topic.
type Sender interface {
	Send(key string, value []byte) error
}

// candleFeed publishes every candle after it has been stored. A publish
// failure is logged and never fails the write.
type candleFeed struct {
	Gateway
	sender Sender
	logger logrus.FieldLogger
}

// WithCandleFeed wraps gw so that stored candles are also published to sender.
func WithCandleFeed(gw Gateway, sender Sender, logger logrus.FieldLogger) Gateway {
	return &candleFeed{
		Gateway: gw,
		sender:  sender,
		logger:  logger.WithField("component", "candle-feed"),
	}
}

func (f *candleFeed) WriteCandles(ctx context.Context, candles []models.Candle) error {
	if err := f.Gateway.WriteCandles(ctx, candles); err != nil {
		return err
	}

	for _, c := range candles {
		data, err := json.Marshal(wire.FromCandle(c))
		if err != nil {
			f.logger.WithError(err).Error("Failed to encode candle")
			continue
		}
		key := c.Exchange.String() + "/" + c.Pair.String()
		if err := f.sender.Send(key, data); err != nil {
			f.logger.WithError(err).WithField("key", key).Warn("Failed to publish candle")
		}
	}
	return nil
}

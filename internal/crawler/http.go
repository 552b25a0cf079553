package crawler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type HTTPConfig struct {
	BaseURL        string
	RateLimiter    *rate.Limiter
	PollingDelay   time.Duration
	RequestTimeout time.Duration
	ErrorBackoff   time.Duration
}

func DefaultHTTPConfig(baseURL string, requestsPerSecond float64) *HTTPConfig {
	return &HTTPConfig{
		BaseURL:        baseURL,
		RateLimiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		PollingDelay:   15 * time.Second,
		RequestTimeout: 10 * time.Second,
		ErrorBackoff:   2 * time.Second,
	}
}

// BaseHTTPWorker runs a poll function for one symbol on a fixed delay,
// rate limited across every worker that shares the config.
type BaseHTTPWorker struct {
	Config *HTTPConfig
	Logger logrus.FieldLogger
}

func NewBaseHTTPWorker(config *HTTPConfig, logger logrus.FieldLogger) *BaseHTTPWorker {
	return &BaseHTTPWorker{
		Config: config,
		Logger: logger,
	}
}

// RunWorker polls until ctx is cancelled. A failed poll is logged and retried
// after ErrorBackoff instead of PollingDelay.
func (hw *BaseHTTPWorker) RunWorker(
	ctx context.Context,
	symbol string,
	fetchFunc func(ctx context.Context, symbol string) error,
) {
	log := hw.Logger.WithField("symbol", symbol)
	log.Info("Starting HTTP worker for symbol")

	delay := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping HTTP worker for symbol")
			return
		case <-time.After(delay):
		}

		if err := hw.Config.RateLimiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Error("Rate limiter error")
			}
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, hw.Config.RequestTimeout)
		err := fetchFunc(reqCtx, symbol)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("Error fetching data")
			delay = hw.Config.ErrorBackoff
			continue
		}
		delay = hw.Config.PollingDelay
	}
}

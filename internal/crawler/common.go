package crawler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Default values
	DefaultKafkaBroker   = "localhost:9092"
	DefaultKafkaTopic    = "tickfold_trades"
	MaxSubsPerConnection = 20

	// WebSocket connection timeouts and intervals
	InitialReconnectDelay = 1 * time.Second
	MaxReconnectDelay     = 30 * time.Second
	HandshakeTimeout      = 5 * time.Second
	ReadTimeout           = 60 * time.Second
	WriteTimeout          = 10 * time.Second
	PingInterval          = 30 * time.Second
	PongTimeout           = 10 * time.Second

	// Connection health
	MaxConsecutiveErrors = 5
	HealthCheckInterval  = 5 * time.Second
)

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return logger, nil
}

// Turn slice of streams to small chunks
// ["btcusd@trade", "ethbtc@trade", ...] -> [["btcusd@trade", "ethbtc@trade"], ...]
func ChunkStreams(streams []string, chunkSize int) [][]string {
	if chunkSize <= 0 {
		chunkSize = MaxSubsPerConnection
	}
	var chunks [][]string
	for i := 0; i < len(streams); i += chunkSize {
		end := min(i+chunkSize, len(streams))
		chunks = append(chunks, streams[i:end])
	}
	return chunks
}

// RunWithGracefulShutdown cancels the workers' context on SIGINT or SIGTERM
// and waits for all of them to return.
func RunWithGracefulShutdown(
	logger logrus.FieldLogger,
	startWorkers func(ctx context.Context, wg *sync.WaitGroup),
) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("Received shutdown signal, gracefully shutting down...")
	}()

	var wg sync.WaitGroup
	startWorkers(ctx, &wg)

	logger.Info("All workers started")
	wg.Wait()

	return nil
}

// Package crawler holds what every upstream producer shares: the
// exchange-specific payload variants and their normalization, the Kafka
// publisher, and the HTTP polling and websocket worker loops.
package crawler

import (
	"context"

	"github.com/navid-fn/tickfold/internal/models"
)

type Crawler interface {
	Run(ctx context.Context) error
	GetName() string
}

// Publisher ships one normalized batch per (exchange, asset pair).
type Publisher interface {
	Publish(ctx context.Context, b models.Batch) error
}

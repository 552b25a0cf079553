package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/wire"
)

// Ingester accepts a batch for deduplication.
type Ingester interface {
	Ingest(ctx context.Context, b models.Batch) error
}

type TradeHandler struct {
	ingester Ingester
	logger   logrus.FieldLogger
}

func NewTradeHandler(ingester Ingester, logger logrus.FieldLogger) *TradeHandler {
	return &TradeHandler{
		ingester: ingester,
		logger:   logger.WithField("component", "http-intake"),
	}
}

// PutTradeHistory accepts a JSON array of trade records for the key named
// by the path.
func (h *TradeHandler) PutTradeHistory(c *gin.Context) {
	key, err := keyFromPath(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	trades, err := wire.DecodeRecords(body)
	if err != nil {
		h.logger.WithError(err).WithField("key", key.String()).Warn("Rejected trade records")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ingester.Ingest(c.Request.Context(), models.Batch{Key: key, Trades: trades}); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pipeline busy"})
			return
		}
		h.logger.WithError(err).Error("Failed to ingest batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": len(trades)})
}

func keyFromPath(c *gin.Context) (models.Key, error) {
	pair, err := models.NewPair(c.Param("left"), c.Param("right"))
	if err != nil {
		return models.Key{}, err
	}
	if pair, err = models.ParsePair(pair.String()); err != nil {
		return models.Key{}, err
	}
	exchange, err := models.ParseExchange(c.Param("exchange"))
	if err != nil {
		return models.Key{}, err
	}
	return models.Key{Exchange: exchange, Pair: pair}, nil
}

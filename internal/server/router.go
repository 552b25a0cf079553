// Package server exposes the HTTP intake for trade batches.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Config struct {
	TradeHandler *TradeHandler
	Logger       logrus.FieldLogger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	api := router.Group("/v1/")
	registerTradeRoutes(api, cfg.TradeHandler)

	return router
}

func registerTradeRoutes(router *gin.RouterGroup, tradeHandler *TradeHandler) {
	router.PUT("/trade_history/:left/:right/:exchange", tradeHandler.PutTradeHistory)
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("Request handled")
	}
}

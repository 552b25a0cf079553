package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketConfig holds WebSocket-specific configuration
type WebSocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
}

// DefaultWebSocketConfig returns a default WebSocket configuration
func DefaultWebSocketConfig(wsURL string) *WebSocketConfig {
	return &WebSocketConfig{
		URL:              wsURL,
		HandshakeTimeout: HandshakeTimeout,
		ReadTimeout:      ReadTimeout,
		WriteTimeout:     WriteTimeout,
		PingInterval:     PingInterval,
		PongTimeout:      PongTimeout,
	}
}

// BaseWebSocketWorker keeps one connection per chunk of symbols alive and
// hands every message to OnMessage.
type BaseWebSocketWorker struct {
	Config *WebSocketConfig
	Logger logrus.FieldLogger

	// BuildURL returns the dial URL for a chunk. Config.URL is used when nil.
	BuildURL func(symbols []string) string
	// OnSubscribe runs after dialing, for exchanges that subscribe by message.
	OnSubscribe func(*websocket.Conn, []string) error
	// OnMessage handles one frame. Errors are logged and the connection kept.
	OnMessage func(ctx context.Context, message []byte) error
}

// NewBaseWebSocketWorker creates a new BaseWebSocketWorker
func NewBaseWebSocketWorker(config *WebSocketConfig, logger logrus.FieldLogger) *BaseWebSocketWorker {
	return &BaseWebSocketWorker{
		Config: config,
		Logger: logger,
	}
}

// RunWorker reconnects with capped exponential backoff until ctx is done.
func (bw *BaseWebSocketWorker) RunWorker(ctx context.Context, symbolsChunk []string, workerPrefix string) {
	workerID := fmt.Sprintf("%s-%s", workerPrefix, symbolsChunk[0])
	log := bw.Logger.WithField("worker", workerID)
	log.WithField("symbols", len(symbolsChunk)).Info("Starting websocket worker")

	reconnectDelay := InitialReconnectDelay
	consecutiveErrors := 0

	for {
		err := bw.HandleConnection(ctx, log, symbolsChunk)
		if ctx.Err() != nil {
			log.Info("Shutting down due to context cancellation")
			return
		}

		if err == nil {
			consecutiveErrors = 0
			reconnectDelay = InitialReconnectDelay
			continue
		}

		consecutiveErrors++
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": consecutiveErrors,
			"delay":   reconnectDelay,
		}).Error("WebSocket error, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}

		reconnectDelay = NextReconnectDelay(reconnectDelay, consecutiveErrors)
	}
}

// NextReconnectDelay doubles the delay up to MaxReconnectDelay, jumping to
// the cap after MaxConsecutiveErrors failures in a row.
func NextReconnectDelay(current time.Duration, consecutiveErrors int) time.Duration {
	if consecutiveErrors >= MaxConsecutiveErrors {
		return MaxReconnectDelay
	}
	return min(current*2, MaxReconnectDelay)
}

// HandleConnection manages a single WebSocket connection lifecycle
func (bw *BaseWebSocketWorker) HandleConnection(ctx context.Context, log logrus.FieldLogger, symbolsChunk []string) error {
	rawURL := bw.Config.URL
	if bw.BuildURL != nil {
		rawURL = bw.BuildURL(symbolsChunk)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: bw.Config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	defer conn.Close()

	log.Info("Connected to WebSocket")

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	var lastPong atomic.Int64
	lastPong.Store(time.Now().UnixNano())

	conn.SetPongHandler(func(string) error {
		lastPong.Store(time.Now().UnixNano())
		return nil
	})

	conn.SetPingHandler(func(message string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(bw.Config.WriteTimeout))
		if err != nil {
			log.WithError(err).Error("Failed to send pong")
		}
		return err
	})

	if bw.OnSubscribe != nil {
		if err := bw.OnSubscribe(conn, symbolsChunk); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	pingTicker := time.NewTicker(bw.Config.PingInterval)
	defer pingTicker.Stop()

	healthTicker := time.NewTicker(HealthCheckInterval)
	defer healthTicker.Stop()

	readErrors := make(chan error, 1)
	messages := make(chan []byte, 100)

	go func() {
		defer close(messages)

		for {
			conn.SetReadDeadline(time.Now().Add(bw.Config.ReadTimeout))
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrors <- err
				return
			}

			select {
			case messages <- message:
			case <-connCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Context cancelled, closing connection")
			return nil

		case err := <-readErrors:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("WebSocket read error: %w", err)

		case message, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if bw.OnMessage == nil {
				continue
			}
			if err := bw.OnMessage(ctx, message); err != nil {
				log.WithError(err).Warn("Failed to handle message")
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(bw.Config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return fmt.Errorf("failed to send ping: %w", err)
			}

		case <-healthTicker.C:
			sinceLastPong := time.Since(time.Unix(0, lastPong.Load()))
			if sinceLastPong > bw.Config.PingInterval+bw.Config.PongTimeout {
				return fmt.Errorf("connection appears unhealthy, last pong was %v ago", sinceLastPong)
			}
		}
	}
}

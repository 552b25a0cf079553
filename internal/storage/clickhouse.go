package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	gormch "gorm.io/driver/clickhouse"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/repository"
)

// ClickHouse writes through the native driver using batch inserts and reads
// bootstrap state through gorm.
//
// The trade_history table is a ReplacingMergeTree ordered by
// (exchange, asset_pair, happened), which collapses re-written trades.
type ClickHouse struct {
	conn driver.Conn
	db   *gorm.DB
	repo repository.TradeHistoryRepository
}

var _ Gateway = (*ClickHouse)(nil)

// NewClickHouse parses the DSN, opens both connections and verifies
// connectivity with a ping.
func NewClickHouse(ctx context.Context, dsn string) (*ClickHouse, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	db, err := gorm.Open(gormch.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open gorm clickhouse: %w", err)
	}

	return &ClickHouse{
		conn: conn,
		db:   db,
		repo: repository.NewGormTradeHistoryRepository(db),
	}, nil
}

// WriteTrades inserts the trades of one key in a single batch.
func (s *ClickHouse) WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_history (
			exchange, asset_pair, happened,
			match_size, match_price, market, trade,
			match_id, buy_order_id, sell_order_id, match_time,
			inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}

	now := time.Now().UTC()
	for _, t := range trades {
		err := batch.Append(
			exchange.String(),
			pair.String(),
			t.Timestamp.UTC(),
			t.Size,
			t.Price,
			string(t.Side),
			string(t.Kind),
			t.MatchID,
			t.BuyOrderID,
			t.SellOrderID,
			nullableTime(t.MatchTime),
			now,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("append trade: %w", err)
		}
	}

	return batch.Send()
}

// LastTradeTimestamp delegates to the gorm repository.
func (s *ClickHouse) LastTradeTimestamp(ctx context.Context, exchange models.Exchange, pair models.Pair) (time.Time, bool, error) {
	return s.repo.LastTradeTimestamp(ctx, exchange.String(), pair.String())
}

// KnownAssetPairs delegates to the gorm repository and drops pairs that no
// longer parse.
func (s *ClickHouse) KnownAssetPairs(ctx context.Context) ([]models.Pair, error) {
	names, err := s.repo.DistinctAssetPairs(ctx)
	if err != nil {
		return nil, err
	}
	return parsePairs(names), nil
}

// WriteCandles inserts a flushed batch into the ticks table.
func (s *ClickHouse) WriteCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ticks (
			id, exchange, asset_pair, start_time, end_time,
			first_price, first_size, highest_price, highest_size,
			lowest_price, lowest_size, last_price, last_size,
			trades
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare tick batch: %w", err)
	}

	for _, c := range candles {
		err := batch.Append(
			uuid.New(),
			c.Exchange.String(),
			c.Pair.String(),
			c.Start.UTC(),
			c.End.UTC(),
			c.FirstPrice,
			c.FirstSize,
			c.HighPrice,
			c.HighSize,
			c.LowPrice,
			c.LowSize,
			c.LastPrice,
			c.LastSize,
			c.Count,
		)
		if err != nil {
			batch.Abort()
			return fmt.Errorf("append tick: %w", err)
		}
	}

	return batch.Send()
}

// Close closes both connections.
func (s *ClickHouse) Close() error {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
	return s.conn.Close()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func parsePairs(names []string) []models.Pair {
	pairs := make([]models.Pair, 0, len(names))
	for _, name := range names {
		p, err := models.ParsePair(name)
		if err != nil {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs
}

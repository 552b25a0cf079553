package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/navid-fn/tickfold/internal/models"
)

// SQLite is a single-file gateway for one-node deployments and local runs.
// Trades are unique on (exchange, asset_pair, happened) and re-writes are
// ignored. Decimals are stored as text to keep their exact precision, and so
// are exchange ids, which span the full uint64 range.
type SQLite struct {
	db *sql.DB
}

var _ Gateway = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at path and creates the schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trade_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			exchange      TEXT    NOT NULL,
			asset_pair    TEXT    NOT NULL,
			happened      INTEGER NOT NULL,
			match_size    TEXT    NOT NULL,
			match_price   TEXT    NOT NULL,
			market        TEXT    NOT NULL,
			trade         TEXT    NOT NULL,
			match_id      TEXT,
			buy_order_id  TEXT,
			sell_order_id TEXT,
			match_time    INTEGER,
			inserted_at   INTEGER NOT NULL,
			UNIQUE (exchange, asset_pair, happened)
		)`,
		`CREATE TABLE IF NOT EXISTS ticks (
			id            TEXT PRIMARY KEY,
			exchange      TEXT    NOT NULL,
			asset_pair    TEXT    NOT NULL,
			start_time    INTEGER NOT NULL,
			end_time      INTEGER NOT NULL,
			first_price   TEXT    NOT NULL,
			first_size    TEXT    NOT NULL,
			highest_price TEXT    NOT NULL,
			highest_size  TEXT    NOT NULL,
			lowest_price  TEXT    NOT NULL,
			lowest_size   TEXT    NOT NULL,
			last_price    TEXT    NOT NULL,
			last_size     TEXT    NOT NULL,
			trades        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_key ON ticks(exchange, asset_pair, start_time)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// WriteTrades inserts the trades of one key in a single transaction.
func (s *SQLite) WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trade_history (
			exchange, asset_pair, happened,
			match_size, match_price, market, trade,
			match_id, buy_order_id, sell_order_id, match_time,
			inserted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, t := range trades {
		var matchTime sql.NullInt64
		if !t.MatchTime.IsZero() {
			matchTime = sql.NullInt64{Int64: t.MatchTime.UnixNano(), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			exchange.String(),
			pair.String(),
			t.Timestamp.UnixNano(),
			t.Size.String(),
			t.Price.String(),
			string(t.Side),
			string(t.Kind),
			strconv.FormatUint(t.MatchID, 10),
			strconv.FormatUint(t.BuyOrderID, 10),
			strconv.FormatUint(t.SellOrderID, 10),
			matchTime,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	return tx.Commit()
}

// LastTradeTimestamp returns the newest stored trade time for the key.
func (s *SQLite) LastTradeTimestamp(ctx context.Context, exchange models.Exchange, pair models.Pair) (time.Time, bool, error) {
	var happened sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(happened) FROM trade_history WHERE exchange = ? AND asset_pair = ?`,
		exchange.String(), pair.String(),
	).Scan(&happened)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last trade %s %s: %w", exchange, pair, err)
	}
	if !happened.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, happened.Int64).UTC(), true, nil
}

// KnownAssetPairs returns the distinct stored pairs.
func (s *SQLite) KnownAssetPairs(ctx context.Context) ([]models.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT asset_pair FROM trade_history`)
	if err != nil {
		return nil, fmt.Errorf("query asset pairs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return parsePairs(names), nil
}

// WriteCandles inserts a flushed batch in one transaction.
func (s *SQLite) WriteCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks (
			id, exchange, asset_pair, start_time, end_time,
			first_price, first_size, highest_price, highest_size,
			lowest_price, lowest_size, last_price, last_size,
			trades
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			c.Exchange.String(),
			c.Pair.String(),
			c.Start.UnixNano(),
			c.End.UnixNano(),
			c.FirstPrice.String(),
			c.FirstSize.String(),
			c.HighPrice.String(),
			c.HighSize.String(),
			c.LowPrice.String(),
			c.LowSize.String(),
			c.LastPrice.String(),
			c.LastSize.String(),
			c.Count,
		)
		if err != nil {
			return fmt.Errorf("insert tick: %w", err)
		}
	}

	return tx.Commit()
}

// Candles reads back the stored candles for one key, oldest first.
func (s *SQLite) Candles(ctx context.Context, exchange models.Exchange, pair models.Pair) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_time, end_time,
			first_price, first_size, highest_price, highest_size,
			lowest_price, lowest_size, last_price, last_size, trades
		FROM ticks WHERE exchange = ? AND asset_pair = ?
		ORDER BY start_time`,
		exchange.String(), pair.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var (
			start, end int64
			prices     [8]string
			count      int64
		)
		if err := rows.Scan(&start, &end,
			&prices[0], &prices[1], &prices[2], &prices[3],
			&prices[4], &prices[5], &prices[6], &prices[7], &count,
		); err != nil {
			return nil, err
		}

		var dec [8]decimal.Decimal
		for i, p := range prices {
			d, err := decimal.NewFromString(p)
			if err != nil {
				return nil, fmt.Errorf("parse stored decimal %q: %w", p, err)
			}
			dec[i] = d
		}

		out = append(out, models.Candle{
			Exchange:   exchange,
			Pair:       pair,
			Start:      time.Unix(0, start).UTC(),
			End:        time.Unix(0, end).UTC(),
			FirstPrice: dec[0],
			FirstSize:  dec[1],
			HighPrice:  dec[2],
			HighSize:   dec[3],
			LowPrice:   dec[4],
			LowSize:    dec[5],
			LastPrice:  dec[6],
			LastSize:   dec[7],
			Count:      count,
		})
	}
	return out, rows.Err()
}

// CountTrades reports how many trades are stored for the key.
func (s *SQLite) CountTrades(ctx context.Context, exchange models.Exchange, pair models.Pair) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE exchange = ? AND asset_pair = ?`,
		exchange.String(), pair.String(),
	).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

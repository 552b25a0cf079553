package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TradeHistoryRow maps the columns of trade_history the read side needs.
type TradeHistoryRow struct {
	Exchange  string    `gorm:"column:exchange"`
	AssetPair string    `gorm:"column:asset_pair"`
	Happened  time.Time `gorm:"column:happened"`
}

func (TradeHistoryRow) TableName() string {
	return "trade_history"
}

// TradeHistoryRepository answers the bootstrap queries over stored trades.
type TradeHistoryRepository interface {
	LastTradeTimestamp(ctx context.Context, exchange, assetPair string) (time.Time, bool, error)
	DistinctAssetPairs(ctx context.Context) ([]string, error)
}

type gormTradeHistoryRepository struct {
	db *gorm.DB
}

func NewGormTradeHistoryRepository(db *gorm.DB) TradeHistoryRepository {
	return &gormTradeHistoryRepository{db: db}
}

func (r *gormTradeHistoryRepository) LastTradeTimestamp(ctx context.Context, exchange, assetPair string) (time.Time, bool, error) {
	var rows []TradeHistoryRow
	err := r.db.WithContext(ctx).
		Model(&TradeHistoryRow{}).
		Select("happened").
		Where("exchange = ? AND asset_pair = ?", exchange, assetPair).
		Order("happened DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last trade %s %s: %w", exchange, assetPair, err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].Happened.UTC(), true, nil
}

func (r *gormTradeHistoryRepository) DistinctAssetPairs(ctx context.Context) ([]string, error) {
	var pairs []string
	err := r.db.WithContext(ctx).
		Model(&TradeHistoryRow{}).
		Distinct("asset_pair").
		Pluck("asset_pair", &pairs).Error
	if err != nil {
		return nil, fmt.Errorf("query asset pairs: %w", err)
	}
	return pairs, nil
}

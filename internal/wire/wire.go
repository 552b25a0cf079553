// Package wire holds the JSON shapes exchanged with producers and readers of
// the pipeline, and converts them to and from the domain models. Malformed
// input is rejected here and never reaches the pipeline.
package wire

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/navid-fn/tickfold/internal/models"
)

var ErrInvalidRecord = errors.New("invalid trade record")

var validate = validator.New()

// TradeRecord is one trade as sent by a producer.
type TradeRecord struct {
	Timestamp      Timestamp  `json:"timestamp"`
	Size           string     `json:"size" validate:"required,numeric"`
	Price          string     `json:"price" validate:"required,numeric"`
	Side           string     `json:"side" validate:"required,oneof=maker taker"`
	Type           string     `json:"type" validate:"required,oneof=limit market"`
	MatchID        *uint64    `json:"match_id,omitempty"`
	BuyOrderID     *uint64    `json:"buy_order_id,omitempty"`
	SellOrderID    *uint64    `json:"sell_order_id,omitempty"`
	MatchTimestamp *Timestamp `json:"match_timestamp,omitempty"`
}

// Batch is the message published per (exchange, asset pair).
type Batch struct {
	Exchange  string        `json:"exchange" validate:"required"`
	AssetPair string        `json:"asset_pair" validate:"required"`
	Records   []TradeRecord `json:"records" validate:"required,min=1,dive"`
}

// ToTrade validates the record and converts it.
func (r TradeRecord) ToTrade() (models.Trade, error) {
	if err := validate.Struct(r); err != nil {
		return models.Trade{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if r.Timestamp.IsZero() {
		return models.Trade{}, fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}

	size, err := decimal.NewFromString(r.Size)
	if err != nil {
		return models.Trade{}, fmt.Errorf("%w: size: %v", ErrInvalidRecord, err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return models.Trade{}, fmt.Errorf("%w: price: %v", ErrInvalidRecord, err)
	}
	if !size.IsPositive() || !price.IsPositive() {
		return models.Trade{}, fmt.Errorf("%w: price and size must be positive", ErrInvalidRecord)
	}

	t := models.Trade{
		Timestamp: r.Timestamp.Time,
		Size:      size,
		Price:     price,
		Side:      models.Side(r.Side),
		Kind:      models.Kind(r.Type),
	}
	if r.MatchID != nil {
		t.MatchID = *r.MatchID
	}
	if r.BuyOrderID != nil {
		t.BuyOrderID = *r.BuyOrderID
	}
	if r.SellOrderID != nil {
		t.SellOrderID = *r.SellOrderID
	}
	if r.MatchTimestamp != nil {
		t.MatchTime = r.MatchTimestamp.Time
	}
	return t, nil
}

// FromTrade builds the wire record of t. Zero ids are omitted.
func FromTrade(t models.Trade) TradeRecord {
	r := TradeRecord{
		Timestamp: Timestamp{t.Timestamp},
		Size:      t.Size.String(),
		Price:     t.Price.String(),
		Side:      string(t.Side),
		Type:      string(t.Kind),
	}
	if t.MatchID != 0 {
		id := t.MatchID
		r.MatchID = &id
	}
	if t.BuyOrderID != 0 {
		id := t.BuyOrderID
		r.BuyOrderID = &id
	}
	if t.SellOrderID != 0 {
		id := t.SellOrderID
		r.SellOrderID = &id
	}
	if !t.MatchTime.IsZero() {
		r.MatchTimestamp = &Timestamp{t.MatchTime}
	}
	return r
}

// Trades converts every record, failing on the first invalid one.
func Trades(records []TradeRecord) ([]models.Trade, error) {
	trades := make([]models.Trade, 0, len(records))
	for i, r := range records {
		t, err := r.ToTrade()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// DecodeRecords parses a JSON array of trade records.
func DecodeRecords(data []byte) ([]models.Trade, error) {
	var records []TradeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return Trades(records)
}

// DecodeBatch parses and validates a batch message.
func DecodeBatch(data []byte) (models.Batch, error) {
	var msg Batch
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Batch{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := validate.Struct(msg); err != nil {
		return models.Batch{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	exchange, err := models.ParseExchange(msg.Exchange)
	if err != nil {
		return models.Batch{}, err
	}
	pair, err := models.ParsePair(msg.AssetPair)
	if err != nil {
		return models.Batch{}, err
	}
	trades, err := Trades(msg.Records)
	if err != nil {
		return models.Batch{}, err
	}

	return models.Batch{
		Key:    models.Key{Exchange: exchange, Pair: pair},
		Trades: trades,
	}, nil
}

// EncodeBatch is the inverse of DecodeBatch.
func EncodeBatch(b models.Batch) ([]byte, error) {
	msg := Batch{
		Exchange:  b.Key.Exchange.String(),
		AssetPair: b.Key.Pair.String(),
		Records:   make([]TradeRecord, 0, len(b.Trades)),
	}
	for _, t := range b.Trades {
		msg.Records = append(msg.Records, FromTrade(t))
	}
	return json.Marshal(msg)
}

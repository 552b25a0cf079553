package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side tells whether the match passively posted liquidity or took it.
type Side string

const (
	Maker Side = "maker"
	Taker Side = "taker"
)

// ParseSide accepts "maker" or "taker".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Maker, Taker:
		return Side(s), nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// Kind is the order type that produced the match.
type Kind string

const (
	Limit  Kind = "limit"
	Market Kind = "market"
)

// ParseKind accepts "limit" or "market".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Limit, Market:
		return Kind(s), nil
	}
	return "", fmt.Errorf("invalid trade type %q", s)
}

// Trade is a single execution report normalized across exchanges.
//
// The exchange and asset pair are deliberately absent: they are the key a
// batch of trades is processed under and travel alongside the batch.
type Trade struct {
	Timestamp time.Time
	Size      decimal.Decimal
	Price     decimal.Decimal
	Side      Side
	Kind      Kind

	// Exchange-specific identifiers. Zero values mean the exchange does not
	// report them.
	MatchID     uint64
	BuyOrderID  uint64
	SellOrderID uint64
	MatchTime   time.Time
}

// Batch is a group of trades for one key, in the order the producer
// supplied them.
type Batch struct {
	Key    Key
	Trades []Trade
}

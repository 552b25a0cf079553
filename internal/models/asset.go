// Package models defines the domain types shared by every stage of the
// ingestion pipeline.
package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownAsset    = errors.New("unknown asset")
	ErrUnknownPair     = errors.New("unknown asset pair")
	ErrUnknownExchange = errors.New("unknown exchange")
)

// Asset is a tradeable currency or coin.
type Asset string

const (
	BTC Asset = "BTC"
	ETH Asset = "ETH"
	USD Asset = "USD"
	BNB Asset = "BNB"
)

// Assets lists every asset the pipeline knows about.
var Assets = []Asset{BTC, ETH, USD, BNB}

// ParseAsset accepts the upper or lower case ticker of a known asset.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Assets {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAsset, s)
}

// Pair is an ordered pair of assets, e.g. BTC/USD. Pairs are comparable and
// can be used directly as map keys.
type Pair struct {
	Left  Asset
	Right Asset
}

var (
	BTCUSD = Pair{BTC, USD}
	ETHUSD = Pair{ETH, USD}
	BNBBTC = Pair{BNB, BTC}
	ETHBTC = Pair{ETH, BTC}
	BNBETH = Pair{BNB, ETH}
	BNBUSD = Pair{BNB, USD}
)

// Pairs lists the well-known pairs.
var Pairs = []Pair{BTCUSD, ETHUSD, BNBBTC, ETHBTC, BNBETH, BNBUSD}

// NewPair builds a pair from two asset tickers.
func NewPair(left, right string) (Pair, error) {
	l, err := ParseAsset(left)
	if err != nil {
		return Pair{}, err
	}
	r, err := ParseAsset(right)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Left: l, Right: r}, nil
}

// ParsePair accepts "BTCUSD", "BTC_USD" and "BTC/USD" spellings in either case.
// Only the well-known pairs are accepted.
func ParsePair(s string) (Pair, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("/", "", "_", "", "-", "").Replace(norm)
	for _, p := range Pairs {
		if norm == string(p.Left)+string(p.Right) {
			return p, nil
		}
	}
	return Pair{}, fmt.Errorf("%w: %q", ErrUnknownPair, s)
}

func (p Pair) String() string {
	return string(p.Left) + "/" + string(p.Right)
}

// IsZero reports whether the pair has not been set.
func (p Pair) IsZero() bool {
	return p.Left == "" && p.Right == ""
}

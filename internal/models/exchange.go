package models

import (
	"fmt"
	"strings"
)

// Exchange identifies a trading venue. The set is closed: adding a venue
// means adding a constant here.
type Exchange string

const (
	Kraken  Exchange = "kraken"
	Binance Exchange = "binance"
)

// Exchanges lists every supported venue.
var Exchanges = []Exchange{Kraken, Binance}

// ParseExchange is case-insensitive.
func ParseExchange(s string) (Exchange, error) {
	e := Exchange(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Exchanges {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExchange, s)
}

func (e Exchange) String() string {
	return string(e)
}

// Key identifies the unit of ordering and state in the pipeline: one asset
// pair on one exchange.
type Key struct {
	Exchange Exchange
	Pair     Pair
}

func (k Key) String() string {
	return k.Exchange.String() + ":" + k.Pair.String()
}

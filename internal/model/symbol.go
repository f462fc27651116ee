package model

import (
	"fmt"
	"strings"
)

// Market tags the exchange family a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketHK Market = "hk"
	MarketCN Market = "cn"
)

// Markets lists every supported market in a stable order.
var Markets = []Market{MarketUS, MarketHK, MarketCN}

// ParseMarket validates a market tag.
func ParseMarket(s string) (Market, error) {
	m := Market(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MarketUS, MarketHK, MarketCN:
		return m, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// Symbol identifies one instrument. It is a value type and safe to use as a map key.
type Symbol struct {
	Market Market
	Code   string
}

// NewSymbol builds a Symbol, normalising the code for its market.
func NewSymbol(market Market, code string) (Symbol, error) {
	m, err := ParseMarket(string(market))
	if err != nil {
		return Symbol{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Symbol{}, fmt.Errorf("empty code for market %s", m)
	}
	if strings.ContainsAny(code, `/\:`) {
		return Symbol{}, fmt.Errorf("invalid code %q", code)
	}
	if m == MarketUS {
		code = strings.ToUpper(code)
	}
	return Symbol{Market: m, Code: code}, nil
}

// ParseSymbol parses the "market:code" form, e.g. "hk:00700".
func ParseSymbol(s string) (Symbol, error) {
	market, code, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Symbol{}, fmt.Errorf("symbol %q: expected market:code", s)
	}
	return NewSymbol(Market(market), code)
}

// MustParseSymbol is ParseSymbol for literals; it panics on error.
func MustParseSymbol(s string) Symbol {
	sym, err := ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return sym
}

func (s Symbol) String() string {
	return string(s.Market) + ":" + s.Code
}

// IsZero reports whether s is the zero Symbol.
func (s Symbol) IsZero() bool {
	return s.Market == "" && s.Code == ""
}

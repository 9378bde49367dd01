package domain

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// Stock is one listed instrument.
type Stock struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

func (s Stock) String() string {
	return fmt.Sprintf("[%s]%s", s.Symbol, s.Name)
}

// Stocks is the exchange stock list.
type Stocks []Stock

// Sorted returns a copy ordered by symbol.
func (ss Stocks) Sorted() Stocks {
	out := slices.Clone(ss)
	slices.SortFunc(out, func(a, b Stock) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}

// Filter returns the stocks whose symbol or name contains q. An empty q
// returns the whole list.
func (ss Stocks) Filter(q string) Stocks {
	if q == "" {
		return ss
	}
	return ss.Search(q)
}

// Search is a substring match on symbol and name.
func (ss Stocks) Search(q string) Stocks {
	var out Stocks
	for _, s := range ss {
		if strings.Contains(s.Symbol, q) || strings.Contains(s.Name, q) {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds a stock by exact symbol.
func (ss Stocks) Lookup(symbol string) (Stock, bool) {
	i := slices.IndexFunc(ss, func(s Stock) bool { return s.Symbol == symbol })
	if i < 0 {
		return Stock{}, false
	}
	return ss[i], true
}

// Random picks a stock uniformly; false on an empty list.
func (ss Stocks) Random() (Stock, bool) {
	if len(ss) == 0 {
		return Stock{}, false
	}
	return ss[rand.IntN(len(ss))], true
}

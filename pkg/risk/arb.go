package risk

import "github.com/gregtusar/ritarb/pkg/models"

// ArbLimits bound the stock book of a cash/ETF arbitrage. Gross is inclusive,
// net is strictly inside (MinNet, MaxNet).
type ArbLimits struct {
	Tickers  []string
	MaxGross int
	MaxNet   int
	MinNet   int
}

// Within reports whether inv already satisfies the limits.
func (l ArbLimits) Within(inv models.Inventory) bool {
	gross := inv.Gross(l.Tickers...)
	net := inv.Net(l.Tickers...)
	return gross <= l.MaxGross && l.MinNet < net && net < l.MaxNet
}

// EntryOrder sequences the legs of perUnit for submission. Legs that pull the
// current net back toward zero go first; on a flat book the side opposite to
// the unit's own net move goes first. Ties keep the order of l.Tickers.
func (l ArbLimits) EntryOrder(inv models.Inventory, perUnit map[string]int) []string {
	pull := inv.Net(l.Tickers...)
	if pull == 0 {
		for _, t := range l.Tickers {
			pull += perUnit[t]
		}
	}
	var first, rest []string
	for _, t := range l.Tickers {
		n, ok := perUnit[t]
		if !ok || n == 0 {
			continue
		}
		if n*pull < 0 {
			first = append(first, t)
		} else {
			rest = append(rest, t)
		}
	}
	return append(first, rest...)
}

// Resize returns the largest quantity ≤ qty such that trading qty units of
// perUnit (signed shares per unit, per ticker) on top of inv keeps the book
// inside the limits after every leg, submitted in order. A book already
// outside a limit may only move toward it.
func (l ArbLimits) Resize(inv models.Inventory, perUnit map[string]int, order []string, qty int) int {
	if qty <= 0 {
		return 0
	}
	gross0 := float64(inv.Gross(l.Tickers...))
	net0 := inv.Net(l.Tickers...)

	allowed := func(book models.Inventory) bool {
		gross := float64(book.Gross(l.Tickers...))
		if !notWorse(gross, gross0, float64(l.MaxGross)) {
			return false
		}
		net := book.Net(l.Tickers...)
		if l.MinNet < net && net < l.MaxNet {
			return true
		}
		return abs(net) <= abs(net0)
	}
	feasible := func(q int) bool {
		book := l.book(inv)
		for _, t := range order {
			book[t] += perUnit[t] * q
			if !allowed(book) {
				return false
			}
		}
		return true
	}
	return shrink(qty, feasible)
}

func (l ArbLimits) book(inv models.Inventory) models.Inventory {
	out := make(models.Inventory, len(l.Tickers))
	for _, t := range l.Tickers {
		out[t] = inv[t]
	}
	return out
}

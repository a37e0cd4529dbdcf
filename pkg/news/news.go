// Package news extracts volatility figures quoted in venue news items.
package news

import (
	"strconv"
	"strings"
)

type Item struct {
	ID       int    `json:"news_id"`
	Tick     int    `json:"tick"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

const (
	minVolatility = 0.01
	maxVolatility = 1.0
)

// Volatilities returns every percentage found in items that mention
// volatility, as fractions, in item order. Figures outside 1%..100% are
// ignored.
func Volatilities(items []Item) []float64 {
	var out []float64
	for _, it := range items {
		if !strings.Contains(strings.ToLower(it.Body), "volatility") {
			continue
		}
		for _, word := range strings.Fields(it.Body) {
			word = strings.TrimRight(word, ".,;:)")
			if !strings.HasSuffix(word, "%") {
				continue
			}
			v, err := strconv.ParseFloat(strings.Trim(word, "%"), 64)
			if err != nil {
				continue
			}
			v /= 100
			if v >= minVolatility && v <= maxVolatility {
				out = append(out, v)
			}
		}
	}
	return out
}

// Latest returns the most recent signal, or fallback when there is none.
func Latest(signals []float64, fallback float64) float64 {
	if len(signals) == 0 {
		return fallback
	}
	return signals[len(signals)-1]
}

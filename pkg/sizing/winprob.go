package sizing

import (
	"math"

	"github.com/gregtusar/ritarb/pkg/options"
)

// WinModel estimates the probability that a volatility trade pays off. The
// estimate is a normal CDF centred at a zero vol difference whose standard
// deviation reacts to news-derived volatility signals and to the level of
// the underlying's own volatility.
type WinModel struct {
	BaseStdDev float64
	// VolCap bounds |volDiff| before it reaches the CDF. It only keeps the
	// estimate off MaxProb while VolCap/StdDev stays under the z-score of
	// MaxProb (1.645 for 0.95), so it is sized against the narrowest StdDev.
	VolCap  float64
	MinProb float64
	MaxProb float64

	DispersionThreshold  float64
	DispersionWiden      float64
	RegimeShiftThreshold float64
	RegimeShiftWiden     float64

	HighVol      float64
	HighVolWiden float64
	LowVol       float64
	LowVolNarrow float64
}

func DefaultWinModel() WinModel {
	return WinModel{
		BaseStdDev:           0.05,
		VolCap:               0.06,
		MinProb:              0.10,
		MaxProb:              0.95,
		DispersionThreshold:  0.05,
		DispersionWiden:      1.5,
		RegimeShiftThreshold: 0.10,
		RegimeShiftWiden:     1.25,
		HighVol:              0.40,
		HighVolWiden:         1.5,
		LowVol:               0.15,
		LowVolNarrow:         0.75,
	}
}

// StdDev returns the adapted standard deviation for the given underlying
// volatility and news signals. An empty signal list leaves the base untouched.
func (m WinModel) StdDev(underlyingVol float64, signals []float64) float64 {
	sd := m.BaseStdDev
	clean := finite(signals)

	if len(clean) >= 2 {
		if stddev(clean) > m.DispersionThreshold {
			sd *= m.DispersionWiden
		}
		prior := mean(clean[:len(clean)-1])
		if math.Abs(clean[len(clean)-1]-prior) > m.RegimeShiftThreshold {
			sd *= m.RegimeShiftWiden
		}
	}

	switch {
	case underlyingVol > m.HighVol:
		sd *= m.HighVolWiden
	case underlyingVol > 0 && underlyingVol < m.LowVol:
		sd *= m.LowVolNarrow
	}
	return sd
}

// Probability is always inside [MinProb, MaxProb].
func (m WinModel) Probability(volDiff, underlyingVol float64, signals []float64) float64 {
	if math.IsNaN(volDiff) {
		return m.MinProb
	}
	sd := m.StdDev(underlyingVol, signals)
	if !(sd > 0) || math.IsInf(sd, 0) {
		return m.MinProb
	}
	x := math.Min(math.Abs(volDiff), m.VolCap)
	return clamp(options.NormCDF(x/sd), m.MinProb, m.MaxProb)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func finite(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func stddev(vs []float64) float64 {
	m := mean(vs)
	sum := 0.0
	for _, v := range vs {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(vs)))
}

package estimate

import "math"

// OneEuroFilter smooths a fixed-length signal with an adaptive low-pass filter whose
// cutoff rises with the signal's speed: jitter is removed when still, lag is small when
// moving. Timestamps are in milliseconds.
type OneEuroFilter struct {
	MinCutoff float64
	Beta      float64
	DCutoff   float64

	initialized bool
	tPrev       float64
	xPrev       []float64
	dxPrev      []float64
}

// NewOneEuroFilter returns a filter with the derivative cutoff fixed at 0.001.
func NewOneEuroFilter(minCutoff, beta float64) *OneEuroFilter {
	return &OneEuroFilter{MinCutoff: minCutoff, Beta: beta, DCutoff: 0.001}
}

// Reset forgets all history; the next sample passes through unfiltered.
func (f *OneEuroFilter) Reset() {
	f.initialized = false
	f.xPrev = nil
	f.dxPrev = nil
}

// Filter returns the smoothed value of x sampled at time t. The result is a new slice.
func (f *OneEuroFilter) Filter(t float64, x []float64) []float64 {
	if !f.initialized || len(x) != len(f.xPrev) {
		f.initialized = true
		f.tPrev = t
		f.xPrev = append([]float64(nil), x...)
		f.dxPrev = make([]float64, len(x))
		return append([]float64(nil), x...)
	}

	te := t - f.tPrev
	if te <= 0 {
		return append([]float64(nil), f.xPrev...)
	}
	ad := smoothingFactor(te, f.DCutoff)
	out := make([]float64, len(x))
	for i := range x {
		dx := (x[i] - f.xPrev[i]) / te
		dxHat := exponentialSmoothing(ad, dx, f.dxPrev[i])
		cutoff := f.MinCutoff + f.Beta*math.Abs(dxHat)
		a := smoothingFactor(te, cutoff)
		out[i] = exponentialSmoothing(a, x[i], f.xPrev[i])
		f.dxPrev[i] = dxHat
	}
	copy(f.xPrev, out)
	f.tPrev = t
	return out
}

func smoothingFactor(te, cutoff float64) float64 {
	r := 2 * math.Pi * cutoff * te
	return r / (r + 1)
}

func exponentialSmoothing(a, x, xPrev float64) float64 {
	return a*x + (1-a)*xPrev
}

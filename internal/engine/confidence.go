package engine

import "math"

// Confidence defaults.
const (
	// DefaultWilsonZ is the normal quantile for a one-sided 95% bound.
	DefaultWilsonZ = 1.6448536
	// DefaultBindingThreshold is the Wilson lower bound a candidate binding
	// must clear before it is created.
	DefaultBindingThreshold = 0.80
)

// WilsonLowerBound returns a conservative lower estimate of the true success
// proportion after k successes in n trials. Unlike the raw ratio k/n it
// shrinks toward zero on small samples, so decisions made against it are
// pessimistic by construction. n <= 0 returns 0.
func WilsonLowerBound(k, n int, z float64) float64 {
	if n <= 0 {
		return 0
	}
	if z <= 0 {
		z = DefaultWilsonZ
	}
	kf, nf := float64(k), float64(n)
	z2 := z * z
	pHat := (kf + z2/2) / (nf + z2)
	margin := z * math.Sqrt(pHat*(1-pHat)/(nf+z2))
	return clamp01(pHat - margin)
}

// ShouldCreateBinding reports whether k category matches out of n scans at a
// gate justify creating a binding: true iff even the pessimistic Wilson
// lower bound clears the threshold. Non-positive threshold or z fall back to
// the defaults.
func ShouldCreateBinding(k, n int, threshold, z float64) bool {
	if threshold <= 0 {
		threshold = DefaultBindingThreshold
	}
	return WilsonLowerBound(k, n, z) >= threshold
}

// BetaConfidence is an online Bayesian estimate of binding correctness.
// Alpha and Beta are pseudo-counts starting from the uniform prior (1, 1);
// each confirmed or contradicted assignment moves one of them by one unit.
// No observation history needs to be stored.
type BetaConfidence struct {
	Alpha float64
	Beta  float64
}

// NewBetaConfidence returns the uniform prior Beta(1, 1).
func NewBetaConfidence() BetaConfidence {
	return BetaConfidence{Alpha: 1, Beta: 1}
}

// Update records one observation: success increments Alpha, failure
// increments Beta.
func (b *BetaConfidence) Update(success bool) {
	if success {
		b.Alpha++
	} else {
		b.Beta++
	}
}

// Mean returns the posterior point estimate Alpha/(Alpha+Beta).
func (b BetaConfidence) Mean() float64 {
	return b.Alpha / (b.Alpha + b.Beta)
}

// Variance returns the posterior variance.
func (b BetaConfidence) Variance() float64 {
	s := b.Alpha + b.Beta
	return b.Alpha * b.Beta / (s * s * (s + 1))
}

// Interval95 returns the approximate 95% credible interval
// mean ± 1.96·sqrt(variance), clamped to [0, 1].
func (b BetaConfidence) Interval95() (lo, hi float64) {
	mean := b.Mean()
	half := 1.96 * math.Sqrt(b.Variance())
	return clamp01(mean - half), clamp01(mean + half)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package engine

import (
	"math"
	"sort"

	"github.com/gatewise-data/gatewise/internal/geo"
)

// Epsilon learner defaults.
const (
	// DefaultEpsilonK selects the k-th nearest neighbor distance (the DBSCAN
	// literature default).
	DefaultEpsilonK = 4
	// DefaultEpsilonMinPoints is the minimum located scans required before
	// the learner trusts the data over the fallback.
	DefaultEpsilonMinPoints = 10
	// DefaultEpsilonFallbackM is returned when there is too little data to
	// learn a radius safely.
	DefaultEpsilonFallbackM = 50.0
)

// EpsilonParams tunes the epsilon learner.
type EpsilonParams struct {
	K         int
	MinPoints int
	FallbackM float64
}

// DefaultEpsilonParams returns the standard learner parameters.
func DefaultEpsilonParams() EpsilonParams {
	return EpsilonParams{
		K:         DefaultEpsilonK,
		MinPoints: DefaultEpsilonMinPoints,
		FallbackM: DefaultEpsilonFallbackM,
	}
}

func (p EpsilonParams) normalized() EpsilonParams {
	d := DefaultEpsilonParams()
	if p.K <= 0 {
		p.K = d.K
	}
	if p.MinPoints <= 0 {
		p.MinPoints = d.MinPoints
	}
	if p.FallbackM <= 0 {
		p.FallbackM = d.FallbackM
	}
	return p
}

// LearnEpsilon derives a DBSCAN neighborhood radius from the data's own
// density profile, making the clustering radius venue-adaptive instead of a
// tuned constant. It collects every point's k-th nearest neighbor distance,
// sorts those distances ascending, and returns the distance at the curve's
// elbow: the index with the maximum absolute second difference
// |(d[i+1]-d[i]) - (d[i]-d[i-1])|.
//
// Fewer than MinPoints points returns FallbackM and a nil curve. kdist is
// the sorted k-distance curve, kept for diagnostics and plotting.
func LearnEpsilon(points []geo.Point, p EpsilonParams) (epsilonM float64, kdist []float64) {
	p = p.normalized()
	if len(points) < p.MinPoints {
		return p.FallbackM, nil
	}

	kdist = make([]float64, 0, len(points))
	dists := make([]float64, 0, len(points)-1)
	for i := range points {
		dists = dists[:0]
		for j := range points {
			if i == j {
				continue
			}
			dists = append(dists, geo.DistanceMeters(points[i], points[j]))
		}
		if len(dists) < p.K {
			continue
		}
		sort.Float64s(dists)
		kdist = append(kdist, dists[p.K-1])
	}
	if len(kdist) == 0 {
		return p.FallbackM, nil
	}
	sort.Float64s(kdist)

	return kdist[elbowIndex(kdist)], kdist
}

// elbowIndex returns the index of the maximum absolute second difference in
// an ascending curve. Ties keep the earliest index so results are stable.
func elbowIndex(curve []float64) int {
	if len(curve) < 3 {
		return len(curve) - 1
	}
	best, bestDiff := 1, -1.0
	for i := 1; i < len(curve)-1; i++ {
		diff := math.Abs((curve[i+1] - curve[i]) - (curve[i] - curve[i-1]))
		if diff > bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

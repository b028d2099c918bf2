package engine

import (
	"math"

	"github.com/gatewise-data/gatewise/internal/geo"
)

// GMM refinement defaults. Both are tunable; convergence speed on venue data
// is an open question, so neither is hardcoded into the fit.
const (
	DefaultGMMMaxIterations        = 10
	DefaultGMMConvergenceThreshold = 0.01
)

// GMMParams tunes the EM refinement loop.
type GMMParams struct {
	MaxIterations        int
	ConvergenceThreshold float64 // stop when |delta log-likelihood| drops below this
}

// DefaultGMMParams returns the standard EM parameters.
func DefaultGMMParams() GMMParams {
	return GMMParams{
		MaxIterations:        DefaultGMMMaxIterations,
		ConvergenceThreshold: DefaultGMMConvergenceThreshold,
	}
}

func (p GMMParams) normalized() GMMParams {
	d := DefaultGMMParams()
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.ConvergenceThreshold <= 0 {
		p.ConvergenceThreshold = d.ConvergenceThreshold
	}
	return p
}

// FitGMM refines DBSCAN clusters into a Gaussian mixture via
// expectation-maximization over all located scans. One component is seeded
// per cluster (mean = centroid, covariance = empirical member moments,
// weight = 1/K) and refined for up to MaxIterations rounds or until the
// total log-likelihood stabilises. The result serves both as a soft
// gate-location model and as gate creation seeds.
func FitGMM(scans []ScanEvent, clusters []SpatialCluster, p GMMParams) []GaussianComponent {
	if len(clusters) == 0 {
		return nil
	}
	p = p.normalized()
	comps := initComponents(clusters)

	pts := make([]geo.Point, 0, len(scans))
	for i := range scans {
		if pt, ok := scans[i].Coordinate(); ok {
			pts = append(pts, pt)
		}
	}
	if len(pts) == 0 {
		return comps
	}

	resp := make([][]float64, len(pts))
	for i := range resp {
		resp[i] = make([]float64, len(comps))
	}

	prevLL := math.Inf(-1)
	for iter := 0; iter < p.MaxIterations; iter++ {
		ll := eStep(pts, comps, resp)
		mStep(pts, comps, resp)
		if math.Abs(ll-prevLL) < p.ConvergenceThreshold {
			break
		}
		prevLL = ll
	}

	return comps
}

func initComponents(clusters []SpatialCluster) []GaussianComponent {
	k := float64(len(clusters))
	comps := make([]GaussianComponent, 0, len(clusters))
	for _, cl := range clusters {
		var varLat, varLon, cov float64
		var n float64
		for i := range cl.Members {
			pt, ok := cl.Members[i].Coordinate()
			if !ok {
				continue
			}
			dLat := pt.Lat - cl.Centroid.Lat
			dLon := pt.Lon - cl.Centroid.Lon
			varLat += dLat * dLat
			varLon += dLon * dLon
			cov += dLat * dLon
			n++
		}
		if n > 0 {
			varLat /= n
			varLon /= n
			cov /= n
		}
		comps = append(comps, GaussianComponent{
			MeanLat:   cl.Centroid.Lat,
			MeanLon:   cl.Centroid.Lon,
			VarLat:    varLat,
			VarLon:    varLon,
			CovLatLon: cov,
			Weight:    1 / k,
		})
	}
	return comps
}

// eStep fills resp with normalized responsibilities and returns the total
// log-likelihood. Points whose total weighted density is zero keep zero
// responsibilities and contribute nothing to the likelihood.
func eStep(pts []geo.Point, comps []GaussianComponent, resp [][]float64) float64 {
	var ll float64
	for i, pt := range pts {
		total := 0.0
		for k, c := range comps {
			d := c.Weight * bivariateDensity(pt.Lat-c.MeanLat, pt.Lon-c.MeanLon, c.VarLat, c.VarLon, c.CovLatLon)
			resp[i][k] = d
			total += d
		}
		if total > 0 {
			for k := range comps {
				resp[i][k] /= total
			}
			ll += math.Log(total)
		} else {
			for k := range comps {
				resp[i][k] = 0
			}
		}
	}
	return ll
}

// mStep re-estimates weight, mean, and covariance per component from the
// current responsibilities. Components with zero effective count are left
// untouched.
func mStep(pts []geo.Point, comps []GaussianComponent, resp [][]float64) {
	total := float64(len(pts))
	for k := range comps {
		var nk float64
		for i := range pts {
			nk += resp[i][k]
		}
		if nk <= 0 {
			continue
		}

		var mLat, mLon float64
		for i, pt := range pts {
			mLat += resp[i][k] * pt.Lat
			mLon += resp[i][k] * pt.Lon
		}
		mLat /= nk
		mLon /= nk

		var varLat, varLon, cov float64
		for i, pt := range pts {
			dLat := pt.Lat - mLat
			dLon := pt.Lon - mLon
			varLat += resp[i][k] * dLat * dLat
			varLon += resp[i][k] * dLon * dLon
			cov += resp[i][k] * dLat * dLon
		}

		comps[k].Weight = nk / total
		comps[k].MeanLat = mLat
		comps[k].MeanLon = mLon
		comps[k].VarLat = varLat / nk
		comps[k].VarLon = varLon / nk
		comps[k].CovLatLon = cov / nk
	}
}

// bivariateDensity evaluates a bivariate Gaussian density at offset
// (dx, dy) from the mean, for the covariance [[varX, cov], [cov, varY]].
// A non-positive determinant yields 0 rather than NaN; callers treat such
// components as contributing no probability mass.
func bivariateDensity(dx, dy, varX, varY, cov float64) float64 {
	det := varX*varY - cov*cov
	if det <= 0 {
		return 0
	}
	inv00 := varY / det
	inv11 := varX / det
	inv01 := -cov / det
	exponent := -0.5 * (dx*dx*inv00 + 2*dx*dy*inv01 + dy*dy*inv11)
	return math.Exp(exponent) / (2 * math.Pi * math.Sqrt(det))
}

package engine

import (
	"github.com/gatewise-data/gatewise/internal/geo"
)

// Bayesian assignment constants.
const (
	// NoHistorySpatialLikelihood is the spatial likelihood of a gate with
	// fewer than two located historical scans. Small but non-zero so
	// unestablished gates remain reachable.
	NoHistorySpatialLikelihood = 0.001
	// MinGatePrior floors the historical-usage prior.
	MinGatePrior = 0.001
	// Laplace smoothing terms for the category likelihood.
	categorySmoothingAdd   = 1.0
	categorySmoothingTotal = 10.0
)

// gateHistory aggregates the located, already-assigned scans of one gate.
type gateHistory struct {
	scans      int
	categories map[string]int
	located    int
	origin     geo.Point // mean coordinate of located history
	varX       float64   // local-meter covariance about origin
	varY       float64
	cov        float64
}

// Assigner computes posterior gate probabilities for new scans. Spatial and
// category likelihoods are learned from each candidate gate's assignment
// history; priors come from historical usage share. Build one per cycle from
// the snapshot and treat it as read-only.
type Assigner struct {
	gates   []Gate
	history map[string]*gateHistory
	total   int
}

// GatePosterior pairs a candidate gate with its posterior probability.
type GatePosterior struct {
	GateID    string
	Posterior float64
}

// Assignment is the outcome of assigning one scan to a gate.
type Assignment struct {
	GateID     string
	Confidence float64 // posterior probability of the chosen gate
}

// NewAssigner indexes assignment history for the candidate gates. Only scans
// already assigned to one of the candidates contribute; their coordinates
// are projected into local meters around each gate's historical mean so the
// fitted variance and the evaluation offsets share units.
func NewAssigner(gates []Gate, scans []ScanEvent) *Assigner {
	a := &Assigner{
		gates:   gates,
		history: make(map[string]*gateHistory, len(gates)),
	}
	for i := range gates {
		a.history[gates[i].ID] = &gateHistory{categories: make(map[string]int)}
	}

	located := make(map[string][]geo.Point, len(gates))
	for i := range scans {
		s := &scans[i]
		if s.GateID == nil {
			continue
		}
		h, ok := a.history[*s.GateID]
		if !ok {
			continue
		}
		h.scans++
		h.categories[s.Category]++
		a.total++
		if p, ok := s.Coordinate(); ok {
			located[*s.GateID] = append(located[*s.GateID], p)
		}
	}

	for id, pts := range located {
		h := a.history[id]
		h.located = len(pts)
		if len(pts) < 2 {
			continue
		}
		origin, _ := geo.Centroid(pts)
		h.origin = origin
		n := float64(len(pts))
		for _, p := range pts {
			x, y := geo.LocalXY(origin, p)
			h.varX += x * x
			h.varY += y * y
			h.cov += x * y
		}
		h.varX /= n
		h.varY /= n
		h.cov /= n
	}

	return a
}

// Posteriors returns the posterior probability of every candidate gate for a
// scan at p with the given category, in candidate order. Posteriors sum to 1
// unless total evidence is zero, in which case they are all zero.
func (a *Assigner) Posteriors(p geo.Point, category string) []GatePosterior {
	if len(a.gates) == 0 {
		return nil
	}

	posts := make([]GatePosterior, len(a.gates))
	evidence := 0.0
	for i := range a.gates {
		g := &a.gates[i]
		h := a.history[g.ID]
		weighted := a.spatialLikelihood(h, p) * a.categoryLikelihood(h, category) * a.prior(h)
		posts[i] = GatePosterior{GateID: g.ID, Posterior: weighted}
		evidence += weighted
	}
	if evidence == 0 {
		return posts
	}
	for i := range posts {
		posts[i].Posterior /= evidence
	}
	return posts
}

// Assign picks the maximum-posterior gate for a scan. Ties break toward the
// first candidate encountered, so results are deterministic for a fixed gate
// order. ok is false when the scan has no GPS fix, there are no candidates,
// or total evidence is zero.
func (a *Assigner) Assign(scan ScanEvent) (Assignment, bool) {
	p, ok := scan.Coordinate()
	if !ok {
		return Assignment{}, false
	}
	posts := a.Posteriors(p, scan.Category)
	if len(posts) == 0 {
		return Assignment{}, false
	}

	best := 0
	for i := 1; i < len(posts); i++ {
		if posts[i].Posterior > posts[best].Posterior {
			best = i
		}
	}
	if posts[best].Posterior == 0 {
		return Assignment{}, false
	}
	return Assignment{GateID: posts[best].GateID, Confidence: posts[best].Posterior}, true
}

// spatialLikelihood evaluates the gate's fitted bivariate Gaussian at p.
// Gates without enough located history stay reachable via a small constant;
// a degenerate fit (all history at one coordinate) contributes zero.
func (a *Assigner) spatialLikelihood(h *gateHistory, p geo.Point) float64 {
	if h == nil || h.located < 2 {
		return NoHistorySpatialLikelihood
	}
	x, y := geo.LocalXY(h.origin, p)
	return bivariateDensity(x, y, h.varX, h.varY, h.cov)
}

// categoryLikelihood is the Laplace-smoothed share of the category in the
// gate's history: (count + 1) / (total + 10).
func (a *Assigner) categoryLikelihood(h *gateHistory, category string) float64 {
	var count, total int
	if h != nil {
		count = h.categories[category]
		total = h.scans
	}
	return (float64(count) + categorySmoothingAdd) / (float64(total) + categorySmoothingTotal)
}

// prior is the gate's share of historical traffic, floored at MinGatePrior.
// With no history anywhere, every candidate gets a uniform prior.
func (a *Assigner) prior(h *gateHistory) float64 {
	if a.total == 0 {
		return 1 / float64(len(a.gates))
	}
	var scans int
	if h != nil {
		scans = h.scans
	}
	p := float64(scans) / float64(a.total)
	if p < MinGatePrior {
		p = MinGatePrior
	}
	return p
}

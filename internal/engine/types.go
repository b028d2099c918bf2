// Package engine implements the gate discovery and probabilistic binding
// pipeline: learned-epsilon DBSCAN clustering, GMM/EM soft clustering,
// Bayesian gate assignment, Wilson/Beta confidence tracking, binding
// lifecycle management, and gate deduplication. Everything in this package
// is pure computation over in-memory records; persistence belongs to the
// caller.
package engine

import (
	"time"

	"github.com/gatewise-data/gatewise/internal/geo"
)

// ScanEvent is one GPS-tagged check-in. Immutable once recorded except for
// GateID, which the pipeline sets at most once per processing cycle.
// Lat/Lon are nil when the device produced no fix; (0,0) is a valid ocean
// coordinate and is never used as a sentinel.
type ScanEvent struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	WristbandID string    `json:"wristbandId"`
	Category    string    `json:"category"`
	Lat         *float64  `json:"lat,omitempty"`
	Lon         *float64  `json:"lon,omitempty"`
	AccuracyM   *float64  `json:"accuracyM,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	GateID      *string   `json:"gateId,omitempty"`
}

// Coordinate returns the scan's location, or ok=false when the scan has no
// GPS fix.
func (s *ScanEvent) Coordinate() (geo.Point, bool) {
	if s.Lat == nil || s.Lon == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *s.Lat, Lon: *s.Lon}, true
}

// Gate is a discovered physical entrance. Gates are owned by the
// deduplication engine: it is the only component allowed to merge or delete
// them. The lifecycle manager touches binding metadata only.
type Gate struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Coordinate returns the gate's centroid, or ok=false when unset.
func (g *Gate) Coordinate() (geo.Point, bool) {
	if g.Lat == nil || g.Lon == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *g.Lat, Lon: *g.Lon}, true
}

// BindingStatus is the lifecycle state of a gate-category binding.
type BindingStatus string

const (
	BindingUnbound   BindingStatus = "unbound"
	BindingProbation BindingStatus = "probation"
	BindingEnforced  BindingStatus = "enforced"
)

// rank orders statuses for merge consolidation: enforced > probation > unbound.
func (s BindingStatus) rank() int {
	switch s {
	case BindingEnforced:
		return 2
	case BindingProbation:
		return 1
	default:
		return 0
	}
}

// GateBinding associates a gate with an attendee category. (GateID, Category)
// is the unique key. Status is recomputed every cycle as a pure function of
// confidence and sample count; Alpha/Beta are the persisted Beta-distribution
// pseudo-counts behind Confidence.
type GateBinding struct {
	GateID      string        `json:"gateId"`
	Category    string        `json:"category"`
	Status      BindingStatus `json:"status"`
	Confidence  float64       `json:"confidence"`
	SampleCount int           `json:"sampleCount"`
	Alpha       float64       `json:"alpha"`
	Beta        float64       `json:"beta"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// SpatialCluster is a cycle-scoped DBSCAN cluster. Never persisted;
// recomputed from current scan events each cycle.
type SpatialCluster struct {
	Members  []ScanEvent
	Centroid geo.Point
	RadiusM  float64 // max member distance from centroid, epsilon if degenerate
	Density  float64 // members per square meter of cluster area
}

// DominantCategory returns the most frequent category among members and its
// count. Ties break toward the category seen first in member order.
func (c *SpatialCluster) DominantCategory() (string, int) {
	counts := make(map[string]int, 4)
	best, bestN := "", 0
	for _, m := range c.Members {
		counts[m.Category]++
		if counts[m.Category] > bestN {
			best, bestN = m.Category, counts[m.Category]
		}
	}
	return best, bestN
}

// GaussianComponent is one bivariate Gaussian in a fitted mixture model.
// Variances and covariance are in squared degrees; only relative density
// matters to consumers.
type GaussianComponent struct {
	MeanLat   float64
	MeanLon   float64
	VarLat    float64
	VarLon    float64
	CovLatLon float64
	Weight    float64
}

// Mean returns the component centre as a coordinate.
func (g *GaussianComponent) Mean() geo.Point {
	return geo.Point{Lat: g.MeanLat, Lon: g.MeanLon}
}

// CycleReport summarises one processing cycle for operators and dashboards.
type CycleReport struct {
	ID                string        `json:"id"`
	EventID           string        `json:"eventId"`
	StartedAt         time.Time     `json:"startedAt"`
	Duration          time.Duration `json:"duration"`
	ScansProcessed    int           `json:"scansProcessed"`
	ScansLinked       int           `json:"scansLinked"`
	ClustersFound     int           `json:"clustersFound"`
	EpsilonM          float64       `json:"epsilonM"`
	GatesBefore       int           `json:"gatesBefore"`
	GatesAfter        int           `json:"gatesAfter"`
	DuplicatesRemoved int           `json:"duplicatesRemoved"`
	Note              string        `json:"note,omitempty"`
}

package engine

import (
	"math"

	"github.com/gatewise-data/gatewise/internal/geo"
)

// DefaultDBSCANMinPts is the default minimum neighborhood size to form a
// cluster.
const DefaultDBSCANMinPts = 5

// DBSCANParams contains parameters for density clustering.
type DBSCANParams struct {
	EpsilonM float64 // neighborhood radius in meters
	MinPts   int     // minimum points (including self) to form a cluster
}

// DefaultDBSCANParams returns clustering parameters with the standard MinPts
// and the supplied radius, normally the learned epsilon.
func DefaultDBSCANParams(epsilonM float64) DBSCANParams {
	return DBSCANParams{EpsilonM: epsilonM, MinPts: DefaultDBSCANMinPts}
}

// Cluster groups located scan events into spatial clusters using DBSCAN.
// Scans without a GPS fix are skipped entirely. Points whose neighborhood is
// smaller than MinPts are noise and belong to no cluster, never forced into
// one. Expansion is breadth-first from each core point; iteration follows
// stable input order so output is reproducible for a given input ordering.
func Cluster(scans []ScanEvent, params DBSCANParams) []SpatialCluster {
	if params.MinPts <= 0 {
		params.MinPts = DefaultDBSCANMinPts
	}

	// Located subset, preserving input order.
	pts := make([]geo.Point, 0, len(scans))
	ref := make([]int, 0, len(scans))
	for i := range scans {
		if p, ok := scans[i].Coordinate(); ok {
			pts = append(pts, p)
			ref = append(ref, i)
		}
	}
	n := len(pts)
	if n == 0 {
		return nil
	}

	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}

		neighbors := regionQuery(pts, i, params.EpsilonM)
		if len(neighbors) < params.MinPts {
			labels[i] = -1
			continue
		}

		clusterID++
		expandCluster(pts, labels, i, neighbors, clusterID, params)
	}

	return buildClusters(scans, ref, pts, labels, clusterID, params.EpsilonM)
}

// regionQuery returns indices of all points within eps meters of pts[idx],
// including idx itself.
func regionQuery(pts []geo.Point, idx int, epsM float64) []int {
	neighbors := []int{}
	for j := range pts {
		if geo.DistanceMeters(pts[idx], pts[j]) <= epsM {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// expandCluster grows a cluster from a core point via queue-based expansion.
// Core neighbors contribute their own neighborhoods; border points join the
// cluster without expanding it.
func expandCluster(pts []geo.Point, labels []int, seedIdx int, neighbors []int, clusterID int, params DBSCANParams) {
	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue
		}

		labels[idx] = clusterID
		newNeighbors := regionQuery(pts, idx, params.EpsilonM)
		if len(newNeighbors) >= params.MinPts {
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}

func buildClusters(scans []ScanEvent, ref []int, pts []geo.Point, labels []int, maxClusterID int, epsM float64) []SpatialCluster {
	clusters := make([]SpatialCluster, 0, maxClusterID)

	for cid := 1; cid <= maxClusterID; cid++ {
		members := make([]ScanEvent, 0)
		memberPts := make([]geo.Point, 0)
		for i, label := range labels {
			if label == cid {
				members = append(members, scans[ref[i]])
				memberPts = append(memberPts, pts[i])
			}
		}
		if len(members) == 0 {
			continue
		}
		clusters = append(clusters, computeClusterMetrics(members, memberPts, epsM))
	}

	return clusters
}

// degenerateRadiusM is the radius below which a cluster counts as a single
// point. Averaging N identical coordinates leaves the centroid off by about
// an ULP, so the max member distance of a coincident cluster is a few
// nanometers rather than exactly zero.
const degenerateRadiusM = 1e-6

// computeClusterMetrics derives centroid, radius, and density for one
// cluster. Radius is the maximum member distance from the centroid, or
// epsilon when all members coincide; density is members per square meter of
// the enclosing circle.
func computeClusterMetrics(members []ScanEvent, memberPts []geo.Point, epsM float64) SpatialCluster {
	centroid, _ := geo.Centroid(memberPts)

	var radius float64
	for _, p := range memberPts {
		if d := geo.DistanceMeters(centroid, p); d > radius {
			radius = d
		}
	}
	if radius < degenerateRadiusM {
		radius = epsM
	}

	var density float64
	if radius > 0 {
		density = float64(len(members)) / (math.Pi * radius * radius)
	}

	return SpatialCluster{
		Members:  members,
		Centroid: centroid,
		RadiusM:  radius,
		Density:  density,
	}
}

package engine

import (
	"math"
	"testing"

	"github.com/gatewise-data/gatewise/internal/geo"
)

func TestClusterTightGroup(t *testing.T) {
	// 12 scans within ~10 m, minPts 5, eps 50: exactly one cluster holding
	// all 12 points, zero noise.
	scans := testScanGrid("s", 12, 40.7128, -74.0060, 10, "general")

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if got := len(clusters[0].Members); got != 12 {
		t.Errorf("cluster has %d members, want 12", got)
	}
}

func TestClusterNoiseExcluded(t *testing.T) {
	// Four points cannot satisfy minPts 5 anywhere, so everything is noise.
	scans := testScanGrid("s", 4, 40.7128, -74.0060, 10, "general")

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})
	if len(clusters) != 0 {
		t.Errorf("got %d clusters from sub-minPts input, want 0", len(clusters))
	}
}

func TestClusterMembershipUnique(t *testing.T) {
	// Two groups ~1.1 km apart plus one far-away straggler.
	scans := testScanGrid("a", 8, 40.7128, -74.0060, 8, "vip")
	scans = append(scans, testScanGrid("b", 8, 40.7228, -74.0060, 8, "general")...)
	scans = append(scans, testScan("lone", 40.9, -74.5, "staff"))

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}

	seen := map[string]int{}
	for _, c := range clusters {
		for _, m := range c.Members {
			seen[m.ID]++
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("scan %s appears in %d clusters, want 1", id, count)
		}
	}
	if _, ok := seen["lone"]; ok {
		t.Error("straggler joined a cluster, want noise")
	}
}

func TestClusterChainExpansion(t *testing.T) {
	// A chain of dense pockets, each within eps of the next, must become a
	// single cluster through core-point expansion.
	var scans []ScanEvent
	for i := 0; i < 5; i++ {
		lat := 40.7128 + float64(i)*0.0003 // ~33 m hops
		scans = append(scans, testScanGrid("c", 5, lat, -74.0060, 4, "general")...)
	}

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 40, MinPts: 5})
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1 chained cluster", len(clusters))
	}
	if got := len(clusters[0].Members); got != 25 {
		t.Errorf("chained cluster has %d members, want 25", got)
	}
}

func TestClusterSkipsUnlocatedScans(t *testing.T) {
	scans := testScanGrid("s", 6, 40.7128, -74.0060, 5, "general")
	scans = append(scans, ScanEvent{ID: "nofix", EventID: "evt1", Category: "general", Timestamp: testEpoch})

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	for _, m := range clusters[0].Members {
		if m.ID == "nofix" {
			t.Error("scan without a GPS fix was clustered")
		}
	}
}

func TestClusterMetrics(t *testing.T) {
	scans := testScanGrid("s", 12, 40.7128, -74.0060, 10, "general")

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	c := clusters[0]

	if c.RadiusM <= 0 || c.RadiusM > 50 {
		t.Errorf("radius = %v, want within (0, 50]", c.RadiusM)
	}
	if c.Density <= 0 {
		t.Errorf("density = %v, want > 0", c.Density)
	}
	for _, m := range c.Members {
		p, _ := m.Coordinate()
		if d := geo.DistanceMeters(c.Centroid, p); d > c.RadiusM+1e-9 {
			t.Errorf("member %s lies %v m from centroid, beyond radius %v", m.ID, d, c.RadiusM)
		}
	}
}

func TestClusterDegenerateRadiusUsesEpsilon(t *testing.T) {
	// All members at the exact same coordinate.
	var scans []ScanEvent
	for i := 0; i < 6; i++ {
		scans = append(scans, testScan(string(rune('a'+i)), 40.7128, -74.0060, "general"))
	}

	clusters := Cluster(scans, DBSCANParams{EpsilonM: 35, MinPts: 5})
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	// Averaging identical coordinates leaves the centroid an ULP off, so
	// the member distances come back a few nanometers above zero; that
	// must still count as degenerate or the density blows up.
	if clusters[0].RadiusM != 35 {
		t.Errorf("degenerate radius = %v, want epsilon 35", clusters[0].RadiusM)
	}
	wantDensity := 6 / (math.Pi * 35 * 35)
	if d := clusters[0].Density; math.Abs(d-wantDensity) > 1e-12 {
		t.Errorf("degenerate density = %v, want %v", d, wantDensity)
	}
}

func TestClusterDeterministic(t *testing.T) {
	scans := testScanGrid("a", 9, 40.7128, -74.0060, 8, "vip")
	scans = append(scans, testScanGrid("b", 9, 40.7180, -74.0010, 8, "general")...)

	first := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})
	second := Cluster(scans, DBSCANParams{EpsilonM: 50, MinPts: 5})

	if len(first) != len(second) {
		t.Fatalf("cluster counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if len(first[i].Members) != len(second[i].Members) {
			t.Errorf("cluster %d sizes differ: %d vs %d", i, len(first[i].Members), len(second[i].Members))
		}
		for j := range first[i].Members {
			if first[i].Members[j].ID != second[i].Members[j].ID {
				t.Errorf("cluster %d member %d differs: %s vs %s", i, j, first[i].Members[j].ID, second[i].Members[j].ID)
			}
		}
	}
}

func TestDominantCategory(t *testing.T) {
	c := SpatialCluster{Members: []ScanEvent{
		{ID: "1", Category: "vip"},
		{ID: "2", Category: "general"},
		{ID: "3", Category: "vip"},
		{ID: "4", Category: "vip"},
	}}
	cat, n := c.DominantCategory()
	if cat != "vip" || n != 3 {
		t.Errorf("DominantCategory = (%q, %d), want (vip, 3)", cat, n)
	}
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewise-data/gatewise/internal/config"
	"github.com/gatewise-data/gatewise/internal/db"
	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/geo"
	"github.com/gatewise-data/gatewise/internal/timeutil"
)

// Test venue around Seattle Center. Blob A and blob B sit ~450m apart, far
// beyond any merge threshold; the midpoint is isolated noise for DBSCAN.
const (
	testLatA = 47.6200
	testLonA = -122.3500
	testLatB = 47.6200
	testLonB = -122.3440
)

var testEpoch = time.Date(2026, 6, 5, 18, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB")
	t.Cleanup(func() { database.Close() })
	return database
}

// testConfig pins the epsilon learner to its 50m fallback by raising the
// minimum point count above anything a test inserts, which makes clustering
// geometry fully predictable.
func testConfig() *config.TuningConfig {
	cfg := config.EmptyTuningConfig()
	minPoints := 10_000
	cfg.EpsilonMinPoints = &minPoints
	return cfg
}

func testEngine(t *testing.T, database *db.DB) *Engine {
	t.Helper()
	return NewEngine(database, testConfig(), nil, timeutil.NewMockClock(testEpoch))
}

func insertScan(t *testing.T, database *db.DB, eventID, category string, lat, lon float64, ts time.Time) *engine.ScanEvent {
	t.Helper()
	scan := &engine.ScanEvent{
		EventID:     eventID,
		WristbandID: "wb-" + ts.Format("150405.000"),
		Category:    category,
		Lat:         &lat,
		Lon:         &lon,
		Timestamp:   ts,
	}
	require.NoError(t, database.InsertScan(scan), "InsertScan")
	return scan
}

// insertBlob lays n scans of one category on a small grid (~1m spacing)
// around a center point, with ascending timestamps.
func insertBlob(t *testing.T, database *db.DB, eventID, category string, lat, lon float64, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		dLat := float64(i%3) * 1e-5
		dLon := float64(i/3) * 1e-5
		insertScan(t, database, eventID, category, lat+dLat, lon+dLon, start.Add(time.Duration(i)*time.Second))
	}
}

func gatesByName(t *testing.T, database *db.DB, eventID string) map[string]engine.Gate {
	t.Helper()
	gates, err := database.GatesByEvent(eventID)
	require.NoError(t, err, "GatesByEvent")
	byName := make(map[string]engine.Gate, len(gates))
	for _, g := range gates {
		byName[g.Name] = g
	}
	return byName
}

func findBinding(t *testing.T, database *db.DB, gateID, category string) engine.GateBinding {
	t.Helper()
	bindings, err := database.BindingsByGate(gateID)
	require.NoError(t, err, "BindingsByGate")
	for _, b := range bindings {
		if b.Category == category {
			return b
		}
	}
	t.Fatalf("no (%s, %s) binding; have %+v", gateID, category, bindings)
	return engine.GateBinding{}
}

func TestProcessEventDiscoversGatesAndBindings(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-1", "vip", testLatA, testLonA, 12, testEpoch)
	insertBlob(t, database, "evt-1", "general", testLatB, testLonB, 13, testEpoch.Add(100*time.Second))

	// Isolated midpoint scan: DBSCAN noise, and too far from either blob
	// for any posterior evidence, so it must stay unassigned.
	insertScan(t, database, "evt-1", "staff", testLatA, -122.3470, testEpoch.Add(200*time.Second))

	// No GPS fix: never clustered, never assigned.
	noFix := &engine.ScanEvent{EventID: "evt-1", WristbandID: "wb-nofix", Category: "vip", Timestamp: testEpoch.Add(201 * time.Second)}
	require.NoError(t, database.InsertScan(noFix))

	eng := testEngine(t, database)
	report, err := eng.ProcessEvent(context.Background(), "evt-1")
	require.NoError(t, err)

	assert.Equal(t, "evt-1", report.EventID)
	assert.Equal(t, 27, report.ScansProcessed)
	assert.Equal(t, 25, report.ScansLinked, "both blobs link as founding members")
	assert.Equal(t, 2, report.ClustersFound)
	assert.Equal(t, 50.0, report.EpsilonM, "under the learner's point floor the fallback radius applies")
	assert.Equal(t, 0, report.GatesBefore)
	assert.Equal(t, 2, report.GatesAfter)
	assert.Equal(t, 0, report.DuplicatesRemoved)

	byName := gatesByName(t, database, "evt-1")
	require.Len(t, byName, 2)
	vipGate, ok := byName["VIP Gate"]
	require.True(t, ok, "dominant vip cluster names its gate")
	generalGate, ok := byName["General Gate"]
	require.True(t, ok)

	vipLoc, ok := vipGate.Coordinate()
	require.True(t, ok)
	assert.Less(t, geo.DistanceMeters(vipLoc, geo.Point{Lat: testLatA, Lon: testLonA}), 20.0)
	genLoc, ok := generalGate.Coordinate()
	require.True(t, ok)
	assert.Less(t, geo.DistanceMeters(genLoc, geo.Point{Lat: testLatB, Lon: testLonB}), 20.0)

	// Founding members are linked; the outliers are not.
	scans, err := database.ScansByEvent("evt-1", 0)
	require.NoError(t, err)
	assigned := 0
	for _, s := range scans {
		if s.GateID != nil {
			assigned++
		}
		if s.WristbandID == "wb-nofix" {
			assert.Nil(t, s.GateID, "scan without a fix stays unassigned")
		}
		if s.Category == "staff" {
			assert.Nil(t, s.GateID, "zero posterior evidence leaves the scan unassigned")
		}
	}
	assert.Equal(t, 25, assigned)

	// 12 pure vip founders: seeded at Beta(1,1), then 12 confirmations.
	vipBinding := findBinding(t, database, vipGate.ID, "vip")
	assert.Equal(t, 12, vipBinding.SampleCount)
	assert.InDelta(t, 13.0, vipBinding.Alpha, 1e-9)
	assert.InDelta(t, 1.0, vipBinding.Beta, 1e-9)
	assert.Equal(t, engine.BindingProbation, vipBinding.Status)
	assert.InDelta(t, 13.0/14.0, vipBinding.Confidence, 1e-9)

	genBinding := findBinding(t, database, generalGate.ID, "general")
	assert.Equal(t, 13, genBinding.SampleCount)
	assert.Equal(t, engine.BindingProbation, genBinding.Status)

	reports, err := database.ReportsByEvent("evt-1", 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, report.ScansLinked, reports[0].ScansLinked)
}

func TestProcessEventSecondCycleAssignsByPosterior(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-2", "vip", testLatA, testLonA, 12, testEpoch)
	insertBlob(t, database, "evt-2", "general", testLatB, testLonB, 13, testEpoch.Add(100*time.Second))

	eng := testEngine(t, database)
	_, err := eng.ProcessEvent(context.Background(), "evt-2")
	require.NoError(t, err)

	byName := gatesByName(t, database, "evt-2")
	vipGate := byName["VIP Gate"]
	require.NotEmpty(t, vipGate.ID)

	// A fresh scan right inside blob A must land on the vip gate via its
	// fitted spatial model, not on the gate list's first entry.
	late := insertScan(t, database, "evt-2", "vip", testLatA+2e-5, testLonA+2e-5, testEpoch.Add(300*time.Second))

	report, err := eng.ProcessEvent(context.Background(), "evt-2")
	require.NoError(t, err)

	assert.Equal(t, 2, report.GatesBefore, "established gates cover their clusters")
	assert.Equal(t, 2, report.GatesAfter)
	assert.Equal(t, 1, report.ScansLinked, "only the new scan needed assignment")

	scans, err := database.ScansByEvent("evt-2", 0)
	require.NoError(t, err)
	for _, s := range scans {
		if s.ID == late.ID {
			require.NotNil(t, s.GateID)
			assert.Equal(t, vipGate.ID, *s.GateID)
		}
	}

	vipBinding := findBinding(t, database, vipGate.ID, "vip")
	assert.Equal(t, 13, vipBinding.SampleCount)
	assert.InDelta(t, 14.0, vipBinding.Alpha, 1e-9, "the confirmed assignment adds one success")
}

func TestProcessEventRejectsOverlappingCycle(t *testing.T) {
	database := setupTestDB(t)
	eng := testEngine(t, database)

	require.True(t, eng.inflight.tryBegin("evt-3"))
	_, err := eng.ProcessEvent(context.Background(), "evt-3")
	assert.ErrorIs(t, err, ErrCycleInFlight)

	eng.inflight.end("evt-3")
	_, err = eng.ProcessEvent(context.Background(), "evt-3")
	assert.NoError(t, err, "the guard releases once the cycle ends")
}

func TestProcessEventCancelledBeforeDiscovery(t *testing.T) {
	database := setupTestDB(t)
	insertBlob(t, database, "evt-4", "vip", testLatA, testLonA, 12, testEpoch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := testEngine(t, database)
	report, err := eng.ProcessEvent(ctx, "evt-4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, report.Note, "cancelled after clustering")

	gates, err := database.GatesByEvent("evt-4")
	require.NoError(t, err)
	assert.Empty(t, gates, "cancellation before discovery commits nothing")

	reports, err := database.ReportsByEvent("evt-4", 10)
	require.NoError(t, err)
	require.Len(t, reports, 1, "partial cycles still report")
	assert.Contains(t, reports[0].Note, "cancelled")
}

func TestProcessEventRemovesPersistentlyPoorBinding(t *testing.T) {
	database := setupTestDB(t)
	gate := &engine.Gate{
		ID:        "gate_dead",
		EventID:   "evt-5",
		Name:      "staff gate",
		Lat:       ptr(testLatA),
		Lon:       ptr(testLonA),
		CreatedAt: testEpoch,
	}
	require.NoError(t, database.CreateGate(gate))
	require.NoError(t, database.UpsertBinding(&engine.GateBinding{
		GateID:      "gate_dead",
		Category:    "staff",
		Status:      engine.BindingProbation,
		Confidence:  0.2,
		SampleCount: 60,
		Alpha:       12,
		Beta:        48,
		UpdatedAt:   testEpoch,
	}))

	eng := testEngine(t, database)
	_, err := eng.ProcessEvent(context.Background(), "evt-5")
	require.NoError(t, err)

	bindings, err := database.BindingsByGate("gate_dead")
	require.NoError(t, err)
	assert.Empty(t, bindings, "sub-0.30 confidence across 60 samples forces removal")
}

func TestProcessEventMergesDuplicateGates(t *testing.T) {
	database := setupTestDB(t)

	// Two vip gates ~12m apart: same normalized name, inside the 20m
	// indoor threshold, so one cycle should fold them into the older gate.
	g1 := &engine.Gate{ID: "gate_a", EventID: "evt-6", Name: "VIP Gate",
		Lat: ptr(testLatA), Lon: ptr(testLonA), CreatedAt: testEpoch}
	g2 := &engine.Gate{ID: "gate_b", EventID: "evt-6", Name: "VIP Entrance",
		Lat: ptr(testLatA + 1.1e-4), Lon: ptr(testLonA), CreatedAt: testEpoch.Add(time.Minute)}
	require.NoError(t, database.CreateGate(g1))
	require.NoError(t, database.CreateGate(g2))

	require.NoError(t, database.UpsertBinding(&engine.GateBinding{
		GateID: "gate_a", Category: "vip", Status: engine.BindingProbation,
		Confidence: 0.8, SampleCount: 10, Alpha: 8, Beta: 2, UpdatedAt: testEpoch,
	}))
	require.NoError(t, database.UpsertBinding(&engine.GateBinding{
		GateID: "gate_b", Category: "vip", Status: engine.BindingProbation,
		Confidence: 0.66, SampleCount: 6, Alpha: 4, Beta: 2, UpdatedAt: testEpoch,
	}))

	s1 := insertScan(t, database, "evt-6", "vip", testLatA+1.1e-4, testLonA, testEpoch)
	s2 := insertScan(t, database, "evt-6", "vip", testLatA+1.2e-4, testLonA, testEpoch.Add(time.Second))
	require.NoError(t, database.AssignScan(s1.ID, "gate_b"))
	require.NoError(t, database.AssignScan(s2.ID, "gate_b"))

	eng := testEngine(t, database)
	report, err := eng.ProcessEvent(context.Background(), "evt-6")
	require.NoError(t, err)

	assert.Equal(t, 2, report.GatesBefore)
	assert.Equal(t, 1, report.GatesAfter)
	assert.Equal(t, 1, report.DuplicatesRemoved)

	gates, err := database.GatesByEvent("evt-6")
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.Equal(t, "gate_a", gates[0].ID, "the older gate survives")
	loc, ok := gates[0].Coordinate()
	require.True(t, ok)
	assert.InDelta(t, testLatA+0.55e-4, loc.Lat, 1e-9, "primary relocates to the member centroid")

	// Evidence is conserved: samples sum, pseudo-counts combine above the
	// shared prior, best confidence carries.
	merged := findBinding(t, database, "gate_a", "vip")
	assert.Equal(t, 16, merged.SampleCount)
	assert.InDelta(t, 11.0, merged.Alpha, 1e-9)
	assert.InDelta(t, 3.0, merged.Beta, 1e-9)
	assert.InDelta(t, 0.8, merged.Confidence, 1e-9)

	bindingsB, err := database.BindingsByGate("gate_b")
	require.NoError(t, err)
	assert.Empty(t, bindingsB, "duplicate bindings are deleted with the gate")

	scans, err := database.ScansByEvent("evt-6", 0)
	require.NoError(t, err)
	for _, s := range scans {
		require.NotNil(t, s.GateID)
		assert.Equal(t, "gate_a", *s.GateID, "scan %s repointed to the primary", s.ID)
	}

	orphans, err := database.OrphanedScanCount("evt-6")
	require.NoError(t, err)
	assert.Zero(t, orphans)
}

func TestProcessEventEmptyEvent(t *testing.T) {
	database := setupTestDB(t)
	eng := testEngine(t, database)

	report, err := eng.ProcessEvent(context.Background(), "evt-empty")
	require.NoError(t, err)
	assert.Zero(t, report.ScansProcessed)
	assert.Zero(t, report.GatesAfter)
	assert.Equal(t, 50.0, report.EpsilonM)
}

func TestDisplayGateName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "VIP Gate", displayGateName("vip"))
	assert.Equal(t, "Staff Gate", displayGateName("staff"))
	assert.Equal(t, "General Gate", displayGateName("general"))
	assert.Equal(t, "General Gate", displayGateName(""))
}

package db

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gatewise-data/gatewise/internal/engine"
)

func TestInsertScanFillsDefaults(t *testing.T) {
	database := setupTestDB(t)

	scan := &engine.ScanEvent{
		EventID:     "evt-1",
		WristbandID: "wb-1",
	}
	if err := database.InsertScan(scan); err != nil {
		t.Fatalf("InsertScan failed: %v", err)
	}

	if scan.ID == "" {
		t.Error("expected InsertScan to assign an ID")
	}
	if scan.Category != "general" {
		t.Errorf("expected default category general, got %q", scan.Category)
	}
	if scan.Timestamp.IsZero() {
		t.Error("expected InsertScan to assign a timestamp")
	}
}

func TestInsertScanRoundTrip(t *testing.T) {
	database := setupTestDB(t)

	ts := time.Unix(0, 1_700_000_123_000_000_000).UTC()
	scan := &engine.ScanEvent{
		ID:          "scan-1",
		EventID:     "evt-1",
		WristbandID: "wb-1",
		Category:    "vip",
		Lat:         floatPtr(47.6205),
		Lon:         floatPtr(-122.3493),
		AccuracyM:   floatPtr(8.5),
		Timestamp:   ts,
	}
	if err := database.InsertScan(scan); err != nil {
		t.Fatalf("InsertScan failed: %v", err)
	}

	scans, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(scans))
	}
	if diff := cmp.Diff(*scan, scans[0]); diff != "" {
		t.Errorf("scan round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertScanWithoutLocation(t *testing.T) {
	database := setupTestDB(t)

	scan := &engine.ScanEvent{
		ID:          "scan-nolocation",
		EventID:     "evt-1",
		WristbandID: "wb-2",
		Category:    "staff",
		Timestamp:   time.Unix(0, 1_700_000_000_000_000_000).UTC(),
	}
	if err := database.InsertScan(scan); err != nil {
		t.Fatalf("InsertScan failed: %v", err)
	}

	scans, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("expected 1 scan, got %d", len(scans))
	}
	got := scans[0]
	if got.Lat != nil || got.Lon != nil || got.AccuracyM != nil {
		t.Errorf("expected nil location fields, got lat=%v lon=%v accuracy=%v", got.Lat, got.Lon, got.AccuracyM)
	}
	if got.GateID != nil {
		t.Errorf("expected nil gate ID, got %v", *got.GateID)
	}
}

func TestInsertScansBatchOrder(t *testing.T) {
	database := setupTestDB(t)

	base := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	scans := []*engine.ScanEvent{
		{EventID: "evt-1", WristbandID: "wb-c", Timestamp: base.Add(2 * time.Second)},
		{EventID: "evt-1", WristbandID: "wb-a", Timestamp: base},
		{EventID: "evt-1", WristbandID: "wb-b", Timestamp: base.Add(time.Second)},
	}
	if err := database.InsertScans(scans); err != nil {
		t.Fatalf("InsertScans failed: %v", err)
	}

	got, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 scans, got %d", len(got))
	}

	wantOrder := []string{"wb-a", "wb-b", "wb-c"}
	for i, want := range wantOrder {
		if got[i].WristbandID != want {
			t.Errorf("scan %d: expected wristband %s, got %s", i, want, got[i].WristbandID)
		}
	}
}

func TestInsertScansEmptyBatch(t *testing.T) {
	database := setupTestDB(t)

	if err := database.InsertScans(nil); err != nil {
		t.Fatalf("InsertScans with empty batch failed: %v", err)
	}
}

func TestScansByEventLimitReturnsMostRecent(t *testing.T) {
	database := setupTestDB(t)

	base := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	var ids []string
	for i := 0; i < 5; i++ {
		s := createTestScan(t, database, "evt-1", "wb-1", "general", 47.62, -122.35, base.Add(time.Duration(i)*time.Second))
		ids = append(ids, s.ID)
	}

	got, err := database.ScansByEvent("evt-1", 2)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 scans with limit, got %d", len(got))
	}
	// A limited listing is for dashboards: the latest scans, newest first,
	// not the oldest rows the ascending clustering order would yield.
	if got[0].ID != ids[4] || got[1].ID != ids[3] {
		t.Errorf("limited listing = [%s %s], want newest first [%s %s]", got[0].ID, got[1].ID, ids[4], ids[3])
	}
}

func TestScansByEventIsolatesEvents(t *testing.T) {
	database := setupTestDB(t)

	ts := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	createTestScan(t, database, "evt-1", "wb-1", "general", 47.62, -122.35, ts)
	createTestScan(t, database, "evt-2", "wb-2", "general", 47.62, -122.35, ts)

	got, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 scan for evt-1, got %d", len(got))
	}
	if got[0].EventID != "evt-1" {
		t.Errorf("expected event evt-1, got %s", got[0].EventID)
	}
}

func TestAssignScan(t *testing.T) {
	database := setupTestDB(t)

	ts := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	scan := createTestScan(t, database, "evt-1", "wb-1", "vip", 47.62, -122.35, ts)
	createTestGate(t, database, "gate_north", "evt-1", "vip gate 1", 47.6201, -122.3501)

	if err := database.AssignScan(scan.ID, "gate_north"); err != nil {
		t.Fatalf("AssignScan failed: %v", err)
	}

	got, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	if got[0].GateID == nil || *got[0].GateID != "gate_north" {
		t.Errorf("expected gate_north assignment, got %v", got[0].GateID)
	}
}

func TestAssignScanMissing(t *testing.T) {
	database := setupTestDB(t)

	if err := database.AssignScan("no-such-scan", "gate_north"); err == nil {
		t.Error("expected error assigning a nonexistent scan")
	}
}

func TestAssignScansBatch(t *testing.T) {
	database := setupTestDB(t)

	ts := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	a := createTestScan(t, database, "evt-1", "wb-1", "vip", 47.62, -122.35, ts)
	b := createTestScan(t, database, "evt-1", "wb-2", "staff", 47.63, -122.36, ts.Add(time.Second))
	createTestGate(t, database, "gate_a", "evt-1", "vip gate 1", 47.62, -122.35)
	createTestGate(t, database, "gate_b", "evt-1", "staff gate 1", 47.63, -122.36)

	err := database.AssignScans([]ScanAssignment{
		{ScanID: a.ID, GateID: "gate_a"},
		{ScanID: b.ID, GateID: "gate_b"},
	})
	if err != nil {
		t.Fatalf("AssignScans failed: %v", err)
	}

	got, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	assignments := map[string]string{}
	for _, s := range got {
		if s.GateID != nil {
			assignments[s.WristbandID] = *s.GateID
		}
	}
	want := map[string]string{"wb-1": "gate_a", "wb-2": "gate_b"}
	if diff := cmp.Diff(want, assignments); diff != "" {
		t.Errorf("assignment mismatch (-want +got):\n%s", diff)
	}
}

func TestRepointScans(t *testing.T) {
	database := setupTestDB(t)

	createTestGate(t, database, "gate_dup", "evt-1", "general gate 2", 47.62, -122.35)
	createTestGate(t, database, "gate_primary", "evt-1", "general gate 1", 47.6201, -122.3501)

	ts := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	var onDup []string
	for i := 0; i < 3; i++ {
		s := createTestScan(t, database, "evt-1", "wb-dup", "general", 47.62, -122.35, ts.Add(time.Duration(i)*time.Second))
		onDup = append(onDup, s.ID)
	}
	other := createTestScan(t, database, "evt-1", "wb-other", "general", 47.6201, -122.3501, ts.Add(time.Minute))

	assignments := []ScanAssignment{{ScanID: other.ID, GateID: "gate_primary"}}
	for _, id := range onDup {
		assignments = append(assignments, ScanAssignment{ScanID: id, GateID: "gate_dup"})
	}
	if err := database.AssignScans(assignments); err != nil {
		t.Fatalf("AssignScans failed: %v", err)
	}

	moved, err := database.RepointScans("gate_dup", "gate_primary")
	if err != nil {
		t.Fatalf("RepointScans failed: %v", err)
	}
	if moved != 3 {
		t.Errorf("expected 3 scans moved, got %d", moved)
	}

	got, err := database.ScansByEvent("evt-1", 0)
	if err != nil {
		t.Fatalf("ScansByEvent failed: %v", err)
	}
	for _, s := range got {
		if s.GateID == nil || *s.GateID != "gate_primary" {
			t.Errorf("scan %s: expected gate_primary, got %v", s.ID, s.GateID)
		}
	}
}

func TestOrphanedScanCount(t *testing.T) {
	database := setupTestDB(t)

	createTestGate(t, database, "gate_real", "evt-1", "general gate 1", 47.62, -122.35)

	ts := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	linked := createTestScan(t, database, "evt-1", "wb-1", "general", 47.62, -122.35, ts)
	orphan := createTestScan(t, database, "evt-1", "wb-2", "general", 47.62, -122.35, ts.Add(time.Second))

	if err := database.AssignScan(linked.ID, "gate_real"); err != nil {
		t.Fatalf("AssignScan failed: %v", err)
	}

	n, err := database.OrphanedScanCount("evt-1")
	if err != nil {
		t.Fatalf("OrphanedScanCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 orphans, got %d", n)
	}

	// Dangle the second scan by pointing it at a gate that was never created.
	if err := database.AssignScan(orphan.ID, "gate_vanished"); err != nil {
		t.Fatalf("AssignScan failed: %v", err)
	}

	n, err = database.OrphanedScanCount("evt-1")
	if err != nil {
		t.Fatalf("OrphanedScanCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 orphan, got %d", n)
	}
}

func TestActiveEventIDs(t *testing.T) {
	database := setupTestDB(t)

	ts := time.Unix(0, 1_700_000_000_000_000_000).UTC()
	createTestScan(t, database, "evt-b", "wb-1", "general", 47.62, -122.35, ts)
	createTestScan(t, database, "evt-a", "wb-2", "general", 47.62, -122.35, ts)
	createTestScan(t, database, "evt-a", "wb-3", "general", 47.62, -122.35, ts.Add(time.Second))

	ids, err := database.ActiveEventIDs()
	if err != nil {
		t.Fatalf("ActiveEventIDs failed: %v", err)
	}
	if diff := cmp.Diff([]string{"evt-a", "evt-b"}, ids); diff != "" {
		t.Errorf("event IDs mismatch (-want +got):\n%s", diff)
	}
}

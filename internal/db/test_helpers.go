package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gatewise-data/gatewise/internal/engine"
)

// Helper functions for creating pointer values
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// setupTestDB opens a fresh database in a temp directory. Migrations run
// automatically inside NewDB, so the schema is ready to use.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

// createTestGate inserts a gate with a location and returns it.
func createTestGate(t *testing.T, db *DB, id, eventID, name string, lat, lon float64) *engine.Gate {
	t.Helper()

	gate := &engine.Gate{
		ID:        id,
		EventID:   eventID,
		Name:      name,
		Lat:       floatPtr(lat),
		Lon:       floatPtr(lon),
		CreatedAt: time.Unix(0, 1_700_000_000_000_000_000).UTC(),
	}
	if err := db.CreateGate(gate); err != nil {
		t.Fatalf("CreateGate failed: %v", err)
	}

	return gate
}

// createTestScan inserts a located scan event and returns it.
func createTestScan(t *testing.T, db *DB, eventID, wristbandID, category string, lat, lon float64, ts time.Time) *engine.ScanEvent {
	t.Helper()

	scan := &engine.ScanEvent{
		EventID:     eventID,
		WristbandID: wristbandID,
		Category:    category,
		Lat:         floatPtr(lat),
		Lon:         floatPtr(lon),
		AccuracyM:   floatPtr(5.0),
		Timestamp:   ts,
	}
	if err := db.InsertScan(scan); err != nil {
		t.Fatalf("InsertScan failed: %v", err)
	}

	return scan
}

package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise-data/gatewise/internal/engine"
)

const scanColumns = `id, event_id, wristband_id, category, lat, lon, accuracy_m, timestamp_ns, gate_id`

// InsertScan records a single scan event. If scan.ID is empty a new UUID
// is generated; if the timestamp is zero the current time is used.
func (db *DB) InsertScan(scan *engine.ScanEvent) error {
	prepareScanForInsert(scan)

	_, err := db.Exec(
		`INSERT INTO scan_events (`+scanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID,
		scan.EventID,
		scan.WristbandID,
		scan.Category,
		nullFloat64(scan.Lat),
		nullFloat64(scan.Lon),
		nullFloat64(scan.AccuracyM),
		timeToNs(scan.Timestamp),
		nullString(scan.GateID),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	return nil
}

// InsertScans records a batch of scan events in a single transaction.
// IDs and timestamps are filled in like InsertScan. The batch is all or
// nothing.
func (db *DB) InsertScans(scans []*engine.ScanEvent) error {
	if len(scans) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin scan batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO scan_events (` + scanColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare scan batch: %w", err)
	}
	defer stmt.Close()

	for _, scan := range scans {
		prepareScanForInsert(scan)
		if _, err := stmt.Exec(
			scan.ID,
			scan.EventID,
			scan.WristbandID,
			scan.Category,
			nullFloat64(scan.Lat),
			nullFloat64(scan.Lon),
			nullFloat64(scan.AccuracyM),
			timeToNs(scan.Timestamp),
			nullString(scan.GateID),
		); err != nil {
			return fmt.Errorf("insert scan %s: %w", scan.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scan batch: %w", err)
	}

	return nil
}

func prepareScanForInsert(scan *engine.ScanEvent) {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.Category == "" {
		scan.Category = "general"
	}
	if scan.Timestamp.IsZero() {
		scan.Timestamp = time.Now().UTC()
	}
}

// ScansByEvent returns scan events for the given event. With a limit of 0
// every scan comes back oldest first; the order is deterministic so
// downstream clustering sees a stable input sequence. A positive limit
// returns the most recent scans, newest first.
func (db *DB) ScansByEvent(eventID string, limit int) ([]engine.ScanEvent, error) {
	query := `SELECT ` + scanColumns + ` FROM scan_events WHERE event_id = ? ORDER BY timestamp_ns, id`
	args := []interface{}{eventID}
	if limit > 0 {
		query = `SELECT ` + scanColumns + ` FROM scan_events WHERE event_id = ? ORDER BY timestamp_ns DESC, id DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var scans []engine.ScanEvent
	for rows.Next() {
		scan, err := scanEventFromRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}

	return scans, nil
}

func scanEventFromRow(rows *sql.Rows) (engine.ScanEvent, error) {
	var (
		scan        engine.ScanEvent
		lat         sql.NullFloat64
		lon         sql.NullFloat64
		accuracyM   sql.NullFloat64
		timestampNs int64
		gateID      sql.NullString
	)

	if err := rows.Scan(
		&scan.ID,
		&scan.EventID,
		&scan.WristbandID,
		&scan.Category,
		&lat,
		&lon,
		&accuracyM,
		&timestampNs,
		&gateID,
	); err != nil {
		return engine.ScanEvent{}, fmt.Errorf("scan row: %w", err)
	}

	if lat.Valid {
		v := lat.Float64
		scan.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		scan.Lon = &v
	}
	if accuracyM.Valid {
		v := accuracyM.Float64
		scan.AccuracyM = &v
	}
	scan.Timestamp = nsToTime(timestampNs)
	if gateID.Valid {
		v := gateID.String
		scan.GateID = &v
	}

	return scan, nil
}

// ScanAssignment links one scan to the gate it was attributed to.
type ScanAssignment struct {
	ScanID string
	GateID string
}

// AssignScans applies a batch of gate assignments in one transaction.
func (db *DB) AssignScans(assignments []ScanAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin assignment batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE scan_events SET gate_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare assignment batch: %w", err)
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.Exec(a.GateID, a.ScanID); err != nil {
			return fmt.Errorf("assign scan %s: %w", a.ScanID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment batch: %w", err)
	}

	return nil
}

// AssignScan links a single scan to a gate.
func (db *DB) AssignScan(scanID, gateID string) error {
	res, err := db.Exec(`UPDATE scan_events SET gate_id = ? WHERE id = ?`, gateID, scanID)
	if err != nil {
		return fmt.Errorf("assign scan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("assign scan: no scan with id %s", scanID)
	}
	return nil
}

// RepointScans moves every scan assigned to fromGateID onto toGateID,
// returning the number of scans moved. Used when duplicate gates merge.
func (db *DB) RepointScans(fromGateID, toGateID string) (int64, error) {
	res, err := db.Exec(`UPDATE scan_events SET gate_id = ? WHERE gate_id = ?`, toGateID, fromGateID)
	if err != nil {
		return 0, fmt.Errorf("repoint scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repoint scans: %w", err)
	}
	return n, nil
}

// OrphanedScanCount counts scans that reference a gate that no longer
// exists. A nonzero count indicates a consolidation bug.
func (db *DB) OrphanedScanCount(eventID string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM scan_events
		WHERE event_id = ?
		  AND gate_id IS NOT NULL
		  AND gate_id NOT IN (SELECT id FROM gates)
	`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orphaned scans: %w", err)
	}
	return n, nil
}

// ActiveEventIDs returns the distinct event IDs that have scan events.
func (db *DB) ActiveEventIDs() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT event_id FROM scan_events ORDER BY event_id`)
	if err != nil {
		return nil, fmt.Errorf("query active events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event ids: %w", err)
	}

	return ids, nil
}

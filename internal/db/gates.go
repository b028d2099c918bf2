package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gatewise-data/gatewise/internal/engine"
)

const gateColumns = `id, event_id, name, lat, lon, created_at_ns`

// CreateGate persists a discovered gate. If gate.ID is empty a new ID is
// generated by the caller beforehand; as a fallback an empty ID is rejected
// so a broken ID generator cannot silently insert unidentifiable rows.
func (db *DB) CreateGate(gate *engine.Gate) error {
	if gate.ID == "" {
		return fmt.Errorf("create gate: empty gate id")
	}
	if gate.CreatedAt.IsZero() {
		gate.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO gates (`+gateColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		gate.ID,
		gate.EventID,
		gate.Name,
		nullFloat64(gate.Lat),
		nullFloat64(gate.Lon),
		timeToNs(gate.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create gate: %w", err)
	}

	return nil
}

// GatesByEvent returns every gate for the given event, oldest first.
// The order matters to dedup: when two gates tie, the older one survives.
func (db *DB) GatesByEvent(eventID string) ([]engine.Gate, error) {
	rows, err := db.Query(
		`SELECT `+gateColumns+` FROM gates WHERE event_id = ? ORDER BY created_at_ns, id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query gates: %w", err)
	}
	defer rows.Close()

	var gates []engine.Gate
	for rows.Next() {
		gate, err := gateFromRow(rows)
		if err != nil {
			return nil, err
		}
		gates = append(gates, gate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gates: %w", err)
	}

	return gates, nil
}

// GateByID fetches one gate. Returns sql.ErrNoRows when absent.
func (db *DB) GateByID(id string) (engine.Gate, error) {
	row := db.QueryRow(`SELECT `+gateColumns+` FROM gates WHERE id = ?`, id)

	var (
		gate        engine.Gate
		lat         sql.NullFloat64
		lon         sql.NullFloat64
		createdAtNs int64
	)
	if err := row.Scan(&gate.ID, &gate.EventID, &gate.Name, &lat, &lon, &createdAtNs); err != nil {
		if err == sql.ErrNoRows {
			return engine.Gate{}, err
		}
		return engine.Gate{}, fmt.Errorf("query gate %s: %w", id, err)
	}

	if lat.Valid {
		v := lat.Float64
		gate.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		gate.Lon = &v
	}
	gate.CreatedAt = nsToTime(createdAtNs)

	return gate, nil
}

func gateFromRow(rows *sql.Rows) (engine.Gate, error) {
	var (
		gate        engine.Gate
		lat         sql.NullFloat64
		lon         sql.NullFloat64
		createdAtNs int64
	)
	if err := rows.Scan(&gate.ID, &gate.EventID, &gate.Name, &lat, &lon, &createdAtNs); err != nil {
		return engine.Gate{}, fmt.Errorf("scan gate row: %w", err)
	}

	if lat.Valid {
		v := lat.Float64
		gate.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		gate.Lon = &v
	}
	gate.CreatedAt = nsToTime(createdAtNs)

	return gate, nil
}

// UpdateGateLocation moves a gate to a new center, typically after a merge
// recomputes the weighted centroid of the surviving gate.
func (db *DB) UpdateGateLocation(id string, lat, lon float64) error {
	res, err := db.Exec(`UPDATE gates SET lat = ?, lon = ? WHERE id = ?`, lat, lon, id)
	if err != nil {
		return fmt.Errorf("update gate location: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update gate location: no gate with id %s", id)
	}
	return nil
}

// DeleteGate removes a gate. Its bindings go with it via the foreign key
// cascade; scans pointing at it keep their gate_id and must be repointed
// by the caller first.
func (db *DB) DeleteGate(id string) error {
	if _, err := db.Exec(`DELETE FROM gates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete gate: %w", err)
	}
	return nil
}

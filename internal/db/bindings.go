package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gatewise-data/gatewise/internal/engine"
)

const bindingColumns = `gate_id, category, status, confidence, sample_count, alpha, beta, updated_at_ns`

// UpsertBinding inserts a gate/category binding or overwrites the existing
// one. Bindings are keyed by (gate_id, category) so each gate carries at
// most one binding per wristband category.
func (db *DB) UpsertBinding(binding *engine.GateBinding) error {
	if binding.UpdatedAt.IsZero() {
		binding.UpdatedAt = time.Now().UTC()
	}

	_, err := db.Exec(`
		INSERT INTO gate_bindings (`+bindingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gate_id, category) DO UPDATE SET
			status        = excluded.status,
			confidence    = excluded.confidence,
			sample_count  = excluded.sample_count,
			alpha         = excluded.alpha,
			beta          = excluded.beta,
			updated_at_ns = excluded.updated_at_ns
	`,
		binding.GateID,
		binding.Category,
		string(binding.Status),
		binding.Confidence,
		binding.SampleCount,
		binding.Alpha,
		binding.Beta,
		timeToNs(binding.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}

	return nil
}

// UpsertBindings writes a batch of bindings in one transaction, matching the
// per-row semantics of UpsertBinding. Used by the processing cycle to flush
// a whole event's binding updates at once.
func (db *DB) UpsertBindings(bindings []*engine.GateBinding) error {
	if len(bindings) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin binding batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO gate_bindings (` + bindingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gate_id, category) DO UPDATE SET
			status        = excluded.status,
			confidence    = excluded.confidence,
			sample_count  = excluded.sample_count,
			alpha         = excluded.alpha,
			beta          = excluded.beta,
			updated_at_ns = excluded.updated_at_ns
	`)
	if err != nil {
		return fmt.Errorf("prepare binding batch: %w", err)
	}
	defer stmt.Close()

	for _, b := range bindings {
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(
			b.GateID,
			b.Category,
			string(b.Status),
			b.Confidence,
			b.SampleCount,
			b.Alpha,
			b.Beta,
			timeToNs(b.UpdatedAt),
		); err != nil {
			return fmt.Errorf("upsert binding (%s, %s): %w", b.GateID, b.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit binding batch: %w", err)
	}

	return nil
}

// BindingsByGate returns the bindings attached to one gate, ordered by
// category for stable output.
func (db *DB) BindingsByGate(gateID string) ([]engine.GateBinding, error) {
	rows, err := db.Query(
		`SELECT `+bindingColumns+` FROM gate_bindings WHERE gate_id = ? ORDER BY category`,
		gateID,
	)
	if err != nil {
		return nil, fmt.Errorf("query bindings: %w", err)
	}
	defer rows.Close()

	return bindingsFromRows(rows)
}

// BindingsByEvent returns every binding for every gate of an event.
func (db *DB) BindingsByEvent(eventID string) ([]engine.GateBinding, error) {
	rows, err := db.Query(`
		SELECT b.gate_id, b.category, b.status, b.confidence, b.sample_count, b.alpha, b.beta, b.updated_at_ns
		FROM gate_bindings b
		JOIN gates g ON g.id = b.gate_id
		WHERE g.event_id = ?
		ORDER BY b.gate_id, b.category
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query event bindings: %w", err)
	}
	defer rows.Close()

	return bindingsFromRows(rows)
}

func bindingsFromRows(rows *sql.Rows) ([]engine.GateBinding, error) {
	var bindings []engine.GateBinding
	for rows.Next() {
		var (
			b           engine.GateBinding
			status      string
			updatedAtNs int64
		)
		if err := rows.Scan(
			&b.GateID,
			&b.Category,
			&status,
			&b.Confidence,
			&b.SampleCount,
			&b.Alpha,
			&b.Beta,
			&updatedAtNs,
		); err != nil {
			return nil, fmt.Errorf("scan binding row: %w", err)
		}
		b.Status = engine.BindingStatus(status)
		b.UpdatedAt = nsToTime(updatedAtNs)
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bindings: %w", err)
	}

	return bindings, nil
}

// DeleteBinding removes one gate/category binding, typically when the
// lifecycle decides a stale low-confidence binding should be dropped.
func (db *DB) DeleteBinding(gateID, category string) error {
	if _, err := db.Exec(
		`DELETE FROM gate_bindings WHERE gate_id = ? AND category = ?`,
		gateID, category,
	); err != nil {
		return fmt.Errorf("delete binding: %w", err)
	}
	return nil
}

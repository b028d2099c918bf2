package db

import (
	"database/sql"
	"fmt"
	"time"
)

// EventOverview summarizes one event for the monitor status page.
type EventOverview struct {
	EventID     string
	Scans       int
	Assigned    int
	Gates       int
	Bindings    int
	Enforced    int
	LastCycleAt *time.Time
}

// EventOverviews returns one row per active event with scan, gate, and
// binding counts plus the start time of the most recent processing cycle.
func (db *DB) EventOverviews() ([]EventOverview, error) {
	rows, err := db.Query(`
		SELECT s.event_id,
		       COUNT(*),
		       SUM(CASE WHEN s.gate_id IS NOT NULL THEN 1 ELSE 0 END),
		       (SELECT COUNT(*) FROM gates g WHERE g.event_id = s.event_id),
		       (SELECT COUNT(*) FROM gate_bindings b
		          JOIN gates g ON g.id = b.gate_id
		         WHERE g.event_id = s.event_id),
		       (SELECT COUNT(*) FROM gate_bindings b
		          JOIN gates g ON g.id = b.gate_id
		         WHERE g.event_id = s.event_id AND b.status = 'enforced'),
		       (SELECT MAX(c.started_at_ns) FROM cycle_reports c
		         WHERE c.event_id = s.event_id)
		FROM scan_events s
		GROUP BY s.event_id
		ORDER BY s.event_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query event overviews: %w", err)
	}
	defer rows.Close()

	var overviews []EventOverview
	for rows.Next() {
		var (
			o           EventOverview
			lastCycleNs sql.NullInt64
		)
		if err := rows.Scan(&o.EventID, &o.Scans, &o.Assigned, &o.Gates, &o.Bindings, &o.Enforced, &lastCycleNs); err != nil {
			return nil, fmt.Errorf("scan event overview: %w", err)
		}
		if lastCycleNs.Valid {
			t := nsToTime(lastCycleNs.Int64)
			o.LastCycleAt = &t
		}
		overviews = append(overviews, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event overviews: %w", err)
	}

	return overviews, nil
}

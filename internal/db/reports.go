package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatewise-data/gatewise/internal/engine"
)

const reportColumns = `id, event_id, started_at_ns, duration_ns, scans_processed, scans_linked, clusters_found, epsilon_m, gates_before, gates_after, duplicates_removed, note`

// SaveCycleReport persists the summary of one processing cycle. If the
// report ID is empty a new UUID is generated.
func (db *DB) SaveCycleReport(report *engine.CycleReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.StartedAt.IsZero() {
		report.StartedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO cycle_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.EventID,
		timeToNs(report.StartedAt),
		report.Duration.Nanoseconds(),
		report.ScansProcessed,
		report.ScansLinked,
		report.ClustersFound,
		report.EpsilonM,
		report.GatesBefore,
		report.GatesAfter,
		report.DuplicatesRemoved,
		report.Note,
	)
	if err != nil {
		return fmt.Errorf("save cycle report: %w", err)
	}

	return nil
}

// ReportsByEvent returns the most recent cycle reports for an event,
// newest first. A limit of 0 means no limit.
func (db *DB) ReportsByEvent(eventID string, limit int) ([]engine.CycleReport, error) {
	query := `SELECT ` + reportColumns + ` FROM cycle_reports WHERE event_id = ? ORDER BY started_at_ns DESC`
	args := []interface{}{eventID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cycle reports: %w", err)
	}
	defer rows.Close()

	var reports []engine.CycleReport
	for rows.Next() {
		var (
			r           engine.CycleReport
			startedAtNs int64
			durationNs  int64
		)
		if err := rows.Scan(
			&r.ID,
			&r.EventID,
			&startedAtNs,
			&durationNs,
			&r.ScansProcessed,
			&r.ScansLinked,
			&r.ClustersFound,
			&r.EpsilonM,
			&r.GatesBefore,
			&r.GatesAfter,
			&r.DuplicatesRemoved,
			&r.Note,
		); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r.StartedAt = nsToTime(startedAtNs)
		r.Duration = time.Duration(durationNs)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return reports, nil
}

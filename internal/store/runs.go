package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/fusionsync/internal/domain"
)

// RecordRun appends a run to the ledger.
// Uses ON CONFLICT(id) DO NOTHING - a run id is recorded once.
func (s *Store) RecordRun(ctx context.Context, run domain.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
		(id, design_uuid, payload_digest, status, error_code, error_message, created, updated, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.DesignUUID,
		run.PayloadDigest,
		string(run.Status),
		run.ErrorCode,
		run.ErrorMessage,
		run.Created,
		run.Updated,
		timeValue(run.StartedAt),
		timeValue(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recently recorded first.
// limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	query := `
		SELECT id, design_uuid, payload_digest, status, error_code, error_message,
			created, updated, started_at, finished_at
		FROM sync_runs
		ORDER BY rowid DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.SyncRun{}
	for rows.Next() {
		var (
			run      domain.SyncRun
			status   string
			started  sql.NullString
			finished sql.NullString
		)
		err := rows.Scan(
			&run.ID,
			&run.DesignUUID,
			&run.PayloadDigest,
			&status,
			&run.ErrorCode,
			&run.ErrorMessage,
			&run.Created,
			&run.Updated,
			&started,
			&finished,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListEvents returns the committed events of a run.
// Results are ordered by seq, the run's logical clock.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]domain.SyncEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, entity_id, external_key, action
		FROM sync_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.SyncEvent
	for rows.Next() {
		var (
			ev     domain.SyncEvent
			kind   string
			action string
		)
		if err := rows.Scan(&ev.RunID, &ev.Seq, &kind, &ev.EntityID, &ev.ExternalKey, &action); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = domain.EntityKind(kind)
		ev.Action = domain.EventAction(action)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ABOUTME: Database operations for sync_state and sync_runs tables
// ABOUTME: Tracks per-service sync status and the history of reconciliation runs
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// GetSyncState retrieves the sync state for a service.
func GetSyncState(db *sql.DB, service string) (*models.SyncState, error) {
	var state models.SyncState
	var lastSyncTime sql.NullTime
	var status sql.NullString
	var errorMessage sql.NullString

	err := db.QueryRow(`
		SELECT service, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		WHERE service = ?
	`, service).Scan(
		&state.Service,
		&lastSyncTime,
		&status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	state.Status = status.String
	state.ErrorMessage = errorMessage.String

	return &state, nil
}

// UpdateSyncStatus updates the sync status for a service.
func UpdateSyncStatus(db *sql.DB, service, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sync_state (service, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, service, status, errorMsgVal)

	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// MarkSyncComplete records a finished sync: status back to idle and last sync time set.
func MarkSyncComplete(db *sql.DB, service string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (service, last_sync_time, status, created_at, updated_at)
		VALUES (?, ?, 'idle', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			last_sync_time = excluded.last_sync_time,
			status = 'idle',
			error_message = NULL,
			updated_at = CURRENT_TIMESTAMP
	`, service, at.UTC())

	if err != nil {
		return fmt.Errorf("failed to mark sync complete: %w", err)
	}

	return nil
}

// GetAllSyncStates retrieves the sync state for all services.
func GetAllSyncStates(db *sql.DB) ([]models.SyncState, error) {
	rows, err := db.Query(`
		SELECT service, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []models.SyncState
	for rows.Next() {
		var state models.SyncState
		var lastSyncTime sql.NullTime
		var status sql.NullString
		var errorMessage sql.NullString

		err := rows.Scan(
			&state.Service,
			&lastSyncTime,
			&status,
			&errorMessage,
			&state.CreatedAt,
			&state.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}

		if lastSyncTime.Valid {
			state.LastSyncTime = &lastSyncTime.Time
		}
		state.Status = status.String
		state.ErrorMessage = errorMessage.String

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}

	return states, nil
}

// CreateSyncRun records the start of a reconciliation run.
func CreateSyncRun(ctx context.Context, db *sql.DB, id, service string, startedAt time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, service, state, started_at)
		VALUES (?, ?, 'running', ?)
	`, id, service, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// FinishSyncRun stores the outcome of a run created with CreateSyncRun.
func FinishSyncRun(ctx context.Context, db *sql.DB, report models.SyncReport, runErr error) error {
	var errMsg sql.NullString
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		UPDATE sync_runs
		SET state = ?, total = ?, succeeded = ?, failed = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(report.State), report.Total, report.Succeeded, report.Failed, errMsg, report.FinishedAt.UTC(), report.RunID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs, newest first.
func ListSyncRuns(ctx context.Context, db *sql.DB, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, service, state, total, succeeded, failed, error, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var state string
		var errMsg sql.NullString
		var finishedAt sql.NullTime

		if err := rows.Scan(&run.ID, &run.Service, &state, &run.Total, &run.Succeeded, &run.Failed,
			&errMsg, &run.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		run.State = models.RunState(state)
		run.Error = errMsg.String
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

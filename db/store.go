// ABOUTME: Store wraps the database functions behind the repository interface used by the sync engine
// ABOUTME: Also records reconciliation runs in sync_runs and sync_state
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// ServiceWealthbox is the sync_state key for the CRM contact sync.
const ServiceWealthbox = "wealthbox"

// Store provides repository operations over a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) UpsertUser(ctx context.Context, in models.UserInput) (*models.User, error) {
	return UpsertUser(ctx, s.db, in)
}

func (s *Store) DeleteUser(ctx context.Context, remoteID models.RemoteID) error {
	_, err := DeleteUserByRemoteID(ctx, s.db, remoteID)
	return err
}

func (s *Store) UpsertOrganization(ctx context.Context, name string) (*models.Organization, error) {
	return UpsertOrganization(ctx, s.db, name)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return FindUserByEmail(ctx, s.db, email)
}

func (s *Store) GetUserByRemoteID(ctx context.Context, remoteID models.RemoteID) (*models.User, error) {
	return GetUserByRemoteID(ctx, s.db, remoteID)
}

// RunStarted marks the service as syncing and opens a sync_runs row.
func (s *Store) RunStarted(ctx context.Context, runID string, startedAt time.Time) error {
	if err := UpdateSyncStatus(s.db, ServiceWealthbox, models.SyncStatusSyncing, nil); err != nil {
		return err
	}
	return CreateSyncRun(ctx, s.db, runID, ServiceWealthbox, startedAt)
}

// RunFinished closes the sync_runs row and updates the service status.
func (s *Store) RunFinished(ctx context.Context, report models.SyncReport, runErr error) error {
	if err := FinishSyncRun(ctx, s.db, report, runErr); err != nil {
		return err
	}

	if runErr != nil {
		msg := runErr.Error()
		return UpdateSyncStatus(s.db, ServiceWealthbox, models.SyncStatusError, &msg)
	}
	if report.State == models.RunPartiallyFailed {
		if err := MarkSyncComplete(s.db, ServiceWealthbox, report.FinishedAt); err != nil {
			return err
		}
		msg := fmt.Sprintf("%d of %d records failed", report.Failed, report.Total)
		return UpdateSyncStatus(s.db, ServiceWealthbox, models.SyncStatusIdle, &msg)
	}
	return MarkSyncComplete(s.db, ServiceWealthbox, report.FinishedAt)
}

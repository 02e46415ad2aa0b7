// ABOUTME: Sync MCP tool handlers
// ABOUTME: Implements sync_contacts, test_connection, and sync_status tools
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Syncer runs reconciliation on demand.
type Syncer interface {
	FullSync(ctx context.Context) (models.SyncReport, error)
	TestConnection(ctx context.Context) (bool, error)
}

type SyncHandlers struct {
	db     *sql.DB
	syncer Syncer
}

func NewSyncHandlers(database *sql.DB, syncer Syncer) *SyncHandlers {
	return &SyncHandlers{db: database, syncer: syncer}
}

type SyncContactsInput struct{}

type FailureOutput struct {
	RemoteID string `json:"remote_id"`
	Error    string `json:"error"`
}

type SyncReportOutput struct {
	RunID      string          `json:"run_id"`
	State      string          `json:"state"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Failures   []FailureOutput `json:"failures,omitempty"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	Duration   string          `json:"duration"`
	Error      string          `json:"error,omitempty"`
}

func (h *SyncHandlers) SyncContacts(ctx context.Context, request *mcp.CallToolRequest, input SyncContactsInput) (*mcp.CallToolResult, SyncReportOutput, error) {
	report, err := h.syncer.FullSync(ctx)
	out := reportToOutput(report)
	if err != nil {
		// Keep the partial report next to the error.
		out.Error = err.Error()
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("sync failed: %v", err)}},
		}, out, nil
	}
	return nil, out, nil
}

type TestConnectionInput struct{}

type TestConnectionOutput struct {
	Connected bool `json:"connected"`
}

func (h *SyncHandlers) TestConnection(ctx context.Context, request *mcp.CallToolRequest, input TestConnectionInput) (*mcp.CallToolResult, TestConnectionOutput, error) {
	ok, err := h.syncer.TestConnection(ctx)
	if err != nil {
		return nil, TestConnectionOutput{}, fmt.Errorf("connection test failed: %w", err)
	}
	return nil, TestConnectionOutput{Connected: ok}, nil
}

type SyncStatusInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of recent runs to include (default 5)"`
}

type SyncRunOutput struct {
	ID         string  `json:"id"`
	State      string  `json:"state"`
	Total      int     `json:"total"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Error      string  `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

type SyncStatusOutput struct {
	Status       string          `json:"status"`
	LastSyncTime *string         `json:"last_sync_time,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Runs         []SyncRunOutput `json:"runs"`
}

func (h *SyncHandlers) SyncStatus(ctx context.Context, request *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}

	state, err := db.GetSyncState(h.db, db.ServiceWealthbox)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to get sync state: %w", err)
	}

	runs, err := db.ListSyncRuns(ctx, h.db, limit)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to list sync runs: %w", err)
	}

	out := SyncStatusOutput{
		Status: models.SyncStatusIdle,
		Runs:   make([]SyncRunOutput, len(runs)),
	}
	if state != nil {
		out.Status = state.Status
		out.ErrorMessage = state.ErrorMessage
		if state.LastSyncTime != nil {
			s := state.LastSyncTime.Format(time.RFC3339)
			out.LastSyncTime = &s
		}
	}

	for i, run := range runs {
		out.Runs[i] = SyncRunOutput{
			ID:        run.ID,
			State:     string(run.State),
			Total:     run.Total,
			Succeeded: run.Succeeded,
			Failed:    run.Failed,
			Error:     run.Error,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if run.FinishedAt != nil {
			s := run.FinishedAt.Format(time.RFC3339)
			out.Runs[i].FinishedAt = &s
		}
	}

	return nil, out, nil
}

func reportToOutput(report models.SyncReport) SyncReportOutput {
	out := SyncReportOutput{
		RunID:      report.RunID,
		State:      string(report.State),
		Total:      report.Total,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		StartedAt:  report.StartedAt.Format(time.RFC3339),
		FinishedAt: report.FinishedAt.Format(time.RFC3339),
		Duration:   report.Duration().String(),
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, FailureOutput{RemoteID: string(f.RemoteID), Error: f.Error})
	}
	return out
}

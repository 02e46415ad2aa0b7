// ABOUTME: Tests for sync and user MCP tool handlers
// ABOUTME: Validates tool outputs against a temp database and a stub syncer
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

type stubSyncer struct {
	report models.SyncReport
	err    error
	ok     bool
}

func (s *stubSyncer) FullSync(context.Context) (models.SyncReport, error) {
	return s.report, s.err
}

func (s *stubSyncer) TestConnection(context.Context) (bool, error) {
	return s.ok, s.err
}

func TestSyncContactsHandler(t *testing.T) {
	database := setupTestDB(t)
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	syncer := &stubSyncer{report: models.SyncReport{
		RunID: "01HX", Total: 3, Succeeded: 2, Failed: 1, State: models.RunPartiallyFailed,
		Failures:  []models.RecordFailure{{RemoteID: "9", Error: "boom"}},
		StartedAt: start, FinishedAt: start.Add(2 * time.Second),
	}}

	h := NewSyncHandlers(database, syncer)
	_, out, err := h.SyncContacts(context.Background(), nil, SyncContactsInput{})
	if err != nil {
		t.Fatalf("SyncContacts failed: %v", err)
	}

	if out.Total != 3 || out.Succeeded != 2 || out.Failed != 1 {
		t.Errorf("unexpected counts: %+v", out)
	}
	if out.State != "partially_failed" {
		t.Errorf("expected state partially_failed, got %q", out.State)
	}
	if len(out.Failures) != 1 || out.Failures[0].RemoteID != "9" {
		t.Errorf("unexpected failures: %+v", out.Failures)
	}
	if out.Duration != "2s" {
		t.Errorf("expected duration 2s, got %q", out.Duration)
	}

	syncer.err = errors.New("invalid credentials")
	syncer.report = models.SyncReport{
		RunID: "01HY", Total: 4, Succeeded: 4, State: models.RunFailed,
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}
	result, out, err := h.SyncContacts(context.Background(), nil, SyncContactsInput{})
	if err != nil {
		t.Fatalf("failed sync should be reported as a tool error, got %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected an error result")
	}
	if out.RunID != "01HY" || out.Total != 4 || out.Succeeded != 4 || out.State != "failed" {
		t.Errorf("partial report lost: %+v", out)
	}
	if out.Error != "invalid credentials" {
		t.Errorf("expected error in output, got %q", out.Error)
	}
}

func TestTestConnectionHandler(t *testing.T) {
	h := NewSyncHandlers(setupTestDB(t), &stubSyncer{ok: true})

	_, out, err := h.TestConnection(context.Background(), nil, TestConnectionInput{})
	if err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}
	if !out.Connected {
		t.Error("expected connected")
	}
}

func TestSyncStatusHandler(t *testing.T) {
	database := setupTestDB(t)
	h := NewSyncHandlers(database, &stubSyncer{})

	_, out, err := h.SyncStatus(context.Background(), nil, SyncStatusInput{})
	if err != nil {
		t.Fatalf("SyncStatus failed: %v", err)
	}
	if out.Status != models.SyncStatusIdle || len(out.Runs) != 0 || out.LastSyncTime != nil {
		t.Errorf("unexpected status for fresh database: %+v", out)
	}

	store := db.NewStore(database)
	started := time.Now().Add(-time.Minute)
	if err := store.RunStarted(context.Background(), "run-1", started); err != nil {
		t.Fatalf("RunStarted failed: %v", err)
	}
	if err := store.RunFinished(context.Background(), models.SyncReport{
		RunID: "run-1", Total: 1, Succeeded: 1, State: models.RunSucceeded,
		StartedAt: started, FinishedAt: started.Add(time.Second),
	}, nil); err != nil {
		t.Fatalf("RunFinished failed: %v", err)
	}

	_, out, err = h.SyncStatus(context.Background(), nil, SyncStatusInput{Limit: 1})
	if err != nil {
		t.Fatalf("SyncStatus failed: %v", err)
	}
	if out.LastSyncTime == nil {
		t.Error("expected last sync time")
	}
	if len(out.Runs) != 1 || out.Runs[0].ID != "run-1" || out.Runs[0].State != "succeeded" {
		t.Errorf("unexpected runs: %+v", out.Runs)
	}
}

func TestFindUsersAndOrganizationsHandlers(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	org, err := db.UpsertOrganization(ctx, database, "Acme")
	if err != nil {
		t.Fatalf("UpsertOrganization failed: %v", err)
	}
	if _, err := db.UpsertUser(ctx, database, models.UserInput{RemoteID: "1", FirstName: "Ada", Email: "ada@acme.com", OrganizationID: &org.ID}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if _, err := db.UpsertUser(ctx, database, models.UserInput{RemoteID: "2", FirstName: "Bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	h := NewUserHandlers(database)

	_, found, err := h.FindUsers(ctx, nil, FindUsersInput{Query: "acme"})
	if err != nil {
		t.Fatalf("FindUsers failed: %v", err)
	}
	if found.Total != 1 || found.Users[0].FirstName != "Ada" || found.Users[0].OrganizationName != "Acme" {
		t.Errorf("unexpected search result: %+v", found)
	}

	_, byOrg, err := h.FindUsers(ctx, nil, FindUsersInput{OrganizationID: org.ID.String()})
	if err != nil {
		t.Fatalf("FindUsers failed: %v", err)
	}
	if byOrg.Total != 1 {
		t.Errorf("expected 1 user in org, got %d", byOrg.Total)
	}

	if _, _, err := h.FindUsers(ctx, nil, FindUsersInput{OrganizationID: "nope"}); err == nil {
		t.Error("expected error for invalid organization_id")
	}

	_, orgs, err := h.ListOrganizations(ctx, nil, ListOrganizationsInput{})
	if err != nil {
		t.Fatalf("ListOrganizations failed: %v", err)
	}
	if len(orgs.Organizations) != 1 || orgs.Organizations[0].UserCount != 1 {
		t.Errorf("unexpected organizations: %+v", orgs.Organizations)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	ctx := context.Background()
	server := NewServer(setupTestDB(t), &stubSyncer{ok: true}, "test")

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect failed: %v", err)
	}
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	defer func() { _ = session.Close() }()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"sync_contacts", "test_connection", "sync_status", "find_users", "list_organizations"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	resources, err := session.ListResources(ctx, nil)
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources.Resources) != 2 {
		t.Errorf("expected 2 resources, got %d", len(resources.Resources))
	}

	prompts, err := session.ListPrompts(ctx, nil)
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if len(prompts.Prompts) != 2 {
		t.Errorf("expected 2 prompts, got %d", len(prompts.Prompts))
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "test_connection", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if result.IsError {
		t.Errorf("test_connection returned an error result: %+v", result.Content)
	}
}

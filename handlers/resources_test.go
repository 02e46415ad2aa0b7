package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func readResource(t *testing.T, h *ResourceHandlers, uri string) (*mcp.ReadResourceResult, error) {
	t.Helper()
	return h.ReadResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	})
}

func TestReadOrganizationResources(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	org, err := db.UpsertOrganization(ctx, database, "Acme")
	if err != nil {
		t.Fatalf("UpsertOrganization failed: %v", err)
	}
	if _, err := db.UpsertUser(ctx, database, models.UserInput{
		RemoteID: "1", FirstName: "Ada", LastName: "L", Email: "ada@acme.com", OrganizationID: &org.ID,
	}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	h := NewResourceHandlers(database)

	result, err := readResource(t, h, "crmsync://organizations")
	if err != nil {
		t.Fatalf("read organizations failed: %v", err)
	}
	var orgs []models.OrganizationSummary
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &orgs); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(orgs) != 1 || orgs[0].UserCount != 1 {
		t.Errorf("unexpected organizations: %+v", orgs)
	}

	result, err = readResource(t, h, "crmsync://organizations/"+org.ID.String())
	if err != nil {
		t.Fatalf("read organization failed: %v", err)
	}
	if !strings.Contains(result.Contents[0].Text, "ada@acme.com") {
		t.Errorf("expected member email in %s", result.Contents[0].Text)
	}

	if _, err := readResource(t, h, "crmsync://organizations/00000000-0000-0000-0000-000000000000"); err == nil {
		t.Error("expected error for unknown organization")
	}
	if _, err := readResource(t, h, "crm://organizations"); err == nil {
		t.Error("expected error for wrong scheme")
	}
	if _, err := readResource(t, h, "crmsync://deals"); err == nil {
		t.Error("expected error for unknown resource")
	}
}

func TestReadSyncStatusResource(t *testing.T) {
	database := setupTestDB(t)

	result, err := readResource(t, NewResourceHandlers(database), "crmsync://sync/status")
	if err != nil {
		t.Fatalf("read sync status failed: %v", err)
	}
	if result.Contents[0].MIMEType != "application/json" {
		t.Errorf("unexpected MIME type %q", result.Contents[0].MIMEType)
	}
}

func TestPrompts(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	h := NewPromptHandlers(database)

	result, err := h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "sync-health"}})
	if err != nil {
		t.Fatalf("sync-health failed: %v", err)
	}
	text := result.Messages[0].Content.(*mcp.TextContent).Text
	if !strings.Contains(text, "No sync has run yet") {
		t.Errorf("unexpected prompt: %s", text)
	}

	org, err := db.UpsertOrganization(ctx, database, "Acme")
	if err != nil {
		t.Fatalf("UpsertOrganization failed: %v", err)
	}
	result, err = h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{
		Name:      "organization-overview",
		Arguments: map[string]string{"organization_id": org.ID.String()},
	}})
	if err != nil {
		t.Fatalf("organization-overview failed: %v", err)
	}
	if !strings.Contains(result.Description, "Acme") {
		t.Errorf("unexpected description %q", result.Description)
	}

	if _, err := h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "organization-overview"}}); err == nil {
		t.Error("expected error without organization_id")
	}
	if _, err := h.GetPrompt(ctx, &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "nope"}}); err == nil {
		t.Error("expected error for unknown prompt")
	}
}

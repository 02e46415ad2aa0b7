// ABOUTME: MCP resource handlers for exposing synced data
// ABOUTME: Provides read-only access to organizations and sync status via crmsync:// URIs
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/db"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "crmsync://"

type ResourceHandlers struct {
	db *sql.DB
}

func NewResourceHandlers(database *sql.DB) *ResourceHandlers {
	return &ResourceHandlers{db: database}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch parts[0] {
	case "organizations":
		if len(parts) == 1 {
			return h.readOrganizations(ctx, uri)
		}
		return h.readOrganization(ctx, uri, parts[1])

	case "sync":
		if len(parts) == 2 && parts[1] == "status" {
			return h.readSyncStatus(ctx, uri)
		}
		return nil, mcp.ResourceNotFoundError(uri)

	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func (h *ResourceHandlers) readOrganizations(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	orgs, err := db.ListOrganizations(ctx, h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organizations: %w", err)
	}
	return jsonResource(uri, orgs)
}

func (h *ResourceHandlers) readOrganization(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid organization ID: %w", err)
	}

	stats, err := db.GetOrganizationStats(ctx, h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organization: %w", err)
	}
	if stats == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	return jsonResource(uri, stats)
}

func (h *ResourceHandlers) readSyncStatus(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	state, err := db.GetSyncState(h.db, db.ServiceWealthbox)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync state: %w", err)
	}
	runs, err := db.ListSyncRuns(ctx, h.db, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync runs: %w", err)
	}

	return jsonResource(uri, map[string]any{
		"state": state,
		"runs":  runs,
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

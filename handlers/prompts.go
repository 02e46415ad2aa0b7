// ABOUTME: MCP prompt handlers for sync troubleshooting and organization review
// ABOUTME: Builds prompt text from the sync history and organization membership
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/db"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	db *sql.DB
}

func NewPromptHandlers(database *sql.DB) *PromptHandlers {
	return &PromptHandlers{db: database}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "sync-health":
		return h.getSyncHealthPrompt(ctx)
	case "organization-overview":
		return h.getOrganizationOverviewPrompt(ctx, request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getSyncHealthPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	state, err := db.GetSyncState(h.db, db.ServiceWealthbox)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync state: %w", err)
	}
	runs, err := db.ListSyncRuns(ctx, h.db, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync runs: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please review the health of the Wealthbox contact sync:\n\n")
	if state == nil {
		promptText.WriteString("No sync has run yet.\n")
	} else {
		promptText.WriteString(fmt.Sprintf("Status: %s\n", state.Status))
		if state.LastSyncTime != nil {
			promptText.WriteString(fmt.Sprintf("Last successful sync: %s\n", state.LastSyncTime.Format("2006-01-02 15:04")))
		}
		if state.ErrorMessage != "" {
			promptText.WriteString(fmt.Sprintf("Last error: %s\n", state.ErrorMessage))
		}
	}

	if len(runs) > 0 {
		promptText.WriteString("\nRecent runs (newest first):\n")
		for _, run := range runs {
			promptText.WriteString(fmt.Sprintf("- %s %s: %d total, %d succeeded, %d failed",
				run.StartedAt.Format("2006-01-02 15:04"), run.State, run.Total, run.Succeeded, run.Failed))
			if run.Error != "" {
				promptText.WriteString(fmt.Sprintf(" (%s)", run.Error))
			}
			promptText.WriteString("\n")
		}
	}

	promptText.WriteString("\nPlease provide:")
	promptText.WriteString("\n1. Whether the sync is healthy")
	promptText.WriteString("\n2. Likely causes of any failed or partially failed runs")
	promptText.WriteString("\n3. Suggested next steps")

	return &mcp.GetPromptResult{
		Description: "Wealthbox sync health review",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getOrganizationOverviewPrompt(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	orgIDStr, ok := args["organization_id"]
	if !ok {
		return nil, fmt.Errorf("organization_id is required")
	}

	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid organization_id: %w", err)
	}

	stats, err := db.GetOrganizationStats(ctx, h.db, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organization: %w", err)
	}
	if stats == nil {
		return nil, fmt.Errorf("organization not found: %s", orgIDStr)
	}

	var promptText strings.Builder
	promptText.WriteString("Please provide an overview of this organization:\n\n")
	promptText.WriteString(fmt.Sprintf("Organization: %s\n", stats.Name))
	promptText.WriteString(fmt.Sprintf("Users: %d\n", stats.UserCount))
	for _, u := range stats.Users {
		promptText.WriteString(fmt.Sprintf("- %s %s <%s>\n", u.FirstName, u.LastName, u.Email))
	}

	promptText.WriteString("\nPlease summarize who we know at this organization and flag any")
	promptText.WriteString(" placeholder or plus-addressed emails that may need cleanup in Wealthbox.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Overview for organization: %s", stats.Name),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

// ABOUTME: Builds the MCP server with every crmsync tool registered
// ABOUTME: Shared by the mcp CLI command and tests
package handlers

import (
	"database/sql"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer registers the sync and read tools, resources, and prompts on a
// new MCP server.
func NewServer(database *sql.DB, syncer Syncer, version string) *mcp.Server {
	syncHandlers := NewSyncHandlers(database, syncer)
	userHandlers := NewUserHandlers(database)
	resourceHandlers := NewResourceHandlers(database)
	promptHandlers := NewPromptHandlers(database)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crmsync",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_contacts",
		Description: "Run a full sync of Wealthbox contacts into the local user store and return the run report",
	}, syncHandlers.SyncContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "test_connection",
		Description: "Check that the configured Wealthbox API key is accepted",
	}, syncHandlers.TestConnection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show the current sync status, last successful sync time, and recent runs",
	}, syncHandlers.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_users",
		Description: "Search synced users by name or email, optionally within an organization",
	}, userHandlers.FindUsers)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_organizations",
		Description: "List organizations with the number of users in each",
	}, userHandlers.ListOrganizations)

	server.AddResource(&mcp.Resource{
		URI:         resourceScheme + "organizations",
		Name:        "organizations",
		Description: "All organizations with user counts",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         resourceScheme + "sync/status",
		Name:        "sync-status",
		Description: "Sync state and the ten most recent runs",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: resourceScheme + "organizations/{id}",
		Name:        "organization",
		Description: "One organization with its users",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddPrompt(&mcp.Prompt{
		Name:        "sync-health",
		Description: "Review recent sync runs and diagnose failures",
	}, promptHandlers.GetPrompt)

	server.AddPrompt(&mcp.Prompt{
		Name:        "organization-overview",
		Description: "Summarize the users synced for one organization",
		Arguments: []*mcp.PromptArgument{
			{Name: "organization_id", Description: "Organization UUID", Required: true},
		},
	}, promptHandlers.GetPrompt)

	return server
}

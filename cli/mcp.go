// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server on stdio with the sync and read tools
package cli

import (
	"context"

	"github.com/harperreed/crmsync/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(app *App) error {
	app.logger().Info("starting crmsync MCP server")

	engine, _, err := app.newEngine()
	if err != nil {
		return err
	}

	server := handlers.NewServer(app.DB, engine, app.Version)
	return server.Run(context.Background(), &mcp.StdioTransport{})
}

// ABOUTME: Entry point for the crmsync CLI, HTTP server, and MCP server
// ABOUTME: Loads config, opens the database, and routes to a command
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/crmsync/cli"
	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/logging"
)

const version = "0.1.0"

type command func(app *cli.App, args []string) error

var commands = map[string]command{
	"sync":            cli.SyncCommand,
	"test-connection": cli.TestConnectionCommand,
	"serve":           cli.ServeCommand,
	"users":           cli.UsersCommand,
	"orgs":            cli.OrgsCommand,
	"status":          cli.StatusCommand,
	"sign-webhook":    cli.SignWebhookCommand,
	"mcp": func(app *cli.App, _ []string) error {
		return cli.MCPCommand(app)
	},
}

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: DATABASE_PATH or ~/.local/share/crmsync/crmsync.db)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("crmsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 && !*initOnly {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	logger := logging.Configure(cfg.Log)

	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	database, err := db.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = database.Close() }()

	if *initOnly {
		logger.Info("database initialized", "path", cfg.DatabasePath)
		return
	}

	name := args[0]
	run, ok := commands[name]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	logger.Debug("using database", "path", cfg.DatabasePath)

	app := &cli.App{
		DB:      database,
		Config:  cfg,
		Version: version,
		Logger:  logger,
	}

	if err := run(app, args[1:]); err != nil {
		_ = database.Close()
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`crmsync v%s - Wealthbox contact sync

USAGE:
  crmsync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/crmsync/crmsync.db)
  --init                 Initialize database and exit

COMMANDS:
  sync                   Run a full contact sync now
    --concurrency <n>      Records reconciled in parallel

  test-connection        Check the Wealthbox API key

  serve                  Run the HTTP API, webhook endpoint, and scheduled sync
    --port <port>          Port to listen on (default: PORT or 3000)
    --no-schedule          Disable the scheduled sync

  users                  List synced users
    --query <text>         Search by name or email
    --org <id>             Filter by organization ID
    --page <n>             Page number (default: 1)
    --limit <n>            Max results (default: 50)

  orgs                   List organizations with user counts

  status                 Show sync state and recent runs
    --limit <n>            Recent runs to show (default: 5)

  mcp                    Start the MCP server on stdio

  sign-webhook           Print a signature header for a webhook payload
    --file <path>          Payload file (default: stdin)
    --secret <secret>      Webhook secret (default: WEALTHBOX_WEBHOOK_SECRET)

ENVIRONMENT:
  WEALTHBOX_API_URL         Wealthbox API base URL
  WEALTHBOX_API_KEY         Wealthbox API token (required for sync)
  WEALTHBOX_WEBHOOK_SECRET  Webhook signing secret (required for serve)
  API_KEY                   Key for POST /api/users/sync (required for serve)
  PORT                      HTTP port (default: 3000)
  DATABASE_PATH             SQLite database path
  SYNC_SCHEDULE             Cron expression for scheduled sync (default: 0 0 * * *)
  LOG_LEVEL, LOG_FORMAT     debug|info|warn|error, text|json

EXAMPLES:
  # Import all contacts once
  crmsync sync

  # Serve the API with a nightly sync
  crmsync serve

  # Sign a payload to test the webhook endpoint
  crmsync sign-webhook --file event.json

`, version)
}

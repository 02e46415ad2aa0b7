// ABOUTME: Long-running server command
// ABOUTME: Runs the HTTP API, webhook endpoint, and the scheduled sync together
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/crmsync/scheduler"
	"github.com/harperreed/crmsync/web"
	"github.com/harperreed/crmsync/webhook"
)

// ServeCommand starts the HTTP server and, unless disabled, the sync schedule.
func ServeCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "Port to listen on (default: PORT)")
	noSchedule := fs.Bool("no-schedule", false, "Disable the scheduled sync")
	_ = fs.Parse(args)

	if *port > 0 {
		app.Config.Port = *port
	}
	if err := app.Config.ValidateServer(); err != nil {
		return err
	}

	engine, client, err := app.newEngine()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	verifier, err := webhook.NewVerifier(app.Config.Wealthbox.WebhookSecret)
	if err != nil {
		return err
	}

	server, err := web.NewServer(web.Options{
		DB:       app.DB,
		Sync:     engine,
		Tasks:    client,
		Verifier: verifier,
		APIKey:   app.Config.APIKey,
		Version:  app.Version,
		Logger:   app.logger(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*noSchedule {
		sched, err := scheduler.New(app.Config.Sync.Schedule, engine, app.logger().With("component", "scheduler"))
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		fmt.Printf("✓ Scheduled sync: %s\n", app.Config.Sync.Schedule)
	}

	fmt.Printf("✓ Listening on http://localhost:%d\n", app.Config.Port)
	return server.Start(ctx, app.Config.Port)
}

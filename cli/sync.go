// ABOUTME: Sync CLI commands
// ABOUTME: Handles full sync, connection tests, sync status, and webhook signing
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/wealthbox"
	"github.com/harperreed/crmsync/webhook"
)

// SyncCommand runs one full sync and prints the report.
func SyncCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	concurrency := fs.Int("concurrency", 0, "Records reconciled in parallel (default: SYNC_CONCURRENCY)")
	_ = fs.Parse(args)

	if *concurrency > 0 {
		app.Config.Sync.Concurrency = *concurrency
	}

	engine, _, err := app.newEngine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Syncing contacts from Wealthbox...")
	report, err := engine.FullSync(ctx)
	fmt.Println(RenderReport(report))

	if errors.Is(err, wealthbox.ErrInvalidCredentials) {
		return fmt.Errorf("invalid Wealthbox API credentials, please check WEALTHBOX_API_KEY")
	}
	if err != nil {
		return err
	}

	if report.Failed > 0 {
		fmt.Printf("\n⚠ %d of %d contacts failed to sync\n", report.Failed, report.Total)
	} else {
		fmt.Printf("\n✓ Synced %d contacts\n", report.Succeeded)
	}
	return nil
}

// TestConnectionCommand checks the configured API key.
func TestConnectionCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	_ = fs.Parse(args)

	_, client, err := app.newEngine()
	if err != nil {
		return err
	}

	ok, err := client.TestConnection(context.Background())
	if err != nil {
		fmt.Printf("✗ Could not reach Wealthbox: %v\n", err)
		return err
	}
	if !ok {
		fmt.Println("✗ Wealthbox rejected the API key")
		return fmt.Errorf("connection test failed")
	}

	fmt.Println("✓ Connected to Wealthbox")
	return nil
}

// StatusCommand shows the sync state and recent runs.
func StatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	limit := fs.Int("limit", 5, "Recent runs to show")
	_ = fs.Parse(args)

	state, err := db.GetSyncState(app.DB, db.ServiceWealthbox)
	if err != nil {
		return err
	}
	runs, err := db.ListSyncRuns(context.Background(), app.DB, *limit)
	if err != nil {
		return err
	}

	fmt.Println(RenderStatus(state, runs))
	return nil
}

// SignWebhookCommand prints the signature header for a payload, for manual
// webhook testing.
func SignWebhookCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sign-webhook", flag.ExitOnError)
	file := fs.String("file", "", "Payload file (default: stdin)")
	secret := fs.String("secret", "", "Webhook secret (default: WEALTHBOX_WEBHOOK_SECRET)")
	_ = fs.Parse(args)

	if *secret == "" {
		*secret = app.Config.Wealthbox.WebhookSecret
	}
	verifier, err := webhook.NewVerifier(*secret)
	if err != nil {
		return fmt.Errorf("%w: set WEALTHBOX_WEBHOOK_SECRET or pass --secret", err)
	}

	var payload []byte
	if *file != "" {
		payload, err = os.ReadFile(*file)
	} else {
		payload, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	fmt.Printf("%s: %s\n", webhook.SignatureHeader, verifier.Sign(payload))
	return nil
}

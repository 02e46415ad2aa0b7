// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Builds the Wealthbox client, resolver, store, and sync engine from config
package cli

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/identity"
	"github.com/harperreed/crmsync/reconcile"
	"github.com/harperreed/crmsync/wealthbox"
)

// App carries what every command needs.
type App struct {
	DB      *sql.DB
	Config  *config.Config
	Version string
	Logger  *slog.Logger
}

// newEngine wires a sync engine against the configured Wealthbox account.
func (a *App) newEngine() (*reconcile.Engine, *wealthbox.Client, error) {
	if err := a.Config.ValidateRemote(); err != nil {
		return nil, nil, err
	}

	client, err := wealthbox.NewClient(wealthbox.Config{
		BaseURL:    a.Config.Wealthbox.APIURL,
		APIKey:     a.Config.Wealthbox.APIKey,
		PerPage:    a.Config.Sync.PageSize,
		PageDelay:  nonZeroDelay(a.Config.Sync.PageDelay),
		MaxRetries: nonZeroRetries(a.Config.Sync.MaxRetries),
		BaseDelay:  a.Config.Sync.RetryDelay,
		Logger:     a.logger().With("component", "wealthbox"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create wealthbox client: %w", err)
	}

	store := db.NewStore(a.DB)
	resolver := identity.NewResolver(store, identity.WithLogger(a.logger().With("component", "identity")))
	engine := reconcile.New(client, resolver, store,
		reconcile.WithConcurrency(a.Config.Sync.Concurrency),
		reconcile.WithRecorder(store),
		reconcile.WithLogger(a.logger().With("component", "reconcile")),
	)

	return engine, client, nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// A zero in config means "off"; the client reads zero as "default" and
// negative as "off".
func nonZeroDelay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

func nonZeroRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// ABOUTME: HTTP server exposing the sync trigger, webhook endpoint, and read API
// ABOUTME: Gin router with slog request logging and graceful shutdown
package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/webhook"
	sloggin "github.com/samber/slog-gin"
)

const shutdownTimeout = 10 * time.Second

// SyncService is the reconciliation surface the server drives.
type SyncService interface {
	FullSync(ctx context.Context) (models.SyncReport, error)
	ApplyEvent(ctx context.Context, event models.WebhookEvent) error
	TestConnection(ctx context.Context) (bool, error)
}

// TaskFetcher looks up CRM tasks.
type TaskFetcher interface {
	GetTask(ctx context.Context, id string) (*models.Task, error)
}

type Options struct {
	DB       *sql.DB
	Sync     SyncService
	Tasks    TaskFetcher
	Verifier *webhook.Verifier
	// APIKey is required in X-API-Key to trigger a sync.
	APIKey  string
	Version string
	Logger  *slog.Logger
}

type Server struct {
	db       *sql.DB
	sync     SyncService
	tasks    TaskFetcher
	verifier *webhook.Verifier
	apiKey   string
	version  string
	logger   *slog.Logger
	router   *gin.Engine
}

func NewServer(opts Options) (*Server, error) {
	if opts.DB == nil || opts.Sync == nil || opts.Tasks == nil {
		return nil, errors.New("web: database, sync service, and task fetcher are required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("web: %w", webhook.ErrConfig)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		db:       opts.DB,
		sync:     opts.Sync,
		tasks:    opts.Tasks,
		verifier: opts.Verifier,
		apiKey:   opts.APIKey,
		version:  opts.Version,
		logger:   opts.Logger,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(sloggin.New(s.logger.WithGroup("http")))
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/users", s.handleListUsers)
	api.POST("/users/sync", s.requireAPIKey(), s.handleSyncUsers)
	api.GET("/organizations", s.handleListOrganizations)
	api.GET("/organizations/:id/users", s.handleOrganizationUsers)
	api.GET("/organizations/:id/stats", s.handleOrganizationStats)
	api.GET("/wealthbox/test", s.handleTestConnection)
	api.GET("/wealthbox/tasks/:id", s.handleGetTask)
	api.POST("/webhooks/wealthbox", s.handleWebhook)

	return r
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", "addr", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

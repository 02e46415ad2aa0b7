// ABOUTME: Reconciliation engine that mirrors remote CRM contacts into the local store
// ABOUTME: Runs full syncs with bounded fan-out and applies single webhook events
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

var ErrSyncInProgress = errors.New("sync already in progress")

// Source yields remote contacts.
type Source interface {
	Contacts(ctx context.Context) iter.Seq2[models.RemoteContact, error]
	TestConnection(ctx context.Context) (bool, error)
}

// Resolver turns a remote contact into upsert input.
type Resolver interface {
	Resolve(ctx context.Context, contact models.RemoteContact) (models.UserInput, error)
}

// Repository is the store the engine writes users to.
type Repository interface {
	UpsertUser(ctx context.Context, in models.UserInput) (*models.User, error)
	DeleteUser(ctx context.Context, remoteID models.RemoteID) error
}

// RunRecorder receives run bookkeeping. It never touches reconciled data.
type RunRecorder interface {
	RunStarted(ctx context.Context, runID string, startedAt time.Time) error
	RunFinished(ctx context.Context, report models.SyncReport, runErr error) error
}

type Engine struct {
	source      Source
	resolver    Resolver
	repo        Repository
	recorder    RunRecorder
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	running atomic.Bool

	mu         sync.RWMutex
	state      models.RunState
	lastReport *models.SyncReport
}

type Option func(*Engine)

// WithConcurrency bounds how many records are reconciled at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(source Source, resolver Resolver, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		source:      source,
		resolver:    resolver,
		repo:        repo,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
		state:       models.RunIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns RunRunning while a full sync is in flight, RunIdle otherwise.
func (e *Engine) State() models.RunState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LastReport returns the report of the most recent finished run, or nil.
func (e *Engine) LastReport() *models.SyncReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastReport == nil {
		return nil
	}
	r := *e.lastReport
	r.Failures = slices.Clone(e.lastReport.Failures)
	return &r
}

func (e *Engine) TestConnection(ctx context.Context) (bool, error) {
	return e.source.TestConnection(ctx)
}

// FullSync reconciles every remote contact into the store. Record-level
// failures are collected in the report; a failed fetch aborts the run and is
// returned along with the partial report.
func (e *Engine) FullSync(ctx context.Context) (models.SyncReport, error) {
	if !e.running.CompareAndSwap(false, true) {
		return models.SyncReport{}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	report := models.SyncReport{
		RunID:     ulid.Make().String(),
		State:     models.RunRunning,
		StartedAt: e.now(),
	}
	e.setState(models.RunRunning)

	logger := e.logger.With("run_id", report.RunID)
	logger.Info("full sync started")

	// The recorder writes run bookkeeping only; users and organizations are
	// touched solely by reconcile.
	if e.recorder != nil {
		if err := e.recorder.RunStarted(ctx, report.RunID, report.StartedAt); err != nil {
			logger.Warn("failed to record sync start", "error", err)
		}
	}

	var (
		mu       sync.Mutex
		fetchErr error
		g        errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for contact, err := range e.source.Contacts(ctx) {
		if err != nil {
			fetchErr = err
			break
		}

		report.Total++
		g.Go(func() error {
			recErr := e.reconcile(ctx, contact)

			mu.Lock()
			defer mu.Unlock()
			if recErr != nil {
				report.Failed++
				report.Failures = append(report.Failures, models.RecordFailure{
					RemoteID: contact.ID,
					Error:    recErr.Error(),
				})
				logger.Error("failed to reconcile contact", "remote_id", contact.ID, "error", recErr)
				return nil
			}
			report.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(report.Failures, func(a, b models.RecordFailure) int {
		return strings.Compare(string(a.RemoteID), string(b.RemoteID))
	})

	report.FinishedAt = e.now()
	switch {
	case fetchErr != nil:
		report.State = models.RunFailed
		fetchErr = fmt.Errorf("failed to fetch contacts: %w", fetchErr)
	case report.Failed > 0:
		report.State = models.RunPartiallyFailed
	default:
		report.State = models.RunSucceeded
	}

	if e.recorder != nil {
		// The caller's context may already be done; bookkeeping still gets written.
		if err := e.recorder.RunFinished(context.WithoutCancel(ctx), report, fetchErr); err != nil {
			logger.Warn("failed to record sync result", "error", err)
		}
	}

	e.finish(report)

	attrs := []any{
		"state", report.State,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration", report.Duration(),
	}
	if fetchErr != nil {
		logger.Error("full sync failed", append(attrs, "error", fetchErr)...)
		return report, fetchErr
	}
	logger.Info("full sync finished", attrs...)
	return report, nil
}

// ApplyEvent applies one webhook event. Deleting an absent user succeeds, and
// unknown event types are ignored.
func (e *Engine) ApplyEvent(ctx context.Context, event models.WebhookEvent) error {
	switch event.Type {
	case models.EventContactCreated, models.EventContactUpdated:
		if err := e.reconcile(ctx, event.Data); err != nil {
			return fmt.Errorf("failed to apply %s for contact %s: %w", event.Type, event.Data.ID, err)
		}
		e.logger.Info("applied webhook event", "type", event.Type, "remote_id", event.Data.ID)
		return nil

	case models.EventContactDeleted:
		if event.Data.ID == "" {
			return fmt.Errorf("delete event has no contact id: %w", models.ErrInvalidInput)
		}
		if err := e.repo.DeleteUser(ctx, event.Data.ID); err != nil {
			return fmt.Errorf("failed to delete contact %s: %w", event.Data.ID, err)
		}
		e.logger.Info("applied webhook event", "type", event.Type, "remote_id", event.Data.ID)
		return nil

	default:
		e.logger.Warn("ignoring unknown webhook event", "type", event.Type, "remote_id", event.Data.ID)
		return nil
	}
}

// reconcile resolves and upserts one contact. An email claimed concurrently
// by another contact triggers one re-resolve.
func (e *Engine) reconcile(ctx context.Context, contact models.RemoteContact) error {
	in, err := e.resolver.Resolve(ctx, contact)
	if err != nil {
		return fmt.Errorf("failed to resolve contact: %w", err)
	}

	_, err = e.repo.UpsertUser(ctx, in)
	if errors.Is(err, models.ErrEmailConflict) {
		e.logger.Warn("email claimed concurrently, re-resolving", "remote_id", contact.ID, "email", in.Email)

		in, err = e.resolver.Resolve(ctx, contact)
		if err != nil {
			return fmt.Errorf("failed to resolve contact: %w", err)
		}
		_, err = e.repo.UpsertUser(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (e *Engine) setState(s models.RunState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *Engine) finish(report models.SyncReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastReport = &report
	e.state = models.RunIdle
}

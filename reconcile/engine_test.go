// ABOUTME: Tests for the reconciliation engine using in-memory fakes
// ABOUTME: Covers counts, failure isolation, overlap rejection, and webhook events
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/identity"
	"github.com/harperreed/crmsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	contacts []models.RemoteContact
	// failAfter yields err after this many contacts when err is set.
	failAfter int
	err       error
	// gate, when set, blocks iteration until closed; started is closed on entry.
	gate    chan struct{}
	started chan struct{}
}

func (s *fakeSource) Contacts(ctx context.Context) iter.Seq2[models.RemoteContact, error] {
	return func(yield func(models.RemoteContact, error) bool) {
		if s.started != nil {
			close(s.started)
		}
		if s.gate != nil {
			<-s.gate
		}
		for i, c := range s.contacts {
			if s.err != nil && i == s.failAfter {
				yield(models.RemoteContact{}, s.err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if s.err != nil && s.failAfter >= len(s.contacts) {
			yield(models.RemoteContact{}, s.err)
		}
	}
}

func (s *fakeSource) TestConnection(context.Context) (bool, error) {
	return s.err == nil, nil
}

// memRepo is an in-memory store satisfying both the engine and resolver.
type memRepo struct {
	mu      sync.Mutex
	users   map[models.RemoteID]models.User
	orgs    map[string]*models.Organization
	writes  int
	failFor map[models.RemoteID]bool
	// conflictOnce makes the first upsert of these ids report an email conflict.
	conflictOnce map[models.RemoteID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        map[models.RemoteID]models.User{},
		orgs:         map[string]*models.Organization{},
		failFor:      map[models.RemoteID]bool{},
		conflictOnce: map[models.RemoteID]bool{},
	}
}

func (r *memRepo) UpsertUser(_ context.Context, in models.UserInput) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failFor[in.RemoteID] {
		return nil, errors.New("constraint failed")
	}
	if r.conflictOnce[in.RemoteID] {
		delete(r.conflictOnce, in.RemoteID)
		return nil, models.ErrEmailConflict
	}
	for id, u := range r.users {
		if u.Email == in.Email && id != in.RemoteID {
			return nil, models.ErrEmailConflict
		}
	}

	r.writes++
	u, ok := r.users[in.RemoteID]
	if !ok {
		u = models.User{ID: uuid.New(), RemoteID: in.RemoteID, CreatedAt: time.Now()}
	}
	u.FirstName, u.LastName, u.Email, u.OrganizationID = in.FirstName, in.LastName, in.Email, in.OrganizationID
	r.users[in.RemoteID] = u
	return &u, nil
}

func (r *memRepo) DeleteUser(_ context.Context, id models.RemoteID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; ok {
		r.writes++
		delete(r.users, id)
	}
	return nil
}

func (r *memRepo) UpsertOrganization(_ context.Context, name string) (*models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if org, ok := r.orgs[name]; ok {
		return org, nil
	}
	org := &models.Organization{ID: uuid.New(), Name: name}
	r.orgs[name] = org
	return org, nil
}

func (r *memRepo) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetUserByRemoteID(_ context.Context, id models.RemoteID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

type recorder struct {
	mu       sync.Mutex
	started  []string
	finished []models.SyncReport
	errs     []error
}

func (r *recorder) RunStarted(_ context.Context, runID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, runID)
	return nil
}

func (r *recorder) RunFinished(_ context.Context, report models.SyncReport, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, report)
	r.errs = append(r.errs, runErr)
	return nil
}

func contacts(n int) []models.RemoteContact {
	out := make([]models.RemoteContact, n)
	for i := range out {
		out[i] = models.RemoteContact{
			ID:             models.RemoteID(fmt.Sprintf("%d", i+1)),
			FirstName:      fmt.Sprintf("User%d", i+1),
			EmailAddresses: []models.EmailAddress{{Email: fmt.Sprintf("u%d@example.com", i+1), Primary: true}},
		}
	}
	return out
}

func newEngine(src Source, repo *memRepo, opts ...Option) *Engine {
	return New(src, identity.NewResolver(repo), repo, opts...)
}

func TestFullSyncCounts(t *testing.T) {
	repo := newMemRepo()
	rec := &recorder{}
	e := newEngine(&fakeSource{contacts: contacts(25)}, repo, WithConcurrency(4), WithRecorder(rec))

	report, err := e.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, report.Total)
	assert.Equal(t, 25, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, models.RunSucceeded, report.State)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, repo.users, 25)

	assert.Equal(t, models.RunIdle, e.State())
	require.NotNil(t, e.LastReport())
	assert.Equal(t, report.RunID, e.LastReport().RunID)

	require.Len(t, rec.started, 1)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, report.RunID, rec.started[0])
	assert.NoError(t, rec.errs[0])
}

func TestFullSyncIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	e := newEngine(&fakeSource{contacts: contacts(5)}, repo)

	_, err := e.FullSync(context.Background())
	require.NoError(t, err)
	before := make(map[models.RemoteID]models.User, len(repo.users))
	for k, v := range repo.users {
		before[k] = v
	}

	report, err := e.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, before, repo.users)
}

func TestFullSyncEmptyWritesNothing(t *testing.T) {
	repo := newMemRepo()
	rec := &recorder{}
	e := newEngine(&fakeSource{}, repo, WithRecorder(rec))

	report, err := e.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, repo.writes)
	assert.Empty(t, repo.orgs)
}

func TestFullSyncEmptyLeavesStoreTablesUntouched(t *testing.T) {
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	store := db.NewStore(database)
	e := New(&fakeSource{}, identity.NewResolver(store), store, WithRecorder(store))

	report, err := e.FullSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, report.State)

	users, err := db.CountUsers(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 0, users)
	orgs, err := db.CountOrganizations(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 0, orgs)

	// Only bookkeeping rows are written.
	runs, err := db.ListSyncRuns(ctx, database, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunSucceeded, runs[0].State)
	assert.Equal(t, 0, runs[0].Total)
}

func TestFullSyncIsolatesRecordFailures(t *testing.T) {
	repo := newMemRepo()
	repo.failFor["3"] = true
	repo.failFor["7"] = true

	e := newEngine(&fakeSource{contacts: contacts(10)}, repo)

	report, err := e.FullSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 8, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, report.Total, report.Succeeded+report.Failed)
	assert.Equal(t, models.RunPartiallyFailed, report.State)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, models.RemoteID("3"), report.Failures[0].RemoteID)
	assert.Equal(t, models.RemoteID("7"), report.Failures[1].RemoteID)
	assert.Contains(t, report.Failures[0].Error, "constraint failed")
	assert.Len(t, repo.users, 8)
}

func TestFullSyncRecordsInvalidContactAsFailure(t *testing.T) {
	repo := newMemRepo()
	list := append(contacts(2), models.RemoteContact{FirstName: "No ID"})

	report, err := newEngine(&fakeSource{contacts: list}, repo).FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Failed)
}

func TestFullSyncFetchErrorAborts(t *testing.T) {
	repo := newMemRepo()
	rec := &recorder{}
	authErr := errors.New("invalid API credentials")
	e := newEngine(&fakeSource{contacts: contacts(10), failAfter: 4, err: authErr}, repo, WithRecorder(rec))

	report, err := e.FullSync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, authErr)

	assert.Equal(t, models.RunFailed, report.State)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, report.Total, report.Succeeded+report.Failed)
	// Upserts committed before the failure stay
	assert.Len(t, repo.users, 4)

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], authErr)
	assert.Equal(t, models.RunIdle, e.State())
}

func TestFullSyncRejectsOverlap(t *testing.T) {
	repo := newMemRepo()
	src := &fakeSource{
		contacts: contacts(3),
		gate:     make(chan struct{}),
		started:  make(chan struct{}),
	}
	e := newEngine(src, repo)

	done := make(chan error, 1)
	go func() {
		_, err := e.FullSync(context.Background())
		done <- err
	}()

	<-src.started
	assert.Equal(t, models.RunRunning, e.State())

	_, err := e.FullSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(src.gate)
	require.NoError(t, <-done)
	assert.Len(t, repo.users, 3)
}

func TestFullSyncRetriesEmailConflictOnce(t *testing.T) {
	repo := newMemRepo()
	repo.conflictOnce["2"] = true

	report, err := newEngine(&fakeSource{contacts: contacts(3)}, repo).FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
}

func TestFullSyncSharedCompanyConverges(t *testing.T) {
	repo := newMemRepo()
	list := contacts(20)
	for i := range list {
		list[i].CompanyName = "Acme"
	}

	_, err := newEngine(&fakeSource{contacts: list}, repo, WithConcurrency(8)).FullSync(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.orgs, 1)
	orgID := repo.orgs["Acme"].ID
	for _, u := range repo.users {
		require.NotNil(t, u.OrganizationID)
		assert.Equal(t, orgID, *u.OrganizationID)
	}
}

func TestApplyEvent(t *testing.T) {
	repo := newMemRepo()
	e := newEngine(&fakeSource{}, repo)
	ctx := context.Background()

	contact := models.RemoteContact{
		ID:             "55",
		FirstName:      "Ada",
		EmailAddresses: []models.EmailAddress{{Email: "ada@example.com", Primary: true}},
	}

	require.NoError(t, e.ApplyEvent(ctx, models.WebhookEvent{Type: models.EventContactCreated, Data: contact}))
	require.Contains(t, repo.users, models.RemoteID("55"))

	contact.LastName = "Lovelace"
	require.NoError(t, e.ApplyEvent(ctx, models.WebhookEvent{Type: models.EventContactUpdated, Data: contact}))
	assert.Equal(t, "Lovelace", repo.users["55"].LastName)
	assert.Len(t, repo.users, 1)

	del := models.WebhookEvent{Type: models.EventContactDeleted, Data: models.RemoteContact{ID: "55"}}
	require.NoError(t, e.ApplyEvent(ctx, del))
	assert.Empty(t, repo.users)

	// Deleting again is a no-op success
	writes := repo.writes
	require.NoError(t, e.ApplyEvent(ctx, del))
	assert.Equal(t, writes, repo.writes)

	require.NoError(t, e.ApplyEvent(ctx, models.WebhookEvent{Type: "contact.merged", Data: contact}))
	assert.Equal(t, writes, repo.writes)

	err := e.ApplyEvent(ctx, models.WebhookEvent{Type: models.EventContactDeleted})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestTestConnectionDelegates(t *testing.T) {
	ok, err := newEngine(&fakeSource{}, newMemRepo()).TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = newEngine(&fakeSource{err: errors.New("nope")}, newMemRepo()).TestConnection(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

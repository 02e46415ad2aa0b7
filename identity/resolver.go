// ABOUTME: Maps remote CRM contacts onto local user identities
// ABOUTME: Picks the primary email, resolves organizations, and disambiguates email collisions
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harperreed/crmsync/models"
	"github.com/samber/lo"
)

// Repository is the subset of the store the resolver reads from. UpsertOrganization
// is the one write it performs, and it is idempotent.
type Repository interface {
	UpsertOrganization(ctx context.Context, name string) (*models.Organization, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByRemoteID(ctx context.Context, remoteID models.RemoteID) (*models.User, error)
}

type Resolver struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithClock overrides the time source used for last-resort email suffixes.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(repo Repository, opts ...Option) *Resolver {
	r := &Resolver{
		repo:   repo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PrimaryEmail returns the contact's canonical email: the first address flagged
// primary, else the first non-empty address, else a placeholder built from the
// remote id.
func PrimaryEmail(contact models.RemoteContact) string {
	emails := lo.Filter(contact.EmailAddresses, func(e models.EmailAddress, _ int) bool {
		return normalizeEmail(e.Email) != ""
	})

	if primary, ok := lo.Find(emails, func(e models.EmailAddress) bool { return e.Primary }); ok {
		return normalizeEmail(primary.Email)
	}
	if len(emails) > 0 {
		return normalizeEmail(emails[0].Email)
	}
	return PlaceholderEmail(contact.ID)
}

// PlaceholderEmail is the address given to contacts that have none.
func PlaceholderEmail(id models.RemoteID) string {
	return fmt.Sprintf("contact_%s@placeholder.com", id)
}

// Resolve produces the upsert input for a contact. It may create the contact's
// organization but never writes users.
func (r *Resolver) Resolve(ctx context.Context, contact models.RemoteContact) (models.UserInput, error) {
	if strings.TrimSpace(contact.ID.String()) == "" {
		return models.UserInput{}, fmt.Errorf("contact has no remote id: %w", models.ErrInvalidInput)
	}

	in := models.UserInput{
		RemoteID:  contact.ID,
		FirstName: strings.TrimSpace(contact.FirstName),
		LastName:  strings.TrimSpace(contact.LastName),
	}

	if name := strings.TrimSpace(contact.CompanyName); name != "" {
		org, err := r.repo.UpsertOrganization(ctx, name)
		if err != nil {
			return models.UserInput{}, fmt.Errorf("failed to resolve organization %q: %w", name, err)
		}
		in.OrganizationID = &org.ID
	}

	email, err := r.resolveEmail(ctx, contact.ID, PrimaryEmail(contact))
	if err != nil {
		return models.UserInput{}, err
	}
	in.Email = email

	return in, nil
}

// resolveEmail keeps the canonical email unless another remote id owns it, in
// which case a deterministic plus-address is derived.
func (r *Resolver) resolveEmail(ctx context.Context, id models.RemoteID, canonical string) (string, error) {
	free, owner, err := r.available(ctx, id, canonical)
	if err != nil {
		return "", err
	}
	if free {
		return canonical, nil
	}

	alt := plusAddress(canonical, string(id))
	r.logger.Warn("email already owned by another contact, using alternate",
		"email", canonical,
		"remote_id", id,
		"owner_remote_id", owner,
		"alternate", alt,
	)

	free, owner, err = r.available(ctx, id, alt)
	if err != nil {
		return "", err
	}
	if free {
		return alt, nil
	}

	// A timestamped address minted on an earlier run stays put.
	current, err := r.repo.GetUserByRemoteID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to look up user %s: %w", id, err)
	}
	if current != nil && isTimestamped(current.Email, canonical, id) {
		return current.Email, nil
	}

	last := plusAddress(canonical, fmt.Sprintf("%s-%d", id, r.now().Unix()))
	r.logger.Warn("alternate email also taken, using timestamped address",
		"email", alt,
		"remote_id", id,
		"owner_remote_id", owner,
		"alternate", last,
	)
	return last, nil
}

// available reports whether email is unowned or owned by id itself.
func (r *Resolver) available(ctx context.Context, id models.RemoteID, email string) (bool, models.RemoteID, error) {
	existing, err := r.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return false, "", fmt.Errorf("failed to look up email owner: %w", err)
	}
	if existing == nil || existing.RemoteID == id {
		return true, "", nil
	}
	return false, existing.RemoteID, nil
}

// plusAddress inserts +tag before the domain: a@b.com -> a+tag@b.com.
func plusAddress(email, tag string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return normalizeEmail(fmt.Sprintf("%s+%s", email, tag))
	}
	return normalizeEmail(fmt.Sprintf("%s+%s%s", email[:at], tag, email[at:]))
}

// isTimestamped reports whether email has the form local+<id>-<digits>@domain
// for the given canonical address.
func isTimestamped(email, canonical string, id models.RemoteID) bool {
	prefix := plusAddress(canonical, string(id)+"-")
	head, domain := prefix, ""
	if at := strings.LastIndex(prefix, "@"); at >= 0 {
		head, domain = prefix[:at], prefix[at:]
	}

	email = normalizeEmail(email)
	if !strings.HasPrefix(email, head) || !strings.HasSuffix(email, domain) {
		return false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(email, head), domain)
	if stamp == "" {
		return false
	}
	for _, c := range stamp {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ABOUTME: Organization database operations
// ABOUTME: Handles conflict-safe resolve-or-create by name, listings with user counts, and stats
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
)

// UpsertOrganization returns the organization with exactly this name, creating
// it if needed. The insert relies on the UNIQUE(name) constraint rather than a
// prior lookup, so concurrent callers converge on a single row.
func UpsertOrganization(ctx context.Context, db *sql.DB, name string) (*models.Organization, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: organization name is required", models.ErrInvalidInput)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, uuid.New().String(), name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert organization: %w", err)
	}

	org, err := FindOrganizationByName(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %q missing after upsert", name)
	}
	return org, nil
}

// FindOrganizationByName looks up an organization by exact, case-sensitive name.
func FindOrganizationByName(ctx context.Context, db *sql.DB, name string) (*models.Organization, error) {
	org, err := scanOrganization(db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM organizations WHERE name = ?
	`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	return org, nil
}

func GetOrganization(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.Organization, error) {
	org, err := scanOrganization(db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM organizations WHERE id = ?
	`, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns every organization with its user count, ordered by name.
func ListOrganizations(ctx context.Context, db *sql.DB) ([]models.OrganizationSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT o.id, o.name, o.created_at, COUNT(u.id)
		FROM organizations o
		LEFT JOIN users u ON u.organization_id = o.id
		GROUP BY o.id, o.name, o.created_at
		ORDER BY o.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orgs := []models.OrganizationSummary{}
	for rows.Next() {
		var summary models.OrganizationSummary
		var id string
		if err := rows.Scan(&id, &summary.Name, &summary.CreatedAt, &summary.UserCount); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		summary.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid organization id %q: %w", id, err)
		}
		orgs = append(orgs, summary)
	}

	return orgs, rows.Err()
}

// FindUsersByOrganization returns the members of an organization ordered by first name.
func FindUsersByOrganization(ctx context.Context, db *sql.DB, orgID uuid.UUID) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+userFrom+`
		WHERE u.organization_id = ?
		ORDER BY u.first_name ASC, u.last_name ASC, u.id ASC
	`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to find organization users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

// GetOrganizationStats returns the organization with its members, or nil if
// no organization has that id.
func GetOrganizationStats(ctx context.Context, db *sql.DB, id uuid.UUID) (*models.OrganizationStats, error) {
	org, err := GetOrganization(ctx, db, id)
	if err != nil || org == nil {
		return nil, err
	}

	users, err := FindUsersByOrganization(ctx, db, id)
	if err != nil {
		return nil, err
	}

	return &models.OrganizationStats{
		OrganizationSummary: models.OrganizationSummary{
			Organization: *org,
			UserCount:    len(users),
		},
		Users: users,
	}, nil
}

// CountOrganizations returns the number of organizations in the store.
func CountOrganizations(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", err)
	}
	return n, nil
}

func scanOrganization(s scanner) (*models.Organization, error) {
	var org models.Organization
	var id string
	if err := s.Scan(&id, &org.Name, &org.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid organization id %q: %w", id, err)
	}
	org.ID = parsed
	return &org, nil
}

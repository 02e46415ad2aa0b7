// ABOUTME: User database operations
// ABOUTME: Conflict-safe upsert keyed by remote id, delete by remote id, and paginated search
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/models"
	"github.com/mattn/go-sqlite3"
)

const userColumns = `
	u.id, u.remote_id, u.first_name, u.last_name, u.email, u.organization_id, u.created_at, u.updated_at,
	o.id, o.name, o.created_at`

const userFrom = `
	FROM users u
	LEFT JOIN organizations o ON o.id = u.organization_id`

// UpsertUser inserts the user or updates the row that already carries its
// remote id. The row is only touched when a field actually changed, so
// replaying the same input leaves updated_at alone.
func UpsertUser(ctx context.Context, db *sql.DB, in models.UserInput) (*models.User, error) {
	if in.RemoteID == "" || in.Email == "" {
		return nil, fmt.Errorf("%w: remote id and email are required", models.ErrInvalidInput)
	}

	var orgID *string
	if in.OrganizationID != nil {
		s := in.OrganizationID.String()
		orgID = &s
	}

	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, remote_id, first_name, last_name, email, organization_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			organization_id = excluded.organization_id,
			updated_at = excluded.updated_at
		WHERE users.first_name IS NOT excluded.first_name
			OR users.last_name IS NOT excluded.last_name
			OR users.email IS NOT excluded.email
			OR users.organization_id IS NOT excluded.organization_id
	`, uuid.New().String(), in.RemoteID.String(), in.FirstName, in.LastName, in.Email, orgID, now, now)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return nil, fmt.Errorf("%w: %s", models.ErrEmailConflict, in.Email)
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	user, err := GetUserByRemoteID(ctx, db, in.RemoteID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s missing after upsert", in.RemoteID)
	}
	return user, nil
}

// DeleteUserByRemoteID removes the user with the given remote id. Deleting a
// user that does not exist is not an error; the return value reports whether
// a row was removed.
func DeleteUserByRemoteID(ctx context.Context, db *sql.DB, remoteID models.RemoteID) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE remote_id = ?`, remoteID.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return n > 0, nil
}

func GetUserByRemoteID(ctx context.Context, db *sql.DB, remoteID models.RemoteID) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+userFrom+` WHERE u.remote_id = ?`, remoteID.String())
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func FindUserByEmail(ctx context.Context, db *sql.DB, email string) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+userFrom+` WHERE u.email = ?`, email)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// UserQuery filters a user listing.
type UserQuery struct {
	Page           int
	Limit          int
	Search         string
	OrganizationID *uuid.UUID
}

// FindUsers returns one page of users ordered by first name. Search matches
// first name, last name, or email case-insensitively.
func FindUsers(ctx context.Context, db *sql.DB, q UserQuery) (*models.UserPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	var where []string
	var args []interface{}

	if q.Search != "" {
		pattern := "%" + strings.ToLower(q.Search) + "%"
		where = append(where, `(LOWER(u.first_name) LIKE ? OR LOWER(u.last_name) LIKE ? OR LOWER(u.email) LIKE ?)`)
		args = append(args, pattern, pattern, pattern)
	}
	if q.OrganizationID != nil {
		where = append(where, `u.organization_id = ?`)
		args = append(args, q.OrganizationID.String())
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), q.Limit, (q.Page-1)*q.Limit)
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+userFrom+clause+`
		ORDER BY u.first_name ASC, u.last_name ASC, u.id ASC
		LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return &models.UserPage{
		Users:      users,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

// CountUsers returns the number of users in the store.
func CountUsers(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s scanner) (*models.User, error) {
	var u models.User
	var id, remoteID string
	var orgID, joinedOrgID, joinedOrgName sql.NullString
	var joinedOrgCreated sql.NullTime

	err := s.Scan(&id, &remoteID, &u.FirstName, &u.LastName, &u.Email, &orgID, &u.CreatedAt, &u.UpdatedAt,
		&joinedOrgID, &joinedOrgName, &joinedOrgCreated)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	u.ID = parsed
	u.RemoteID = models.RemoteID(remoteID)

	if orgID.Valid {
		oid, err := uuid.Parse(orgID.String)
		if err == nil {
			u.OrganizationID = &oid
		}
	}

	if joinedOrgID.Valid && u.OrganizationID != nil {
		u.Organization = &models.Organization{
			ID:        *u.OrganizationID,
			Name:      joinedOrgName.String,
			CreatedAt: joinedOrgCreated.Time,
		}
	}

	return &u, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure
// on the given table.column.
func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return column == "" || strings.Contains(sqliteErr.Error(), column)
}

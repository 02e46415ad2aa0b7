// ABOUTME: Data models for synced CRM entities
// ABOUTME: Defines remote contacts, local users and organizations, webhook events, and sync reports
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RemoteID is the CRM's identifier for a contact. The API sends it as a JSON
// number or a string; both decode to the same canonical string form.
type RemoteID string

func (id *RemoteID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid remote id: %w", err)
		}
		*id = RemoteID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid remote id: %w", err)
	}
	*id = RemoteID(n.String())
	return nil
}

func (id RemoteID) String() string {
	return string(id)
}

type EmailAddress struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

// UnmarshalJSON accepts both the webhook field names (email, primary) and the
// REST API names (address, principal).
func (e *EmailAddress) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email     string `json:"email"`
		Address   string `json:"address"`
		Primary   *bool  `json:"primary"`
		Principal *bool  `json:"principal"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Email = raw.Email
	if e.Email == "" {
		e.Email = raw.Address
	}

	switch {
	case raw.Primary != nil:
		e.Primary = *raw.Primary
	case raw.Principal != nil:
		e.Primary = *raw.Principal
	default:
		e.Primary = false
	}
	return nil
}

type RemoteContact struct {
	ID             RemoteID       `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	CompanyName    string         `json:"company_name,omitempty"`
	CreatedAt      *time.Time     `json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

type Task struct {
	ID          RemoteID   `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Complete    bool       `json:"complete"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type User struct {
	ID             uuid.UUID     `json:"id"`
	RemoteID       RemoteID      `json:"remote_id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Email          string        `json:"email"`
	OrganizationID *uuid.UUID    `json:"organization_id,omitempty"`
	Organization   *Organization `json:"organization,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// OrganizationSummary is an organization with the number of users attached to it.
type OrganizationSummary struct {
	Organization
	UserCount int `json:"user_count"`
}

// UserInput is the normalized, ready-to-upsert form of a remote contact.
type UserInput struct {
	RemoteID       RemoteID
	FirstName      string
	LastName       string
	Email          string
	OrganizationID *uuid.UUID
}

// UserPage is one page of a user listing.
type UserPage struct {
	Users      []User `json:"users"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	TotalPages int    `json:"total_pages"`
}

// Webhook event types.
const (
	EventContactCreated = "contact.created"
	EventContactUpdated = "contact.updated"
	EventContactDeleted = "contact.deleted"
)

type WebhookEvent struct {
	Type string        `json:"type"`
	Data RemoteContact `json:"data"`
}

// RunState is a reconciliation run's lifecycle state.
type RunState string

const (
	RunIdle            RunState = "idle"
	RunRunning         RunState = "running"
	RunSucceeded       RunState = "succeeded"
	RunPartiallyFailed RunState = "partially_failed"
	RunFailed          RunState = "failed"
)

// RecordFailure describes one contact that could not be reconciled.
type RecordFailure struct {
	RemoteID RemoteID `json:"remote_id"`
	Error    string   `json:"error"`
}

type SyncReport struct {
	RunID      string          `json:"run_id,omitempty"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	State      RunState        `json:"state"`
	Failures   []RecordFailure `json:"failures,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Duration returns how long the run took.
func (r SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

type SyncState struct {
	Service      string     `json:"service"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type SyncRun struct {
	ID         string     `json:"id"`
	Service    string     `json:"service"`
	State      RunState   `json:"state"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// OrganizationStats is an organization with its members.
type OrganizationStats struct {
	OrganizationSummary
	Users []User `json:"users"`
}

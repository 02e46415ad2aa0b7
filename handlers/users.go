// ABOUTME: User and organization MCP tool handlers
// ABOUTME: Implements find_users and list_organizations over the synced store
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type UserHandlers struct {
	db *sql.DB
}

func NewUserHandlers(database *sql.DB) *UserHandlers {
	return &UserHandlers{db: database}
}

type FindUsersInput struct {
	Query          string `json:"query,omitempty" jsonschema:"Search query (matches first name, last name, or email)"`
	OrganizationID string `json:"organization_id,omitempty" jsonschema:"Filter by organization ID"`
	Page           int    `json:"page,omitempty" jsonschema:"Page number (default 1)"`
	Limit          int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type UserOutput struct {
	ID               string  `json:"id"`
	RemoteID         string  `json:"remote_id"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Email            string  `json:"email"`
	OrganizationID   *string `json:"organization_id,omitempty"`
	OrganizationName string  `json:"organization_name,omitempty"`
	UpdatedAt        string  `json:"updated_at"`
}

type FindUsersOutput struct {
	Users      []UserOutput `json:"users"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
}

func (h *UserHandlers) FindUsers(ctx context.Context, request *mcp.CallToolRequest, input FindUsersInput) (*mcp.CallToolResult, FindUsersOutput, error) {
	q := db.UserQuery{
		Page:   input.Page,
		Limit:  input.Limit,
		Search: input.Query,
	}
	if input.OrganizationID != "" {
		oid, err := uuid.Parse(input.OrganizationID)
		if err != nil {
			return nil, FindUsersOutput{}, fmt.Errorf("invalid organization_id: %w", err)
		}
		q.OrganizationID = &oid
	}

	page, err := db.FindUsers(ctx, h.db, q)
	if err != nil {
		return nil, FindUsersOutput{}, fmt.Errorf("failed to find users: %w", err)
	}

	out := FindUsersOutput{
		Users:      make([]UserOutput, len(page.Users)),
		Total:      page.Total,
		Page:       page.Page,
		TotalPages: page.TotalPages,
	}
	for i := range page.Users {
		out.Users[i] = userToOutput(&page.Users[i])
	}
	return nil, out, nil
}

type ListOrganizationsInput struct{}

type OrganizationOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UserCount int    `json:"user_count"`
	CreatedAt string `json:"created_at"`
}

type ListOrganizationsOutput struct {
	Organizations []OrganizationOutput `json:"organizations"`
}

func (h *UserHandlers) ListOrganizations(ctx context.Context, request *mcp.CallToolRequest, input ListOrganizationsInput) (*mcp.CallToolResult, ListOrganizationsOutput, error) {
	orgs, err := db.ListOrganizations(ctx, h.db)
	if err != nil {
		return nil, ListOrganizationsOutput{}, fmt.Errorf("failed to list organizations: %w", err)
	}

	out := ListOrganizationsOutput{Organizations: make([]OrganizationOutput, len(orgs))}
	for i, org := range orgs {
		out.Organizations[i] = OrganizationOutput{
			ID:        org.ID.String(),
			Name:      org.Name,
			UserCount: org.UserCount,
			CreatedAt: org.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func userToOutput(user *models.User) UserOutput {
	out := UserOutput{
		ID:        user.ID.String(),
		RemoteID:  string(user.RemoteID),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.OrganizationID != nil {
		id := user.OrganizationID.String()
		out.OrganizationID = &id
	}
	if user.Organization != nil {
		out.OrganizationName = user.Organization.Name
	}
	return out
}

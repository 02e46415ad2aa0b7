// ABOUTME: User and organization CLI commands
// ABOUTME: Tabular listings of synced users and organizations
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/harperreed/crmsync/db"
)

// UsersCommand lists synced users.
func UsersCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	query := fs.String("query", "", "Search by name or email")
	org := fs.String("org", "", "Filter by organization ID")
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", 50, "Max results")
	_ = fs.Parse(args)

	q := db.UserQuery{Page: *page, Limit: *limit, Search: *query}
	if *org != "" {
		id, err := uuid.Parse(*org)
		if err != nil {
			return fmt.Errorf("invalid organization ID: %w", err)
		}
		q.OrganizationID = &id
	}

	result, err := db.FindUsers(context.Background(), app.DB, q)
	if err != nil {
		return err
	}

	if len(result.Users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REMOTE ID\tNAME\tEMAIL\tORGANIZATION")
	_, _ = fmt.Fprintln(w, "---------\t----\t-----\t------------")
	for _, u := range result.Users {
		orgName := "-"
		if u.Organization != nil {
			orgName = u.Organization.Name
		}
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", u.RemoteID, u.FirstName, u.LastName, u.Email, orgName)
	}
	_ = w.Flush()

	fmt.Printf("\nPage %d of %d (%d users)\n", result.Page, result.TotalPages, result.Total)
	return nil
}

// OrgsCommand lists organizations with member counts.
func OrgsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("orgs", flag.ExitOnError)
	_ = fs.Parse(args)

	orgs, err := db.ListOrganizations(context.Background(), app.DB)
	if err != nil {
		return err
	}

	if len(orgs) == 0 {
		fmt.Println("No organizations found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tUSERS")
	_, _ = fmt.Fprintln(w, "--\t----\t-----")
	for _, org := range orgs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", org.ID, org.Name, org.UserCount)
	}
	_ = w.Flush()
	return nil
}

// ABOUTME: Schema maintenance utility for the crmsync database.
// ABOUTME: Backs up, applies the current schema, and prunes old sync run history.

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harperreed/crmsync/db"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"
)

var requiredTables = []string{"organizations", "users", "sync_state", "sync_runs"}

func main() {
	dbPath := flag.String("db", "", "Path to database file (required)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration")
	pruneDays := flag.Int("prune-runs", 0, "Delete sync runs older than this many days (0 keeps all)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("Error: -db flag is required")
	}

	if err := migrate(*dbPath, *dryRun, *backup, *pruneDays); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(dbPath string, dryRun, createBackup bool, pruneDays int) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	if createBackup && !dryRun {
		backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
		log.Printf("Creating backup: %s", backupPath)

		input, err := os.ReadFile(dbPath)
		if err != nil {
			return fmt.Errorf("failed to read database: %w", err)
		}

		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		log.Printf("Backup created successfully")
	}

	database, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	tables, err := getCurrentTables(database)
	if err != nil {
		return fmt.Errorf("failed to get current tables: %w", err)
	}
	log.Printf("Current tables: %v", tables)

	missing := lo.Without(requiredTables, tables...)
	cutoff := time.Now().AddDate(0, 0, -pruneDays)

	if dryRun {
		log.Printf("[DRY RUN] Would perform the following actions:")
		if len(missing) > 0 {
			log.Printf("[DRY RUN] - Create tables: %v", missing)
		} else {
			log.Printf("[DRY RUN] - Schema is current")
		}
		if pruneDays > 0 && lo.Contains(tables, "sync_runs") {
			n, err := countRunsBefore(database, cutoff)
			if err != nil {
				return err
			}
			log.Printf("[DRY RUN] - Delete %d sync runs started before %s", n, cutoff.Format(time.DateOnly))
		}
		return nil
	}

	if len(missing) > 0 {
		log.Printf("Creating tables: %v", missing)
	}
	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if pruneDays > 0 {
		res, err := database.Exec("DELETE FROM sync_runs WHERE started_at < ?", cutoff.UTC())
		if err != nil {
			return fmt.Errorf("failed to prune sync runs: %w", err)
		}
		n, _ := res.RowsAffected()
		log.Printf("Pruned %d sync runs started before %s", n, cutoff.Format(time.DateOnly))
	}

	for _, table := range requiredTables {
		var count int
		if err := database.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			return fmt.Errorf("failed to count %s: %w", table, err)
		}
		log.Printf("%-14s %d rows", table, count)
	}

	return nil
}

func getCurrentTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func countRunsBefore(db *sql.DB, cutoff time.Time) (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sync_runs WHERE started_at < ?", cutoff.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync runs: %w", err)
	}
	return n, nil
}

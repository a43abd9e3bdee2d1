package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"number_merge_game/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationTable = "schema_migrations"

// Migration is one .sql file of the embedded schema.
type Migration struct {
	Name    string
	Applied bool
}

// ListMigrations returns the sorted migration files and whether each has
// been applied already.
func ListMigrations(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]Migration, error) {
	if err := ensureMigrationTable(ctx, pool); err != nil {
		return nil, err
	}
	names, err := migrationFiles(fsys)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		applied, err := isApplied(ctx, pool, name)
		if err != nil {
			return nil, fmt.Errorf("check migration %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, Applied: applied})
	}
	return out, nil
}

// Migrate applies every pending migration in name order, each in its own
// transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (int, error) {
	list, err := ListMigrations(ctx, pool, fsys)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range list {
		if m.Applied {
			continue
		}
		content, err := fs.ReadFile(fsys, m.Name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", m.Name, err)
		}
		up := ExtractUpMigration(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, up); err != nil {
				return fmt.Errorf("exec migration %s: %w", m.Name, err)
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO `+migrationTable+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
				m.Name,
			)
			return err
		})
		if err != nil {
			return applied, err
		}
		logger.Info("migration applied", "name", m.Name)
		applied++
	}
	return applied, nil
}

// ExtractUpMigration returns the SQL in the "-- +migrate Up" section, or the
// whole file when it has no markers.
func ExtractUpMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(up):]
	if downIdx := strings.Index(rest, down); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}

func migrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationTable+` (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func isApplied(ctx context.Context, pool *pgxpool.Pool, name string) (bool, error) {
	var found int
	err := pool.QueryRow(ctx, `SELECT 1 FROM `+migrationTable+` WHERE name = $1`, name).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

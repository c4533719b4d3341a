package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/ashita-ai/scratchnotebook/migrations"
)

// migrationFiles returns the embedded .sql files under dir, sorted by name
// so "0001_init.sql" always applies before "0002_*.sql".
func migrationFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read migrations dir %s: %w", dir, err)
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

func readMigration(dir, name string) (string, error) {
	b, err := fs.ReadFile(migrations.FS, dir+"/"+name)
	if err != nil {
		return "", fmt.Errorf("catalog: read migration %s: %w", name, err)
	}
	return string(b), nil
}

// migrationRunner is the minimal surface RunMigrations needs from either
// driver: run one statement batch, and track which versions already
// applied. Backends provide it so the sorted-apply-once loop lives in one
// place instead of being duplicated per dialect.
type migrationRunner interface {
	ensureMigrationsTable(ctx context.Context) error
	appliedVersions(ctx context.Context) (map[string]bool, error)
	applyMigration(ctx context.Context, version, sql string) error
}

// RunMigrations applies every not-yet-applied .sql file under dir in
// sorted order, recording each in the schema_migrations table within the
// same unit of work as the DDL it ran.
func RunMigrations(ctx context.Context, r migrationRunner, dir string) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("catalog: ensure migrations table: %w", err)
	}
	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("catalog: load applied migrations: %w", err)
	}
	names, err := migrationFiles(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		sqlText, err := readMigration(dir, name)
		if err != nil {
			return err
		}
		if err := r.applyMigration(ctx, name, sqlText); err != nil {
			return fmt.Errorf("catalog: apply migration %s: %w", name, err)
		}
	}
	return nil
}

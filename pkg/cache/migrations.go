package cache

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Execer runs a single SQL statement.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// RunMigrations applies the embedded schema files in filename order. Every statement is
// idempotent, so it is safe to run on each start.
func RunMigrations(ctx context.Context, log *slog.Logger, conn Execer) error {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	slices.Sort(files)

	for _, file := range files {
		name := path.Base(file)
		content, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}
		for i, stmt := range schemaStatements(string(content)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute migration %s (statement %d): %w", name, i+1, err)
			}
		}
		log.Info("cache: applied migration", "file", name)
	}
	return nil
}

// schemaStatements drops "--" comment lines and splits the rest on semicolons. The schema is
// plain DDL with no string literals or function bodies, so every semicolon ends a statement.
func schemaStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

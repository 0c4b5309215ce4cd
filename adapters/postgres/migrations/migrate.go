// Package migrations applies the embedded schema to postgres or sqlite
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed *.sql
var files embed.FS

// Migrator handles database schema migrations
type Migrator struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, logger: logger}
}

// MigrationFile represents one embedded migration
type MigrationFile struct {
	Version string
	Name    string
}

// MigrationStatus reports whether a migration has been applied
type MigrationStatus struct {
	Version string
	Applied bool
}

// Up executes all pending migrations
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return eris.Wrap(err, "failed to get applied migrations")
	}

	migrationFiles, err := findMigrationFiles()
	if err != nil {
		return eris.Wrap(err, "failed to find migration files")
	}

	for _, file := range migrationFiles {
		if applied[file.Version] {
			continue
		}
		if err := m.applyMigration(ctx, file); err != nil {
			return eris.Wrapf(err, "failed to apply migration %s", file.Version)
		}
		m.logger.Info("applied migration", zap.String("version", file.Version))
	}
	return nil
}

// Status lists every embedded migration and whether it has been applied
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "failed to get applied migrations")
	}

	migrationFiles, err := findMigrationFiles()
	if err != nil {
		return nil, eris.Wrap(err, "failed to find migration files")
	}

	status := make([]MigrationStatus, len(migrationFiles))
	for i, file := range migrationFiles {
		status[i] = MigrationStatus{Version: file.Version, Applied: applied[file.Version]}
	}
	return status, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return eris.Wrap(err, "failed to create migrations table")
	}
	return nil
}

// getAppliedMigrations returns map of applied migration versions
func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	var versions []string
	if err := m.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// calculateChecksum computes SHA256 checksum of migration content
func calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// findMigrationFiles lists embedded files named like 001_name.sql in version order
func findMigrationFiles() ([]MigrationFile, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}

	var out []MigrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		out = append(out, MigrationFile{Version: parts[0], Name: e.Name()})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// applyMigration runs each statement of one file and records it in a single transaction
func (m *Migrator) applyMigration(ctx context.Context, file MigrationFile) error {
	sqlBytes, err := files.ReadFile(file.Name)
	if err != nil {
		return eris.Wrap(err, "failed to read migration file")
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(string(sqlBytes), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "failed to execute migration SQL")
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)"),
		file.Version, calculateChecksum(sqlBytes))
	if err != nil {
		return eris.Wrap(err, "failed to record migration")
	}

	return tx.Commit()
}

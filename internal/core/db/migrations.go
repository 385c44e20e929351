package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/scorekeeper/migrations"
)

/*
 * Schema migrations.
 *
 * Each driver has its own directory of numbered .sql files embedded in the
 * binary. A file is applied once, inside a transaction together with its row
 * in the migrations table. The SHA-256 of every applied file is recorded and
 * rechecked on each run: editing a file after it was applied is an error,
 * as is a recorded migration the binary no longer ships.
 *
 * lib/pq cannot run several statements in one Exec, so files are split on
 * semicolons. Statements must not contain semicolons inside literals.
 */

// Migration is the state of one embedded migration file.
type Migration struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

// Pending returns the IDs of migrations not yet applied.
func Pending(migrations []Migration) []string {
	var ids []string
	for _, m := range migrations {
		if !m.Applied {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

type schemaFile struct {
	id       string
	checksum string
	sql      string
}

type migrator struct {
	db    *sqlx.DB
	files []schemaFile
}

func newMigrator(ctx context.Context, database *sqlx.DB) (*migrator, error) {
	fsys, dir, err := embeddedFor(database.DriverName())
	if err != nil {
		return nil, err
	}
	files, err := readSchemaFiles(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migrations: %w", err)
	}
	if _, err := database.ExecContext(ctx, trackingTable(database.DriverName())); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return &migrator{db: database, files: files}, nil
}

// MigrateUp applies every pending migration in file name order and returns
// how many were applied.
func MigrateUp(ctx context.Context, database *sqlx.DB) (int, error) {
	m, err := newMigrator(ctx, database)
	if err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, f := range m.files {
		if _, ok := applied[f.id]; ok {
			continue
		}
		if err := m.apply(ctx, f); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// MigrateStatus reports every embedded migration, applied or not.
func MigrateStatus(ctx context.Context, database *sqlx.DB) ([]Migration, error) {
	m, err := newMigrator(ctx, database)
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]Migration, 0, len(m.files))
	for _, f := range m.files {
		if s, ok := applied[f.id]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, Migration{ID: f.id, Checksum: f.checksum})
	}
	return statuses, nil
}

type migrationRow struct {
	ID          string `db:"migration_id"`
	Checksum    string `db:"checksum"`
	AppliedAt   string `db:"applied_at"`
	ExecutionMs int64  `db:"execution_ms"`
}

// applied reads the migrations table and checks it against the embedded files.
func (m *migrator) applied(ctx context.Context) (map[string]Migration, error) {
	var rows []migrationRow
	err := m.db.SelectContext(ctx, &rows,
		"SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	checksums := make(map[string]string, len(m.files))
	for _, f := range m.files {
		checksums[f.id] = f.checksum
	}

	applied := make(map[string]Migration, len(rows))
	for _, r := range rows {
		want, ok := checksums[r.ID]
		if !ok {
			return nil, fmt.Errorf("migration %s exists in database but not in embedded files", r.ID)
		}
		if r.Checksum != want {
			return nil, fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", r.ID, want, r.Checksum)
		}
		s := Migration{ID: r.ID, Checksum: r.Checksum, Applied: true, ExecutionMs: r.ExecutionMs}
		// Postgres returns a timestamp, which database/sql formats as RFC3339Nano.
		if ts, err := time.Parse(time.RFC3339Nano, r.AppliedAt); err == nil {
			ts = ts.UTC()
			s.AppliedAt = &ts
		}
		applied[r.ID] = s
	}
	return applied, nil
}

func (m *migrator) apply(ctx context.Context, f schemaFile) error {
	start := time.Now()
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", f.id, err)
	}
	defer tx.Rollback()

	for i, stmt := range splitStatements(f.sql) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: statement %d failed: %w", f.id, i+1, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		f.id, f.checksum, time.Now().UTC().Format(time.RFC3339), time.Since(start).Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", f.id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", f.id, err)
	}
	return nil
}

func embeddedFor(driver string) (embed.FS, string, error) {
	switch driver {
	case "sqlite3":
		return embeddedmigrations.SqliteMigrations, "sqlite", nil
	case "postgres":
		return embeddedmigrations.PostgresMigrations, "postgres", nil
	default:
		return embed.FS{}, "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func readSchemaFiles(fsys embed.FS, dir string) ([]schemaFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var files []schemaFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := fsys.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)
		files = append(files, schemaFile{
			id:       e.Name(),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })
	return files, nil
}

// trackingTable must stay in line with the migrations table in
// 001_initial_schema.sql.
func trackingTable(driver string) string {
	if driver == "sqlite3" {
		return `CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL,
			CHECK (applied_at LIKE '____-__-__T__:__:__Z')
		)`
	}
	return `CREATE TABLE IF NOT EXISTS migrations (
		migration_id TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
		execution_ms INTEGER NOT NULL
	)`
}

// splitStatements splits a migration file on semicolons and drops
// whole-line "--" comments and empty statements.
func splitStatements(sql string) []string {
	var stmts []string
	for _, chunk := range strings.Split(sql, ";") {
		if stmt := stripComments(chunk); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func stripComments(stmt string) string {
	var lines []string
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Package store provides database access for msgscope tenant schemas.
package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"

	"github.com/wesm/msgscope/internal/dates"
	"github.com/wesm/msgscope/internal/tenant"
)

//go:embed schema.sql
var schemaSQL string

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Store provides read access to tenant schemas, plus schema setup for
// development databases.
type Store struct {
	db     *sqlx.DB
	driver string
	dsn    string
}

const defaultSQLiteParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Open connects to the database. For SQLite, dsn is a file path or
// ":memory:"; for Postgres it is a connection URL.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		return openSQLite(dsn)
	case DriverPostgres:
		db, err := sqlx.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return &Store{db: db, driver: driver, dsn: dsn}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}
}

func openSQLite(path string) (*Store, error) {
	if !isMemoryDSN(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sqlx.Open(DriverSQLite, path+sep+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Attached tenant schemas exist per connection, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, driver: DriverSQLite, dsn: path}, nil
}

// New wraps an existing connection. driver must be one of the supported
// driver names.
func New(db *sqlx.DB, driver string) *Store {
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Rebind converts a query with ? placeholders to the driver's bind style.
func (s *Store) Rebind(query string) string {
	return s.db.Rebind(query)
}

// BindArgs adapts query arguments for the driver. SQLite stores timestamps
// as text, so time values are bound in the stored layout.
func (s *Store) BindArgs(args []any) []any {
	return BindArgs(s.driver, args)
}

// BindArgs is the driver-name form of Store.BindArgs.
func BindArgs(driver string, args []any) []any {
	if driver != DriverSQLite {
		return args
	}
	out := make([]any, len(args))
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			out[i] = dates.Bind(t)
			continue
		}
		out[i] = a
	}
	return out
}

func (s *Store) bindTime(t time.Time) any {
	return BindArgs(s.driver, []any{t})[0]
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InitSchema creates the tenant tables if they don't exist. On Postgres the
// schema itself is created; on SQLite a schema other than main is attached
// as a separate database file (or in-memory database).
func (s *Store) InitSchema(ctx context.Context, schema tenant.Schema) error {
	switch s.driver {
	case DriverPostgres:
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, schema)); err != nil {
			return eris.Wrapf(err, "create schema %s", schema)
		}
	case DriverSQLite:
		if err := s.attach(ctx, schema); err != nil {
			return err
		}
	}

	stmts, err := renderSchema(s.driver, schema)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return eris.Wrapf(err, "execute schema statement for %s", schema)
			}
		}
		return nil
	})
}

func (s *Store) attach(ctx context.Context, schema tenant.Schema) error {
	if schema == tenant.Default {
		return nil
	}
	var attached []struct {
		Seq  int            `db:"seq"`
		Name string         `db:"name"`
		File sql.NullString `db:"file"`
	}
	if err := s.db.SelectContext(ctx, &attached, "PRAGMA database_list"); err != nil {
		return eris.Wrap(err, "list attached databases")
	}
	for _, a := range attached {
		if a.Name == string(schema) {
			return nil
		}
	}
	file := ":memory:"
	if !isMemoryDSN(s.dsn) && s.dsn != "" {
		file = filepath.Join(filepath.Dir(s.dsn), string(schema)+".db")
	}
	if _, err := s.db.ExecContext(ctx, `ATTACH DATABASE ? AS "`+string(schema)+`"`, file); err != nil {
		if isSQLiteError(err, "already in use") {
			return nil
		}
		return eris.Wrapf(err, "attach schema %s", schema)
	}
	return nil
}

// renderSchema expands schema.sql for a driver and tenant and splits it
// into statements.
func renderSchema(driver string, schema tenant.Schema) ([]string, error) {
	funcs := template.FuncMap{
		"table": schema.Table,
		"ref": func(name string) string {
			if driver == DriverSQLite {
				return name
			}
			return schema.Table(name)
		},
		"ts": func() string {
			if driver == DriverSQLite {
				return "TEXT"
			}
			return "TIMESTAMP"
		},
		"createIndex": func(name, table, cols string) string {
			if driver == DriverSQLite {
				return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s".%s ON %s(%s)`, schema, name, table, cols)
			}
			return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`, name, schema.Table(table), cols)
		},
	}
	tmpl, err := template.New("schema").Funcs(funcs).Parse(schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("parse schema.sql: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("render schema.sql: %w", err)
	}

	var stmts []string
	for _, part := range strings.Split(buf.String(), ";\n") {
		if stmt := strings.TrimSpace(stripComments(part)); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func stripComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "--") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}

// Stats holds row counts for one tenant schema.
type Stats struct {
	ProviderUserCount int64 `json:"provider_users"`
	ContactCount      int64 `json:"contacts"`
	ThreadCount       int64 `json:"threads"`
	MessageCount      int64 `json:"messages"`
	AttachmentCount   int64 `json:"attachments"`
	GrantCount        int64 `json:"grants"`
}

// GetStats returns row counts for a tenant schema. Missing tables count as
// zero so a partially initialized SQLite database still reports.
func (s *Store) GetStats(ctx context.Context, schema tenant.Schema) (*Stats, error) {
	stats := &Stats{}
	var supervisors, collaborators, aliases int64

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM " + schema.Table("provider_users") + " WHERE is_deleted = FALSE", &stats.ProviderUserCount},
		{"SELECT COUNT(*) FROM " + schema.Table("contacts") + " WHERE is_deleted = FALSE", &stats.ContactCount},
		{"SELECT COUNT(*) FROM " + schema.Table("provider_user_threads") + " WHERE is_deleted = FALSE", &stats.ThreadCount},
		{"SELECT COUNT(*) FROM " + schema.Table("thread_messages") + " WHERE is_deleted = FALSE", &stats.MessageCount},
		{"SELECT COUNT(*) FROM " + schema.Table("message_parts") + " WHERE is_attachment = TRUE AND is_deleted = FALSE", &stats.AttachmentCount},
		{"SELECT COUNT(*) FROM " + schema.Table("supervisor_mappings") + " WHERE is_deleted = FALSE", &supervisors},
		{"SELECT COUNT(*) FROM " + schema.Table("collaborator_mappings") + " WHERE is_deleted = FALSE", &collaborators},
		{"SELECT COUNT(*) FROM " + schema.Table("alias_mappings") + " WHERE is_deleted = FALSE", &aliases},
	}

	for _, q := range queries {
		if err := s.db.GetContext(ctx, q.dest, q.query); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, eris.Wrapf(err, "get stats %q", q.query)
		}
	}
	stats.GrantCount = supervisors + collaborators + aliases
	return stats, nil
}

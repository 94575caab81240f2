// Package sqlstore keeps summary records in an embedded SQL database file.
// DuckDB and SQLite share one schema and one upsert statement.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/temirov/recap/internal/cache"
	"github.com/temirov/recap/internal/types"
)

// Driver names registered by the embedded database packages.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

const (
	createSummariesTableStatement = `CREATE TABLE IF NOT EXISTS summaries (
	fingerprint TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	role TEXT NOT NULL,
	summary TEXT NOT NULL,
	generated_at TEXT NOT NULL
)`
	selectSummaryStatement  = `SELECT path, role, summary, generated_at FROM summaries WHERE fingerprint = ?`
	upsertSummaryStatement  = `INSERT OR REPLACE INTO summaries (fingerprint, path, role, summary, generated_at) VALUES (?, ?, ?, ?, ?)`
	countSummariesStatement = `SELECT COUNT(*) FROM summaries`

	generatedAtLayout = time.RFC3339Nano
)

// Store is a cache.Store backed by database/sql.
type Store struct {
	database *sql.DB
	driver   string
}

// Open opens or creates the database file at databasePath using driver.
func Open(ctx context.Context, driver string, databasePath string) (*Store, error) {
	switch driver {
	case DriverDuckDB, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported cache database driver %q", driver)
	}
	if mkdirError := os.MkdirAll(filepath.Dir(databasePath), 0o755); mkdirError != nil {
		return nil, fmt.Errorf("create cache directory for %s: %w", databasePath, mkdirError)
	}
	database, openError := sql.Open(driver, databasePath)
	if openError != nil {
		return nil, fmt.Errorf("open %s cache %s: %w", driver, databasePath, openError)
	}
	database.SetMaxOpenConns(1)
	if _, createError := database.ExecContext(ctx, createSummariesTableStatement); createError != nil {
		_ = database.Close()
		return nil, fmt.Errorf("create summaries table in %s: %w", databasePath, createError)
	}
	return &Store{database: database, driver: driver}, nil
}

// Driver returns the database driver name.
func (store *Store) Driver() string {
	return store.driver
}

// Load reads the record stored under fingerprint.
func (store *Store) Load(ctx context.Context, fingerprint string) (types.SummaryRecord, bool, error) {
	var role string
	var generatedAt string
	record := types.SummaryRecord{Fingerprint: fingerprint}
	scanError := store.database.QueryRowContext(ctx, selectSummaryStatement, fingerprint).Scan(&record.Path, &role, &record.Text, &generatedAt)
	if errors.Is(scanError, sql.ErrNoRows) {
		return types.SummaryRecord{}, false, nil
	}
	if scanError != nil {
		return types.SummaryRecord{}, false, fmt.Errorf("query summary %s: %w", fingerprint, scanError)
	}
	parsedTime, parseError := time.Parse(generatedAtLayout, generatedAt)
	if parseError != nil {
		return types.SummaryRecord{}, false, fmt.Errorf("%w: %s: %v", cache.ErrCorruptRecord, fingerprint, parseError)
	}
	record.Role = types.Role(role)
	record.GeneratedAt = parsedTime
	return record, true, nil
}

// Save upserts record in a single statement.
func (store *Store) Save(ctx context.Context, record types.SummaryRecord) error {
	_, execError := store.database.ExecContext(ctx, upsertSummaryStatement,
		record.Fingerprint,
		record.Path,
		string(record.Role),
		record.Text,
		record.GeneratedAt.UTC().Format(generatedAtLayout),
	)
	if execError != nil {
		return fmt.Errorf("store summary %s: %w", record.Fingerprint, execError)
	}
	return nil
}

// Count returns the number of stored records.
func (store *Store) Count(ctx context.Context) (int, error) {
	var count int
	if scanError := store.database.QueryRowContext(ctx, countSummariesStatement).Scan(&count); scanError != nil {
		return 0, fmt.Errorf("count summaries: %w", scanError)
	}
	return count, nil
}

// Close closes the database.
func (store *Store) Close() error {
	return store.database.Close()
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/torrotator/internal/model"
)

// FileName is the name of the history database inside its directory.
const FileName = "torrotator.db"

// ErrRotationNotFound is returned when a rotation ID has no record.
var ErrRotationNotFound = errors.New("rotation not found")

// HistoryDB stores completed rotation cycles in SQLite.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that the history command can
	// read while a rotator is writing.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
// The summary columns duplicate parts of record_json so history can be
// filtered without decoding every record.
func (hdb *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		egress_before TEXT,
		egress_after TEXT,
		tor_status TEXT NOT NULL,
		location TEXT,
		circuit_count INTEGER DEFAULT 0,
		rotation_error TEXT,
		record_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rotations_started ON rotations(started_at);
	`
	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// InsertRotation stores record and returns its new ID. record.ID is set
// to the same value.
func (hdb *HistoryDB) InsertRotation(ctx context.Context, record *model.RotationRecord) (int64, error) {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize rotation: %w", err)
	}

	query := `
	INSERT INTO rotations (started_at, finished_at, egress_before, egress_after,
		tor_status, location, circuit_count, rotation_error, record_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := hdb.db.ExecContext(ctx, query,
		formatTimestamp(record.StartedAt),
		formatTimestamp(record.FinishedAt),
		record.Before.Egress.Address,
		record.After.Address,
		record.After.Tor.String(),
		record.After.Location.String(),
		len(record.Before.Circuits),
		record.Error,
		string(recordJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rotation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rotation ID: %w", err)
	}
	record.ID = id
	return id, nil
}

// ListRotations returns the most recent rotations, newest first. A limit of
// zero or less returns every record. Records whose JSON cannot be decoded
// are skipped.
func (hdb *HistoryDB) ListRotations(ctx context.Context, limit int) ([]*model.RotationRecord, error) {
	query := `
	SELECT id, record_json FROM rotations
	ORDER BY started_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rotations: %w", err)
	}
	defer rows.Close()

	var records []*model.RotationRecord
	for rows.Next() {
		var id int64
		var recordJSON string
		if err := rows.Scan(&id, &recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan rotation: %w", err)
		}
		record, err := decodeRecord(id, recordJSON)
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetRotation returns one rotation by ID, or ErrRotationNotFound.
func (hdb *HistoryDB) GetRotation(ctx context.Context, id int64) (*model.RotationRecord, error) {
	var recordJSON string
	err := hdb.db.QueryRowContext(ctx, "SELECT record_json FROM rotations WHERE id = ?", id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRotationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rotation: %w", err)
	}
	return decodeRecord(id, recordJSON)
}

// Stats returns a summary of the stored history.
func (hdb *HistoryDB) Stats(ctx context.Context) (model.HistoryStats, error) {
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN rotation_error != '' THEN 1 ELSE 0 END), 0),
		COUNT(DISTINCT NULLIF(egress_after, '')),
		COALESCE(MAX(started_at), '')
	FROM rotations
	`
	var stats model.HistoryStats
	var last string
	if err := hdb.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Failed, &stats.DistinctExits, &last); err != nil {
		return model.HistoryStats{}, fmt.Errorf("failed to compute rotation stats: %w", err)
	}
	stats.LastStartedAt = parseTimestamp(last)
	return stats, nil
}

// History returns the limit most recent rotations together with
// statistics over the whole table.
func (hdb *HistoryDB) History(ctx context.Context, limit int) (*model.History, error) {
	stats, err := hdb.Stats(ctx)
	if err != nil {
		return nil, err
	}
	rotations, err := hdb.ListRotations(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &model.History{Stats: stats, Rotations: rotations}, nil
}

// Prune deletes all but the keep most recent rotations and returns how many
// were removed.
func (hdb *HistoryDB) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
	DELETE FROM rotations WHERE id NOT IN (
		SELECT id FROM rotations ORDER BY started_at DESC, id DESC LIMIT ?
	)
	`
	result, err := hdb.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rotations: %w", err)
	}
	return result.RowsAffected()
}

// decodeRecord parses record_json and restores the database ID.
func decodeRecord(id int64, recordJSON string) (*model.RotationRecord, error) {
	var record model.RotationRecord
	if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
		return nil, fmt.Errorf("failed to parse rotation %d: %w", id, err)
	}
	record.ID = id
	return &record, nil
}

// formatTimestamp stores times in UTC with a fixed width so that string
// ordering matches time ordering.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampLayout is the fixed-width layout written by formatTimestamp.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// timestampFormats contains the timestamp formats parseTimestamp accepts.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

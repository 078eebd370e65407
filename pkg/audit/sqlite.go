package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig configures the SQLite audit backend.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStorage persists audit records in a local SQLite database. It uses
// a write-ahead log and a single writer connection, matching how the
// checkpoint store treats SQLite.
type SQLiteStorage struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	closeOnce  sync.Once
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id TEXT NOT NULL PRIMARY KEY,
	request_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	arm_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	utility REAL NOT NULL,
	confidence REAL NOT NULL,
	explored INTEGER NOT NULL,
	fallback INTEGER NOT NULL,
	catalog_version INTEGER NOT NULL,
	reward REAL NOT NULL,
	quality REAL NOT NULL,
	latency_ms REAL NOT NULL,
	cost REAL NOT NULL,
	success INTEGER NOT NULL,
	state TEXT NOT NULL,
	decided_at INTEGER NOT NULL,
	completed_at INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_decided_at ON audit_records(decided_at);
CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_records(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_id ON audit_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_arm_id ON audit_records(arm_id);
CREATE INDEX IF NOT EXISTS idx_audit_policy_id ON audit_records(policy_id);
CREATE INDEX IF NOT EXISTS idx_audit_variant_id ON audit_records(variant_id);
`

const sqliteColumns = `id, request_id, tenant_id, arm_id, policy_id, variant_id,
	utility, confidence, explored, fallback, catalog_version,
	reward, quality, latency_ms, cost, success, state,
	decided_at, completed_at, recorded_at`

// NewSQLiteStorage opens (creating if needed) the audit database.
func NewSQLiteStorage(cfg SQLiteConfig) (*SQLiteStorage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT INTO audit_records (` + sqliteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return &SQLiteStorage{db: db, insertStmt: insertStmt}, nil
}

// Store persists one record.
func (s *SQLiteStorage) Store(ctx context.Context, record *Record) error {
	if record == nil {
		return NewStorageError("sqlite", "store", ErrNilRecord)
	}

	_, err := s.insertStmt.ExecContext(ctx,
		record.ID,
		record.RequestID,
		record.TenantID,
		record.ArmID,
		record.PolicyID,
		record.VariantID,
		record.Utility,
		record.Confidence,
		boolToInt(record.Explored),
		boolToInt(record.Fallback),
		record.CatalogVersion,
		record.Reward,
		record.Quality,
		record.LatencyMS,
		record.Cost,
		boolToInt(record.Success),
		record.State,
		record.DecidedAt.UnixNano(),
		record.CompletedAt.UnixNano(),
		record.RecordedAt.UnixNano(),
	)
	if err != nil {
		return NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves matching records with sorting and pagination applied.
func (s *SQLiteStorage) Query(ctx context.Context, query *Query) ([]*Record, error) {
	if query == nil {
		query = &Query{}
	}

	where, args := buildWhereClause(query)

	orderBy, err := sortClause(query)
	if err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	stmt := "SELECT " + sqliteColumns + " FROM audit_records" + where +
		" ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, NewStorageError("sqlite", "query", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns how many records match the filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *Query) (int64, error) {
	if query == nil {
		query = &Query{}
	}

	where, args := buildWhereClause(query)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records"+where, args...).Scan(&count)
	if err != nil {
		return 0, NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes matching records and returns how many went.
func (s *SQLiteStorage) Delete(ctx context.Context, query *Query) (int64, error) {
	if query == nil {
		query = &Query{}
	}

	where, args := buildWhereClause(query)

	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_records"+where, args...)
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "delete", err)
	}
	return deleted, nil
}

// Close releases the prepared statement and the database handle.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.insertStmt != nil {
			if stmtErr := s.insertStmt.Close(); stmtErr != nil {
				err = NewStorageError("sqlite", "close", stmtErr)
			}
		}
		if dbErr := s.db.Close(); dbErr != nil && err == nil {
			err = NewStorageError("sqlite", "close", dbErr)
		}
	})
	return err
}

// buildWhereClause translates query filters into a WHERE clause and its
// arguments. An empty query yields an empty clause.
func buildWhereClause(q *Query) (string, []any) {
	var conditions []string
	var args []any

	if q.StartTime != nil {
		conditions = append(conditions, "decided_at >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conditions = append(conditions, "decided_at <= ?")
		args = append(args, q.EndTime.UnixNano())
	}

	for _, f := range []struct {
		column string
		value  string
	}{
		{"request_id", q.RequestID},
		{"tenant_id", q.TenantID},
		{"arm_id", q.ArmID},
		{"policy_id", q.PolicyID},
		{"variant_id", q.VariantID},
	} {
		if f.value != "" {
			conditions = append(conditions, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	if q.MinReward != nil {
		conditions = append(conditions, "reward >= ?")
		args = append(args, *q.MinReward)
	}
	if q.MaxReward != nil {
		conditions = append(conditions, "reward <= ?")
		args = append(args, *q.MaxReward)
	}
	if q.Fallback != nil {
		conditions = append(conditions, "fallback = ?")
		args = append(args, boolToInt(*q.Fallback))
	}
	if q.Explored != nil {
		conditions = append(conditions, "explored = ?")
		args = append(args, boolToInt(*q.Explored))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// sortClause validates the sort fields against the whitelisted columns and
// returns the ORDER BY expression.
func sortClause(q *Query) (string, error) {
	column := "decided_at"
	switch q.SortBy {
	case "", "decided_at":
	case "reward":
		column = "reward"
	case "cost":
		column = "cost"
	case "latency_ms":
		column = "latency_ms"
	default:
		return "", fmt.Errorf("unsupported sort column %q", q.SortBy)
	}

	direction := "DESC"
	switch q.SortOrder {
	case "", "desc":
	case "asc":
		direction = "ASC"
	default:
		return "", fmt.Errorf("unsupported sort order %q", q.SortOrder)
	}

	return column + " " + direction, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                                Record
		explored, fallback, success        int
		decidedAt, completedAt, recordedAt int64
	)
	err := rows.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.TenantID,
		&rec.ArmID,
		&rec.PolicyID,
		&rec.VariantID,
		&rec.Utility,
		&rec.Confidence,
		&explored,
		&fallback,
		&rec.CatalogVersion,
		&rec.Reward,
		&rec.Quality,
		&rec.LatencyMS,
		&rec.Cost,
		&success,
		&rec.State,
		&decidedAt,
		&completedAt,
		&recordedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Explored = explored != 0
	rec.Fallback = fallback != 0
	rec.Success = success != 0
	rec.DecidedAt = time.Unix(0, decidedAt).UTC()
	rec.CompletedAt = time.Unix(0, completedAt).UTC()
	rec.RecordedAt = time.Unix(0, recordedAt).UTC()
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists checkpoints in a local SQLite database. It uses a
// write-ahead log for concurrent read performance and is suitable for
// single-instance deployments that must survive restarts.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	closeOnce sync.Once

	saveStmt *sql.Stmt
	loadStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string `yaml:"db_path"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// NewSQLiteStore opens (creating if needed) the checkpoint database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policy_checkpoints (
		policy_id TEXT NOT NULL PRIMARY KEY,
		policy_type TEXT NOT NULL,
		data BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_saved_at ON policy_checkpoints(saved_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO policy_checkpoints (policy_id, policy_type, data, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (policy_id) DO UPDATE SET
			policy_type = excluded.policy_type,
			data = excluded.data,
			saved_at = excluded.saved_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT policy_type, data, saved_at
		FROM policy_checkpoints
		WHERE policy_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint; absence is (nil, nil), not an error.
func (s *SQLiteStore) Load(ctx context.Context, policyID string) (*PolicyCheckpoint, error) {
	if policyID == "" {
		return nil, &PersistenceError{Backend: "sqlite", Op: "load", Err: errNilCheckpoint}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		policyType string
		data       []byte
		savedAt    int64
	)
	err := s.loadStmt.QueryRowContext(ctx, policyID).Scan(&policyType, &data, &savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Backend: "sqlite", Op: "load", PolicyID: policyID, Err: err}
	}

	return &PolicyCheckpoint{
		PolicyID:   policyID,
		PolicyType: policyType,
		Data:       data,
		SavedAt:    time.Unix(savedAt, 0).UTC(),
	}, nil
}

// Save upserts a checkpoint.
func (s *SQLiteStore) Save(ctx context.Context, cp *PolicyCheckpoint) error {
	if cp == nil || cp.PolicyID == "" {
		return &PersistenceError{Backend: "sqlite", Op: "save", Err: errNilCheckpoint}
	}

	savedAt := cp.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.saveStmt.ExecContext(ctx, cp.PolicyID, cp.PolicyType, cp.Data, savedAt.Unix())
	if err != nil {
		return &PersistenceError{Backend: "sqlite", Op: "save", PolicyID: cp.PolicyID, Err: err}
	}
	return nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.saveStmt != nil {
			s.saveStmt.Close()
		}
		if s.loadStmt != nil {
			s.loadStmt.Close()
		}
		err = s.db.Close()
	})
	return err
}

package proxy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Store lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Installation is one Atlassian Connect tenant registered through the lifecycle hooks.
type Installation struct {
	ClientKey    string
	BaseURL      string
	SharedSecret string
	InstalledAt  time.Time
}

// Store is the SQLite persistence behind the proxy: the dated news KV and
// the Connect installations.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS news (
	day TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS installations (
	client_key TEXT PRIMARY KEY,
	base_url TEXT NOT NULL,
	shared_secret TEXT NOT NULL,
	installed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// OpenStore creates or opens a SQLite database at the given path and ensures the schema exists.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutNews stores payload verbatim under day, replacing any previous value.
func (s *Store) PutNews(ctx context.Context, day string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO news (day, payload, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(day) DO UPDATE SET payload=excluded.payload, updated_at=datetime('now')`,
		day, string(payload),
	)
	if err != nil {
		return fmt.Errorf("store: put news %s: %w", day, err)
	}
	return nil
}

// GetNews returns the payload stored under day, or ErrNotFound.
func (s *Store) GetNews(ctx context.Context, day string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM news WHERE day = ?`, day).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get news %s: %w", day, err)
	}
	return []byte(payload), nil
}

// SaveInstallation upserts a Connect installation by client key.
func (s *Store) SaveInstallation(ctx context.Context, inst Installation) error {
	clientKey := strings.TrimSpace(inst.ClientKey)
	if clientKey == "" {
		return fmt.Errorf("store: save installation: client_key is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO installations (client_key, base_url, shared_secret, installed_at)
		 VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(client_key) DO UPDATE SET
		   base_url=excluded.base_url,
		   shared_secret=excluded.shared_secret,
		   installed_at=datetime('now')`,
		clientKey, strings.TrimRight(strings.TrimSpace(inst.BaseURL), "/"), inst.SharedSecret,
	)
	if err != nil {
		return fmt.Errorf("store: save installation: %w", err)
	}
	return nil
}

// DeleteInstallation removes an installation. Unknown keys are not an error.
func (s *Store) DeleteInstallation(ctx context.Context, clientKey string) error {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM installations WHERE client_key = ?`, clientKey); err != nil {
		return fmt.Errorf("store: delete installation: %w", err)
	}
	return nil
}

// GetInstallation loads an installation by client key, or ErrNotFound.
func (s *Store) GetInstallation(ctx context.Context, clientKey string) (*Installation, error) {
	var inst Installation
	err := s.db.QueryRowContext(ctx,
		`SELECT client_key, base_url, shared_secret, installed_at FROM installations WHERE client_key = ?`,
		strings.TrimSpace(clientKey),
	).Scan(&inst.ClientKey, &inst.BaseURL, &inst.SharedSecret, &inst.InstalledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get installation: %w", err)
	}
	return &inst, nil
}

// CountInstallations returns the number of registered tenants.
func (s *Store) CountInstallations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM installations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count installations: %w", err)
	}
	return n, nil
}

package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS track_settings (
	project_id TEXT NOT NULL,
	track_id INTEGER NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (project_id, track_id, field)
);
CREATE TABLE IF NOT EXISTS session_settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore keeps settings in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the settings database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; the control loop is the only client
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(projectID string, trackID int, f Field) (string, bool, error) {
	var v string
	err := s.db.QueryRow(
		"SELECT value FROM track_settings WHERE project_id = ? AND track_id = ? AND field = ?",
		projectID, trackID, string(f)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", f, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(projectID string, trackID int, f Field, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO track_settings (project_id, track_id, field, value)
		VALUES (?, ?, ?, ?)`,
		projectID, trackID, string(f), value)
	if err != nil {
		return fmt.Errorf("set %s: %w", f, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(projectID string, trackID int, f Field) error {
	_, err := s.db.Exec(
		"DELETE FROM track_settings WHERE project_id = ? AND track_id = ? AND field = ?",
		projectID, trackID, string(f))
	if err != nil {
		return fmt.Errorf("delete %s: %w", f, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM session_settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetSession(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO session_settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set session %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(key string) error {
	if _, err := s.db.Exec("DELETE FROM session_settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

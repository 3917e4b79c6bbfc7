// Package store persists finished session summaries in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-linkcup/pkg/store/migrations"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("store: session not found")

// Session is the stored summary of one device session.
type Session struct {
	ID          string        `json:"id"`
	DeviceID    string        `json:"device_id"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Interaction time.Duration `json:"-"`
	Thrusts     int           `json:"thrusts"`
	PeakLevel   int           `json:"peak_level"`
	Climaxed    bool          `json:"climaxed"`
}

// MarshalJSON reports Interaction in milliseconds.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	return json.Marshal(struct {
		alias
		InteractionMs int64 `json:"interaction_ms"`
	}{alias(s), s.Interaction.Milliseconds()})
}

// Store persists sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save inserts or replaces a session. An empty ID is assigned a new UUID.
func (s *Store) Save(ctx context.Context, sess Session) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Session{}, fmt.Errorf("storage is not configured")
	}
	sess.DeviceID = strings.TrimSpace(sess.DeviceID)
	if sess.DeviceID == "" {
		return Session{}, fmt.Errorf("device id is required")
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.EndedAt.IsZero() || sess.EndedAt.Before(sess.StartedAt) {
		sess.EndedAt = sess.StartedAt
	}
	if sess.PeakLevel <= 0 {
		sess.PeakLevel = 1
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (
		   id, device_id, started_at, ended_at, interaction_ms, thrusts, peak_level, climaxed
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   ended_at = excluded.ended_at,
		   interaction_ms = excluded.interaction_ms,
		   thrusts = excluded.thrusts,
		   peak_level = excluded.peak_level,
		   climaxed = excluded.climaxed`,
		sess.ID,
		sess.DeviceID,
		toMillis(sess.StartedAt),
		toMillis(sess.EndedAt),
		sess.Interaction.Milliseconds(),
		sess.Thrusts,
		sess.PeakLevel,
		sess.Climaxed,
	)
	if err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	sess.StartedAt = sess.StartedAt.UTC()
	sess.EndedAt = sess.EndedAt.UTC()
	return sess, nil
}

// Get returns one session by ID.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Session{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectSession+` WHERE id = ?`, strings.TrimSpace(id))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// List returns the most recent sessions, newest first. deviceID filters
// when non-empty.
func (s *Store) List(ctx context.Context, deviceID string, limit int) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if deviceID = strings.TrimSpace(deviceID); deviceID != "" {
		rows, err = s.sqlDB.QueryContext(ctx,
			selectSession+` WHERE device_id = ? ORDER BY started_at DESC, id LIMIT ?`, deviceID, limit)
	} else {
		rows, err = s.sqlDB.QueryContext(ctx,
			selectSession+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

const selectSession = `SELECT id, device_id, started_at, ended_at, interaction_ms, thrusts, peak_level, climaxed FROM sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess          Session
		startedAt     int64
		endedAt       int64
		interactionMs int64
	)
	if err := row.Scan(
		&sess.ID,
		&sess.DeviceID,
		&startedAt,
		&endedAt,
		&interactionMs,
		&sess.Thrusts,
		&sess.PeakLevel,
		&sess.Climaxed,
	); err != nil {
		return Session{}, err
	}
	sess.StartedAt = fromMillis(startedAt)
	sess.EndedAt = fromMillis(endedAt)
	sess.Interaction = time.Duration(interactionMs) * time.Millisecond
	return sess, nil
}

const migrationTable = "schema_migrations"

// applyMigrations executes embedded migrations at most once per file.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var n int
		if err := sqlDB.QueryRow(`SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL in the "-- +migrate Up" section.
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	i := strings.Index(content, up)
	if i == -1 {
		return content
	}
	content = content[i+len(up):]
	if j := strings.Index(content, down); j != -1 {
		content = content[:j]
	}
	return content
}

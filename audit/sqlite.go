package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS security_events (
	id         TEXT PRIMARY KEY,
	actor_id   TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	status     TEXT NOT NULL,
	source_ip  TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	platform   TEXT NOT NULL DEFAULT '',
	details    TEXT NOT NULL DEFAULT '{}',
	ts         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_security_events_ts ON security_events(ts DESC);
CREATE INDEX IF NOT EXISTS idx_security_events_action ON security_events(action);
CREATE INDEX IF NOT EXISTS idx_security_events_actor ON security_events(actor_id);
`

// SQLiteConfig configures the sqlite primary store.
type SQLiteConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SQLiteStore persists events in a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a sqlite store.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: empty sqlite dsn", ErrAuditStoreUnavailable)
	}
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(1)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(1)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrAuditStoreUnavailable, err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for maintenance tooling.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Insert(ctx context.Context, e Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_events (id, actor_id, action, status, source_ip, user_agent, platform, details, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorID, string(e.Action), string(e.Status), e.SourceIP, e.UserAgent, e.Platform,
		details, e.Timestamp.UnixNano(),
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ErrEventExists
		}
		return fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor_id, action, status, source_ip, user_agent, platform, details, ts
		 FROM security_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if q.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, q.ActorID)
	}
	if q.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(q.Action))
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.SourceIP != "" {
		where = append(where, "source_ip = ?")
		args = append(args, q.SourceIP)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, q.Until.UnixNano())
	}

	var b strings.Builder
	b.WriteString(`SELECT id, actor_id, action, status, source_ip, user_agent, platform, details, ts FROM security_events`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ts DESC, id DESC")
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateDetails(ctx context.Context, id string, patch map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT details FROM security_events WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	details, err := decodeDetails(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	if details == nil {
		details = make(map[string]string, len(patch))
	}
	maps.Copy(details, patch)
	encoded, err := encodeDetails(details)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE security_events SET details = ? WHERE id = ?`, encoded, id); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (Event, error) {
	var (
		e       Event
		action  string
		status  string
		details string
		ts      int64
	)
	if err := r.Scan(&e.ID, &e.ActorID, &action, &status, &e.SourceIP, &e.UserAgent, &e.Platform, &details, &ts); err != nil {
		return Event{}, err
	}
	e.Action = Action(action)
	e.Status = Status(status)
	e.Timestamp = time.Unix(0, ts).UTC()
	d, err := decodeDetails(details)
	if err != nil {
		return Event{}, err
	}
	e.Details = d
	return e, nil
}

func encodeDetails(d map[string]string) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("%w: details: %v", ErrInvalidEvent, err)
	}
	return string(raw), nil
}

func decodeDetails(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var d map[string]string
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	return d, nil
}

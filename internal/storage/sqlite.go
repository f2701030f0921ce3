package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st, err := openSQLiteDB(path, cfg, log)
	if err == nil {
		return st, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	// unreadable state starts empty; keep the old file for inspection
	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
	log.Warn("sqlite state corrupt; starting empty", logx.String("path", path), logx.String("moved_to", aside), logx.Err(err))
	if rerr := os.Rename(path, aside); rerr != nil {
		return nil, fmt.Errorf("move corrupt sqlite state: %w", rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	st, err = openSQLiteDB(path, cfg, log)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func openSQLiteDB(path string, cfg Config, log logx.Logger) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps pragmas on the single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

// isCorrupt reports SQLITE_NOTADB and SQLITE_CORRUPT (primary codes).
func isCorrupt(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "database disk image is malformed")
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadSent(ctx context.Context) (reminder.SentState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, key FROM sent`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := reminder.SentState{}
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		st.MarkSent(id, key)
	}
	return st, rows.Err()
}

// SaveSent replaces the whole table in one transaction.
func (s *sqliteStore) SaveSent(ctx context.Context, st reminder.SentState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sent`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sent(task_id, key) VALUES(?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id := range st {
		for _, key := range st.Keys(id) {
			if _, err := stmt.ExecContext(ctx, id, key); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) SaveHandle(ctx context.Context, id, key string, h reminder.Handle, loc *reminder.Location) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO handles(task_id, key, chat_id, thread_id, message_id) VALUES(?,?,?,?,?)
		 ON CONFLICT(task_id, key) DO UPDATE SET
		   chat_id=excluded.chat_id, thread_id=excluded.thread_id, message_id=excluded.message_id`,
		id, key, h.ChatID, h.ThreadID, h.MessageID,
	)
	if err != nil {
		return err
	}
	if loc != nil && !loc.IsZero() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO locations(task_id, path, line) VALUES(?,?,?)
			 ON CONFLICT(task_id) DO UPDATE SET path=excluded.path, line=excluded.line`,
			id, loc.Path, loc.Line,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Handle(ctx context.Context, id, key string) (reminder.Handle, bool, error) {
	var h reminder.Handle
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, thread_id, message_id FROM handles WHERE task_id = ? AND key = ?`, id, key,
	).Scan(&h.ChatID, &h.ThreadID, &h.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Handle{}, false, nil
	}
	if err != nil {
		return reminder.Handle{}, false, err
	}
	return h, true, nil
}

func (s *sqliteStore) DeleteHandle(ctx context.Context, id, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM handles WHERE task_id = ? AND key = ?`, id, key)
	return err
}

func (s *sqliteStore) Handles(ctx context.Context, id string) (map[string]reminder.Handle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, chat_id, thread_id, message_id FROM handles WHERE task_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]reminder.Handle{}
	for rows.Next() {
		var (
			key string
			h   reminder.Handle
		)
		if err := rows.Scan(&key, &h.ChatID, &h.ThreadID, &h.MessageID); err != nil {
			return nil, err
		}
		out[key] = h
	}
	return out, rows.Err()
}

func (s *sqliteStore) Location(ctx context.Context, id string) (reminder.Location, bool, error) {
	var loc reminder.Location
	err := s.db.QueryRowContext(ctx, `SELECT path, line FROM locations WHERE task_id = ?`, id).Scan(&loc.Path, &loc.Line)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Location{}, false, nil
	}
	if err != nil {
		return reminder.Location{}, false, err
	}
	return loc, true, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		userId TEXT NOT NULL,
		summary TEXT NOT NULL,
		script TEXT NOT NULL,
		fullConversation TEXT NOT NULL,
		createdAt INTEGER NOT NULL,
		lastOpenedAt INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_summary ON conversations(userId, summary);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_opened ON conversations(userId, lastOpenedAt);
`

// SQLiteStore keeps records in a single conversations table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlWriter runs record statements on a database or inside a transaction.
type sqlWriter struct {
	q querier
}

// InTx runs fn inside one SQL transaction, committing only if fn succeeds.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(sqlWriter{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) (string, error) {
	return sqlWriter{q: s.db}.Create(ctx, rec)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) error {
	return sqlWriter{q: s.db}.Update(ctx, id, patch)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	return sqlWriter{q: s.db}.get(ctx, id)
}

func (s *SQLiteStore) FindBySummary(ctx context.Context, userID, summary string) (Record, bool, error) {
	return sqlWriter{q: s.db}.FindBySummary(ctx, userID, summary)
}

func (w sqlWriter) Create(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = newID()
	}
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO conversations (id, userId, summary, script, fullConversation, createdAt, lastOpenedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.Summary, rec.Script, rec.FullConversation,
		rec.CreatedAt.UnixNano(), rec.LastOpenedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return rec.ID, nil
}

func (w sqlWriter) Update(ctx context.Context, id string, patch Patch) error {
	rec, err := w.get(ctx, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	patch.apply(&rec)
	_, err = w.q.ExecContext(ctx, `
		UPDATE conversations
		SET summary = ?, script = ?, fullConversation = ?, lastOpenedAt = ?
		WHERE id = ?
	`, rec.Summary, rec.Script, rec.FullConversation, rec.LastOpenedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (w sqlWriter) get(ctx context.Context, id string) (Record, error) {
	row := w.q.QueryRowContext(ctx, `
		SELECT id, userId, summary, script, fullConversation, createdAt, lastOpenedAt
		FROM conversations
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return rec, err
}

func (w sqlWriter) FindBySummary(ctx context.Context, userID, summary string) (Record, bool, error) {
	row := w.q.QueryRowContext(ctx, `
		SELECT id, userId, summary, script, fullConversation, createdAt, lastOpenedAt
		FROM conversations
		WHERE userId = ? AND summary = ?
		ORDER BY createdAt ASC
		LIMIT 1
	`, userID, summary)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) ListByLastOpened(ctx context.Context, userID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, userId, summary, script, fullConversation, createdAt, lastOpenedAt
		FROM conversations
		WHERE userId = ?
		ORDER BY lastOpenedAt DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var createdAt, lastOpenedAt int64
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Summary, &rec.Script,
		&rec.FullConversation, &createdAt, &lastOpenedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.LastOpenedAt = time.Unix(0, lastOpenedAt)
	return rec, nil
}

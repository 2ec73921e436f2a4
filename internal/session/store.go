package session

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ahinestrog/storefront/internal/domain"
)

var ErrNotFound = errors.New("session not found")

// Record is a session as persisted: who is signed in and what is in the cart.
type Record struct {
	ID        string
	UserID    domain.ID
	Lines     []domain.CartLine
	UpdatedAt time.Time
}

type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS session_cart_lines (
	session_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	book_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	unit_price INTEGER NOT NULL,
	qty        INTEGER NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, book_id)
);`

// OpenSQLite opens the session database, creating its directory and schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	// busy timeout + WAL so the hook writes don't trip over reads
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type sqliteStore struct{ db *sql.DB }

func NewSQLiteStore(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) Get(ctx context.Context, id string) (Record, error) {
	rec := Record{ID: id}
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT user_id, updated_at FROM sessions WHERE id=?`, id).
		Scan(&rec.UserID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT book_id, title, unit_price, qty, image
		FROM session_cart_lines WHERE session_id=? ORDER BY position`, id)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.CartLine
		var price int64
		if err := rows.Scan(&l.BookID, &l.Title, &price, &l.Quantity, &l.Image); err != nil {
			return Record{}, err
		}
		l.UnitPrice = domain.Money(price)
		rec.Lines = append(rec.Lines, l)
	}
	return rec, rows.Err()
}

// Put replaces the stored session with rec.
func (s *sqliteStore) Put(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, updated_at=excluded.updated_at`,
		rec.ID, string(rec.UserID), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_cart_lines WHERE session_id=?`, rec.ID); err != nil {
		return err
	}
	for i, l := range rec.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_cart_lines(session_id, position, book_id, title, unit_price, qty, image)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, string(l.BookID), l.Title, l.UnitPrice.Int64(), l.Quantity, l.Image)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_cart_lines WHERE session_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories(
  id   TEXT PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS books(
  id          TEXT PRIMARY KEY,
  title       TEXT NOT NULL,
  author      TEXT NOT NULL DEFAULT '',
  category_id TEXT NOT NULL DEFAULT '',
  price       INTEGER NOT NULL,
  stock       INTEGER NOT NULL CHECK (stock >= 0),
  description TEXT NOT NULL DEFAULT '',
  image       TEXT NOT NULL DEFAULT '',
  created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS orders(
  id           TEXT PRIMARY KEY,
  user_id      TEXT NOT NULL,
  status       TEXT NOT NULL,
  total_amount INTEGER NOT NULL,
  created_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items(
  order_id   TEXT NOT NULL,
  position   INTEGER NOT NULL,
  book_id    TEXT NOT NULL,
  qty        INTEGER NOT NULL,
  unit_price INTEGER NOT NULL,
  PRIMARY KEY (order_id, position)
);
CREATE TABLE IF NOT EXISTS bills(
  id             TEXT PRIMARY KEY,
  order_id       TEXT NOT NULL,
  user_id        TEXT NOT NULL,
  total_amount   INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  is_paid        INTEGER NOT NULL DEFAULT 0,
  created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_bills_user ON bills(user_id);
CREATE INDEX IF NOT EXISTS idx_bills_order ON bills(order_id);
`

// Open opens the store database with driver "sqlite" (modernc, pure Go) or
// "sqlite3" (mattn, cgo) and applies the schema.
func Open(ctx context.Context, driver, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	var dsn string
	switch driver {
	case "sqlite":
		dsn = path + "?_pragma=busy_timeout=5000&_pragma=foreign_keys(ON)"
	case "sqlite3":
		dsn = fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

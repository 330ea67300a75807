package generate

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

// Cache memoizes generated text by request key in a local SQLite file.
type Cache struct {
	db *sql.DB
}

func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open generation cache %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS generations (
		key TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init generation cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := c.db.QueryRowContext(ctx, `SELECT text FROM generations WHERE key = ?`, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read generation cache: %w", err)
	}
	return text, true, nil
}

func (c *Cache) Put(ctx context.Context, key, text string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO generations(key, text, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET text = excluded.text, created_at = excluded.created_at`,
		key, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write generation cache: %w", err)
	}
	return nil
}

func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count generation cache: %w", err)
	}
	return n, nil
}

func (c *Cache) Close() error { return c.db.Close() }

package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Config locates the outcome journal. An empty Path keeps it in memory.
type Config struct {
	Path string
}

func dsn(path string) string {
	if path == "" || path == ":memory:" {
		return fmt.Sprintf("file:voiceui-%s?mode=memory&cache=shared", uuid.NewString())
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// Open opens the SQLite database, creating parent directories for file paths.
func Open(cfg Config) (*sql.DB, error) {
	if cfg.Path != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
	}
	conn, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, err
	}
	// Single writer; also pins the in-memory database to one connection.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

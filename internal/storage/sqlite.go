package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	_ "modernc.org/sqlite"
)

const defaultSQLitePath = ".inferctl/usage.db"

type sqliteStorage struct {
	db *sql.DB
}

// openSQLite opens the database file, creating its directory if needed.
// WAL mode lets the usage reader run while the logger writes; a single
// writer connection avoids SQLITE_BUSY churn under the batch flusher.
func openSQLite(cfg SQLiteConfig) (Storage, error) {
	path := cfg.Path
	if path == "" {
		path = defaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return &sqliteStorage{db: db}, nil
}

func sqliteDSN(path string) string {
	return path + "?_journal=WAL&_busy_timeout=5000&_synchronous=NORMAL"
}

func (s *sqliteStorage) Type() string                  { return TypeSQLite }
func (s *sqliteStorage) SQLiteDB() *sql.DB             { return s.db }
func (s *sqliteStorage) PostgreSQLPool() *pgxpool.Pool { return nil }
func (s *sqliteStorage) MongoDatabase() *mongo.Database {
	return nil
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

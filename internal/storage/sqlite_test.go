package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "cassandra"})
	if err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := openSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	if store.Type() != TypeSQLite {
		t.Errorf("Type() = %q, want %q", store.Type(), TypeSQLite)
	}

	db := store.SQLiteDB()

	// Two tables written concurrently mirror the usage logger flushing while
	// the retention sweep runs.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_entries (id TEXT PRIMARY KEY, data TEXT)`)
	if err != nil {
		t.Fatalf("failed to create test_entries table: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_rollups (id TEXT PRIMARY KEY, data TEXT)`)
	if err != nil {
		t.Fatalf("failed to create test_rollups table: %v", err)
	}

	const goroutines = 10
	const insertsPerGoroutine = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine*2)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			table := "test_entries"
			if id%2 == 1 {
				table = "test_rollups"
			}
			for j := 0; j < insertsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)`, table),
					fmt.Sprintf("%d-%d", id, j), "payload")
				cancel()
				if err != nil {
					errs <- fmt.Errorf("goroutine %d insert %d into %s: %w", id, j, table, err)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	// Verify all rows were inserted.
	var entryCount, rollupCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM test_entries").Scan(&entryCount); err != nil {
		t.Fatalf("failed to count entry rows: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM test_rollups").Scan(&rollupCount); err != nil {
		t.Fatalf("failed to count rollup rows: %v", err)
	}

	expectedPerTable := (goroutines / 2) * insertsPerGoroutine
	if entryCount != expectedPerTable {
		t.Errorf("test_entries: got %d rows, want %d", entryCount, expectedPerTable)
	}
	if rollupCount != expectedPerTable {
		t.Errorf("test_rollups: got %d rows, want %d", rollupCount, expectedPerTable)
	}
}

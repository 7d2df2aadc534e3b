package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer store.Close()

	db := store.DB()

	// Chat histories and usage rows are written from different requests at once.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_chats (id TEXT PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_usage (id TEXT PRIMARY KEY, data TEXT)`)
	require.NoError(t, err)

	const goroutines = 10
	const insertsPerGoroutine = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			table := "test_chats"
			if id%2 == 1 {
				table = "test_usage"
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

	var chatCount, usageCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM test_chats").Scan(&chatCount))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM test_usage").Scan(&usageCount))

	expectedPerTable := (goroutines / 2) * insertsPerGoroutine
	assert.Equal(t, expectedPerTable, chatCount)
	assert.Equal(t, expectedPerTable, usageCount)
}

func TestSQLiteInMemory(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, TypeSQLite, store.Type())
	assert.Equal(t, DialectSQLite, store.Dialect())
	assert.Nil(t, store.PostgreSQLPool())
	assert.Nil(t, store.MongoDatabase())

	db := store.DB()
	_, err = db.Exec(`CREATE TABLE t (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (id) VALUES ('a')`)
	require.NoError(t, err)

	// The table must survive across statements on the single connection.
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteForeignKeysEnabled(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	var on int
	require.NoError(t, store.DB().QueryRow(`PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)
}

func TestIsUniqueViolation(t *testing.T) {
	store, err := NewSQLite(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer store.Close()

	db := store.DB()
	_, err = db.Exec(`CREATE TABLE u (id TEXT PRIMARY KEY, email TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO u (id, email) VALUES ('1', 'a@b.c')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO u (id, email) VALUES ('2', 'a@b.c')`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(fmt.Errorf("boom")))
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", DialectSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", DialectPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"quoted marks kept", DialectPostgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"no placeholders", DialectPostgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

func TestNew_MissingURLs(t *testing.T) {
	_, err := New(context.Background(), Config{Type: TypePostgreSQL})
	assert.EqualError(t, err, "PostgreSQL URL is required")

	_, err = New(context.Background(), Config{Type: TypeMongoDB})
	assert.EqualError(t, err, "MongoDB URL is required")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TypeSQLite, cfg.Type)
	assert.Equal(t, "data/keyring.db", cfg.SQLite.Path)
	assert.Equal(t, 10, cfg.PostgreSQL.MaxConns)
	assert.Equal(t, "keyring", cfg.MongoDB.Database)
}

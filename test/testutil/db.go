package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/db"
)

// TestEmbeddingDim is the vector size the test schema is provisioned with.
const TestEmbeddingDim = 8

func OpenTestDB(t *testing.T) (*db.Pool, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	pool, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "corpusd",
		Password: "corpusd_pass",
		DBName:   "corpusd_test",
		SSLMode:  "disable",

		AcquireTimeoutMS: 3000,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(pool.Handle()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := db.EnsureVectorSchema(pool.Handle(), TestEmbeddingDim); err != nil {
		t.Fatalf("vector schema: %v", err)
	}
	return pool, func() {
		_ = pool.Close()
	}
}

// LexicalOK reports whether the test database supports the lexical path.
func LexicalOK(pool *db.Pool) bool {
	return db.ProbeLexical(context.Background(), pool.Handle())
}

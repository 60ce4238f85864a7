package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func TestMongoRepository(t *testing.T) {
	_ = godotenv.Load("../../.env")
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo, err := NewMongoRepository(ctx, uri, "focusguard_test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { repo.Close(context.Background()) })

	exerciseRepository(t, repo)
}

func TestPostgresRepository(t *testing.T) {
	_ = godotenv.Load("../../.env")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo, err := NewPostgresRepository(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { repo.Close(context.Background()) })

	exerciseRepository(t, repo)
}

func TestJSONStoreRoundTrip(t *testing.T) {
	store, err := NewJSONStore(t.TempDir(), "doc.json")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Exists() {
		t.Fatal("fresh store must not exist")
	}

	var empty map[string]int
	if err := store.Load(&empty); err != nil {
		t.Fatalf("load missing: %v", err)
	}

	if err := store.Save(map[string]int{"a": 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !store.Exists() {
		t.Fatal("store should exist after save")
	}

	var got map[string]int
	if err := store.Load(&got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["a"] != 1 {
		t.Fatalf("got %v", got)
	}
}

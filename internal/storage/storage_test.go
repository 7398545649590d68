package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/model"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/redisconn"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	out := map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   NewFileBackend(t.TempDir()),
	}

	b, err := OpenBadger(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	out["badger"] = b

	if client, err := redisconn.Open("redis://localhost:6379/15"); err == nil {
		out["redis"] = NewRedisBackend(client, "test:doc:"+t.Name()+":")
	}
	return out
}

func TestCollectionRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := New(backend)
			defer store.Close()
			ctx := context.Background()

			qs := &model.QuerySet{ID: "qs1", Name: "top queries", Queries: []model.QueryEntry{{QueryText: "tv"}, {QueryText: "laptop"}}}
			if err := store.QuerySets.Put(ctx, qs.ID, qs); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, err := store.QuerySets.Get(ctx, "qs1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Name != "top queries" || len(got.Queries) != 2 || got.Queries[1].QueryText != "laptop" {
				t.Errorf("Get() = %+v", got)
			}

			qs.Name = "renamed"
			if err := store.QuerySets.Put(ctx, qs.ID, qs); err != nil {
				t.Fatalf("Put() overwrite error = %v", err)
			}
			got, _ = store.QuerySets.Get(ctx, "qs1")
			if got.Name != "renamed" {
				t.Errorf("Name = %s, want renamed", got.Name)
			}

			all, err := store.QuerySets.List(ctx)
			if err != nil || len(all) != 1 {
				t.Errorf("List() = %d docs, err %v", len(all), err)
			}

			if err := store.QuerySets.Delete(ctx, "qs1"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.QuerySets.Get(ctx, "qs1"); !errors.IsNotFound(err) {
				t.Errorf("Get() after Delete() error = %v, want NOT_FOUND", err)
			}
		})
	}
}

func TestCollectionNotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.SearchConfigurations.Get(context.Background(), "missing")
	if !errors.IsNotFound(err) {
		t.Fatalf("Get() error = %v, want NOT_FOUND", err)
	}
	if err.Error() == "" {
		t.Error("not found error should carry a message")
	}
}

func TestCollectionNamespacesIsolated(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.Experiments.Put(ctx, "x", &model.Experiment{ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Judgments.Get(ctx, "x"); !errors.IsNotFound(err) {
		t.Errorf("judgment x should not exist, err = %v", err)
	}
}

func TestCollectionInvalidID(t *testing.T) {
	store := New(NewFileBackend(t.TempDir()))
	ctx := context.Background()

	for _, id := range []string{"", "../escape", `a\b`, "..", "line\nbreak"} {
		if err := store.Experiments.Put(ctx, id, &model.Experiment{}); !errors.IsValidation(err) {
			t.Errorf("Put(%q) error = %v, want VALIDATION_ERROR", id, err)
		}
	}
}

func TestFileBackendSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(NewFileBackend(dir))
	ctx := context.Background()

	if err := store.Judgments.Put(ctx, "j1", &model.Judgment{ID: "j1"}); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, NamespaceJudgments, "broken.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := store.Judgments.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List() = %d docs, want 1", len(all))
	}
}

func TestOpen(t *testing.T) {
	store, err := Open(config.StorageConfig{Type: "file", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open(file) error = %v", err)
	}
	store.Close()

	if _, err := Open(config.StorageConfig{Type: "postgres"}); err == nil {
		t.Error("Open() with unknown type should fail")
	}
}

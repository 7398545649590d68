package ubi

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

func TestEventUnmarshalNested(t *testing.T) {
	line := `{"query_id":"q1","user_query":"laptop","action_name":"click","timestamp":"2024-03-01T10:00:00Z",
		"event_attributes":{"object":{"object_id":"doc-7"},"position":{"ordinal":3}}}`

	var e Event
	if err := e.UnmarshalJSON([]byte(line)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if e.DocumentID != "doc-7" || e.Position != 3 || !e.IsClick() {
		t.Errorf("event = %+v", e)
	}
}

func TestMemorySourceWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewMemorySource([]Event{
		{UserQuery: "c", Timestamp: base.Add(48 * time.Hour)},
		{UserQuery: "a", Timestamp: base},
		{UserQuery: "b", Timestamp: base.Add(24 * time.Hour)},
	})

	all, err := src.Events(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(all) != 3 || all[0].UserQuery != "a" {
		t.Errorf("Events() = %+v, want 3 sorted events", all)
	}

	from := base.Add(24 * time.Hour)
	got, _ := src.Events(context.Background(), &from, &from)
	if len(got) != 1 || got[0].UserQuery != "b" {
		t.Errorf("bounds should be inclusive, got %+v", got)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	lines := []string{
		`{"query_id":"1","user_query":"tv","action_name":"impression","object_id":"d1","position":1,"timestamp":"2024-01-01T00:00:00Z"}`,
		`not json`,
		``,
		`{"query_id":"1","user_query":"tv","action_name":"click","object_id":"d1","position":1,"timestamp":"2024-01-01T00:00:05Z"}`,
		`{"query_id":"2","user_query":"tv","action_name":"impression","object_id":"d2","position":2,"timestamp":"2024-02-01T00:00:00Z"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(path, logger.Discard())
	events, err := src.Events(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}

	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	events, _ = src.Events(context.Background(), nil, &to)
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2 before February", len(events))
	}
}

func TestFileSourceMissing(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.jsonl"), logger.Discard())
	if _, err := src.Events(context.Background(), nil, nil); err == nil {
		t.Error("missing file should fail")
	}
}

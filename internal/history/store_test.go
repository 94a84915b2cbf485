package history_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"cicada/internal/history"
)

func mustOpenStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenAppliesMigrations(t *testing.T) {
	store := mustOpenStore(t)

	ctx := context.Background()
	started := time.Now().Add(-time.Minute)
	err := store.Append(ctx, history.Record{
		Node:       "lipsync",
		Status:     history.StatusSucceeded,
		ResultURL:  "https://cdn.example.com/out.mp4",
		LocalPath:  "/tmp/out.mp4",
		StartedAt:  started,
		FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID == 0 {
		t.Error("expected record ID to be assigned")
	}
	if rec.InvocationID == uuid.Nil {
		t.Error("expected invocation id to be assigned")
	}
	if rec.Node != "lipsync" || rec.Status != history.StatusSucceeded {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ResultURL != "https://cdn.example.com/out.mp4" {
		t.Errorf("result url = %q", rec.ResultURL)
	}
	if rec.StartedAt.IsZero() || rec.FinishedAt.Before(rec.StartedAt) {
		t.Errorf("timestamps not preserved: %v .. %v", rec.StartedAt, rec.FinishedAt)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := mustOpenStore(t)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := store.Append(ctx, history.Record{
			Node:       fmt.Sprintf("node-%d", i),
			Status:     history.StatusFailed,
			Detail:     "boom",
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	records, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Node != "node-4" || records[2].Node != "node-2" {
		t.Errorf("unexpected order: %s, %s, %s", records[0].Node, records[1].Node, records[2].Node)
	}
}

func TestAppendRejectsUnknownStatus(t *testing.T) {
	store := mustOpenStore(t)

	err := store.Append(context.Background(), history.Record{
		Node:       "lipsync",
		Status:     "partial",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestAppendPreservesExplicitInvocationID(t *testing.T) {
	store := mustOpenStore(t)

	ctx := context.Background()
	id := uuid.New()
	err := store.Append(ctx, history.Record{
		InvocationID: id,
		Node:         "tts",
		Status:       history.StatusSucceeded,
		StartedAt:    time.Now(),
		FinishedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if records[0].InvocationID != id {
		t.Errorf("invocation id = %s, want %s", records[0].InvocationID, id)
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *history.Store
	if err := store.Append(context.Background(), history.Record{Node: "x", Status: history.StatusSucceeded}); err != nil {
		t.Errorf("nil Append returned error: %v", err)
	}
	records, err := store.Recent(context.Background(), 5)
	if err != nil {
		t.Errorf("nil Recent returned error: %v", err)
	}
	if records != nil {
		t.Errorf("nil Recent returned records: %v", records)
	}
	if err := store.Close(); err != nil {
		t.Errorf("nil Close returned error: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := history.Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	first, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	err = first.Append(context.Background(), history.Record{
		Node:       "play",
		Status:     history.StatusSucceeded,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	records, err := second.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 1 || records[0].Node != "play" {
		t.Fatalf("unexpected records after reopen: %+v", records)
	}
}

package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"rkllm-chat-client/models"
)

func newTestStore(t *testing.T) (*TranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewTranscriptStore(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestTranscriptStore_SaveAndRead(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	first := models.Exchange{SessionID: "s1", Input: "hi", Content: "hello", Backend: "rkllm", PromptTokens: 20, CreatedAt: created}
	second := models.Exchange{SessionID: "s1", Input: "bye", Content: "see you", Backend: "rkllm", PromptTokens: 21, CreatedAt: created.Add(time.Minute)}
	for _, ex := range []models.Exchange{first, second} {
		if err := store.SaveExchange(ctx, ex); err != nil {
			t.Fatalf("SaveExchange failed: %v", err)
		}
	}

	got, err := store.Exchanges(ctx, "s1")
	if err != nil {
		t.Fatalf("Exchanges failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 exchanges, got %d", len(got))
	}
	if got[0].Input != "hi" || got[1].Input != "bye" {
		t.Errorf("Exchanges out of order: %+v", got)
	}
	if !got[1].CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("Expected timestamp %s, got %s", second.CreatedAt, got[1].CreatedAt)
	}

	if ttl := mr.TTL("transcript:s1"); ttl != transcriptTTL {
		t.Errorf("Expected TTL %s, got %s", transcriptTTL, ttl)
	}
}

func TestTranscriptStore_EmptySession(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Exchanges(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no exchanges, got %d", len(got))
	}
}

func TestTranscriptStore_SessionsAndClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.SaveExchange(ctx, models.Exchange{SessionID: id, Input: "x"}); err != nil {
			t.Fatalf("SaveExchange failed: %v", err)
		}
	}

	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	sort.Strings(sessions)
	if len(sessions) != 2 || sessions[0] != "a" || sessions[1] != "b" {
		t.Errorf("Expected sessions [a b], got %v", sessions)
	}

	if err := store.Clear(ctx, "a"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, _ := store.Exchanges(ctx, "a")
	if len(got) != 0 {
		t.Errorf("Expected cleared session to be empty, got %d", len(got))
	}
}

func TestNewTranscriptStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewTranscriptStore(ctx, addr, "", 0); err == nil {
		t.Error("Expected an error for an unreachable Redis")
	}
}

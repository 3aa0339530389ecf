package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLookup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ex := &Exchange{
		CacheKey:   "key-1",
		Model:      "llama3.2",
		Prompt:     "hello",
		Response:   "olleh",
		DurationMS: 42,
	}
	if err := store.Save(ctx, ex); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if ex.ID == "" {
		t.Error("expected Save to assign an ID")
	}

	got, err := store.Lookup(ctx, "key-1")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got.ID != ex.ID || got.Response != "olleh" || got.Model != "llama3.2" || got.DurationMS != 42 {
		t.Errorf("unexpected exchange: %+v", got)
	}
}

func TestLookup_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestLookup_ReturnsNewest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, resp := range []string{"first", "second"} {
		ex := &Exchange{CacheKey: "k", Response: resp, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Save(ctx, ex); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	got, err := store.Lookup(ctx, "k")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got.Response != "second" {
		t.Errorf("expected newest exchange, got %q", got.Response)
	}
}

func TestRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ex := &Exchange{CacheKey: "k", Prompt: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := store.Save(ctx, ex); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(recent))
	}
	if recent[0].Prompt != "c" || recent[1].Prompt != "b" {
		t.Errorf("unexpected order: %q, %q", recent[0].Prompt, recent[1].Prompt)
	}
}

func TestRecent_MixedZonesOrderedByInstant(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// 10:30 UTC, then 11:00 UTC written with a -05:00 offset (06:00 local)
	earlier := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	later := time.Date(2026, 3, 1, 6, 0, 0, 0, time.FixedZone("EST", -5*60*60))

	for _, ex := range []*Exchange{
		{CacheKey: "k", Prompt: "earlier", CreatedAt: earlier},
		{CacheKey: "k", Prompt: "later", CreatedAt: later},
	} {
		if err := store.Save(ctx, ex); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recent) != 2 || recent[0].Prompt != "later" {
		t.Fatalf("expected later exchange first, got %+v", recent)
	}
	if !recent[0].CreatedAt.Equal(later) {
		t.Errorf("expected %v, got %v", later, recent[0].CreatedAt)
	}

	got, err := store.Lookup(ctx, "k")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got.Prompt != "later" {
		t.Errorf("expected Lookup to return the later exchange, got %q", got.Prompt)
	}
}

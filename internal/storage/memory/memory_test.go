package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"presentsync/internal/presentation"
	"presentsync/internal/storage"
)

func TestSessionRepository_lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()

	if _, err := repo.Get(ctx, "ABC123"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing session: got %v, want ErrNotFound", err)
	}

	now := time.Now()
	sess := &storage.Session{
		Code:         "ABC123",
		OperatorID:   "op-1",
		Active:       true,
		LastActivity: now,
		ExpiresAt:    now.Add(time.Hour),
	}
	if err := repo.Put(ctx, sess); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if got.OperatorID != "op-1" || !got.Active {
		t.Errorf("stored session mismatch: %+v", got)
	}

	// Get hands out a copy, not the stored record.
	got.Active = false
	again, _ := repo.Get(ctx, "ABC123")
	if !again.Active {
		t.Error("mutating a returned session leaked into the store")
	}

	later := now.Add(time.Minute)
	if err := repo.Touch(ctx, "ABC123", later, later.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.Get(ctx, "ABC123")
	if !got.LastActivity.Equal(later) || !got.ExpiresAt.Equal(later.Add(time.Hour)) {
		t.Errorf("touch did not refresh timestamps: %+v", got)
	}

	if err := repo.Deactivate(ctx, "ABC123"); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.Get(ctx, "ABC123")
	if got.Active || got.Viewers != 0 {
		t.Errorf("deactivate left session %+v", got)
	}
}

func TestSessionRepository_IncrementViewers(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	repo.Put(ctx, &storage.Session{Code: "R1", Active: true})

	t.Run("clamps_at_zero", func(t *testing.T) {
		if n, _ := repo.IncrementViewers(ctx, "R1", -5); n != 0 {
			t.Errorf("counter = %d, want 0", n)
		}
	})

	t.Run("unknown_session", func(t *testing.T) {
		if _, err := repo.IncrementViewers(ctx, "NOPE", 1); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("no_lost_updates", func(t *testing.T) {
		const joins = 100
		const leaves = 37
		var wg sync.WaitGroup
		for i := 0; i < joins; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				repo.IncrementViewers(ctx, "R1", 1)
			}()
		}
		wg.Wait()
		for i := 0; i < leaves; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				repo.IncrementViewers(ctx, "R1", -1)
			}()
		}
		wg.Wait()

		sess, _ := repo.Get(ctx, "R1")
		if sess.Viewers != joins-leaves {
			t.Errorf("counter = %d, want %d", sess.Viewers, joins-leaves)
		}
	})
}

func TestSessionRepository_state(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	repo.Put(ctx, &storage.Session{Code: "R1", Active: true})

	if err := repo.SaveState(ctx, "NOPE", []byte("x")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("save on unknown session: %v", err)
	}
	if _, err := repo.LoadState(ctx, "R1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("load before save: %v", err)
	}

	blob := []byte(`{"slide":1}`)
	if err := repo.SaveState(ctx, "R1", blob); err != nil {
		t.Fatal(err)
	}
	blob[0] = 'X'

	got, err := repo.LoadState(ctx, "R1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"slide":1}` {
		t.Errorf("stored state aliased the caller's buffer: %q", got)
	}
}

func TestSessionRepository_ActiveCodes(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	repo.Put(ctx, &storage.Session{Code: "A", Active: true})
	repo.Put(ctx, &storage.Session{Code: "B", Active: false})
	repo.Put(ctx, &storage.Session{Code: "C", Active: true})

	codes, err := repo.ActiveCodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 2 {
		t.Fatalf("ActiveCodes = %v, want 2 entries", codes)
	}
	seen := map[string]bool{}
	for _, c := range codes {
		seen[c] = true
	}
	if !seen["A"] || !seen["C"] || seen["B"] {
		t.Errorf("ActiveCodes = %v", codes)
	}
}

func TestContentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewContentRepository()

	if _, err := repo.Get(ctx, "song-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing content: %v", err)
	}

	repo.Put(&storage.Content{ID: "song-1", Type: presentation.ContentSong, Title: "Amazing Grace", Payload: []byte(`{}`)})
	got, err := repo.Get(ctx, "song-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Amazing Grace" || got.Type != presentation.ContentSong {
		t.Errorf("content mismatch: %+v", got)
	}
}

func TestThemeRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewThemeRepository()

	repo.Put(presentation.ThemeViewer, &presentation.Theme{ID: "t1"})

	if _, err := repo.Get(ctx, presentation.ThemeViewer, "t2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing theme: %v", err)
	}
	// Catalogs are separate per type.
	if _, err := repo.Get(ctx, presentation.ThemeBible, "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("theme leaked across catalogs: %v", err)
	}
	got, err := repo.Get(ctx, presentation.ThemeViewer, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "t1" {
		t.Errorf("theme = %+v", got)
	}
}

package presentation

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestStore_SetSlide(t *testing.T) {
	s := NewStore()

	t.Run("replaces_wholesale", func(t *testing.T) {
		if err := s.SetSlide(Slide{ContentID: "song-1", ContentType: ContentSong, Index: 2, Mode: "full"}); err != nil {
			t.Fatalf("SetSlide: %v", err)
		}
		if err := s.SetSlide(Slide{ContentID: "song-2", ContentType: ContentSong, Index: 0}); err != nil {
			t.Fatalf("SetSlide: %v", err)
		}
		snap := s.Snapshot()
		if snap.Slide.ContentID != "song-2" || snap.Slide.Mode != "" {
			t.Errorf("old slide fields survived replacement: %+v", snap.Slide)
		}
	})

	t.Run("blank_without_content_is_valid", func(t *testing.T) {
		if err := s.SetSlide(Slide{Blank: true}); err != nil {
			t.Errorf("blank slide rejected: %v", err)
		}
	})

	t.Run("rejects_negative_index_without_mutating", func(t *testing.T) {
		before := s.Snapshot()
		err := s.SetSlide(Slide{ContentID: "x", Index: -1})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		after := s.Snapshot()
		if !reflect.DeepEqual(after.Slide, before.Slide) {
			t.Errorf("rejected mutation changed state: %+v", after.Slide)
		}
	})

	t.Run("rejects_empty_slide", func(t *testing.T) {
		if err := s.SetSlide(Slide{}); err == nil {
			t.Error("expected error for slide with no content, payload or blank flag")
		}
	})
}

func TestStore_blank_slide_keeps_theme(t *testing.T) {
	s := NewStore()
	if err := s.SetTheme(ThemeViewer, Theme{ID: "t1", Name: "Dark"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSlide(Slide{Blank: true}); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if !snap.Slide.Blank {
		t.Error("expected blank slide")
	}
	if snap.Themes[ThemeViewer] == nil || snap.Themes[ThemeViewer].ID != "t1" {
		t.Errorf("theme lost across blank slide: %+v", snap.Themes)
	}
}

func TestStore_SetTool_active_set(t *testing.T) {
	s := NewStore()
	payload := json.RawMessage(`{"seconds":120}`)

	if err := s.SetTool(Tool{Type: "countdown", Active: true, Payload: payload}); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); len(snap.Tools) != 1 {
		t.Fatalf("expected 1 active tool, got %d", len(snap.Tools))
	}

	// Deactivation removes the entry entirely rather than storing a flag.
	if err := s.SetTool(Tool{Type: "countdown", Active: false}); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); len(snap.Tools) != 0 {
		t.Errorf("deactivated tool still present: %+v", snap.Tools)
	}

	t.Run("missing_type_rejected", func(t *testing.T) {
		if err := s.SetTool(Tool{Active: true}); err == nil {
			t.Error("expected validation error for tool without type")
		}
	})
}

func TestStore_SetMedia(t *testing.T) {
	s := NewStore()
	if err := s.SetMedia("/videos/intro.mp4"); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Media == nil || snap.Media.Playback.Playing {
		t.Fatalf("new media must start paused: %+v", snap.Media)
	}

	// Empty path clears.
	if err := s.SetMedia(""); err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(); snap.Media != nil {
		t.Errorf("empty path should clear media, got %+v", snap.Media)
	}
}

func TestStore_ApplyPlayback(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewStoreWithClock(func() time.Time { return now })

	t.Run("without_media_rejected", func(t *testing.T) {
		if err := s.ApplyPlayback(PlaybackCommand{Action: PlaybackPlay}); err == nil {
			t.Error("expected error with no media loaded")
		}
	})

	if err := s.SetMedia("/videos/a.mp4"); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyPlayback(PlaybackCommand{Action: PlaybackPlay}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(7 * time.Second)
	pos, ok := s.MediaPosition()
	if !ok || !pos.Playing || pos.Time != 7 {
		t.Errorf("expected playing at 7s, got %+v ok=%v", pos, ok)
	}

	t.Run("stop_discards_descriptor_keeps_media", func(t *testing.T) {
		if err := s.ApplyPlayback(PlaybackCommand{Action: PlaybackStop}); err != nil {
			t.Fatal(err)
		}
		snap := s.Snapshot()
		if snap.Media == nil {
			t.Fatal("stop should not unload media")
		}
		if snap.Media.Playback.Playing || snap.Media.Playback.Base != 0 {
			t.Errorf("stop should reset playback, got %+v", snap.Media.Playback)
		}
	})
}

func TestStore_Snapshot_isolation(t *testing.T) {
	s := NewStore()
	if err := s.SetTheme(ThemeBible, Theme{ID: "b1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSlide(Slide{ContentID: "c1", ContentType: ContentBible}); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if err := s.SetSlide(Slide{ContentID: "c2", ContentType: ContentBible}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTheme(ThemeBible, Theme{ID: "b2"}); err != nil {
		t.Fatal(err)
	}

	if snap.Slide.ContentID != "c1" {
		t.Errorf("snapshot observed later slide mutation: %+v", snap.Slide)
	}
	if snap.Themes[ThemeBible].ID != "b1" {
		t.Errorf("snapshot observed later theme mutation: %+v", snap.Themes[ThemeBible])
	}

	// Mutating the snapshot must not leak back either.
	snap.Slide.ContentID = "hacked"
	snap.Themes[ThemeBible].ID = "hacked"
	fresh := s.Snapshot()
	if fresh.Slide.ContentID != "c2" || fresh.Themes[ThemeBible].ID != "b2" {
		t.Errorf("snapshot mutation leaked into store: %+v", fresh)
	}
}

func TestStore_SetTheme_validation(t *testing.T) {
	s := NewStore()
	if err := s.SetTheme("banner", Theme{ID: "x"}); err == nil {
		t.Error("unknown theme type accepted")
	}
	if err := s.SetTheme(ThemeViewer, Theme{}); err == nil {
		t.Error("theme without id accepted")
	}
}

func TestStore_SetMarkup_validation(t *testing.T) {
	s := NewStore()
	if err := s.SetMarkup(MarkupCache{HTML: "<b>x</b>"}); err == nil {
		t.Error("markup without dimensions accepted")
	}
	if err := s.SetMarkup(MarkupCache{HTML: "<b>x</b>", Width: 1920, Height: 1080}); err != nil {
		t.Errorf("valid markup rejected: %v", err)
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	_ = s.SetSlide(Slide{Blank: true})
	_ = s.SetTool(Tool{Type: "alert", Active: true})
	_ = s.SetMedia("/m.mp4")
	s.Clear()
	snap := s.Snapshot()
	if snap.Slide != nil || snap.Media != nil || len(snap.Tools) != 0 {
		t.Errorf("clear left state behind: %+v", snap)
	}
}

func TestStore_Restore(t *testing.T) {
	s := NewStore()
	s.Restore(State{Slide: &Slide{ContentID: "c9", ContentType: ContentSong}})
	snap := s.Snapshot()
	if snap.Slide == nil || snap.Slide.ContentID != "c9" {
		t.Fatalf("restore lost slide: %+v", snap.Slide)
	}
	// Maps must be usable after restoring a state without them.
	if err := s.SetTheme(ThemeViewer, Theme{ID: "t"}); err != nil {
		t.Fatalf("SetTheme after restore: %v", err)
	}
}

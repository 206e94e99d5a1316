package display

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"presentsync/internal/presentation"
)

type fakeSurface struct {
	mu     sync.Mutex
	events []presentation.Event
	fail   bool
	closed bool
}

func (f *fakeSurface) Send(ev presentation.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("window destroyed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSurface) recorded() []presentation.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]presentation.Event, len(f.events))
	copy(out, f.events)
	return out
}

func newTestManager(t *testing.T, resolver *presentation.Resolver) *Manager {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(presentation.NewStore(), resolver, 5*time.Millisecond, log, nil)
}

func attachReady(t *testing.T, m *Manager, id string, role Role) *fakeSurface {
	t.Helper()
	s := &fakeSurface{}
	if err := m.Attach(id, role, s); err != nil {
		t.Fatalf("Attach(%s): %v", id, err)
	}
	if err := m.SetReady(id); err != nil {
		t.Fatalf("SetReady(%s): %v", id, err)
	}
	return s
}

func TestManager_broadcasts_dropped_until_ready_then_single_replay(t *testing.T) {
	m := newTestManager(t, nil)
	s := &fakeSurface{}
	if err := m.Attach("out-1", RoleViewer, s); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		if err := m.BroadcastSlide(presentation.Slide{ContentID: "song-1", ContentType: presentation.ContentSong, Index: i}); err != nil {
			t.Fatalf("BroadcastSlide %d: %v", i, err)
		}
	}
	if got := s.recorded(); len(got) != 0 {
		t.Fatalf("pre-ready output received %d events", len(got))
	}

	if err := m.SetReady("out-1"); err != nil {
		t.Fatal(err)
	}
	got := s.recorded()
	if len(got) != 1 {
		t.Fatalf("expected exactly one replay event, got %d: %+v", len(got), got)
	}
	data := got[0].Data.(presentation.SlideData)
	if data.Slide.Index != 3 {
		t.Errorf("replay should carry only the last slide, got index %d", data.Slide.Index)
	}
}

func TestManager_role_filtering(t *testing.T) {
	m := newTestManager(t, nil)
	viewer := attachReady(t, m, "viewer-1", RoleViewer)
	stage := attachReady(t, m, "stage-1", RoleStage)
	overlay := attachReady(t, m, "overlay-1", RoleOverlay)

	if err := m.BroadcastSlide(presentation.Slide{Blank: true}); err != nil {
		t.Fatal(err)
	}
	if err := m.BroadcastBackground(presentation.Background{Kind: "color", Value: "#000"}); err != nil {
		t.Fatal(err)
	}
	if err := m.BroadcastMarkup(presentation.MarkupCache{HTML: "<p>x</p>", Width: 1920, Height: 1080}); err != nil {
		t.Fatal(err)
	}

	countByType := func(events []presentation.Event) map[string]int {
		out := map[string]int{}
		for _, ev := range events {
			out[ev.Type]++
		}
		return out
	}

	v := countByType(viewer.recorded())
	if v[presentation.EventSlide] != 1 || v[presentation.EventBackground] != 1 || v[presentation.EventMarkup] != 0 {
		t.Errorf("viewer got %v", v)
	}
	st := countByType(stage.recorded())
	if st[presentation.EventSlide] != 1 || st[presentation.EventBackground] != 0 {
		t.Errorf("stage got %v", st)
	}
	ov := countByType(overlay.recorded())
	if ov[presentation.EventMarkup] != 1 || ov[presentation.EventSlide] != 0 {
		t.Errorf("overlay got %v", ov)
	}
}

func TestManager_dead_output_does_not_abort_fanout(t *testing.T) {
	m := newTestManager(t, nil)
	dead := attachReady(t, m, "dead", RoleViewer)
	dead.mu.Lock()
	dead.fail = true
	dead.mu.Unlock()
	alive := attachReady(t, m, "alive", RoleViewer)

	if err := m.BroadcastTool(presentation.Tool{Type: "countdown", Active: true}); err != nil {
		t.Fatal(err)
	}

	if got := alive.recorded(); len(got) != 1 {
		t.Errorf("healthy output should still receive the event, got %d", len(got))
	}
	if !dead.closed {
		t.Error("failed output should be closed and removed")
	}
	if m.ReadyCount() != 1 {
		t.Errorf("expected 1 remaining ready output, got %d", m.ReadyCount())
	}
}

func TestManager_per_consumer_theme_resolution(t *testing.T) {
	override := presentation.Theme{ID: "stage-theme"}
	resolver := presentation.NewResolver(
		func(consumerID string, tt presentation.ThemeType) (string, bool) {
			if consumerID == "stage-1" {
				return "stage-theme", true
			}
			return "", false
		},
		func(tt presentation.ThemeType, id string) (*presentation.Theme, bool) {
			if id == "stage-theme" {
				return &override, true
			}
			return nil, false
		},
	)
	m := newTestManager(t, resolver)
	viewer := attachReady(t, m, "viewer-1", RoleViewer)
	stage := attachReady(t, m, "stage-1", RoleStage)

	if err := m.BroadcastTheme(presentation.ThemeViewer, presentation.Theme{ID: "global"}); err != nil {
		t.Fatal(err)
	}

	vTheme := viewer.recorded()[0].Data.(presentation.ThemeData).Theme
	sTheme := stage.recorded()[0].Data.(presentation.ThemeData).Theme
	if vTheme.ID != "global" {
		t.Errorf("viewer theme = %s, want global", vTheme.ID)
	}
	if sTheme.ID != "stage-theme" {
		t.Errorf("stage theme = %s, want stage-theme (override)", sTheme.ID)
	}
}

func TestManager_replay_uses_same_resolution_as_live(t *testing.T) {
	override := presentation.Theme{ID: "custom"}
	resolver := presentation.NewResolver(
		func(string, presentation.ThemeType) (string, bool) { return "custom", true },
		func(tt presentation.ThemeType, id string) (*presentation.Theme, bool) { return &override, true },
	)
	m := newTestManager(t, resolver)

	live := attachReady(t, m, "live", RoleViewer)
	if err := m.BroadcastSlide(presentation.Slide{ContentID: "s", ContentType: presentation.ContentSong}); err != nil {
		t.Fatal(err)
	}

	late := &fakeSurface{}
	if err := m.Attach("late", RoleViewer, late); err != nil {
		t.Fatal(err)
	}
	if err := m.SetReady("late"); err != nil {
		t.Fatal(err)
	}

	liveSlide := eventOfType(t, live.recorded(), presentation.EventSlide)
	lateSlide := eventOfType(t, late.recorded(), presentation.EventSlide)
	if liveSlide.Data.(presentation.SlideData).Theme.ID != lateSlide.Data.(presentation.SlideData).Theme.ID {
		t.Errorf("replay resolved a different theme than live broadcast: live=%+v late=%+v", liveSlide, lateSlide)
	}
}

func eventOfType(t *testing.T, events []presentation.Event, evType string) presentation.Event {
	t.Helper()
	for _, ev := range events {
		if ev.Type == evType {
			return ev
		}
	}
	t.Fatalf("no %s event in %+v", evType, events)
	return presentation.Event{}
}

func TestManager_replay_skips_theme_slots_never_set(t *testing.T) {
	// An override that resolves for every slot must not make replay invent
	// theme events for slots the session never themed.
	override := presentation.Theme{ID: "custom"}
	resolver := presentation.NewResolver(
		func(string, presentation.ThemeType) (string, bool) { return "custom", true },
		func(presentation.ThemeType, string) (*presentation.Theme, bool) { return &override, true },
	)
	m := newTestManager(t, resolver)

	out := attachReady(t, m, "out-1", RoleViewer)
	if got := out.recorded(); len(got) != 0 {
		t.Fatalf("empty-state replay emitted %d events: %+v", len(got), got)
	}

	if err := m.BroadcastTheme(presentation.ThemeViewer, presentation.Theme{ID: "global"}); err != nil {
		t.Fatal(err)
	}
	late := &fakeSurface{}
	if err := m.Attach("late", RoleViewer, late); err != nil {
		t.Fatal(err)
	}
	if err := m.SetReady("late"); err != nil {
		t.Fatal(err)
	}
	events := late.recorded()
	if len(events) != 1 || events[0].Type != presentation.EventTheme {
		t.Fatalf("replay = %+v, want exactly the viewer theme event", events)
	}
	if got := events[0].Data.(presentation.ThemeData).Theme.ID; got != "custom" {
		t.Errorf("set slot should still resolve through the override, got %s", got)
	}
}

func TestManager_OnVideoReady_sends_delayed_sync(t *testing.T) {
	m := newTestManager(t, nil)
	out := attachReady(t, m, "out-1", RoleViewer)

	if err := m.BroadcastMedia("/m.mp4"); err != nil {
		t.Fatal(err)
	}
	if err := m.BroadcastPlayback(presentation.PlaybackCommand{Action: presentation.PlaybackPlay}); err != nil {
		t.Fatal(err)
	}

	m.OnVideoReady("out-1")

	deadline := time.Now().Add(time.Second)
	for {
		events := out.recorded()
		if len(events) >= 3 && events[len(events)-1].Type == presentation.EventPlayback {
			data := events[len(events)-1].Data.(presentation.PlaybackData)
			if !data.Position.Playing {
				t.Errorf("sync command should reflect playing state, got %+v", data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no playback sync received, events: %+v", events)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestManager_Detach_idempotent(t *testing.T) {
	m := newTestManager(t, nil)
	attachReady(t, m, "out-1", RoleViewer)
	m.Detach("out-1")
	m.Detach("out-1")
	m.Detach("never-attached")
	if m.ReadyCount() != 0 {
		t.Errorf("expected no outputs, got %d", m.ReadyCount())
	}
}

func TestManager_Attach_validation(t *testing.T) {
	m := newTestManager(t, nil)
	if err := m.Attach("", RoleViewer, &fakeSurface{}); err == nil {
		t.Error("empty id accepted")
	}
	if err := m.Attach("x", "projector", &fakeSurface{}); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestManager_invalid_broadcast_reaches_no_consumer(t *testing.T) {
	m := newTestManager(t, nil)
	out := attachReady(t, m, "out-1", RoleViewer)

	if err := m.BroadcastSlide(presentation.Slide{ContentID: "x", Index: -2}); err == nil {
		t.Fatal("expected validation error")
	}
	if got := out.recorded(); len(got) != 0 {
		t.Errorf("rejected payload reached a consumer: %+v", got)
	}
}

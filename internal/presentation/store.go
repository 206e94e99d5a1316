package presentation

import (
	"sync"
	"time"
)

// Store holds the current presentation state for one active session and
// enforces its mutation rules. All mutations validate before touching
// state and apply atomically; Snapshot returns a deep copy so a consumer
// holding a snapshot can never observe a later in-place mutation.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// NewStore returns an empty session state store.
func NewStore() *Store {
	return &Store{
		state: State{
			Themes: make(map[ThemeType]*Theme),
			Tools:  make(map[ToolType]Tool),
		},
		now: time.Now,
	}
}

// NewStoreWithClock returns a store reading time from the given clock.
// Used by tests that assert playback position math.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	s.now = now
	return s
}

// SetSlide replaces the current slide wholesale.
func (s *Store) SetSlide(slide Slide) error {
	if slide.Index < 0 {
		return invalid("slide", "index must not be negative")
	}
	if slide.ContentID == "" && !slide.Blank && len(slide.Payload) == 0 {
		return invalid("slide", "either a content reference, a payload or blank is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := slide
	s.state.Slide = &v
	return nil
}

// SetBackground replaces the viewer background.
func (s *Store) SetBackground(bg Background) error {
	if bg.Kind == "" {
		return invalid("background", "kind is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := bg
	s.state.Background = &v
	return nil
}

// SetTheme installs theme as the session-global theme for its slot.
func (s *Store) SetTheme(tt ThemeType, theme Theme) error {
	switch tt {
	case ThemeViewer, ThemeBible, ThemePrayer:
	default:
		return invalid("theme", "unknown theme type "+string(tt))
	}
	if theme.ID == "" {
		return invalid("theme", "id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := theme
	s.state.Themes[tt] = &v
	return nil
}

// SetTool stores an active tool payload or, when tool.Active is false,
// removes the tool's entry entirely. Replay therefore only ever resends
// currently-active tools.
func (s *Store) SetTool(tool Tool) error {
	if tool.Type == "" {
		return invalid("tool", "type is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !tool.Active {
		delete(s.state.Tools, tool.Type)
		return nil
	}
	s.state.Tools[tool.Type] = tool
	return nil
}

// SetMedia loads a new local media file in the paused state; an empty path
// clears the descriptor. Playback starts only via ApplyPlayback once a
// consumer has signalled it is ready, which is the coordination point that
// keeps multiple outputs on the same frame.
func (s *Store) SetMedia(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		s.state.Media = nil
		return nil
	}
	s.state.Media = &MediaState{Path: path}
	return nil
}

// SetExternalVideo loads an externally hosted video, paused; an empty id
// clears it.
func (s *Store) SetExternalVideo(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if videoID == "" {
		s.state.ExternalVideo = nil
		return nil
	}
	s.state.ExternalVideo = &ExternalVideoState{VideoID: videoID}
	return nil
}

// SetMarkup caches the rendered markup blob with its reference dimensions.
func (s *Store) SetMarkup(m MarkupCache) error {
	if m.Width <= 0 || m.Height <= 0 {
		return invalid("markup", "reference dimensions must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v := m
	s.state.Markup = &v
	return nil
}

// ApplyPlayback runs a playback command against the loaded media.
// Commands with no media loaded are rejected, stop discards the descriptor
// but keeps the media loaded.
func (s *Store) ApplyPlayback(cmd PlaybackCommand) error {
	if err := validPlayback(cmd); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Media == nil {
		return invalid("playback", "no media loaded")
	}
	if cmd.Action == PlaybackStop {
		s.state.Media.Playback = PlaybackDescriptor{}
		return nil
	}
	s.state.Media.Playback.Apply(cmd, s.now())
	return nil
}

// ApplyExternalPlayback runs a playback command against the external video.
func (s *Store) ApplyExternalPlayback(cmd PlaybackCommand) error {
	if err := validPlayback(cmd); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.ExternalVideo == nil {
		return invalid("playback", "no external video loaded")
	}
	if cmd.Action == PlaybackStop {
		s.state.ExternalVideo.Playback = PlaybackDescriptor{}
		return nil
	}
	s.state.ExternalVideo.Playback.Apply(cmd, s.now())
	return nil
}

// MediaPosition returns the live media position computed at read time.
func (s *Store) MediaPosition() (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Media == nil {
		return Position{}, false
	}
	return s.state.Media.Playback.PositionAt(s.now()), true
}

// Theme returns the session-global theme for the given slot, if set.
func (s *Store) Theme(tt ThemeType) (*Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.Themes[tt]
	if !ok {
		return nil, false
	}
	v := *t
	return &v, true
}

// Snapshot returns a deep copy of the current state for replay.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := State{
		Themes: make(map[ThemeType]*Theme, len(s.state.Themes)),
		Tools:  make(map[ToolType]Tool, len(s.state.Tools)),
	}
	if s.state.Slide != nil {
		v := *s.state.Slide
		snap.Slide = &v
	}
	if s.state.Background != nil {
		v := *s.state.Background
		snap.Background = &v
	}
	for tt, theme := range s.state.Themes {
		v := *theme
		snap.Themes[tt] = &v
	}
	for tt, tool := range s.state.Tools {
		snap.Tools[tt] = tool
	}
	if s.state.Media != nil {
		v := *s.state.Media
		if s.state.Media.Playback.Anchor != nil {
			a := *s.state.Media.Playback.Anchor
			v.Playback.Anchor = &a
		}
		snap.Media = &v
	}
	if s.state.ExternalVideo != nil {
		v := *s.state.ExternalVideo
		if s.state.ExternalVideo.Playback.Anchor != nil {
			a := *s.state.ExternalVideo.Playback.Anchor
			v.Playback.Anchor = &a
		}
		snap.ExternalVideo = &v
	}
	if s.state.Markup != nil {
		v := *s.state.Markup
		snap.Markup = &v
	}
	return snap
}

// Now exposes the store clock so position math in fan-out code uses the
// same time source as the descriptors.
func (s *Store) Now() time.Time {
	return s.now()
}

// Restore replaces the whole state at once, used when rehydrating a room
// from its persisted copy after a restart.
func (s *Store) Restore(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Themes == nil {
		state.Themes = make(map[ThemeType]*Theme)
	}
	if state.Tools == nil {
		state.Tools = make(map[ToolType]Tool)
	}
	s.state = state
}

// Clear resets the session state (session end).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		Themes: make(map[ThemeType]*Theme),
		Tools:  make(map[ToolType]Tool),
	}
}

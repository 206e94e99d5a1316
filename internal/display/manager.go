package display

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"presentsync/internal/platform/metrics"
	"presentsync/internal/presentation"
)

// OutputState is the lifecycle state of one physical output.
type OutputState int

const (
	StateUnassigned OutputState = iota
	StateOpen
	StateReady
	StateClosed
)

// ErrUnknownOutput is returned for operations on an output id the manager
// does not own.
var ErrUnknownOutput = errors.New("unknown output")

// DefaultSyncDelay is the fixed pause before a playback-sync command is
// sent to a freshly loaded video element, giving the element time to
// finish loading before position math is applied to it.
const DefaultSyncDelay = 150 * time.Millisecond

// output is one managed display window tied to a physical output.
type output struct {
	id      string
	role    Role
	state   OutputState
	surface Surface
}

// Manager owns the set of local display windows for one session and
// relays session state to them. Each Manager instance owns its registry;
// there are no package-level globals.
//
// Broadcasts reach only outputs in the ready state: a window that has not
// sent its readiness signal is not listening yet, so events for it are
// dropped and covered by the full snapshot replay that SetReady performs.
type Manager struct {
	mu        sync.Mutex
	outputs   map[string]*output
	store     *presentation.Store
	resolver  *presentation.Resolver
	syncDelay time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewManager returns a manager fanning out the given store's state.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewManager(store *presentation.Store, resolver *presentation.Resolver, syncDelay time.Duration, log *slog.Logger, m *metrics.Metrics) *Manager {
	if syncDelay <= 0 {
		syncDelay = DefaultSyncDelay
	}
	return &Manager{
		outputs:   make(map[string]*output),
		store:     store,
		resolver:  resolver,
		syncDelay: syncDelay,
		log:       log,
		metrics:   m,
	}
}

// Store exposes the session state store the manager mutates.
func (m *Manager) Store() *presentation.Store {
	return m.store
}

// Attach registers a newly opened window for the given output id. The
// output stays invisible to broadcasts until it signals readiness.
func (m *Manager) Attach(id string, role Role, surface Surface) error {
	if id == "" {
		return errors.New("output id is required")
	}
	if !ValidRole(role) {
		return errors.New("unknown role " + string(role))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.outputs[id]; ok {
		// A window reopened on the same output replaces the stale one.
		prev.state = StateClosed
		prev.surface.Close()
	}
	m.outputs[id] = &output{id: id, role: role, state: StateOpen, surface: surface}
	m.log.Info("output attached", slog.String("output_id", id), slog.String("role", string(role)))
	return nil
}

// SetReady marks the output ready and replays the full current state to
// it alone, using the same per-consumer theme resolution as live
// broadcasts. A consumer that missed any number of broadcasts before
// readiness receives exactly one replay reflecting only the final state.
func (m *Manager) SetReady(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outputs[id]
	if !ok || o.state == StateClosed {
		return ErrUnknownOutput
	}
	o.state = StateReady

	snap := m.store.Snapshot()
	events := presentation.ReplayEvents(snap, m.themeFor(id, snap), m.store.Now())
	for _, ev := range events {
		if !m.deliverLocked(o, ev) {
			break
		}
	}
	if m.metrics != nil {
		m.metrics.IncReplays()
	}
	m.log.Info("output ready", slog.String("output_id", id), slog.Int("replayed_events", len(events)))
	return nil
}

// Detach removes an output. Safe to call for ids that were never attached
// or already detached.
func (m *Manager) Detach(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.outputs[id]
	if !ok {
		return
	}
	o.state = StateClosed
	o.surface.Close()
	delete(m.outputs, id)
	m.log.Info("output detached", slog.String("output_id", id))
}

// ReadyCount returns the number of outputs currently ready. Used for metrics.
func (m *Manager) ReadyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.outputs {
		if o.state == StateReady {
			n++
		}
	}
	return n
}

// BroadcastSlide stores the slide and pushes it, with each consumer's
// effective theme for the slide's content type, to viewer and stage
// outputs.
func (m *Manager) BroadcastSlide(slide presentation.Slide) error {
	if err := m.store.SetSlide(slide); err != nil {
		return err
	}
	tt := presentation.ThemeTypeFor(slide.ContentType)
	global, _ := m.store.Theme(tt)
	m.fanOut([]Role{RoleViewer, RoleStage}, func(id string) presentation.Event {
		return presentation.SlideEvent(slide, m.resolver.Resolve(id, tt, global))
	})
	return nil
}

// BroadcastTheme stores the session-global theme for the slot and pushes
// each consumer's effective theme to viewer and stage outputs.
func (m *Manager) BroadcastTheme(tt presentation.ThemeType, theme presentation.Theme) error {
	if err := m.store.SetTheme(tt, theme); err != nil {
		return err
	}
	m.fanOut([]Role{RoleViewer, RoleStage}, func(id string) presentation.Event {
		effective := m.resolver.Resolve(id, tt, &theme)
		return presentation.ThemeEvent(tt, *effective)
	})
	return nil
}

// BroadcastBackground stores the background and pushes it to viewer
// outputs only; stage monitors and the overlay never render backgrounds.
func (m *Manager) BroadcastBackground(bg presentation.Background) error {
	if err := m.store.SetBackground(bg); err != nil {
		return err
	}
	ev := presentation.BackgroundEvent(bg)
	m.fanOut([]Role{RoleViewer}, func(string) presentation.Event { return ev })
	return nil
}

// BroadcastTool stores the tool update and pushes it to viewer and stage
// outputs.
func (m *Manager) BroadcastTool(tool presentation.Tool) error {
	if err := m.store.SetTool(tool); err != nil {
		return err
	}
	ev := presentation.ToolEvent(tool)
	m.fanOut([]Role{RoleViewer, RoleStage}, func(string) presentation.Event { return ev })
	return nil
}

// BroadcastMedia loads new media (paused) and pushes it to viewer
// outputs. An empty path clears the media on every viewer.
func (m *Manager) BroadcastMedia(path string) error {
	if err := m.store.SetMedia(path); err != nil {
		return err
	}
	ev := presentation.MediaEvent(path, presentation.Position{})
	m.fanOut([]Role{RoleViewer}, func(string) presentation.Event { return ev })
	return nil
}

// BroadcastPlayback applies a playback command to the loaded media and
// pushes the command, with the resulting position, to viewer outputs.
func (m *Manager) BroadcastPlayback(cmd presentation.PlaybackCommand) error {
	if err := m.store.ApplyPlayback(cmd); err != nil {
		return err
	}
	pos, _ := m.store.MediaPosition()
	ev := presentation.PlaybackEvent(cmd, pos)
	m.fanOut([]Role{RoleViewer}, func(string) presentation.Event { return ev })
	return nil
}

// BroadcastExternalVideo loads an external video (paused) and pushes it
// to viewer outputs.
func (m *Manager) BroadcastExternalVideo(videoID string) error {
	if err := m.store.SetExternalVideo(videoID); err != nil {
		return err
	}
	ev := presentation.ExternalVideoEvent(videoID, presentation.Position{})
	m.fanOut([]Role{RoleViewer}, func(string) presentation.Event { return ev })
	return nil
}

// BroadcastExternalPlayback applies a playback command to the external
// video and pushes it to viewer outputs.
func (m *Manager) BroadcastExternalPlayback(cmd presentation.PlaybackCommand) error {
	if err := m.store.ApplyExternalPlayback(cmd); err != nil {
		return err
	}
	snap := m.store.Snapshot()
	var pos presentation.Position
	var videoID string
	if snap.ExternalVideo != nil {
		pos = snap.ExternalVideo.Playback.PositionAt(m.store.Now())
		videoID = snap.ExternalVideo.VideoID
	}
	ev := presentation.ExternalVideoEvent(videoID, pos)
	m.fanOut([]Role{RoleViewer}, func(string) presentation.Event { return ev })
	return nil
}

// BroadcastMarkup caches the rendered markup and pushes it to the capture
// overlay outputs only.
func (m *Manager) BroadcastMarkup(mc presentation.MarkupCache) error {
	if err := m.store.SetMarkup(mc); err != nil {
		return err
	}
	ev := presentation.MarkupEvent(mc)
	m.fanOut([]Role{RoleOverlay}, func(string) presentation.Event { return ev })
	return nil
}

// OnVideoReady is the consumer's signal that its video element finished
// loading. After a small fixed delay the manager sends that output a
// playback sync carrying the live position, which is how several physical
// outputs end up on the same frame.
func (m *Manager) OnVideoReady(id string) {
	time.AfterFunc(m.syncDelay, func() {
		pos, ok := m.store.MediaPosition()
		if !ok {
			return
		}
		cmd := presentation.PlaybackCommand{Action: presentation.PlaybackSeek, Time: &pos.Time}
		if pos.Playing {
			cmd = presentation.PlaybackCommand{Action: presentation.PlaybackPlay}
		}
		ev := presentation.PlaybackEvent(cmd, pos)

		m.mu.Lock()
		defer m.mu.Unlock()
		o, ok := m.outputs[id]
		if !ok || o.state != StateReady {
			return
		}
		m.deliverLocked(o, ev)
	})
}

// themeFor builds the per-consumer theme lookup used for replay, matching
// live broadcast resolution exactly.
func (m *Manager) themeFor(consumerID string, snap presentation.State) func(presentation.ThemeType) *presentation.Theme {
	return func(tt presentation.ThemeType) *presentation.Theme {
		return m.resolver.Resolve(consumerID, tt, snap.Themes[tt])
	}
}

// fanOut delivers one event per ready output matching roles. A consumer
// that fails mid-send is dropped and logged; the remaining outputs still
// receive the event.
func (m *Manager) fanOut(roles []Role, build func(outputID string) presentation.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outputs {
		if o.state != StateReady || !roleMatches(o.role, roles) {
			continue
		}
		m.deliverLocked(o, build(o.id))
	}
	if m.metrics != nil {
		m.metrics.IncBroadcasts()
	}
}

// deliverLocked sends one event to one output, removing the output on
// failure. Caller holds m.mu. Returns false when the output was dropped.
func (m *Manager) deliverLocked(o *output, ev presentation.Event) bool {
	if err := o.surface.Send(ev); err != nil {
		m.log.Warn("output vanished mid-send, dropping",
			slog.String("output_id", o.id),
			slog.String("event", ev.Type),
			slog.String("error", err.Error()))
		o.state = StateClosed
		o.surface.Close()
		delete(m.outputs, o.id)
		if m.metrics != nil {
			m.metrics.IncTransportErrors()
		}
		return false
	}
	return true
}

func roleMatches(r Role, roles []Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

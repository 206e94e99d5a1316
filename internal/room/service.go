package room

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"presentsync/internal/platform/metrics"
	"presentsync/internal/presentation"
	"presentsync/internal/storage"
)

// DefaultCapacity is the viewer ceiling per room.
const DefaultCapacity = 500

// DefaultTTL is how long a session stays active past its last operator
// action.
const DefaultTTL = 4 * time.Hour

const persistTimeout = 5 * time.Second

// Service owns room lifecycle, membership and state relay for the network
// side. Each room carries its own presentation.Store as auxiliary state,
// reachable independent of any operator connection, so a dropped and
// reconnected operator finds the room exactly as it was left.
type Service struct {
	repo     storage.SessionRepository
	content  storage.ContentRepository
	hub      *Hub
	capacity int64
	ttl      time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.Mutex
	states map[string]*presentation.Store
}

// NewService wires the service. Metrics may be nil (tests). capacity and
// ttl fall back to the defaults when non-positive.
func NewService(repo storage.SessionRepository, content storage.ContentRepository, hub *Hub, capacity int, ttl time.Duration, log *slog.Logger, m *metrics.Metrics) *Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:     repo,
		content:  content,
		hub:      hub,
		capacity: int64(capacity),
		ttl:      ttl,
		log:      log,
		metrics:  m,
		now:      time.Now,
		states:   make(map[string]*presentation.Store),
	}
}

// newRoomCode derives a short join code from a fresh UUID.
func newRoomCode() string {
	return strings.ToUpper(uuid.NewString()[:6])
}

// Create opens a new room for the operator and persists its session
// record.
func (s *Service) Create(ctx context.Context, operatorID string) (*storage.Session, error) {
	if operatorID == "" {
		return nil, &presentation.ValidationError{Field: "operatorId", Reason: "is required"}
	}
	now := s.now()
	code := newRoomCode()
	// Short codes can collide; never overwrite a live room.
	for i := 0; i < 5; i++ {
		existing, err := s.repo.Get(ctx, code)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && !existing.Active) {
			break
		}
		if err != nil {
			return nil, err
		}
		code = newRoomCode()
	}
	sess := &storage.Session{
		Code:         code,
		OperatorID:   operatorID,
		Active:       true,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.repo.Put(ctx, sess); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.states[sess.Code] = presentation.NewStore()
	s.mu.Unlock()
	s.log.Info("room created", slog.String("code", sess.Code), slog.String("operator_id", operatorID))
	return sess, nil
}

// Lookup returns the session record for a code, applying the same
// not-found/inactive classification as Join.
func (s *Service) Lookup(ctx context.Context, code string) (*storage.Session, error) {
	sess, err := s.repo.Get(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sess.Active || s.now().After(sess.ExpiresAt) {
		return nil, ErrRoomInactive
	}
	return sess, nil
}

// Join admits a new viewer connection to the room: capacity is checked
// against the persisted counter, the counter is atomically incremented,
// the joining connection alone receives the full room snapshot, and the
// rest of the room is told the new count. The count that members see is a
// snapshot read taken right after the atomic increment, so it converges
// rather than being instantaneously consistent; it is a display metric.
func (s *Service) Join(ctx context.Context, code string) (*Client, error) {
	sess, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.Viewers >= s.capacity {
		return nil, ErrRoomFull
	}

	client := &Client{
		ID:       uuid.NewString(),
		RoomCode: code,
		Role:     RoleViewer,
		Send:     make(chan presentation.Event, 256),
	}
	s.hub.Add(client)

	count, err := s.repo.IncrementViewers(ctx, code, 1)
	if err != nil {
		s.hub.Remove(client)
		return nil, err
	}
	client.counted = true

	st, err := s.state(ctx, code)
	if err != nil {
		// Membership stands; the viewer just starts from an empty state.
		s.log.Error("room state unavailable for replay", slog.String("code", code), slog.String("error", err.Error()))
		st = presentation.NewStore()
	}
	for _, ev := range s.replayEvents(ctx, st) {
		s.hub.SendTo(client, ev)
	}
	s.hub.SendTo(client, presentation.ViewerCountEvent(count))
	s.hub.BroadcastToRoom(code, presentation.ViewerCountEvent(count))

	if s.metrics != nil {
		s.metrics.IncJoins()
		s.metrics.IncReplays()
	}
	s.log.Info("viewer joined", slog.String("code", code), slog.String("client_id", client.ID), slog.Int64("viewers", count))
	return client, nil
}

// Leave runs disconnect cleanup for a connection. It is unconditional and
// idempotent: it is safe for connections that never fully joined and for
// repeated invocations from racing teardown paths.
func (s *Service) Leave(client *Client) {
	client.leaveOnce.Do(func() {
		s.hub.Remove(client)
		if !client.counted {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		count, err := s.repo.IncrementViewers(ctx, client.RoomCode, -1)
		if err != nil {
			s.log.Error("viewer counter decrement failed",
				slog.String("code", client.RoomCode), slog.String("error", err.Error()))
			return
		}
		s.hub.BroadcastToRoom(client.RoomCode, presentation.ViewerCountEvent(count))
		s.log.Info("viewer left", slog.String("code", client.RoomCode), slog.String("client_id", client.ID), slog.Int64("viewers", count))
	})
}

// UpdateSlide replaces the room's slide, broadcasts it with the room's
// global theme for the slide's content type, and then persists behind the
// broadcast.
func (s *Service) UpdateSlide(ctx context.Context, code string, slide presentation.Slide) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetSlide(slide); err != nil {
		return err
	}
	theme, _ := st.Theme(presentation.ThemeTypeFor(slide.ContentType))
	s.broadcast(code, presentation.SlideEvent(slide, theme))
	s.persistAfter(code, st)
	return nil
}

// UpdateTheme replaces the room-global theme for a slot and broadcasts it.
func (s *Service) UpdateTheme(ctx context.Context, code string, tt presentation.ThemeType, theme presentation.Theme) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetTheme(tt, theme); err != nil {
		return err
	}
	s.broadcast(code, presentation.ThemeEvent(tt, theme))
	s.persistAfter(code, st)
	return nil
}

// UpdateBackground replaces the room background and broadcasts it.
func (s *Service) UpdateBackground(ctx context.Context, code string, bg presentation.Background) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetBackground(bg); err != nil {
		return err
	}
	s.broadcast(code, presentation.BackgroundEvent(bg))
	s.persistAfter(code, st)
	return nil
}

// UpdateTool applies a tool activation or deactivation and broadcasts it.
func (s *Service) UpdateTool(ctx context.Context, code string, tool presentation.Tool) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetTool(tool); err != nil {
		return err
	}
	s.broadcast(code, presentation.ToolEvent(tool))
	s.persistAfter(code, st)
	return nil
}

// UpdateMedia loads media for the room (paused) and broadcasts it; an
// empty path clears media everywhere.
func (s *Service) UpdateMedia(ctx context.Context, code string, path string) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetMedia(path); err != nil {
		return err
	}
	s.broadcast(code, presentation.MediaEvent(path, presentation.Position{}))
	s.persistAfter(code, st)
	return nil
}

// UpdatePlayback applies a playback command to the room media and
// broadcasts the command with the resulting position.
func (s *Service) UpdatePlayback(ctx context.Context, code string, cmd presentation.PlaybackCommand) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.ApplyPlayback(cmd); err != nil {
		return err
	}
	pos, _ := st.MediaPosition()
	s.broadcast(code, presentation.PlaybackEvent(cmd, pos))
	s.persistAfter(code, st)
	return nil
}

// UpdateExternalVideo loads an external video for the room (paused) and
// broadcasts it.
func (s *Service) UpdateExternalVideo(ctx context.Context, code string, videoID string) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetExternalVideo(videoID); err != nil {
		return err
	}
	s.broadcast(code, presentation.ExternalVideoEvent(videoID, presentation.Position{}))
	s.persistAfter(code, st)
	return nil
}

// UpdateExternalPlayback applies a playback command to the external video
// and broadcasts the resulting position.
func (s *Service) UpdateExternalPlayback(ctx context.Context, code string, cmd presentation.PlaybackCommand) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.ApplyExternalPlayback(cmd); err != nil {
		return err
	}
	snap := st.Snapshot()
	var videoID string
	var pos presentation.Position
	if snap.ExternalVideo != nil {
		videoID = snap.ExternalVideo.VideoID
		pos = snap.ExternalVideo.Playback.PositionAt(st.Now())
	}
	s.broadcast(code, presentation.ExternalVideoEvent(videoID, pos))
	s.persistAfter(code, st)
	return nil
}

// UpdateMarkup caches the rendered markup for the room and broadcasts it.
func (s *Service) UpdateMarkup(ctx context.Context, code string, mc presentation.MarkupCache) error {
	st, err := s.state(ctx, code)
	if err != nil {
		return err
	}
	if err := st.SetMarkup(mc); err != nil {
		return err
	}
	s.broadcast(code, presentation.MarkupEvent(mc))
	s.persistAfter(code, st)
	return nil
}

// Snapshot returns the room's replay event sequence, the same payloads a
// joining viewer receives. Used by UI surfaces bootstrapping over HTTP.
func (s *Service) Snapshot(ctx context.Context, code string) ([]presentation.Event, error) {
	if _, err := s.Lookup(ctx, code); err != nil {
		return nil, err
	}
	st, err := s.state(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.replayEvents(ctx, st), nil
}

// End closes the room: members are notified, auxiliary state is dropped
// and the session record is deactivated.
func (s *Service) End(ctx context.Context, code string) error {
	if _, err := s.Lookup(ctx, code); err != nil {
		return err
	}
	return s.close(ctx, code, "ended")
}

// Expire force-closes a room past its expiry. Unlike End it does not
// require the room to still be active, so the sweeper can reap rooms the
// Lookup classification already treats as inactive.
func (s *Service) Expire(ctx context.Context, code string) error {
	return s.close(ctx, code, "expired")
}

func (s *Service) close(ctx context.Context, code, reason string) error {
	s.hub.BroadcastToRoom(code, presentation.RoomClosedEvent())

	s.mu.Lock()
	if st, ok := s.states[code]; ok {
		st.Clear()
		delete(s.states, code)
	}
	s.mu.Unlock()

	if err := s.repo.Deactivate(ctx, code); err != nil {
		return err
	}
	s.log.Info("room closed", slog.String("code", code), slog.String("reason", reason))
	return nil
}

// ActiveRoomCount returns the number of active sessions. Used for metrics.
func (s *Service) ActiveRoomCount(ctx context.Context) int {
	codes, err := s.repo.ActiveCodes(ctx)
	if err != nil {
		return 0
	}
	return len(codes)
}

// state returns the room's auxiliary store, rehydrating it from the
// persisted copy when the in-memory one is gone (process restart or
// operator reconnect against another instance).
func (s *Service) state(ctx context.Context, code string) (*presentation.Store, error) {
	s.mu.Lock()
	if st, ok := s.states[code]; ok {
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	if _, err := s.Lookup(ctx, code); err != nil {
		return nil, err
	}

	st := presentation.NewStore()
	if b, err := s.repo.LoadState(ctx, code); err == nil {
		var state presentation.State
		if err := json.Unmarshal(b, &state); err == nil {
			st.Restore(state)
		} else {
			s.log.Warn("persisted room state unreadable, starting fresh",
				slog.String("code", code), slog.String("error", err.Error()))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.states[code]; ok {
		return existing, nil
	}
	s.states[code] = st
	return st, nil
}

// replayEvents flattens the room state into the join reply sequence.
// A slide held only by reference gets its payload resolved from the
// content catalog; a failed lookup degrades to sending the reference.
func (s *Service) replayEvents(ctx context.Context, st *presentation.Store) []presentation.Event {
	snap := st.Snapshot()
	if snap.Slide != nil && len(snap.Slide.Payload) == 0 && snap.Slide.ContentID != "" && s.content != nil {
		if c, err := s.content.Get(ctx, snap.Slide.ContentID); err == nil {
			snap.Slide.Payload = c.Payload
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("content lookup failed for replay",
				slog.String("content_id", snap.Slide.ContentID), slog.String("error", err.Error()))
		}
	}
	themeFor := func(tt presentation.ThemeType) *presentation.Theme { return snap.Themes[tt] }
	return presentation.ReplayEvents(snap, themeFor, st.Now())
}

// broadcast queues an event for the room and counts it.
func (s *Service) broadcast(code string, ev presentation.Event) {
	s.hub.BroadcastToRoom(code, ev)
	if s.metrics != nil {
		s.metrics.IncBroadcasts()
	}
}

// persistAfter runs the save-behind write: activity timestamps plus the
// serialized room state, decoupled from the broadcast that already went
// out. Failures are logged and counted, never surfaced to viewers.
func (s *Service) persistAfter(code string, st *presentation.Store) {
	snap := st.Snapshot()
	now := s.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.repo.Touch(ctx, code, now, now.Add(s.ttl)); err != nil {
			s.log.Error("session touch failed", slog.String("code", code), slog.String("error", err.Error()))
			if s.metrics != nil {
				s.metrics.IncPersistErrors()
			}
			return
		}
		b, err := json.Marshal(snap)
		if err == nil {
			err = s.repo.SaveState(ctx, code, b)
		}
		if err != nil {
			s.log.Error("room state persist failed", slog.String("code", code), slog.String("error", err.Error()))
			if s.metrics != nil {
				s.metrics.IncPersistErrors()
			}
		}
	}()
}

package room

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"presentsync/internal/display"
	"presentsync/internal/presentation"
)

// Handler exposes the operator mutation endpoints and the two websocket
// fan-out surfaces. Operator actions go through the room service and are
// mirrored to the local display manager when one is wired, so a single
// action drives both transport domains from the same control flow.
type Handler struct {
	svc      *Service
	displays *display.Manager
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler. displays may be nil when no local output
// set is attached to this process.
func NewHandler(svc *Service, displays *display.Manager, log *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		displays: displays,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Routes mounts all room endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/rooms", h.CreateRoom)
	r.Route("/rooms/{code}", func(r chi.Router) {
		r.Get("/", h.GetRoom)
		r.Get("/snapshot", h.GetSnapshot)
		r.Post("/end", h.EndRoom)
		r.Post("/slide", h.UpdateSlide)
		r.Post("/theme", h.UpdateTheme)
		r.Post("/background", h.UpdateBackground)
		r.Post("/tool", h.UpdateTool)
		r.Post("/media", h.UpdateMedia)
		r.Post("/playback", h.UpdatePlayback)
		r.Post("/external-video", h.UpdateExternalVideo)
		r.Post("/external-playback", h.UpdateExternalPlayback)
		r.Post("/markup", h.UpdateMarkup)
	})
	r.Get("/ws/rooms", h.ServeViewerWS)
	r.Get("/ws/outputs", h.ServeOutputWS)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps the error taxonomy onto HTTP statuses with a reason the
// calling UI can render: not found, inactive and full each get their own
// answer instead of a generic failure.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	var verr *presentation.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, ErrRoomNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
	case errors.Is(err, ErrRoomInactive):
		writeJSON(w, http.StatusGone, map[string]string{"error": "room is not active"})
	case errors.Is(err, ErrRoomFull):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "room is at capacity"})
	default:
		h.log.Error("internal error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// CreateRoom handles POST /rooms. Body: { "operatorId": "..." }.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorID string `json:"operatorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	sess, err := h.svc.Create(r.Context(), req.OperatorID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetRoom handles GET /rooms/{code}.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// GetSnapshot handles GET /rooms/{code}/snapshot: the same event sequence
// a joining viewer receives, for UI surfaces bootstrapping over HTTP.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// EndRoom handles POST /rooms/{code}/end.
func (h *Handler) EndRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.End(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// UpdateSlide handles POST /rooms/{code}/slide.
func (h *Handler) UpdateSlide(w http.ResponseWriter, r *http.Request) {
	var slide presentation.Slide
	if err := json.NewDecoder(r.Body).Decode(&slide); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateSlide(r.Context(), chi.URLParam(r, "code"), slide); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastSlide(slide) })
	w.WriteHeader(http.StatusOK)
}

// UpdateTheme handles POST /rooms/{code}/theme.
// Body: { "themeType": "viewer", "theme": { ... } }.
func (h *Handler) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	var req presentation.ThemeData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateTheme(r.Context(), chi.URLParam(r, "code"), req.ThemeType, req.Theme); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastTheme(req.ThemeType, req.Theme) })
	w.WriteHeader(http.StatusOK)
}

// UpdateBackground handles POST /rooms/{code}/background.
func (h *Handler) UpdateBackground(w http.ResponseWriter, r *http.Request) {
	var bg presentation.Background
	if err := json.NewDecoder(r.Body).Decode(&bg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateBackground(r.Context(), chi.URLParam(r, "code"), bg); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastBackground(bg) })
	w.WriteHeader(http.StatusOK)
}

// UpdateTool handles POST /rooms/{code}/tool.
func (h *Handler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	var tool presentation.Tool
	if err := json.NewDecoder(r.Body).Decode(&tool); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateTool(r.Context(), chi.URLParam(r, "code"), tool); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastTool(tool) })
	w.WriteHeader(http.StatusOK)
}

// UpdateMedia handles POST /rooms/{code}/media. Body: { "path": "..." };
// an empty path clears the loaded media.
func (h *Handler) UpdateMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateMedia(r.Context(), chi.URLParam(r, "code"), req.Path); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastMedia(req.Path) })
	w.WriteHeader(http.StatusOK)
}

// UpdatePlayback handles POST /rooms/{code}/playback.
// Body: { "action": "play|pause|seek|stop", "time": 12.5 }.
func (h *Handler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	var cmd presentation.PlaybackCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdatePlayback(r.Context(), chi.URLParam(r, "code"), cmd); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastPlayback(cmd) })
	w.WriteHeader(http.StatusOK)
}

// UpdateExternalVideo handles POST /rooms/{code}/external-video.
// Body: { "videoId": "..." }; empty clears.
func (h *Handler) UpdateExternalVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoID string `json:"videoId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateExternalVideo(r.Context(), chi.URLParam(r, "code"), req.VideoID); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastExternalVideo(req.VideoID) })
	w.WriteHeader(http.StatusOK)
}

// UpdateExternalPlayback handles POST /rooms/{code}/external-playback.
// Same body shape as /playback, applied to the external video descriptor.
func (h *Handler) UpdateExternalPlayback(w http.ResponseWriter, r *http.Request) {
	var cmd presentation.PlaybackCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateExternalPlayback(r.Context(), chi.URLParam(r, "code"), cmd); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastExternalPlayback(cmd) })
	w.WriteHeader(http.StatusOK)
}

// UpdateMarkup handles POST /rooms/{code}/markup.
func (h *Handler) UpdateMarkup(w http.ResponseWriter, r *http.Request) {
	var mc presentation.MarkupCache
	if err := json.NewDecoder(r.Body).Decode(&mc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.UpdateMarkup(r.Context(), chi.URLParam(r, "code"), mc); err != nil {
		h.writeErr(w, err)
		return
	}
	h.mirror(func(m *display.Manager) error { return m.BroadcastMarkup(mc) })
	w.WriteHeader(http.StatusOK)
}

// mirror relays an accepted mutation to the local output set. The network
// mutation already validated the payload; a local failure only affects
// local windows and is logged, not returned.
func (h *Handler) mirror(fn func(*display.Manager) error) {
	if h.displays == nil {
		return
	}
	if err := fn(h.displays); err != nil {
		h.log.Warn("local mirror failed", slog.String("error", err.Error()))
	}
}

// ServeViewerWS handles GET /ws/rooms?code=X: the remote viewer join
// path. Join errors are answered before the upgrade so the client gets a
// proper HTTP status.
func (h *Handler) ServeViewerWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code query parameter is required"})
		return
	}
	if _, err := h.svc.Lookup(r.Context(), code); err != nil {
		h.writeErr(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client, err := h.svc.Join(r.Context(), code)
	if err != nil {
		// Joined between lookup and upgrade checks; tell the client why
		// before closing.
		conn.WriteJSON(map[string]string{"error": err.Error()})
		conn.Close()
		return
	}
	h.svc.ServeConn(conn, client)
}

// ServeOutputWS handles GET /ws/outputs?output_id=X&role=viewer: the
// attachment point for local display windows. The window signals
// readiness ("ready") after its own mount, which triggers the snapshot
// replay; "video-ready" triggers the delayed playback sync.
func (h *Handler) ServeOutputWS(w http.ResponseWriter, r *http.Request) {
	if h.displays == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no local output set on this instance"})
		return
	}
	outputID := r.URL.Query().Get("output_id")
	role := display.Role(r.URL.Query().Get("role"))
	if outputID == "" || !display.ValidRole(role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "output_id and a valid role are required"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	if err := h.displays.Attach(outputID, role, display.NewWSSurface(conn)); err != nil {
		conn.Close()
		return
	}

	defer h.displays.Detach(outputID)
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "ready":
			if err := h.displays.SetReady(outputID); err != nil {
				return
			}
		case "video-ready":
			h.displays.OnVideoReady(outputID)
		}
	}
}

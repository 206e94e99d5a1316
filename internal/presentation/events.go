package presentation

import (
	"sort"
	"time"
)

// Event is the wire envelope for every state update sent to a consumer.
// Live broadcasts and snapshot replays both build their payloads through
// the constructors below, which is what makes a replayed event identical
// to the live event a consumer would have received for the same state.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	EventSlide         = "slide"
	EventTheme         = "theme"
	EventBackground    = "background"
	EventTool          = "tool"
	EventMedia         = "media"
	EventPlayback      = "playback"
	EventExternalVideo = "external-video"
	EventMarkup        = "markup"
	EventViewerCount   = "viewer-count"
	EventRoomClosed    = "room-closed"
)

// SlideData pairs a slide with the effective theme for its content type.
type SlideData struct {
	Slide Slide  `json:"slide"`
	Theme *Theme `json:"theme,omitempty"`
}

// ThemeData carries a theme change for one slot.
type ThemeData struct {
	ThemeType ThemeType `json:"themeType"`
	Theme     Theme     `json:"theme"`
}

// MediaData carries the loaded media path with its live position computed
// at send time.
type MediaData struct {
	Path     string   `json:"path"`
	Position Position `json:"position"`
}

// PlaybackData carries a playback command together with the position the
// command left the descriptor at, so consumers apply it idempotently.
type PlaybackData struct {
	Command  PlaybackCommand `json:"command"`
	Position Position        `json:"position"`
}

// ExternalVideoData carries the external video id with its live position.
type ExternalVideoData struct {
	VideoID  string   `json:"videoId"`
	Position Position `json:"position"`
}

// ViewerCountData carries the room's viewer count snapshot.
type ViewerCountData struct {
	Count int64 `json:"count"`
}

func SlideEvent(slide Slide, theme *Theme) Event {
	return Event{Type: EventSlide, Data: SlideData{Slide: slide, Theme: theme}}
}

func ThemeEvent(tt ThemeType, theme Theme) Event {
	return Event{Type: EventTheme, Data: ThemeData{ThemeType: tt, Theme: theme}}
}

func BackgroundEvent(bg Background) Event {
	return Event{Type: EventBackground, Data: bg}
}

func ToolEvent(tool Tool) Event {
	return Event{Type: EventTool, Data: tool}
}

func MediaEvent(path string, pos Position) Event {
	return Event{Type: EventMedia, Data: MediaData{Path: path, Position: pos}}
}

func PlaybackEvent(cmd PlaybackCommand, pos Position) Event {
	return Event{Type: EventPlayback, Data: PlaybackData{Command: cmd, Position: pos}}
}

func ExternalVideoEvent(videoID string, pos Position) Event {
	return Event{Type: EventExternalVideo, Data: ExternalVideoData{VideoID: videoID, Position: pos}}
}

func MarkupEvent(m MarkupCache) Event {
	return Event{Type: EventMarkup, Data: m}
}

func ViewerCountEvent(count int64) Event {
	return Event{Type: EventViewerCount, Data: ViewerCountData{Count: count}}
}

func RoomClosedEvent() Event {
	return Event{Type: EventRoomClosed}
}

// ReplayEvents flattens a snapshot into the event sequence a consumer
// would have received had it been present for the last mutation in each
// category. themeFor supplies the effective theme per slot (per-consumer
// resolution happens in the caller); now anchors live position math.
// Tools are emitted in type order so replay is deterministic.
func ReplayEvents(snap State, themeFor func(ThemeType) *Theme, now time.Time) []Event {
	var events []Event

	if snap.Slide != nil {
		events = append(events, SlideEvent(*snap.Slide, themeFor(ThemeTypeFor(snap.Slide.ContentType))))
	}
	for _, tt := range []ThemeType{ThemeViewer, ThemeBible, ThemePrayer} {
		// A slot with no session theme emits nothing: a live consumer
		// would not have seen a theme event for it either. Overrides only
		// reshape themes that exist, they never invent one.
		if snap.Themes[tt] == nil {
			continue
		}
		if theme := themeFor(tt); theme != nil {
			events = append(events, ThemeEvent(tt, *theme))
		}
	}
	if snap.Background != nil {
		events = append(events, BackgroundEvent(*snap.Background))
	}

	types := make([]ToolType, 0, len(snap.Tools))
	for tt := range snap.Tools {
		types = append(types, tt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, tt := range types {
		events = append(events, ToolEvent(snap.Tools[tt]))
	}

	if snap.Media != nil {
		events = append(events, MediaEvent(snap.Media.Path, snap.Media.Playback.PositionAt(now)))
	}
	if snap.ExternalVideo != nil {
		events = append(events, ExternalVideoEvent(snap.ExternalVideo.VideoID, snap.ExternalVideo.Playback.PositionAt(now)))
	}
	if snap.Markup != nil {
		events = append(events, MarkupEvent(*snap.Markup))
	}

	return events
}

package presentation

import (
	"encoding/json"
	"time"
)

// ContentType classifies the material a slide was built from.
type ContentType string

const (
	ContentSong   ContentType = "song"
	ContentBible  ContentType = "bible"
	ContentPrayer ContentType = "prayer"
	ContentSermon ContentType = "sermon"
)

// ThemeType identifies one of the session's theme slots.
type ThemeType string

const (
	ThemeViewer ThemeType = "viewer"
	ThemeBible  ThemeType = "bible"
	ThemePrayer ThemeType = "prayer"
)

// themeForContent is the fixed content-to-theme-slot lookup applied whenever
// a slide is broadcast, so the right theme always travels with slide data.
var themeForContent = map[ContentType]ThemeType{
	ContentSong:   ThemeViewer,
	ContentBible:  ThemeBible,
	ContentPrayer: ThemePrayer,
	ContentSermon: ThemePrayer,
}

// ThemeTypeFor returns the theme slot that styles the given content type.
// Unknown content types fall back to the viewer theme.
func ThemeTypeFor(ct ContentType) ThemeType {
	if tt, ok := themeForContent[ct]; ok {
		return tt
	}
	return ThemeViewer
}

// Slide is the current slide for a session. It is replaced wholesale on
// every slide update, never patched field by field.
type Slide struct {
	ContentID   string          `json:"contentId,omitempty"`
	ContentType ContentType     `json:"contentType,omitempty"`
	Index       int             `json:"index"`
	Mode        string          `json:"mode,omitempty"`
	Blank       bool            `json:"blank"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Theme is an opaque styling record from one of the theme catalogs.
type Theme struct {
	ID    string          `json:"id"`
	Name  string          `json:"name,omitempty"`
	Style json.RawMessage `json:"style,omitempty"`
}

// ToolType identifies an overlay tool (countdown, announcement, ...).
type ToolType string

// Tool is an overlay tool payload. Only active tools are retained in
// session state; deactivating a tool removes its entry entirely.
type Tool struct {
	Type    ToolType        `json:"type"`
	Active  bool            `json:"active"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Background is the viewer background (a color, image or video reference).
type Background struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// PlaybackDescriptor is the time-anchored playback position for media.
// When Playing is false, Anchor is nil and Base is the exact resume point.
// When Playing is true, the live position is Base + (now - Anchor).
type PlaybackDescriptor struct {
	Base    float64    `json:"base"`
	Playing bool       `json:"playing"`
	Anchor  *time.Time `json:"anchor,omitempty"`
}

// MediaState describes the loaded local media file and its playback position.
type MediaState struct {
	Path     string             `json:"path"`
	Playback PlaybackDescriptor `json:"playback"`
}

// ExternalVideoState describes an externally hosted video and its playback
// position.
type ExternalVideoState struct {
	VideoID  string             `json:"videoId"`
	Playback PlaybackDescriptor `json:"playback"`
}

// MarkupCache is the rendered-markup blob with the dimensions it was
// rendered against, consumed by the capture overlay surface.
type MarkupCache struct {
	HTML   string `json:"html"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// State is everything a late-joining consumer needs to catch up with the
// session, as one aggregate.
type State struct {
	Slide         *Slide
	Background    *Background
	Themes        map[ThemeType]*Theme
	Tools         map[ToolType]Tool
	Media         *MediaState
	ExternalVideo *ExternalVideoState
	Markup        *MarkupCache
}

package display

import (
	"sync"

	"github.com/gorilla/websocket"

	"presentsync/internal/presentation"
)

// Role declares what a local output window renders.
type Role string

const (
	// RoleViewer is a projection surface shown to the congregation.
	RoleViewer Role = "viewer"
	// RoleStage is a stage-monitor surface shown to people on stage.
	RoleStage Role = "stage"
	// RoleOverlay is the capture overlay surface consuming rendered markup.
	RoleOverlay Role = "overlay"
)

// ValidRole reports whether r is a known output role.
func ValidRole(r Role) bool {
	switch r {
	case RoleViewer, RoleStage, RoleOverlay:
		return true
	}
	return false
}

// Surface is the transport side of one output window. Send delivers a
// single event; a failed Send means the window is gone and the manager
// drops the output.
type Surface interface {
	Send(ev presentation.Event) error
	Close() error
}

// WSSurface adapts a websocket connection to the Surface interface.
// Gorilla connections allow one concurrent writer, so sends serialize on
// a mutex.
type WSSurface struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSSurface wraps conn as a Surface.
func NewWSSurface(conn *websocket.Conn) *WSSurface {
	return &WSSurface{conn: conn}
}

// Send implements Surface.
func (s *WSSurface) Send(ev presentation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Close implements Surface.
func (s *WSSurface) Close() error {
	return s.conn.Close()
}

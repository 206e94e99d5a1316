package room

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ServeConn runs the read and write pumps for a joined client until the
// connection drops, then performs the leave cleanup. Blocks until the
// read pump exits.
func (s *Service) ServeConn(conn *websocket.Conn, client *Client) {
	go s.writePump(conn, client)
	s.readPump(conn, client)
}

// writePump relays queued events to the connection and keeps it alive
// with pings. Exits when the client's send channel is closed by the hub.
func (s *Service) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case ev, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("viewer write failed",
					slog.String("client_id", client.ID), slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames only to detect disconnects; viewers
// have nothing to say. Any transport-level close is treated the same way:
// leave cleanup.
func (s *Service) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		s.Leave(client)
		conn.Close()
	}()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Debug("viewer read error",
					slog.String("client_id", client.ID), slog.String("error", err.Error()))
			}
			return
		}
	}
}

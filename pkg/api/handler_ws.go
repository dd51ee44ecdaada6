package api

import (
	"log/slog"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// eventStreamHandler handles GET /events/stream, upgrading to a WebSocket
// connection and handing it to the event bus's ConnectionManager for its
// entire lifetime. Re-expressed in gin from the teacher's echo-based
// handler_ws.go: websocket.Accept only needs an http.ResponseWriter and
// *http.Request, which gin's Context exposes directly, so the upgrade
// itself is framework-agnostic.
func (s *Server) eventStreamHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("event stream: failed to accept websocket connection", "error", err)
		return
	}
	s.connManager.HandleConnection(c.Request.Context(), conn)
}

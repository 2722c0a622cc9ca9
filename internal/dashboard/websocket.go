package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxFrame     = 64 << 10
)

// handleChatSocket answers each inbound ChatRequest frame with one frame
// carrying the chat snapshot after the send completed.
func (s *Server) handleChatSocket(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed for session %s: %v", session.id, err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxFrame)

	ctx := detached(c.Request.Context())
	write := func(msg WebSocketMessage) error {
		msg.Timestamp = time.Now()
		msg.SessionID = session.id
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(msg)
	}

	if err := write(WebSocketMessage{Type: "snapshot", Data: session.chat.Snapshot()}); err != nil {
		return
	}

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket for session %s closed: %v", session.id, err)
			}
			return
		}

		status, result := sendChat(ctx, session, req.Message)
		msg := WebSocketMessage{Type: "chat", Data: result.response}
		if status != http.StatusOK {
			msg.Type = "error"
			msg.Error = result.errMessage
		}
		if err := write(msg); err != nil {
			s.logger.Debug("websocket write for session %s failed: %v", session.id, err)
			return
		}
	}
}

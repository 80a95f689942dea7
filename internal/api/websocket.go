package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket upgrades the connection and registers it against the caller's
// user ID so the notifier can push trade/activation events directly to
// their session. Browsers cannot set an Authorization header on a WebSocket
// upgrade request, so the token travels as a query parameter instead of
// going through AuthMiddleware.
func (s *Server) websocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := parseToken(token, s.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Sockets == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"notifications not ready"}`))
		return
	}

	s.Sockets.Register(userID, conn)
	defer s.Sockets.Unregister(userID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

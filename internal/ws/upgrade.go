package ws

import (
	"net/http"
	"time"

	"courierloc/config"
	"courierloc/internal/auth"
	"courierloc/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingPeriod   = 30 * time.Second
	maxFrameSize = 4096
)

// upgrader serves token-authenticated sockets, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// sameOriginUpgrader serves unauthenticated sockets. The default origin check refuses
// browser pages from other sites.
var sameOriginUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeDisplay upgrades a manager connection to a map viewer. The access token is
// passed in the token query parameter.
func ServeDisplay(cfg *config.JWTConfig, d *Display, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != domain.RoleManager {
			c.JSON(http.StatusForbidden, gin.H{"error": "manager access required"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		client := NewClient(claims.UserID, claims.Role)
		d.Join(client)
		defer client.Close()
		logger.Debug("map viewer connected", zap.Uint("user_id", claims.UserID))

		go writePump(client, conn)
		readPump(conn, func(data []byte) {
			if err := d.Handle(client, data); err != nil {
				logger.Debug("bad viewer frame", zap.Error(err))
			}
		})
	}
}

// ServeStream upgrades a connection to a read-only subscriber of s. Connections from
// a browser page of another origin are refused.
func ServeStream(s *Stream, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := sameOriginUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		client := NewClient(0, "")
		s.Join(client)
		defer client.Close()

		go writePump(client, conn)
		readPump(conn, nil)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn, onMessage func([]byte)) {
	conn.SetReadLimit(maxFrameSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if onMessage != nil {
			onMessage(data)
		}
	}
}

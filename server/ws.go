package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/strandapp/strand/utils/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the cors middleware on the http side.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventStreamHandler upgrades the connection to a websocket and streams the
// user's change events as json frames until the client disconnects.
func EventStreamHandler(channels *EventChannels) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.Request.Header.Get("sub")
		if userId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing user identity"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Log.Errorf("websocket upgrade failed for user %s: %v", userId, err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		events, _ := channels.AddConnection(ctx, userId)

		// Reader goroutine: the client never sends application frames, but
		// reading is what surfaces close and pong frames.
		go func() {
			defer cancel()
			conn.SetReadLimit(512)
			conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
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
}

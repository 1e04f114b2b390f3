package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emacross-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket pushes every strategy decision that fires a signal to the client
// until the client disconnects or the server shuts down.
func (s *Server) websocket(c *gin.Context) {
	if s.Bus == nil {
		respondError(c, http.StatusServiceUnavailable, "NO_BUS", "event bus not ready")
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}
	defer conn.Close()

	stream, unsub := s.Bus.Subscribe(events.EventStrategySignal, 100)
	defer unsub()

	// Reader goroutine notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-s.closing:
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}
}

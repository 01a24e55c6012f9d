package bus

import (
	"net/http"
	"strconv"

	"github.com/centrixhq/centrix/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GinHandlers contains HTTP handlers for the event surface.
type GinHandlers struct {
	service  *Service
	streamer *Streamer
}

// NewGinHandlers creates handlers for event queries and the push channel.
func NewGinHandlers(service *Service, streamer *Streamer) *GinHandlers {
	return &GinHandlers{
		service:  service,
		streamer: streamer,
	}
}

// TailEventsHandler handles GET requests for the newest events.
// Query parameters: limit, level, topic.
func (h *GinHandlers) TailEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 1000 {
				response.BadRequest(c, "limit must be between 1 and 1000")
				return
			}
			limit = parsed
		}

		events, err := h.service.TailEvents(limit, c.Query("level"), c.Query("topic"))
		response.Handle(c, events, err)
	}
}

// StreamEventsHandler upgrades the connection to a websocket and pushes
// newly appended events in append order until the client disconnects.
func (h *GinHandlers) StreamEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		stream, unsub := h.streamer.Subscribe(100)
		defer unsub()

		// Read pump. Clients send nothing, but the read is how a dropped
		// connection is noticed without waiting for the next event.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case event, ok := <-stream:
				if !ok {
					return
				}
				if err := conn.WriteJSON(event); err != nil {
					log.Debug().Err(err).Msg("websocket write failed, dropping subscriber")
					return
				}
			case <-closed:
				return
			}
		}
	}
}

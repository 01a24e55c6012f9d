package supervisor

import (
	"errors"

	"github.com/centrixhq/centrix/pkg/response"
	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for service supervision.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// StatusHandler handles GET requests for per-service run state and the
// aggregate running=N/M count.
func (h *GinHandlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses, err := h.service.Status()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		summary, err := h.service.RunningSummary()
		response.Handle(c, gin.H{"services": statuses, "summary": summary}, err)
	}
}

// StartHandler handles POST requests to start a named service.
func (h *GinHandlers) StartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Start(c.Param("name"))
		h.respond(c, gin.H{"result": result}, err)
	}
}

// StopHandler handles POST requests to stop a named service.
func (h *GinHandlers) StopHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Stop(c.Param("name"))
		h.respond(c, gin.H{"result": result}, err)
	}
}

// RestartHandler handles POST requests to restart a named service under a
// single held lock.
func (h *GinHandlers) RestartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.Restart(c.Param("name"))
		h.respond(c, gin.H{"result": "restarted"}, err)
	}
}

func (h *GinHandlers) respond(c *gin.Context, data interface{}, err error) {
	switch {
	case err == nil:
		response.Success(c, data)
	case errors.Is(err, ErrUnknownService):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrBusy):
		response.Conflict(c, "Service operation already in progress")
	default:
		response.InternalError(c, err.Error())
	}
}

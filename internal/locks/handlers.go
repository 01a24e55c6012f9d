package locks

import (
	"github.com/centrixhq/centrix/pkg/response"
	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for lock observability.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListLocksHandler handles GET requests for the current lease snapshot.
func (h *GinHandlers) ListLocksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locks, err := h.service.List()
		response.Handle(c, locks, err)
	}
}

// ReapLocksHandler handles POST requests to sweep elapsed leases.
func (h *GinHandlers) ReapLocksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.Reap()
		response.Handle(c, gin.H{"reaped": count}, err)
	}
}

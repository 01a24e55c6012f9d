package approval

import (
	"github.com/centrixhq/centrix/pkg/response"
	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for the approval surface.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// PendingApprovalsHandler handles GET requests for unresolved approvals.
func (h *GinHandlers) PendingApprovalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		approvals, err := h.service.Pending()
		response.Handle(c, approvals, err)
	}
}

// ConfirmHandler handles POST requests confirming an approval token.
// URL parameter: token.
func (h *GinHandlers) ConfirmHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.resolve(c, h.service.Confirm)
	}
}

// RejectHandler handles POST requests rejecting an approval token.
// URL parameter: token.
func (h *GinHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.resolve(c, h.service.Reject)
	}
}

// SweepHandler handles POST requests expiring overdue approvals.
func (h *GinHandlers) SweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.SweepExpired()
		response.Handle(c, gin.H{"expired": count}, err)
	}
}

func (h *GinHandlers) resolve(c *gin.Context, action func(string) (Outcome, error)) {
	token := c.Param("token")
	if token == "" {
		response.BadRequest(c, "Approval token is required")
		return
	}

	outcome, err := action(token)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	switch outcome {
	case OutcomeNotFound:
		response.NotFound(c, "Approval not found")
	case OutcomeAlreadyResolved:
		response.Conflict(c, "Approval already resolved")
	default:
		response.Success(c, gin.H{"outcome": outcome})
	}
}

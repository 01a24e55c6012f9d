// Package control is the mutating HTTP surface: command submission, state
// and mode changes, and test orders. Each operation maps onto the core
// contracts; sensitive submissions get an approval attached before they are
// claimable.
package control

import (
	"errors"
	"strconv"

	"github.com/centrixhq/centrix/internal/approval"
	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/queue"
	"github.com/centrixhq/centrix/internal/state"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/centrixhq/centrix/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service composes the submission path used by the HTTP surface and the
// chat-bot collaborator.
type Service struct {
	bus       *bus.Service
	queue     *queue.Service
	approvals *approval.Service
	state     *state.Controller

	approvalTTLSec int64
}

// NewService creates the control service.
func NewService(busService *bus.Service, queueService *queue.Service, approvalService *approval.Service, stateController *state.Controller, approvalTTLSec int64) *Service {
	if approvalTTLSec <= 0 {
		approvalTTLSec = 300
	}
	return &Service{
		bus:            busService,
		queue:          queueService,
		approvals:      approvalService,
		state:          stateController,
		approvalTTLSec: approvalTTLSec,
	}
}

// SubmitResult describes an accepted command.
type SubmitResult struct {
	CommandID     int64  `json:"command_id"`
	CorrID        string `json:"corr_id"`
	ApprovalToken string `json:"approval_token,omitempty"`
}

// Submit validates, enqueues, and — for sensitive types — attaches a
// PENDING approval so the command blocks until confirmed or expired.
func (s *Service) Submit(cmdType string, payload map[string]interface{}, corrID string) (*SubmitResult, error) {
	if corrID == "" {
		corrID = uuid.New().String()
	}

	id, err := s.bus.Enqueue(cmdType, payload, corrID)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{CommandID: id, CorrID: corrID}

	command, err := s.bus.GetCommand(id)
	if err != nil {
		return nil, err
	}
	if command != nil && types.IsSensitive(command.Type, command.Payload) {
		token, err := s.approvals.Request(id, s.approvalTTLSec)
		if err != nil {
			return nil, err
		}
		result.ApprovalToken = token
		log.Info().
			Str("component", "control").
			Int64("command_id", id).
			Str("type", cmdType).
			Msg("sensitive command gated behind approval")
	}
	return result, nil
}

// GinHandlers contains HTTP handlers for the control surface.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type submitRequest struct {
	Type    string                 `json:"type" binding:"required"`
	Payload map[string]interface{} `json:"payload"`
	CorrID  string                 `json:"corr_id"`
}

// SubmitCommandHandler handles POST requests enqueueing a command.
func (h *GinHandlers) SubmitCommandHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		h.submit(c, req.Type, req.Payload, req.CorrID)
	}
}

// GetCommandHandler handles GET requests for one command and its approval.
// URL parameter: id.
func (h *GinHandlers) GetCommandHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "Command id must be an integer")
			return
		}

		command, err := h.service.bus.GetCommand(id)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if command == nil {
			response.NotFound(c, "Command not found")
			return
		}

		record, err := h.service.approvals.ForCommand(id)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"command": command, "approval": record})
	}
}

// QueueHandler handles GET requests for recent commands and queue depth.
func (h *GinHandlers) QueueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		commands, err := h.service.queue.RecentCommands(50)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		pending, err := h.service.bus.PendingCommands()
		response.Handle(c, gin.H{"pending": pending, "commands": commands}, err)
	}
}

// StateHandler handles GET requests for the mode/pause snapshot.
func (h *GinHandlers) StateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := h.service.state.Snapshot()
		response.Handle(c, snapshot, err)
	}
}

// PauseHandler handles POST requests pausing execution immediately.
func (h *GinHandlers) PauseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.state.Pause(); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"paused": true})
	}
}

// ResumeHandler handles POST requests resuming execution.
func (h *GinHandlers) ResumeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.state.Resume(); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"paused": false})
	}
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetModeHandler handles POST requests routing a mode change through the
// queue. Switching to real returns the approval token the operator must
// confirm before the worker applies the change.
func (h *GinHandlers) SetModeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		h.submit(c, types.CmdModeSet, map[string]interface{}{"mode": req.Mode}, "")
	}
}

// TestOrderHandler handles POST requests placing a simulated test order.
func (h *GinHandlers) TestOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var order types.OrderPayload
		if err := c.ShouldBindJSON(&order); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		h.submit(c, types.CmdOrderTest, map[string]interface{}{
			"symbol":     order.Symbol,
			"side":       order.Side,
			"order_type": order.OrderType,
			"quantity":   order.Quantity,
			"price":      order.Price,
		}, "")
	}
}

func (h *GinHandlers) submit(c *gin.Context, cmdType string, payload map[string]interface{}, corrID string) {
	result, err := h.service.Submit(cmdType, payload, corrID)
	if err != nil {
		if errors.Is(err, bus.ErrInvalidCommand) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, result)
}

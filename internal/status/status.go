// Package status is the read-only observability surface: health, runtime
// KPIs, and the running-service count.
package status

import (
	"runtime"
	"time"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/state"
	"github.com/centrixhq/centrix/internal/supervisor"
	"github.com/centrixhq/centrix/pkg/response"
	"github.com/gin-gonic/gin"
)

// Version is the build version reported on the status surface.
const Version = "0.3.0"

// Service aggregates read-only snapshots from the core components.
type Service struct {
	bus        *bus.Service
	state      *state.Controller
	supervisor *supervisor.Service
}

// NewService creates the status service.
func NewService(busService *bus.Service, stateController *state.Controller, supervisorService *supervisor.Service) *Service {
	return &Service{
		bus:        busService,
		state:      stateController,
		supervisor: supervisorService,
	}
}

// Health reports ok iff every supervised service is observed up.
func (s *Service) Health() (map[string]interface{}, error) {
	services, err := s.supervisor.Status()
	if err != nil {
		return nil, err
	}
	ok := true
	for _, status := range services {
		if !status.Running {
			ok = false
			break
		}
	}
	return map[string]interface{}{"ok": ok, "services": services}, nil
}

// Metrics returns runtime KPIs and build metadata.
func (s *Service) Metrics() (map[string]interface{}, error) {
	pendingCommands, err := s.bus.PendingCommands()
	if err != nil {
		return nil, err
	}
	pendingApprovals, err := s.bus.PendingApprovals()
	if err != nil {
		return nil, err
	}
	eventCounts, err := s.bus.EventCounts()
	if err != nil {
		return nil, err
	}
	services, err := s.supervisor.Status()
	if err != nil {
		return nil, err
	}
	summary, err := s.supervisor.RunningSummary()
	if err != nil {
		return nil, err
	}
	snapshot, err := s.state.Snapshot()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"ts": time.Now().Format(time.RFC3339),
		"kpi": map[string]interface{}{
			"pending_commands":  pendingCommands,
			"pending_approvals": pendingApprovals,
			"events_by_level":   eventCounts,
		},
		"state":    snapshot,
		"services": services,
		"summary":  summary,
		"build": map[string]interface{}{
			"version":  Version,
			"go":       runtime.Version(),
			"platform": runtime.GOOS + "/" + runtime.GOARCH,
		},
	}, nil
}

// GinHandlers contains HTTP handlers for the status surface.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// HealthzHandler handles GET health checks used by operators and systemd.
func (h *GinHandlers) HealthzHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health, err := h.service.Health()
		response.Handle(c, health, err)
	}
}

// MetricsHandler handles GET requests for runtime KPIs.
func (h *GinHandlers) MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := h.service.Metrics()
		response.Handle(c, metrics, err)
	}
}

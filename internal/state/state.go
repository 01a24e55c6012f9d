// Package state owns the process-wide operating flags: trading mode and the
// pause switch. Both live in the kv table and are re-read at the point of
// use; no component caches them across process boundaries.
package state

import (
	"fmt"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/types"
)

const (
	keyMode   = "mode"
	keyPaused = "paused"
)

// Controller is the sole mutator of the mode and pause entries.
type Controller struct {
	bus *bus.Service
}

// NewController creates the mode/pause controller.
func NewController(busService *bus.Service) *Controller {
	return &Controller{bus: busService}
}

// Mode returns the current trading mode, defaulting to mock.
func (c *Controller) Mode() (string, error) {
	value, ok, err := c.bus.GetKV(keyMode)
	if err != nil {
		return "", err
	}
	if !ok || (value != types.ModeMock && value != types.ModeReal) {
		return types.ModeMock, nil
	}
	return value, nil
}

// SetMode persists the trading mode. Switching to real is routed through
// the approval gate as a sensitive mode.set command before this is called;
// the controller itself only performs the storage mutation.
func (c *Controller) SetMode(mode string) error {
	if mode != types.ModeMock && mode != types.ModeReal {
		return fmt.Errorf("mode must be %q or %q", types.ModeMock, types.ModeReal)
	}
	if err := c.bus.SetKV(keyMode, mode); err != nil {
		return err
	}
	_, _ = c.bus.Emit("state.mode", types.LevelInfo, map[string]interface{}{
		"mode": mode,
	}, "")
	return nil
}

// ForceMock flips the mode back to mock after a failed live-trading safety
// check. This is the one CRITICAL condition in the controller: it requires
// operator attention.
func (c *Controller) ForceMock(reason string) error {
	if err := c.bus.SetKV(keyMode, types.ModeMock); err != nil {
		return err
	}
	_, _ = c.bus.Emit("state.mode", types.LevelCritical, map[string]interface{}{
		"mode":    types.ModeMock,
		"reason":  reason,
		"message": "mode forced back to mock after failed live-trading safety check",
	}, "")
	return nil
}

// Pause stops side-effecting command execution until Resume.
func (c *Controller) Pause() error {
	if err := c.bus.SetKV(keyPaused, "true"); err != nil {
		return err
	}
	_, _ = c.bus.Emit("state.paused", types.LevelInfo, map[string]interface{}{
		"paused": true,
	}, "")
	return nil
}

// Resume restores normal execution.
func (c *Controller) Resume() error {
	if err := c.bus.SetKV(keyPaused, "false"); err != nil {
		return err
	}
	_, _ = c.bus.Emit("state.resumed", types.LevelInfo, map[string]interface{}{
		"paused": false,
	}, "")
	return nil
}

// IsPaused reads the pause flag fresh from the store.
func (c *Controller) IsPaused() (bool, error) {
	value, ok, err := c.bus.GetKV(keyPaused)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// Snapshot returns both flags for the status surface.
func (c *Controller) Snapshot() (map[string]interface{}, error) {
	mode, err := c.Mode()
	if err != nil {
		return nil, err
	}
	paused, err := c.IsPaused()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"mode":   mode,
		"paused": paused,
	}, nil
}

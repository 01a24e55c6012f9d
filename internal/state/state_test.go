package state

import (
	"path/filepath"
	"testing"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/database"
	"github.com/centrixhq/centrix/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(t *testing.T) (*Controller, *bus.Service) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ctl.db"))
	require.NoError(t, err)

	busService := bus.NewService(db)
	return NewController(busService), busService
}

func TestModeDefaultsToMock(t *testing.T) {
	controller, _ := newController(t)

	mode, err := controller.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeMock, mode)
}

func TestSetModeRoundTrip(t *testing.T) {
	controller, busService := newController(t)

	require.NoError(t, controller.SetMode(types.ModeReal))

	mode, err := controller.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeReal, mode)

	events, err := busService.TailEvents(10, "", "state.mode")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSetModeRejectsUnknownValue(t *testing.T) {
	controller, _ := newController(t)

	assert.Error(t, controller.SetMode("paper"))
}

func TestCorruptModeValueFallsBackToMock(t *testing.T) {
	controller, busService := newController(t)

	require.NoError(t, busService.SetKV("mode", "garbage"))

	mode, err := controller.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeMock, mode, "unreadable mode must degrade to the safe default")
}

func TestForceMockEmitsCritical(t *testing.T) {
	controller, busService := newController(t)

	require.NoError(t, controller.SetMode(types.ModeReal))
	require.NoError(t, controller.ForceMock("gateway_unavailable"))

	mode, err := controller.Mode()
	require.NoError(t, err)
	assert.Equal(t, types.ModeMock, mode)

	events, err := busService.TailEvents(10, types.LevelCritical, "state.mode")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Data, "gateway_unavailable")
}

func TestPauseResume(t *testing.T) {
	controller, busService := newController(t)

	paused, err := controller.IsPaused()
	require.NoError(t, err)
	assert.False(t, paused, "system starts unpaused")

	require.NoError(t, controller.Pause())
	paused, err = controller.IsPaused()
	require.NoError(t, err)
	assert.True(t, paused)

	// Pausing twice is harmless.
	require.NoError(t, controller.Pause())
	paused, err = controller.IsPaused()
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, controller.Resume())
	paused, err = controller.IsPaused()
	require.NoError(t, err)
	assert.False(t, paused)

	events, err := busService.TailEvents(10, "", "state.paused")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSnapshot(t *testing.T) {
	controller, _ := newController(t)

	require.NoError(t, controller.Pause())

	snapshot, err := controller.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, types.ModeMock, snapshot["mode"])
	assert.Equal(t, true, snapshot["paused"])
}

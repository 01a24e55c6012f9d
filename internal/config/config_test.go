package config

import (
	"testing"

	"github.com/centrixhq/centrix/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultServiceSet(t *testing.T) {
	prev := types.KnownServices
	t.Cleanup(func() { types.KnownServices = prev })

	settings := Load()

	assert.Equal(t, []string{"server", "worker", "slack", "adapter"}, settings.ServiceOrder)
	for _, name := range settings.ServiceOrder {
		require.NotEmpty(t, settings.Services[name], "service %s needs a launch command", name)
	}
	assert.Equal(t, settings.ServiceOrder, types.KnownServices)
}

func TestLoadCustomServiceSet(t *testing.T) {
	prev := types.KnownServices
	t.Cleanup(func() { types.KnownServices = prev })

	t.Setenv("CENTRIX_SERVICES", "server, worker ,ingest")
	settings := Load()

	assert.Equal(t, []string{"server", "worker", "ingest"}, settings.ServiceOrder)
	assert.Equal(t, settings.ServiceOrder, types.KnownServices)

	// Validation must agree with the configured set, not the default one.
	require.NoError(t, types.ValidatePayload(types.CmdSvcStart, map[string]interface{}{
		"service": "ingest",
	}))
	assert.ErrorIs(t, types.ValidatePayload(types.CmdSvcStart, map[string]interface{}{
		"service": "slack",
	}), types.ErrUnknownService)
}

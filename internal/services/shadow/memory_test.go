package shadow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vision-gateway-go/internal/models"
)

func TestOnCommandRejectsDuplicates(t *testing.T) {
	c := NewMemoryClient("cam-1")
	noop := func(context.Context, models.CommandRequest) models.CommandResponse {
		return models.CommandOK("ok", nil)
	}

	require.NoError(t, c.OnCommand(models.CommandStopProcessing, noop))
	err := c.OnCommand(models.CommandStopProcessing, noop)
	assert.ErrorIs(t, err, ErrDuplicateHandler)
}

func TestMemoryClientReportedMerge(t *testing.T) {
	c := NewMemoryClient("cam-1")
	ctx := context.Background()

	assert.ErrorIs(t, c.UpdateReportedProperties(ctx, map[string]any{"a": 1}), ErrNotOpen)

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.UpdateReportedProperties(ctx, map[string]any{"a": 1, "b": 2}))
	require.NoError(t, c.UpdateReportedProperties(ctx, map[string]any{"a": nil, "c": 3}))

	snap, err := c.GetPropertiesSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": 2, "c": 3}, snap.Reported)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "gw.devices.cam-1.commands.startProcessing", CommandSubject("gw", "cam-1", "startProcessing"))
	assert.Equal(t, "gw.devices.cam-1.events", EventSubject("gw", "cam-1"))
}

package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabledUsesNoopProviders(t *testing.T) {
	p, err := New(context.Background(), &Config{
		ServiceName: "webhookd-test",
		Enabled:     false,
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tracerProvider)
	assert.Nil(t, p.meterProvider)

	// Instruments must be safe to use even without an SDK behind them.
	ctx := context.Background()
	p.RecordIngest(ctx, "fresh", 12*time.Millisecond)
	p.RecordConflict(ctx)
	p.TaskStarted(ctx)
	p.TaskFinished(ctx, "processed")

	assert.NoError(t, p.Shutdown(ctx))
}

func TestNewNilConfigDefaults(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "webhookd", p.config.ServiceName)
	assert.False(t, p.config.Enabled)
}

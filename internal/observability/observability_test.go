package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomLabel(t *testing.T) {
	assert.Equal(t, "admin", RoomLabel("admin"))
	assert.Equal(t, "request", RoomLabel("request:42"))
	assert.Equal(t, "request:", RoomLabel("request:"))
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "giftdesk-test"})
	require.NoError(t, err)
	require.NotNil(t, Tracer)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartServiceSpan(context.Background(), "approval", "resolve")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("boom"))
}

func TestTrackQuery_Observes(t *testing.T) {
	assert.NotPanics(t, func() {
		done := TrackQuery("create", "observability_test")
		done()
	})
}

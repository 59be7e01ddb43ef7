//go:build integration

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/eventreg-api/internal/testutil/containers"
)

func TestRedisPubSub_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.NewRedisContainer(t)

	provider, err := NewRedisPubSub(rc.Client, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := provider.Subscribe(ctx, DefaultAvailabilityChannel)
	require.NoError(t, err)

	require.NoError(t, provider.Publish(ctx, DefaultAvailabilityChannel, []byte(`{"type":"AVAILABILITY_UPDATE"}`)))

	select {
	case msg := <-messages:
		assert.JSONEq(t, `{"type":"AVAILABILITY_UPDATE"}`, string(msg))
	case <-time.After(3 * time.Second):
		t.Fatal("message was not delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-messages:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 50*time.Millisecond, "Канал закрывается после отмены контекста")
}

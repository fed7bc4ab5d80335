package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/chainpress/chainpress/pkg/channels/gochannel"
	"github.com/chainpress/chainpress/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	return NewWatermillEventBus(pub, sub)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.ActionActivation, 1)

	err := bus.Handle(events.ActionActivationEvent, func(ctx context.Context, event interface{}) error {
		activation, ok := event.(*events.ActionActivation)
		require.True(t, ok)

		received <- activation

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.ActionActivation{
		BaseEvent: events.NewBaseEvent(events.ActionActivationEvent, "instance-1"),
		ActionID:  "action-1",
		Data:      map[string]any{"k": "v"},
	}
	require.NoError(t, bus.Publish(ctx, "instance-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, "action-1", got.ActionID)
		assert.Equal(t, "instance-1", got.InstanceID)
		assert.Equal(t, map[string]any{"k": "v"}, got.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("activation not delivered")
	}
}

func TestUnhandledEventTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan struct{}, 1)

	err := bus.Handle(events.InstanceFinishedEvent, func(ctx context.Context, event interface{}) error {
		received <- struct{}{}

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	// No handler for launches; the message must not block the stream.
	launched := events.InstanceLaunched{
		BaseEvent: events.NewBaseEvent(events.InstanceLaunchedEvent, "instance-1"),
		TriggerID: "trigger-1",
	}
	require.NoError(t, bus.Publish(ctx, "instance-1", launched))

	finished := events.InstanceFinished{
		BaseEvent: events.NewBaseEvent(events.InstanceFinishedEvent, "instance-1"),
		Duration:  time.Second,
	}
	require.NoError(t, bus.Publish(ctx, "instance-1", finished))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("finished event not delivered")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	bus := newTestBus(t)

	a := bus.GenerateID()
	b := bus.GenerateID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

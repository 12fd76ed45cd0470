package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func appServerEvent(workspaceID, method string) Event {
	return Event{
		Kind:        KindAppServer,
		WorkspaceID: workspaceID,
		Message:     Message{Method: method},
	}
}

func TestPublishSubscribeOrder(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bus.Publish(appServerEvent("w1", "a"))
	bus.Publish(appServerEvent("w1", "b"))
	bus.Publish(appServerEvent("w1", "c"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []string{"a", "b", "c"} {
		ev, err := sub.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, want, ev.Message.Method)
	}
}

func TestLagNoticeOnOverflow(t *testing.T) {
	bus := New(2)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(appServerEvent("w1", "m"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "m", first.Message.Method, "expected the first buffered event before a lag notice")

	second, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "m", second.Message.Method, "the ring's full backlog drains before the lag notice")

	third, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, KindLagNotice, third.Kind)
	require.NotZero(t, third.Dropped)
}

func TestInvalidEventDropped(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	bus.Publish(Event{Kind: KindAppServer, WorkspaceID: "", Message: Message{Method: "x"}})
	bus.Publish(appServerEvent("w1", "valid"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "valid", ev.Message.Method, "expected the invalid event to be dropped")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()
	sub.Unsubscribe()

	// Must not panic even though the subscriber's channel is closed.
	bus.Publish(appServerEvent("w1", "after-unsubscribe"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseUnblocksAllSubscribers(t *testing.T) {
	bus := New(4)
	s1 := bus.Subscribe()
	s2 := bus.Subscribe()

	bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, s := range []*Subscriber{s1, s2} {
		_, err := s.Recv(ctx)
		require.ErrorIs(t, err, ErrClosed)
	}
}

package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubBasic(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "battle:m1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "battle:m1", "|turn|1"))

	select {
	case msg := <-ch:
		assert.Equal(t, "battle:m1", msg.Channel)
		assert.Equal(t, "|turn|1", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestPubSubUnsubscribe(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "ch")
	require.NoError(t, err)

	cancel()
	cancel() // second call is a no-op

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel not closed after cancel")
	}
	assert.Zero(t, ps.Subscribers("ch"))

	// Publish to unsubscribed channel should not block
	assert.NoError(t, ps.Publish(ctx, "ch", "msg"))
}

func TestPubSubContextCancel(t *testing.T) {
	ps := NewPubSub(16)
	ctx, cancel := context.WithCancel(context.Background())

	ch, _, err := ps.Subscribe(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, 1, ps.Subscribers("ch"))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestPubSubMultipleSubscribers(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, _ := ps.Subscribe(ctx, "broadcast")
	ch2, cancel2, _ := ps.Subscribe(ctx, "broadcast")
	defer cancel1()
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "broadcast", "world"))

	for _, ch := range []<-chan *LocalMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "world", msg.Payload)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscriber did not receive message")
		}
	}
}

func TestPubSubDropsWhenFull(t *testing.T) {
	ps := NewPubSub(2)
	ctx := context.Background()
	ch, cancel, err := ps.Subscribe(ctx, "ch")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, ps.Publish(ctx, "ch", "x"))
	}
	assert.Len(t, ch, 2)
}

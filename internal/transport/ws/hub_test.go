package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	return h, cancel
}

func receive(t *testing.T, c *Connection) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHubBroadcastToBoundConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	defer func() {
		cancel()
		<-h.done
	}()

	a, b, other := h.NewConnection(nil), h.NewConnection(nil), h.NewConnection(nil)
	for _, c := range []*Connection{a, b, other} {
		h.Register(c)
	}
	require.Eventually(t, func() bool { return h.ConnectionCount() == 3 }, time.Second, 5*time.Millisecond)

	h.BindConversation(a, "c1")
	h.BindConversation(b, "c1")
	h.BindConversation(other, "c2")
	assert.Equal(t, 2, h.ConversationCount())

	require.NoError(t, h.BroadcastJSON("c1", map[string]string{"type": "delta"}))
	assert.JSONEq(t, `{"type":"delta"}`, string(receive(t, a)))
	assert.JSONEq(t, `{"type":"delta"}`, string(receive(t, b)))
	select {
	case <-other.Send:
		t.Fatal("connection bound to another conversation received the frame")
	case <-time.After(50 * time.Millisecond):
	}

	// Rebinding moves the connection.
	h.BindConversation(b, "c2")
	h.Broadcast("c2", []byte(`{}`))
	receive(t, b)
	receive(t, other)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	defer func() {
		cancel()
		<-h.done
	}()

	c := h.NewConnection(nil)
	h.Register(c)
	h.BindConversation(c, "c1")
	require.NoError(t, h.SendToConnection(c, []byte("hi")))
	assert.Equal(t, "hi", string(receive(t, c)))

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.ErrorIs(t, h.SendToConnection(c, []byte("late")), ErrConnectionClosed)
	assert.Equal(t, 0, h.ConversationCount())
}

func TestHubCallsReturnAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, cancel := startHub(t)
	cancel()
	<-h.done

	c := h.NewConnection(nil)
	h.Register(c)
	h.Unregister(c)
	h.Broadcast("c1", []byte(`{}`))
}

func TestConnectionStreamSlot(t *testing.T) {
	c := &Connection{}
	cancelled := false
	id, ok := c.startStream(func() { cancelled = true })
	assert.True(t, ok)
	_, ok = c.startStream(func() {})
	assert.False(t, ok)
	assert.True(t, c.endStream())
	assert.True(t, cancelled)
	assert.False(t, c.endStream())

	c.releaseStream(id)
	_, ok = c.startStream(func() {})
	assert.True(t, ok)
}

func TestReleaseStreamKeepsNewerReply(t *testing.T) {
	c := &Connection{}

	ctxA, cancelA := context.WithCancel(context.Background())
	idA, ok := c.startStream(cancelA)
	require.True(t, ok)

	// Client cancels A, then starts B before A has unwound.
	require.True(t, c.endStream())
	require.Error(t, ctxA.Err())

	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()
	idB, ok := c.startStream(cancelB)
	require.True(t, ok)

	c.releaseStream(idA)
	assert.NoError(t, ctxB.Err(), "releasing an old reply must not cancel the current one")

	_, ok = c.startStream(func() {})
	assert.False(t, ok, "slot still belongs to B")

	c.releaseStream(idB)
	_, ok = c.startStream(func() {})
	assert.True(t, ok)
}

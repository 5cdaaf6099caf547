package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/supportdesk/tests/helpers"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	svc, _ := helpers.NewMockService(t)
	srv, err := NewServer(svc, "demo-user", nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)

	client, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return client
}

func TestRPCSendMessage(t *testing.T) {
	client := startServer(t)

	resp, err := client.SendMessage(context.Background(), SendMessageArgs{Content: "Where is my order ORD-9283?"})
	require.NoError(t, err)
	require.Len(t, resp.AgentMessages, 2)
	assert.Equal(t, "order", resp.AgentMessages[1].Role)
	require.NotNil(t, resp.AgentMessages[1].Data)
	assert.Equal(t, "ORD-9283", resp.AgentMessages[1].Data.Order.ID)

	_, err = client.SendMessage(context.Background(), SendMessageArgs{})
	assert.Error(t, err)
}

func TestRPCClassify(t *testing.T) {
	client := startServer(t)

	reply, err := client.Classify(context.Background(), "I was charged twice")
	require.NoError(t, err)
	assert.Equal(t, "billing", reply.Responder)
	assert.Equal(t, "I'll connect you with our Billing Agent to assist you.", reply.Notice)

	_, err = client.Classify(context.Background(), "")
	assert.Error(t, err)
}

func TestRPCListAgents(t *testing.T) {
	client := startServer(t)

	reply, err := client.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, reply.Agents, 4)
	assert.Equal(t, "router", reply.Agents[0].Type)
}

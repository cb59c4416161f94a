package liveserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewHub verifies hub creation
func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
}

// TestHubRegisterClient verifies client registration
func TestHubRegisterClient(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, hub.ClientCount())
}

// TestHubUnregisterClient verifies client unregistration
func TestHubUnregisterClient(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, hub.ClientCount())
}

// TestHubBroadcast verifies message broadcasting
func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	sent := NewPortfolioMessage(map[string]string{"portfolio": "pf", "realized": "100"})
	hub.Broadcast(sent)

	select {
	case got := <-client.GetSendChan():
		assert.Equal(t, TypePortfolio, got.Type)
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

// TestHubBroadcastReachesAllClients verifies fanout
func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = NewClient("test")
		hub.Register(clients[i])
	}
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(NewPositionMessage(nil))

	for _, c := range clients {
		select {
		case got := <-c.GetSendChan():
			assert.Equal(t, TypePosition, got.Type)
		case <-time.After(time.Second):
			t.Fatal("broadcast not delivered to all clients")
		}
	}
}

// TestSlowClientDropped verifies a client with a full buffer is removed
func TestSlowClientDropped(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("slow")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	// Fill the client's buffer without draining it.
	for i := 0; i < 300; i++ {
		hub.Broadcast(NewSnapshotMessage(i))
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

// TestClientSendAfterClose verifies Send is safe after Close
func TestClientSendAfterClose(t *testing.T) {
	client := NewClient("test")
	client.Close()

	assert.False(t, client.Send(NewSnapshotMessage(nil)))

	// Double close must not panic.
	client.Close()
}

// TestHubShutdownClosesClients verifies context cancellation cleanup
func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := NewClient("test")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, client.Send(NewSnapshotMessage(nil)))
}

package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageAppendsSessionClosedLine(t *testing.T) {
	dir := t.TempDir()
	body, err := json.Marshal(SessionClosedEvent{
		Email:     "luis@uni.edu",
		Name:      "Luis",
		IP:        "203.0.113.5",
		UserAgent: "Mozilla/5.0",
		ClosedAt:  "2026-09-01T12:00:00Z",
		Reason:    "inactividad",
	})
	require.NoError(t, err)

	require.NoError(t, HandleMessage(dir, SessionClosedQueue, body))
	require.NoError(t, HandleMessage(dir, SessionClosedQueue, body))

	out, err := os.ReadFile(filepath.Join(dir, outboxFile))
	require.NoError(t, err)
	require.Contains(t, string(out), "[2026-09-01T12:00:00Z] Session closed | to=luis@uni.edu")
	require.Contains(t, string(out), `reason="inactividad"`)
	require.Equal(t, 2, strings.Count(string(out), "\n"))
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, HandleMessage(dir, LoginCodeQueue, []byte("{")))
	require.Error(t, HandleMessage(dir, "unknown.queue", []byte("{}")))

	_, err := os.Stat(filepath.Join(dir, outboxFile))
	require.True(t, os.IsNotExist(err))
}

func TestForwardStopsWhenLoopContextEnds(t *testing.T) {
	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{RoutingKey: LoginCodeQueue}
	msgs <- amqp.Delivery{RoutingKey: SessionClosedQueue}
	out := make(chan amqp.Delivery) // nobody reads

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		forward(ctx, msgs, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forward still blocked after cancel")
	}
}

func TestForwardDrainsUntilClosed(t *testing.T) {
	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{RoutingKey: LoginCodeQueue}
	msgs <- amqp.Delivery{RoutingKey: SessionClosedQueue}
	close(msgs)
	out := make(chan amqp.Delivery, 2)

	forward(context.Background(), msgs, out)
	require.Len(t, out, 2)
	require.Equal(t, LoginCodeQueue, (<-out).RoutingKey)
}

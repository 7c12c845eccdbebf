package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"job-harvester/internal/domain/harvest"
	"job-harvester/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func subscribe(t *testing.T, h *Hub, taskID string, buffer int) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan []byte, buffer), taskID: taskID}
	before := h.ClientCount()
	h.Register(c)
	require.Eventually(t, func() bool { return h.ClientCount() == before+1 }, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case b, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return b
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected message %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastRespectsTaskFilter(t *testing.T) {
	h, _ := newTestHub(t)
	all := subscribe(t, h, "", 4)
	only := subscribe(t, h, "t-1", 4)
	other := subscribe(t, h, "t-2", 4)

	h.Broadcast(Message{TaskID: "t-1", Payload: []byte("one")})

	assert.Equal(t, "one", string(receive(t, all)))
	assert.Equal(t, "one", string(receive(t, only)))
	assertSilent(t, other)
}

func TestHub_UntargetedMessageReachesEveryone(t *testing.T) {
	h, _ := newTestHub(t)
	a := subscribe(t, h, "t-1", 4)
	b := subscribe(t, h, "t-2", 4)

	h.Broadcast(Message{Payload: []byte("hello")})

	assert.Equal(t, "hello", string(receive(t, a)))
	assert.Equal(t, "hello", string(receive(t, b)))
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h, _ := newTestHub(t)
	slow := subscribe(t, h, "", 1)

	h.Broadcast(Message{Payload: []byte("a")})
	h.Broadcast(Message{Payload: []byte("b")})

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a", string(<-slow.send))
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h, _ := newTestHub(t)
	c := subscribe(t, h, "", 1)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)

	// A second unregister for the same client is harmless.
	h.Unregister(c)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	h, cancel := newTestHub(t)
	c := subscribe(t, h, "", 1)

	cancel()

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client not disconnected on stop")
	}
}

func TestHub_NilIsSafe(t *testing.T) {
	var h *Hub
	h.Broadcast(Message{Payload: []byte("x")})
	h.Register(nil)
	h.Unregister(nil)
	assert.Equal(t, 0, h.ClientCount())
}

func TestPublisher_EncodesTaskEvents(t *testing.T) {
	h, _ := newTestHub(t)
	c := subscribe(t, h, "t-9", 4)
	p := NewPublisher(h)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.Publish(task.Event{
		Kind:             task.EventApproval,
		TaskID:           "t-9",
		Status:           harvest.TaskRunning,
		Progress:         1,
		Total:            3,
		AwaitingApproval: true,
		NextURL:          "https://example.com/jobs",
		At:               at,
	})

	var got TaskUpdatedEvent
	require.NoError(t, json.Unmarshal(receive(t, c), &got))
	assert.Equal(t, "task_updated", got.Type)
	assert.Equal(t, string(task.EventApproval), got.Change)
	assert.Equal(t, "t-9", got.TaskID)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 1, got.Progress)
	assert.Equal(t, 3, got.Total)
	assert.True(t, got.AwaitingApproval)
	assert.Equal(t, "https://example.com/jobs", got.NextURL)
	assert.Equal(t, at.Format(time.RFC3339Nano), got.Timestamp)
}

func TestPublisher_RegistryListener(t *testing.T) {
	h, _ := newTestHub(t)
	c := subscribe(t, h, "", 8)

	reg := task.NewRegistry(task.WithListener(NewPublisher(h).Publish))
	created := reg.Create(2)

	var got TaskUpdatedEvent
	require.NoError(t, json.Unmarshal(receive(t, c), &got))
	assert.Equal(t, created.ID, got.TaskID)
	assert.Equal(t, string(task.EventCreated), got.Change)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, 2, got.Total)
}

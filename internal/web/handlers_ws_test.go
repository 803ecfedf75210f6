package web

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"taskomat/internal/comm"
)

func newTestHub() *WSHub {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWSHub(logger)
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count := len(hub.clients)
	hub.mu.RUnlock()
	if count != 1 {
		t.Errorf("after register: count = %d, want 1", count)
	}

	hub.unregister <- client

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count = len(hub.clients)
	hub.mu.RUnlock()
	if count != 0 {
		t.Errorf("after unregister: count = %d, want 0", count)
	}
}

func TestWSHubBroadcastDeliversMessages(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	c1 := &wsClient{send: make(chan []byte, 16)}
	c2 := &wsClient{send: make(chan []byte, 16)}

	hub.register <- c1
	hub.register <- c2
	time.Sleep(10 * time.Millisecond)

	want := comm.Message{
		Type:      comm.MessageStepStarted,
		Text:      "Step started",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		StepIndex: 2,
	}
	hub.Broadcast(want)
	time.Sleep(10 * time.Millisecond)

	for i, c := range []*wsClient{c1, c2} {
		select {
		case data := <-c.send:
			var got comm.Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("client %d: %v", i, err)
			}
			if got.Type != want.Type || got.StepIndex != want.StepIndex {
				t.Errorf("client %d: got %+v", i, got)
			}
		default:
			t.Errorf("client %d received nothing", i)
		}
	}
}

func TestWSHubEvictsSlowClient(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	// Unbuffered send channel fills immediately.
	slow := &wsClient{send: make(chan []byte)}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(comm.Message{Type: comm.MessageStepStarted})
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count := len(hub.clients)
	hub.mu.RUnlock()
	if count != 0 {
		t.Errorf("slow client not evicted: count = %d", count)
	}
}

func TestWSHubStopClosesClients(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	time.Sleep(10 * time.Millisecond)

	select {
	case _, open := <-client.send:
		if open {
			t.Error("expected send channel to be closed")
		}
	default:
		t.Error("send channel not closed after Stop")
	}

	// Stop is idempotent.
	hub.Stop()
}

func TestServerBroadcastsBusMessages(t *testing.T) {
	srv := setupTestServer(t, "")

	client := &wsClient{send: make(chan []byte, 16)}
	srv.wsHub.register <- client
	time.Sleep(10 * time.Millisecond)

	srv.bus.Publish(comm.Message{Type: comm.MessageSequenceStarted, Text: "Sequence started"})
	time.Sleep(10 * time.Millisecond)

	select {
	case data := <-client.send:
		var got comm.Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got.Type != comm.MessageSequenceStarted {
			t.Errorf("got %+v", got)
		}
	default:
		t.Error("bus message not forwarded to WebSocket client")
	}
}

package natsbus

import (
	"bytes"
	"testing"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
)

func TestBusStartStop(t *testing.T) {
	bus, err := New(config.NATSConfig{
		Port: 0, // Random port
	})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	url := bus.ClientURL()
	if url == "" {
		t.Fatal("expected non-empty client URL")
	}
}

func TestPubSub(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	_, err = client.Subscribe("test.subject", func(subject string, data []byte) {
		received <- string(data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.Publish("test.subject", []byte("hello")); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != "hello" {
			t.Errorf("expected 'hello', got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishJSON(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	_, err = client.Subscribe("test.json", func(subject string, data []byte) {
		received <- string(data)
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	payload := map[string]string{"key": "value"}
	if err := client.PublishJSON("test.json", payload); err != nil {
		t.Fatalf("publish json error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if data != `{"key":"value"}` {
			t.Errorf("expected json, got '%s'", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0, CompressAbove: 64})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	// Well above the threshold and compressible.
	payload := bytes.Repeat([]byte("swarm"), 200)

	received := make(chan []byte, 1)
	_, err = client.Subscribe("test.compressed", func(subject string, data []byte) {
		received <- data
	})
	if err != nil {
		t.Fatalf("subscribe error: %v", err)
	}

	if err := client.Publish("test.compressed", payload); err != nil {
		t.Fatalf("publish error: %v", err)
	}
	client.Flush()

	select {
	case data := <-received:
		if !bytes.Equal(data, payload) {
			t.Errorf("payload mangled: got %d bytes, want %d", len(data), len(payload))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestRequestReply(t *testing.T) {
	bus, err := New(config.NATSConfig{Port: 0})
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	defer bus.Close()

	client, err := NewClient(bus)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	sub, err := client.SubscribeReply("test.control", func(data []byte) []byte {
		return append([]byte("echo:"), data...)
	})
	if err != nil {
		t.Fatalf("subscribe reply error: %v", err)
	}

	msg, err := client.Request("test.control", []byte("ping"), 2*time.Second)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if string(msg.Data) != "echo:ping" {
		t.Errorf("expected echo:ping, got %s", msg.Data)
	}

	// With the responder gone, requests time out instead of hanging.
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe error: %v", err)
	}
	if _, err := client.Request("test.control", []byte("ping"), 200*time.Millisecond); err == nil {
		t.Error("expected error after responder unsubscribed")
	}
}

func TestSubjectNames(t *testing.T) {
	if got := SubjectAgentInbox("a1"); got != "agent.a1.inbox" {
		t.Errorf("expected agent.a1.inbox, got %s", got)
	}
	if got := SubjectAgentControl("a1"); got != "agent.a1.control" {
		t.Errorf("expected agent.a1.control, got %s", got)
	}
	if got := SubjectEventsTopology(); got != "events.swarm.topology" {
		t.Errorf("expected events.swarm.topology, got %s", got)
	}
	if got := SubjectEventsMembership(); got != "events.swarm.membership" {
		t.Errorf("expected events.swarm.membership, got %s", got)
	}
}

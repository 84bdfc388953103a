package sse

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroker_DeliversToSubscribers(t *testing.T) {
	broker := NewBroker()
	defer broker.Stop()

	client := broker.Subscribe("test-client")
	defer broker.Unsubscribe(client)

	broker.Broadcast(Event{Type: EventTodoCreated, Data: map[string]int64{"id": 7}})

	select {
	case msg := <-client.Messages:
		if msg.Type != string(EventTodoCreated) {
			t.Errorf("expected type %q, got %q", EventTodoCreated, msg.Type)
		}
		var decoded Event
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			t.Fatalf("message data should be valid JSON: %v", err)
		}
		if decoded.Type != EventTodoCreated {
			t.Errorf("expected decoded type %q, got %q", EventTodoCreated, decoded.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestBroker_StopClosesClients(t *testing.T) {
	broker := NewBroker()

	client := broker.Subscribe("test-client")
	broker.Stop()

	select {
	case _, ok := <-client.Messages:
		if ok {
			t.Error("expected closed channel after stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBroker_SubscribeAfterStop(t *testing.T) {
	broker := NewBroker()
	broker.Stop()

	subscribed := make(chan *Client, 1)
	go func() { subscribed <- broker.Subscribe("late-client") }()

	select {
	case client := <-subscribed:
		select {
		case _, ok := <-client.Messages:
			if ok {
				t.Error("expected closed channel for client subscribed after stop")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for channel close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe blocked after stop")
	}
}

func TestFormatSSEMessage(t *testing.T) {
	got := string(formatSSEMessage("todo_created", []byte(`{"id":1}`)))
	want := "event: todo_created\ndata: {\"id\":1}\n\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

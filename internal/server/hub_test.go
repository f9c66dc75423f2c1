package server

import (
	"context"
	"testing"
	"time"
)

func TestHubPublishReachesRoomMembers(t *testing.T) {
	hub := NewHub()

	stream, cleanup := hub.Subscribe(context.Background(), "u1")
	defer cleanup()

	hub.Publish(HubMessage{UserID: "u1", Event: socketEventPropertyUpdated, Data: "payload"})

	select {
	case message := <-stream:
		if message.Event != socketEventPropertyUpdated {
			t.Fatalf("unexpected event: %q", message.Event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected message on subscriber stream")
	}
}

func TestHubPublishSkipsOtherRooms(t *testing.T) {
	hub := NewHub()

	stream, cleanup := hub.Subscribe(context.Background(), "u1")
	defer cleanup()

	hub.Publish(HubMessage{UserID: "u2", Event: socketEventPropertyUpdated})

	select {
	case message := <-stream:
		t.Fatalf("unexpected cross-room delivery: %#v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubCleanupLeavesRoom(t *testing.T) {
	hub := NewHub()

	_, cleanup := hub.Subscribe(context.Background(), "u1")
	if hub.RoomSize("u1") != 1 {
		t.Fatalf("expected room size 1, got %d", hub.RoomSize("u1"))
	}
	cleanup()
	if hub.RoomSize("u1") != 0 {
		t.Fatalf("expected empty room after cleanup, got %d", hub.RoomSize("u1"))
	}
}

func TestHubSubscribeEmptyUserIDYieldsClosedStream(t *testing.T) {
	hub := NewHub()

	stream, cleanup := hub.Subscribe(context.Background(), "")
	defer cleanup()

	if _, open := <-stream; open {
		t.Fatalf("expected closed stream for empty user id")
	}
}

func TestHubContextCancellationLeavesRoom(t *testing.T) {
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	_, cleanup := hub.Subscribe(ctx, "u1")
	defer cleanup()

	cancel()
	deadline := time.Now().Add(time.Second)
	for hub.RoomSize("u1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected cancellation to leave room")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubCleanupClosesStream(t *testing.T) {
	hub := NewHub()

	stream, cleanup := hub.Subscribe(context.Background(), "u1")
	cleanup()

	select {
	case _, open := <-stream:
		if open {
			t.Fatalf("expected closed stream after cleanup")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected stream to close after cleanup")
	}

	// Repeat cleanup and a late publish must both be harmless.
	cleanup()
	hub.Publish(HubMessage{UserID: "u1", Event: socketEventPropertyUpdated})
}

func TestHubForwarderLoopExitsAfterCleanup(t *testing.T) {
	hub := NewHub()

	stream, cleanup := hub.Subscribe(context.Background(), "u1")
	done := make(chan struct{})
	go func() {
		for range stream {
		}
		close(done)
	}()

	hub.Publish(HubMessage{UserID: "u1", Event: socketEventPropertyUpdated})
	cleanup()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected forwarder loop to exit after cleanup")
	}
}

func TestRoomName(t *testing.T) {
	if RoomName("abc") != "user_abc" {
		t.Fatalf("unexpected room name: %q", RoomName("abc"))
	}
}

package server

import (
	"context"
	"sync"
)

// RoomName derives the logical channel an authenticated connection joins.
func RoomName(userID string) string {
	return "user_" + userID
}

// HubMessage is one event addressed to every connection in a user's room.
type HubMessage struct {
	UserID string
	Event  string
	Data   interface{}
}

// Hub tracks the per-user rooms socket connections join. Rooms enable
// targeted server push; the socket adapter currently emits its events to the
// originating connection only.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[int64]*hubMember
	nextID     int64
	bufferSize int
}

type hubMember struct {
	id     int64
	stream chan HubMessage
	done   chan struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[int64]*hubMember),
		bufferSize: 16,
	}
}

// Subscribe joins the user's room and returns the member's event stream. The
// membership ends when ctx is done or the cleanup function runs.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan HubMessage, func()) {
	if userID == "" {
		ch := make(chan HubMessage)
		close(ch)
		return ch, func() {}
	}
	member := &hubMember{
		id:     h.nextSequence(),
		stream: make(chan HubMessage, h.bufferSize),
		done:   make(chan struct{}),
	}
	h.register(userID, member)
	cleanup := func() {
		h.unregister(userID, member.id)
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-member.done:
		}
	}()
	return member.stream, cleanup
}

// Publish delivers the message to every member of the user's room. Slow
// members are skipped rather than blocking the publisher. Sends happen under
// the read lock so a member's stream cannot close mid-send.
func (h *Hub) Publish(message HubMessage) {
	if message.UserID == "" || message.Event == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, member := range h.rooms[message.UserID] {
		select {
		case member.stream <- message:
		default:
		}
	}
}

// RoomSize reports how many connections currently share the user's room.
func (h *Hub) RoomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

func (h *Hub) nextSequence() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	return h.nextID
}

func (h *Hub) register(userID string, member *hubMember) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[userID]; !ok {
		h.rooms[userID] = make(map[int64]*hubMember)
	}
	h.rooms[userID][member.id] = member
}

// unregister removes the member and closes its stream so range loops over it
// terminate. Only the first call for a member finds it in the room; repeat
// calls from the ctx watcher and a deferred cleanup are no-ops.
func (h *Hub) unregister(userID string, memberID int64) {
	h.mu.Lock()
	members := h.rooms[userID]
	if member, ok := members[memberID]; ok {
		delete(members, memberID)
		if len(members) == 0 {
			delete(h.rooms, userID)
		}
		close(member.stream)
		close(member.done)
	}
	h.mu.Unlock()
}

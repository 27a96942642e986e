// Package chat owns the in-memory presence and message state for the chat
// service: which participant is in which room, and each room's bounded
// message history. It has no knowledge of the transport layer.
package chat

import "time"

// Participant is one active connection with a display name and, once joined,
// a current room. A participant belongs to at most one room at a time.
type Participant struct {
	ConnectionID string `json:"-"`
	DisplayName  string `json:"userName"`
	CurrentRoom  string `json:"roomName"`
}

// Message is a single chat message. Messages are immutable once created and
// remain in a room's history even after their author disconnects.
type Message struct {
	ID        string    `json:"id"`
	RoomName  string    `json:"roomName"`
	UserName  string    `json:"userName"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

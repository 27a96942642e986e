// Package protocol translates transport-level commands into registry
// operations and decides the notification fan-out for each action. It is
// transport-agnostic: any mechanism that can deliver events to a single
// connection or to a named group satisfies its Transport contract.
package protocol

import (
	"time"

	"github.com/quangtn/roomcast/internal/chat"
)

// Inbound command names. Payload shapes are a stable contract independent of
// the transport carrying them.
const (
	CommandJoin        = "join"
	CommandSwitchRoom  = "switchRoom"
	CommandSendMessage = "sendMessage"
)

// Outbound event names for the multi-room protocol.
const (
	EventRoomHistory       = "roomHistory"
	EventUserJoinedRoom    = "userJoinedRoom"
	EventUserLeftRoom      = "userLeftRoom"
	EventNewMessage        = "newMessage"
	EventRoomMembersUpdate = "roomMembersUpdate"
	EventCommandError      = "commandError"
	EventOnlineCountUpdate = "onlineCountUpdate"
)

// Outbound event names for the single-room legacy protocol.
const (
	EventChatHistory = "chatHistory"
	EventUserJoined  = "userJoined"
	EventUserLeft    = "userLeft"
)

// JoinCommand asks to join a room under a display name.
type JoinCommand struct {
	DisplayName string `json:"displayName"`
	RoomName    string `json:"roomName"`
}

// SwitchRoomCommand asks to move an already-joined participant to a new room.
type SwitchRoomCommand struct {
	NewRoomName string `json:"newRoomName"`
}

// SendMessageCommand asks to post a message into the sender's current room.
type SendMessageCommand struct {
	Body     string `json:"body"`
	RoomName string `json:"roomName"`
}

// Event is an outbound notification. The Name discriminant is decided once by
// the constructor that built the event; consumers must never infer the kind
// of an event from its payload shape.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// HistoryPayload carries a room's message history to a single requester.
type HistoryPayload struct {
	RoomName string         `json:"roomName"`
	Messages []chat.Message `json:"messages"`
}

// PresencePayload announces a participant entering or leaving a room.
type PresencePayload struct {
	UserName  string    `json:"userName"`
	RoomName  string    `json:"roomName"`
	Timestamp time.Time `json:"timestamp"`
}

// MembersPayload carries the full recomputed membership of a room.
type MembersPayload struct {
	RoomName string   `json:"roomName"`
	Members  []string `json:"members"`
}

// ErrorPayload carries a requester-only command rejection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// CountPayload carries the service-wide online connection count.
type CountPayload struct {
	Count int `json:"count"`
}

// LobbyHistoryPayload carries the single-room history to a requester.
type LobbyHistoryPayload struct {
	Messages []chat.Message `json:"messages"`
}

// LobbyPresencePayload announces a participant entering or leaving the lobby.
type LobbyPresencePayload struct {
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomHistoryEvent builds the requester-only history delivery for a room.
func RoomHistoryEvent(roomName string, messages []chat.Message) Event {
	return Event{Name: EventRoomHistory, Payload: HistoryPayload{RoomName: roomName, Messages: messages}}
}

// UserJoinedRoomEvent builds the group notification for a join.
func UserJoinedRoomEvent(userName, roomName string, ts time.Time) Event {
	return Event{Name: EventUserJoinedRoom, Payload: PresencePayload{UserName: userName, RoomName: roomName, Timestamp: ts}}
}

// UserLeftRoomEvent builds the group notification for a leave.
func UserLeftRoomEvent(userName, roomName string, ts time.Time) Event {
	return Event{Name: EventUserLeftRoom, Payload: PresencePayload{UserName: userName, RoomName: roomName, Timestamp: ts}}
}

// NewMessageEvent builds the group broadcast for a created message.
func NewMessageEvent(msg chat.Message) Event {
	return Event{Name: EventNewMessage, Payload: msg}
}

// RoomMembersUpdateEvent builds the group broadcast of a room's membership.
func RoomMembersUpdateEvent(roomName string, members []string) Event {
	return Event{Name: EventRoomMembersUpdate, Payload: MembersPayload{RoomName: roomName, Members: members}}
}

// CommandErrorEvent builds a requester-only rejection notice.
func CommandErrorEvent(message string) Event {
	return Event{Name: EventCommandError, Payload: ErrorPayload{Message: message}}
}

// OnlineCountUpdateEvent builds the service-wide online count broadcast.
func OnlineCountUpdateEvent(count int) Event {
	return Event{Name: EventOnlineCountUpdate, Payload: CountPayload{Count: count}}
}

// ChatHistoryEvent builds the requester-only lobby history delivery.
func ChatHistoryEvent(messages []chat.Message) Event {
	return Event{Name: EventChatHistory, Payload: LobbyHistoryPayload{Messages: messages}}
}

// UserJoinedEvent builds the lobby-wide notification for a join.
func UserJoinedEvent(userName string, ts time.Time) Event {
	return Event{Name: EventUserJoined, Payload: LobbyPresencePayload{UserName: userName, Timestamp: ts}}
}

// UserLeftEvent builds the lobby-wide notification for a leave.
func UserLeftEvent(userName string, ts time.Time) Event {
	return Event{Name: EventUserLeft, Payload: LobbyPresencePayload{UserName: userName, Timestamp: ts}}
}

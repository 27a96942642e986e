package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quangtn/roomcast/internal/chat"
)

// Transport is the outbound side of the connection layer. Sends are
// fire-and-forget, best-effort broadcasts; implementations must not block the
// caller on slow receivers.
type Transport interface {
	SendToConnection(connectionID string, ev Event)
	SendToGroup(group string, ev Event)
	AddToGroup(group, connectionID string)
	RemoveFromGroup(group, connectionID string)
}

// Mux is the inbound side of the connection layer: it lets a handler attach
// itself to connection lifecycle events and named commands. The transport is
// expected to dispatch commands serially, one at a time per handler.
type Mux interface {
	OnConnect(fn func(connectionID string))
	OnDisconnect(fn func(connectionID string))
	OnCommand(name string, fn func(connectionID string, data []byte))
}

// Handler mediates between transport events and the registry for the
// multi-room protocol. It holds no state of its own beyond its dependencies;
// every notification is computed fresh from the registry.
type Handler struct {
	registry  *chat.Registry
	transport Transport
}

// NewHandler creates a multi-room protocol handler on top of the given
// registry and transport.
func NewHandler(registry *chat.Registry, transport Transport) *Handler {
	return &Handler{registry: registry, transport: transport}
}

// Register attaches the handler's commands and lifecycle hooks to the mux.
func (h *Handler) Register(m Mux) {
	m.OnConnect(h.HandleConnect)
	m.OnDisconnect(h.HandleDisconnect)
	m.OnCommand(CommandJoin, func(id string, data []byte) {
		var cmd JoinCommand
		if !h.decode(id, data, &cmd) {
			return
		}
		h.HandleJoin(id, cmd)
	})
	m.OnCommand(CommandSwitchRoom, func(id string, data []byte) {
		var cmd SwitchRoomCommand
		if !h.decode(id, data, &cmd) {
			return
		}
		h.HandleSwitchRoom(id, cmd)
	})
	m.OnCommand(CommandSendMessage, func(id string, data []byte) {
		var cmd SendMessageCommand
		if !h.decode(id, data, &cmd) {
			return
		}
		h.HandleSendMessage(id, cmd)
	})
}

// HandleConnect is intentionally a no-op: a connection stays outside every
// room until its first join command arrives.
func (h *Handler) HandleConnect(string) {}

// HandleJoin validates the request and places the participant in the target
// room. A participant already in another room leaves it first: all leave-side
// notifications for the old room are issued before any join-side notification
// for the new one, so member lists never show the participant in two rooms at
// once. Re-joining the current room is allowed and simply repeats the history
// delivery and join notifications.
func (h *Handler) HandleJoin(connectionID string, cmd JoinCommand) {
	displayName := strings.TrimSpace(cmd.DisplayName)
	if displayName == "" {
		h.rejectf(connectionID, "display name must not be empty")
		return
	}
	if !h.registry.ValidRoom(cmd.RoomName) {
		h.rejectf(connectionID, "unknown room %q; available rooms: %s", cmd.RoomName, strings.Join(h.registry.Rooms(), ", "))
		return
	}

	p, prevRoom, ok := h.registry.AddOrMove(connectionID, displayName, cmd.RoomName)
	if !ok {
		h.rejectf(connectionID, "unknown room %q", cmd.RoomName)
		return
	}

	if prevRoom != "" && prevRoom != cmd.RoomName {
		h.announceLeave(connectionID, p.DisplayName, prevRoom)
	}
	h.announceJoin(connectionID, p.DisplayName, cmd.RoomName)
}

// HandleSwitchRoom moves an already-joined participant to a new room.
// Switching to the current room is a strict no-op: no notifications and no
// history re-delivery, unlike a repeated join.
func (h *Handler) HandleSwitchRoom(connectionID string, cmd SwitchRoomCommand) {
	if !h.registry.ValidRoom(cmd.NewRoomName) {
		h.rejectf(connectionID, "unknown room %q; available rooms: %s", cmd.NewRoomName, strings.Join(h.registry.Rooms(), ", "))
		return
	}

	p, found := h.registry.Get(connectionID)
	if !found {
		h.rejectf(connectionID, "not joined to any room")
		return
	}
	if p.CurrentRoom == cmd.NewRoomName {
		return
	}

	moved, prevRoom, ok := h.registry.AddOrMove(connectionID, p.DisplayName, cmd.NewRoomName)
	if !ok {
		h.rejectf(connectionID, "unknown room %q", cmd.NewRoomName)
		return
	}

	h.announceLeave(connectionID, moved.DisplayName, prevRoom)
	h.announceJoin(connectionID, moved.DisplayName, cmd.NewRoomName)
}

// HandleSendMessage appends a message to the sender's current room and
// broadcasts it to every member of that room, the sender included. The
// participant must be in exactly the room named by the command.
func (h *Handler) HandleSendMessage(connectionID string, cmd SendMessageCommand) {
	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		h.rejectf(connectionID, "message body must not be empty")
		return
	}
	if !h.registry.ValidRoom(cmd.RoomName) {
		h.rejectf(connectionID, "unknown room %q", cmd.RoomName)
		return
	}

	p, found := h.registry.Get(connectionID)
	if !found {
		h.rejectf(connectionID, "not joined to any room")
		return
	}
	if p.CurrentRoom != cmd.RoomName {
		h.rejectf(connectionID, "not a member of room %q", cmd.RoomName)
		return
	}

	msg, ok := h.registry.AppendMessage(connectionID, cmd.RoomName, body)
	if !ok {
		h.rejectf(connectionID, "could not send message to room %q", cmd.RoomName)
		return
	}

	h.transport.SendToGroup(cmd.RoomName, NewMessageEvent(msg))
}

// HandleDisconnect removes the participant unconditionally. If the connection
// had joined a room, its remaining members are told about the departure; a
// connection that never joined disappears silently. Repeated disconnects for
// the same connection are no-ops.
func (h *Handler) HandleDisconnect(connectionID string) {
	p, existed := h.registry.Remove(connectionID)
	if !existed {
		return
	}
	h.announceLeave(connectionID, p.DisplayName, p.CurrentRoom)
}

// announceLeave detaches the connection from the room's group, then tells the
// remaining members about the departure and their updated member list. The
// registry must already reflect the departure so the list excludes the
// participant.
func (h *Handler) announceLeave(connectionID, displayName, roomName string) {
	h.transport.RemoveFromGroup(roomName, connectionID)
	h.transport.SendToGroup(roomName, UserLeftRoomEvent(displayName, roomName, time.Now().UTC()))
	h.broadcastMembers(roomName)
}

// announceJoin attaches the connection to the room's group, delivers the
// room's history to the requester only, then broadcasts the join and the
// updated member list to the whole room, new member included.
func (h *Handler) announceJoin(connectionID, displayName, roomName string) {
	h.transport.AddToGroup(roomName, connectionID)
	h.transport.SendToConnection(connectionID, RoomHistoryEvent(roomName, h.registry.History(roomName, 0)))
	h.transport.SendToGroup(roomName, UserJoinedRoomEvent(displayName, roomName, time.Now().UTC()))
	h.broadcastMembers(roomName)
}

// broadcastMembers recomputes the room's membership from the registry and
// broadcasts it. The list is never patched incrementally. Names are sorted so
// every receiver observes the same ordering.
func (h *Handler) broadcastMembers(roomName string) {
	participants := h.registry.ParticipantsIn(roomName)
	members := make([]string, 0, len(participants))
	for _, p := range participants {
		members = append(members, p.DisplayName)
	}
	sort.Strings(members)
	h.transport.SendToGroup(roomName, RoomMembersUpdateEvent(roomName, members))
}

func (h *Handler) rejectf(connectionID, format string, args ...any) {
	h.transport.SendToConnection(connectionID, CommandErrorEvent(fmt.Sprintf(format, args...)))
}

func (h *Handler) decode(connectionID string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		h.rejectf(connectionID, "malformed command payload")
		return false
	}
	return true
}

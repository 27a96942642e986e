package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/quangtn/roomcast/internal/chat"
)

// LobbyRoom is the implicit room backing the single-room protocol.
const LobbyRoom = "lobby"

// LobbyJoinCommand asks to enter the lobby under a display name.
type LobbyJoinCommand struct {
	DisplayName string `json:"displayName"`
}

// LobbySendMessageCommand asks to post a message into the lobby.
type LobbySendMessageCommand struct {
	Body string `json:"body"`
}

// SingleRoomHandler is the legacy single-room variant of the protocol: one
// implicit lobby, no room selection and no switching. It exists alongside the
// multi-room handler on its own endpoint.
//
// Unlike the multi-room variant, a disconnecting participant never receives
// its own leave notice: the connection is detached from the lobby group
// before the notice is broadcast. The exclusion is intentional.
type SingleRoomHandler struct {
	registry  *chat.Registry
	transport Transport
}

// NewSingleRoomHandler creates the legacy handler. The registry should be
// dedicated to the lobby; NewLobbyRegistry builds a suitable one.
func NewSingleRoomHandler(registry *chat.Registry, transport Transport) *SingleRoomHandler {
	return &SingleRoomHandler{registry: registry, transport: transport}
}

// NewLobbyRegistry builds a registry whose fixed room set is just the lobby.
func NewLobbyRegistry(maxHistory int) *chat.Registry {
	return chat.NewRegistry([]string{LobbyRoom}, maxHistory)
}

// Register attaches the lobby commands and lifecycle hooks to the mux.
func (h *SingleRoomHandler) Register(m Mux) {
	m.OnConnect(func(string) {})
	m.OnDisconnect(h.HandleDisconnect)
	m.OnCommand(CommandJoin, func(id string, data []byte) {
		var cmd LobbyJoinCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.transport.SendToConnection(id, CommandErrorEvent("malformed command payload"))
			return
		}
		h.HandleJoin(id, cmd)
	})
	m.OnCommand(CommandSendMessage, func(id string, data []byte) {
		var cmd LobbySendMessageCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.transport.SendToConnection(id, CommandErrorEvent("malformed command payload"))
			return
		}
		h.HandleSendMessage(id, cmd)
	})
}

// HandleJoin places the participant in the lobby, delivers the lobby history
// to the requester, and announces the join to everyone including the new
// member.
func (h *SingleRoomHandler) HandleJoin(connectionID string, cmd LobbyJoinCommand) {
	displayName := strings.TrimSpace(cmd.DisplayName)
	if displayName == "" {
		h.transport.SendToConnection(connectionID, CommandErrorEvent("display name must not be empty"))
		return
	}

	p, _, ok := h.registry.AddOrMove(connectionID, displayName, LobbyRoom)
	if !ok {
		h.transport.SendToConnection(connectionID, CommandErrorEvent("could not join the chat"))
		return
	}

	h.transport.AddToGroup(LobbyRoom, connectionID)
	h.transport.SendToConnection(connectionID, ChatHistoryEvent(h.registry.History(LobbyRoom, 0)))
	h.transport.SendToGroup(LobbyRoom, UserJoinedEvent(p.DisplayName, time.Now().UTC()))
}

// HandleSendMessage appends a lobby message and broadcasts it to everyone,
// the sender included.
func (h *SingleRoomHandler) HandleSendMessage(connectionID string, cmd LobbySendMessageCommand) {
	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		h.transport.SendToConnection(connectionID, CommandErrorEvent("message body must not be empty"))
		return
	}

	if _, found := h.registry.Get(connectionID); !found {
		h.transport.SendToConnection(connectionID, CommandErrorEvent("not joined to the chat"))
		return
	}

	msg, ok := h.registry.AppendMessage(connectionID, LobbyRoom, body)
	if !ok {
		h.transport.SendToConnection(connectionID, CommandErrorEvent("could not send message"))
		return
	}

	h.transport.SendToGroup(LobbyRoom, NewMessageEvent(msg))
}

// HandleDisconnect removes the participant and, if it had joined, tells the
// remaining lobby members. The group detach happens first so the departed
// connection is excluded from its own leave notice.
func (h *SingleRoomHandler) HandleDisconnect(connectionID string) {
	p, existed := h.registry.Remove(connectionID)
	if !existed {
		return
	}
	h.transport.RemoveFromGroup(LobbyRoom, connectionID)
	h.transport.SendToGroup(LobbyRoom, UserLeftEvent(p.DisplayName, time.Now().UTC()))
}

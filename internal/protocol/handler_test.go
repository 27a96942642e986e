package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtn/roomcast/internal/chat"
)

// transportOp records one call against the fake transport, in order, so tests
// can assert both fan-out and sequencing.
type transportOp struct {
	kind   string // "send", "group", "attach", "detach"
	target string // connection ID for send/attach/detach, group name for group
	event  Event
}

type fakeTransport struct {
	ops []transportOp
}

func (f *fakeTransport) SendToConnection(connectionID string, ev Event) {
	f.ops = append(f.ops, transportOp{kind: "send", target: connectionID, event: ev})
}

func (f *fakeTransport) SendToGroup(group string, ev Event) {
	f.ops = append(f.ops, transportOp{kind: "group", target: group, event: ev})
}

func (f *fakeTransport) AddToGroup(group, connectionID string) {
	f.ops = append(f.ops, transportOp{kind: "attach", target: group + "/" + connectionID})
}

func (f *fakeTransport) RemoveFromGroup(group, connectionID string) {
	f.ops = append(f.ops, transportOp{kind: "detach", target: group + "/" + connectionID})
}

func (f *fakeTransport) reset() {
	f.ops = nil
}

// groupEvents returns the events broadcast to the given group, in order.
func (f *fakeTransport) groupEvents(group string) []Event {
	var events []Event
	for _, op := range f.ops {
		if op.kind == "group" && op.target == group {
			events = append(events, op.event)
		}
	}
	return events
}

// sentTo returns the requester-only events delivered to the connection.
func (f *fakeTransport) sentTo(connectionID string) []Event {
	var events []Event
	for _, op := range f.ops {
		if op.kind == "send" && op.target == connectionID {
			events = append(events, op.event)
		}
	}
	return events
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}

func newTestHandler() (*Handler, *fakeTransport, *chat.Registry) {
	registry := chat.NewRegistry([]string{"general", "tech", "random"}, 10)
	transport := &fakeTransport{}
	return NewHandler(registry, transport), transport, registry
}

func TestJoinDeliversHistoryAndAnnounces(t *testing.T) {
	h, tr, _ := newTestHandler()

	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})

	sent := tr.sentTo("conn-a")
	require.Len(t, sent, 1, "history goes to the requester only")
	assert.Equal(t, EventRoomHistory, sent[0].Name)
	history := sent[0].Payload.(HistoryPayload)
	assert.Equal(t, "general", history.RoomName)
	assert.Empty(t, history.Messages)

	group := tr.groupEvents("general")
	require.Equal(t, []string{EventUserJoinedRoom, EventRoomMembersUpdate}, eventNames(group))
	joined := group[0].Payload.(PresencePayload)
	assert.Equal(t, "A", joined.UserName)
	assert.Equal(t, "general", joined.RoomName)
	members := group[1].Payload.(MembersPayload)
	assert.Equal(t, []string{"A"}, members.Members)
}

func TestJoinRejectsEmptyDisplayName(t *testing.T) {
	h, tr, registry := newTestHandler()

	h.HandleJoin("conn-a", JoinCommand{DisplayName: "   ", RoomName: "general"})

	sent := tr.sentTo("conn-a")
	require.Len(t, sent, 1)
	assert.Equal(t, EventCommandError, sent[0].Name)
	assert.Len(t, tr.ops, 1, "rejection is local-only, nothing broadcast")

	_, found := registry.Get("conn-a")
	assert.False(t, found)
}

func TestJoinRejectsUnknownRoom(t *testing.T) {
	h, tr, registry := newTestHandler()

	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "lounge"})

	sent := tr.sentTo("conn-a")
	require.Len(t, sent, 1)
	assert.Equal(t, EventCommandError, sent[0].Name)
	assert.Contains(t, sent[0].Payload.(ErrorPayload).Message, "lounge")

	_, found := registry.Get("conn-a")
	assert.False(t, found)
}

func TestJoinFromAnotherRoomLeavesFirst(t *testing.T) {
	h, tr, _ := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	h.HandleJoin("conn-b", JoinCommand{DisplayName: "B", RoomName: "general"})
	tr.reset()

	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "tech"})

	// Every leave-side broadcast for the old room precedes every join-side
	// broadcast for the new room.
	var sequence []string
	for _, op := range tr.ops {
		if op.kind == "group" {
			sequence = append(sequence, op.target+":"+op.event.Name)
		}
	}
	require.Equal(t, []string{
		"general:" + EventUserLeftRoom,
		"general:" + EventRoomMembersUpdate,
		"tech:" + EventUserJoinedRoom,
		"tech:" + EventRoomMembersUpdate,
	}, sequence)

	general := tr.groupEvents("general")
	assert.Equal(t, []string{"B"}, general[1].Payload.(MembersPayload).Members, "old room list excludes the mover")
	tech := tr.groupEvents("tech")
	assert.Equal(t, []string{"A"}, tech[1].Payload.(MembersPayload).Members)
}

func TestRejoinSameRoomRepeatsHistoryAndAnnouncements(t *testing.T) {
	h, tr, _ := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})

	require.Equal(t, []string{EventRoomHistory}, eventNames(tr.sentTo("conn-a")))
	assert.Equal(t, []string{EventUserJoinedRoom, EventRoomMembersUpdate}, eventNames(tr.groupEvents("general")))
	for _, op := range tr.ops {
		assert.NotEqual(t, EventUserLeftRoom, op.event.Name, "re-join must not emit a leave")
	}
}

func TestSwitchRoomSameRoomIsNoOp(t *testing.T) {
	h, tr, _ := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleSwitchRoom("conn-a", SwitchRoomCommand{NewRoomName: "general"})

	assert.Empty(t, tr.ops, "same-room switch emits nothing and mutates nothing")
}

func TestSwitchRoomRequiresJoin(t *testing.T) {
	h, tr, _ := newTestHandler()

	h.HandleSwitchRoom("conn-a", SwitchRoomCommand{NewRoomName: "tech"})

	sent := tr.sentTo("conn-a")
	require.Len(t, sent, 1)
	assert.Equal(t, EventCommandError, sent[0].Name)
	assert.Len(t, tr.ops, 1)
}

func TestSwitchRoomRejectsUnknownRoom(t *testing.T) {
	h, tr, registry := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleSwitchRoom("conn-a", SwitchRoomCommand{NewRoomName: "lounge"})

	sent := tr.sentTo("conn-a")
	require.Len(t, sent, 1)
	assert.Equal(t, EventCommandError, sent[0].Name)

	p, _ := registry.Get("conn-a")
	assert.Equal(t, "general", p.CurrentRoom, "state unchanged on invalid switch")
}

func TestSwitchRoomMovesParticipant(t *testing.T) {
	h, tr, registry := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleSwitchRoom("conn-a", SwitchRoomCommand{NewRoomName: "tech"})

	p, _ := registry.Get("conn-a")
	assert.Equal(t, "tech", p.CurrentRoom)
	require.Equal(t, []string{EventRoomHistory}, eventNames(tr.sentTo("conn-a")), "switch re-delivers the new room's history")
	assert.Equal(t, []string{EventUserLeftRoom, EventRoomMembersUpdate}, eventNames(tr.groupEvents("general")))
	assert.Equal(t, []string{EventUserJoinedRoom, EventRoomMembersUpdate}, eventNames(tr.groupEvents("tech")))
}

func TestSendMessageBroadcastsToRoom(t *testing.T) {
	h, tr, registry := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleSendMessage("conn-a", SendMessageCommand{Body: "  hi  ", RoomName: "general"})

	group := tr.groupEvents("general")
	require.Len(t, group, 1)
	assert.Equal(t, EventNewMessage, group[0].Name)
	msg := group[0].Payload.(chat.Message)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "A", msg.UserName)
	assert.Equal(t, "general", msg.RoomName)

	require.Len(t, registry.History("general", 0), 1)
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	h, tr, registry := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleSendMessage("conn-a", SendMessageCommand{Body: "   ", RoomName: "general"})

	require.Equal(t, []string{EventCommandError}, eventNames(tr.sentTo("conn-a")))
	assert.Len(t, tr.ops, 1)
	assert.Empty(t, registry.History("general", 0))
}

func TestSendMessageRejectsWhenNotInRoom(t *testing.T) {
	h, tr, registry := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	tr.reset()

	h.HandleSendMessage("conn-a", SendMessageCommand{Body: "hi", RoomName: "tech"})

	require.Equal(t, []string{EventCommandError}, eventNames(tr.sentTo("conn-a")))
	for _, room := range registry.Rooms() {
		assert.Empty(t, registry.History(room, 0), "rejected message must not land in %s", room)
	}
}

func TestSendMessageRequiresJoin(t *testing.T) {
	h, tr, _ := newTestHandler()

	h.HandleSendMessage("conn-a", SendMessageCommand{Body: "hi", RoomName: "general"})

	require.Equal(t, []string{EventCommandError}, eventNames(tr.sentTo("conn-a")))
	assert.Len(t, tr.ops, 1)
}

func TestDisconnectAnnouncesToLastRoom(t *testing.T) {
	h, tr, registry := newTestHandler()
	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	h.HandleJoin("conn-b", JoinCommand{DisplayName: "B", RoomName: "general"})
	tr.reset()

	h.HandleDisconnect("conn-a")

	group := tr.groupEvents("general")
	require.Equal(t, []string{EventUserLeftRoom, EventRoomMembersUpdate}, eventNames(group))
	assert.Equal(t, "A", group[0].Payload.(PresencePayload).UserName)
	assert.Equal(t, []string{"B"}, group[1].Payload.(MembersPayload).Members)

	_, found := registry.Get("conn-a")
	assert.False(t, found)

	// A second disconnect for the same connection is a no-op.
	tr.reset()
	h.HandleDisconnect("conn-a")
	assert.Empty(t, tr.ops)
}

func TestDisconnectBeforeJoinEmitsNothing(t *testing.T) {
	h, tr, _ := newTestHandler()

	h.HandleConnect("conn-a")
	h.HandleDisconnect("conn-a")

	assert.Empty(t, tr.ops)
}

// Full walkthrough: A joins general, chats, B joins, A switches to tech.
func TestTwoParticipantScenario(t *testing.T) {
	h, tr, _ := newTestHandler()

	h.HandleJoin("conn-a", JoinCommand{DisplayName: "A", RoomName: "general"})
	sent := tr.sentTo("conn-a")
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Payload.(HistoryPayload).Messages)
	general := tr.groupEvents("general")
	assert.Equal(t, []string{"A"}, general[1].Payload.(MembersPayload).Members)

	tr.reset()
	h.HandleSendMessage("conn-a", SendMessageCommand{Body: "hi", RoomName: "general"})
	general = tr.groupEvents("general")
	require.Len(t, general, 1)
	msg := general[0].Payload.(chat.Message)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "A", msg.UserName)

	tr.reset()
	h.HandleJoin("conn-b", JoinCommand{DisplayName: "B", RoomName: "general"})
	sent = tr.sentTo("conn-b")
	require.Len(t, sent, 1)
	history := sent[0].Payload.(HistoryPayload)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Body)
	general = tr.groupEvents("general")
	require.Equal(t, []string{EventUserJoinedRoom, EventRoomMembersUpdate}, eventNames(general))
	assert.Equal(t, "B", general[0].Payload.(PresencePayload).UserName)
	assert.Equal(t, []string{"A", "B"}, general[1].Payload.(MembersPayload).Members)

	tr.reset()
	h.HandleSwitchRoom("conn-a", SwitchRoomCommand{NewRoomName: "tech"})
	general = tr.groupEvents("general")
	require.Equal(t, []string{EventUserLeftRoom, EventRoomMembersUpdate}, eventNames(general))
	assert.Equal(t, "A", general[0].Payload.(PresencePayload).UserName)
	assert.Equal(t, []string{"B"}, general[1].Payload.(MembersPayload).Members)
	tech := tr.groupEvents("tech")
	require.Equal(t, []string{EventUserJoinedRoom, EventRoomMembersUpdate}, eventNames(tech))
	assert.Equal(t, "A", tech[0].Payload.(PresencePayload).UserName)
	assert.Equal(t, []string{"A"}, tech[1].Payload.(MembersPayload).Members)
}

package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxMessagesPerRoom bounds each room's history unless the registry is
// configured otherwise.
const DefaultMaxMessagesPerRoom = 100

// DefaultRooms is the fixed room set used when no rooms are configured.
var DefaultRooms = []string{"general", "tech", "random"}

// Registry is the source of truth for participant-to-room mapping and
// per-room message history. The room set is fixed at construction; rooms are
// not created or destroyed at runtime.
//
// All methods are safe for concurrent use, but the registry expects a single
// writer: the protocol handler dispatching one command at a time. Returned
// slices and structs are snapshot copies and never reflect later mutations.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[string]struct{}
	roomNames    []string
	participants map[string]Participant
	history      map[string][]Message
	maxHistory   int
}

// NewRegistry creates a registry for the given fixed room set. An empty room
// list falls back to DefaultRooms and a non-positive maxHistory falls back to
// DefaultMaxMessagesPerRoom.
func NewRegistry(rooms []string, maxHistory int) *Registry {
	if len(rooms) == 0 {
		rooms = DefaultRooms
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxMessagesPerRoom
	}

	r := &Registry{
		rooms:        make(map[string]struct{}, len(rooms)),
		roomNames:    make([]string, 0, len(rooms)),
		participants: make(map[string]Participant),
		history:      make(map[string][]Message, len(rooms)),
		maxHistory:   maxHistory,
	}
	for _, name := range rooms {
		if _, dup := r.rooms[name]; dup {
			continue
		}
		r.rooms[name] = struct{}{}
		r.roomNames = append(r.roomNames, name)
		r.history[name] = make([]Message, 0)
	}
	return r
}

// Rooms returns the fixed room set in configuration order.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.roomNames...)
}

// ValidRoom reports whether name is a member of the fixed room set.
func (r *Registry) ValidRoom(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[name]
	return ok
}

// AddOrMove records the participant under roomName, creating it on first
// join. It returns the updated participant along with the room the
// participant was in before the call (empty if this is a first join) so the
// caller can emit leave notifications for the previous room.
//
// Room membership of the fixed set is re-validated here even though callers
// validate first; an unknown room leaves state untouched and returns
// ok=false. Display name content is the caller's responsibility.
func (r *Registry) AddOrMove(connectionID, displayName, roomName string) (p Participant, prevRoom string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, valid := r.rooms[roomName]; !valid {
		return Participant{}, "", false
	}

	if existing, found := r.participants[connectionID]; found {
		prevRoom = existing.CurrentRoom
	}

	p = Participant{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		CurrentRoom:  roomName,
	}
	r.participants[connectionID] = p
	return p, prevRoom, true
}

// Remove deletes the participant and returns its last recorded state.
// Removing an unknown connection is a no-op returning ok=false, so disconnect
// handling is idempotent.
func (r *Registry) Remove(connectionID string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[connectionID]
	if !ok {
		return Participant{}, false
	}
	delete(r.participants, connectionID)
	return p, true
}

// Get returns the participant for the given connection, if any.
func (r *Registry) Get(connectionID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[connectionID]
	return p, ok
}

// ParticipantsIn returns a snapshot of every participant whose current room
// is roomName. Iteration order is not specified.
func (r *Registry) ParticipantsIn(roomName string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Participant, 0)
	for _, p := range r.participants {
		if p.CurrentRoom == roomName {
			members = append(members, p)
		}
	}
	return members
}

// AppendMessage creates a message authored by the given connection and
// appends it to roomName's history, evicting the oldest entry when the bound
// is exceeded. The append is rejected (ok=false) when the participant is
// unknown or its current room is not roomName; the room check guards against
// sending into a room the participant has since left and is not optional.
func (r *Registry) AppendMessage(connectionID, roomName, body string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, found := r.participants[connectionID]
	if !found || p.CurrentRoom != roomName {
		return Message{}, false
	}

	msg := Message{
		ID:        uuid.NewString(),
		RoomName:  roomName,
		UserName:  p.DisplayName,
		Body:      strings.TrimSpace(body),
		Timestamp: time.Now().UTC(),
	}

	history := append(r.history[roomName], msg)
	if len(history) > r.maxHistory {
		history = history[len(history)-r.maxHistory:]
	}
	r.history[roomName] = history
	return msg, true
}

// History returns a copy of roomName's messages, oldest first. A positive
// limit restricts the result to the most recent limit entries; zero or
// negative returns everything.
func (r *Registry) History(roomName string, limit int) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := r.history[roomName]
	if limit <= 0 || limit > len(messages) {
		limit = len(messages)
	}

	result := make([]Message, limit)
	copy(result, messages[len(messages)-limit:])
	return result
}

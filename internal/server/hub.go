// Package server coordinates connection registration, group membership, and
// event fan-out for the roomcast WebSocket transport via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/quangtn/roomcast/internal/protocol"
)

// commandFrame is the inbound wire envelope: a command name plus its payload.
type commandFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// inboundCommand pairs a decoded-enough frame with the connection it came
// from, queued for serial dispatch by the hub loop.
type inboundCommand struct {
	client  *Client
	payload []byte
}

// Hub manages all WebSocket connections for one endpoint and implements the
// protocol's Transport and Mux contracts. Connections are tracked by a
// server-assigned connection ID and may additionally belong to named groups;
// sending to a group reaches exactly its current members.
//
// Registration, disconnection, and inbound commands are all drained by Run in
// a single goroutine, so protocol handlers observe one command at a time.
// Outbound delivery never blocks: each client has a buffered send channel and
// messages to a slow receiver are dropped.
type Hub struct {
	cfg *Config

	clients map[string]*Client
	groups  map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundCommand

	commands      map[string]func(connectionID string, data []byte)
	connectFns    []func(connectionID string)
	disconnectFns []func(connectionID string)

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub for one WebSocket endpoint using the given
// configuration. Call Run in a separate goroutine to start it.
func NewHub(cfg *Config) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundCommand, 64),
		commands:   make(map[string]func(string, []byte)),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// OnConnect registers a hook invoked after a connection is registered.
// Hooks must be registered before Run starts.
func (h *Hub) OnConnect(fn func(connectionID string)) {
	h.connectFns = append(h.connectFns, fn)
}

// OnDisconnect registers a hook invoked after a connection is removed.
func (h *Hub) OnDisconnect(fn func(connectionID string)) {
	h.disconnectFns = append(h.disconnectFns, fn)
}

// OnCommand registers the handler for a named inbound command. A command
// name can have one handler; registering again replaces it.
func (h *Hub) OnCommand(name string, fn func(connectionID string, data []byte)) {
	h.commands[name] = fn
}

// Run starts the hub's event loop, handling registration, disconnection, and
// inbound command dispatch. It runs until Shutdown is called and should be
// started in its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case cmd := <-h.inbound:
			h.dispatch(cmd)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Connection %s registered from %s. Total connections: %d", client.id, client.addr, clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	for _, fn := range h.connectFns {
		fn(client.id)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	for group, members := range h.groups {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	log.Printf("Connection %s unregistered from %s. Total connections: %d", client.id, client.addr, clientCount)

	for _, fn := range h.disconnectFns {
		fn(client.id)
	}
}

// dispatch decodes the wire envelope and hands the payload to the registered
// command handler. Malformed frames and unknown commands are reported only to
// the sending connection.
func (h *Hub) dispatch(cmd inboundCommand) {
	var frame commandFrame
	if err := json.Unmarshal(cmd.payload, &frame); err != nil {
		log.Printf("Malformed frame from %s: %v", cmd.client.addr, err)
		h.SendToConnection(cmd.client.id, protocol.CommandErrorEvent("malformed frame"))
		return
	}

	handler, ok := h.commands[frame.Event]
	if !ok {
		log.Printf("Unknown command %q from %s", frame.Event, cmd.client.addr)
		h.SendToConnection(cmd.client.id, protocol.CommandErrorEvent("unknown command: "+frame.Event))
		return
	}

	handler(cmd.client.id, frame.Data)
}

// SendToConnection delivers an event to a single connection. Unknown
// connections and full send buffers are silently dropped.
func (h *Hub) SendToConnection(connectionID string, ev protocol.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Name, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if client, ok := h.clients[connectionID]; ok {
		h.deliver(client, payload)
	}
}

// SendToGroup delivers an event to every current member of the named group.
func (h *Hub) SendToGroup(group string, ev protocol.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Name, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.groups[group] {
		h.deliver(client, payload)
	}
}

// SendToAll delivers an event to every registered connection regardless of
// group membership.
func (h *Hub) SendToAll(ev protocol.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Name, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range h.clients {
		h.deliver(client, payload)
	}
}

// AddToGroup attaches a registered connection to the named group, creating
// the group on first use.
func (h *Hub) AddToGroup(group, connectionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return
	}
	if h.groups[group] == nil {
		h.groups[group] = make(map[string]*Client)
	}
	h.groups[group][connectionID] = client
}

// RemoveFromGroup detaches a connection from the named group. Detaching a
// non-member is a no-op.
func (h *Hub) RemoveFromGroup(group, connectionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// deliver places a payload on the client's send channel without blocking.
// Callers must hold at least a read lock so the closed flag is stable.
func (h *Hub) deliver(client *Client, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic delivering to %s: %v", client.addr, r)
		}
	}()

	if client.closed {
		return
	}

	select {
	case client.send <- payload:
	default:
		// Drop when the receiver is too slow; keeps the hub responsive.
	}
}

// shutdownClients closes every active connection during hub shutdown.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", client.addr, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops the hub loop and waits for client goroutines to finish, or
// until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

package chat

import "sync"

// OnlineCounter tracks how many connections are currently online across the
// whole service. The count is connection-scoped, not room-scoped: it moves on
// connect and disconnect, before any room is joined.
type OnlineCounter struct {
	mu    sync.Mutex
	count int
}

// Increment records a new connection and returns the updated count.
func (c *OnlineCounter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count
}

// Decrement records a closed connection and returns the updated count. The
// count never goes below zero.
func (c *OnlineCounter) Decrement() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 {
		c.count--
	}
	return c.count
}

// Count returns the current number of online connections.
func (c *OnlineCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tradegate/tradegate/internal/model"
)

// connState is the connection lifecycle. Transitions only move forward:
// connecting -> authenticated -> closed, with subscriptions layered on the
// authenticated state.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateClosed
)

// client is one websocket connection tracked by the gateway.
type client struct {
	conn *websocket.Conn
	send chan envelope
	done chan struct{}

	mu       sync.Mutex
	state    connState
	identity *model.Identity
	channels map[string]bool

	ip        string
	userAgent string
	connected time.Time

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, ip, userAgent string, sendBuffer int) *client {
	return &client{
		conn:      conn,
		send:      make(chan envelope, sendBuffer),
		done:      make(chan struct{}),
		state:     stateConnecting,
		channels:  make(map[string]bool),
		ip:        ip,
		userAgent: userAgent,
		connected: time.Now(),
	}
}

// enqueue hands an event to the write pump without blocking. A full queue
// drops the event: delivery is at most once and slow consumers lose
// events rather than stall the broadcaster. A closed client drops
// everything; the send channel is never closed, so a late timer or
// broadcast cannot hit a torn-down channel.
func (c *client) enqueue(ev envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *client) setAuthenticated(identity *model.Identity) {
	c.mu.Lock()
	c.state = stateAuthenticated
	c.identity = identity
	c.mu.Unlock()
}

func (c *client) authenticated() (*model.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateAuthenticated {
		return nil, false
	}
	return c.identity, true
}

func (c *client) subscribe(channel string) {
	c.mu.Lock()
	c.channels[channel] = true
	c.mu.Unlock()
}

func (c *client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

func (c *client) subscribedTo(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

func (c *client) markClosed() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

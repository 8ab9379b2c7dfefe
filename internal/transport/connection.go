package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odin-markets/realtime-core/internal/principal"
)

// Connection is exclusively owned by the Hub. One value per live
// WebSocket session; created on successful upgrade, destroyed
// (synchronously, memory reclaimed) on close.
type Connection struct {
	ID            int64
	Principal     principal.Principal
	RemoteAddr    string
	Protocol      string
	ConnectedAt   time.Time
	lastPongAt    atomic.Int64 // unix nano

	conn   net.Conn
	send   chan []byte
	closed atomic.Bool
	closeOnce sync.Once

	// Topic subscriptions this connection currently holds; mutated
	// only by the owning per-connection actor (TopicRouter/Hub).
	subsMu sync.RWMutex
	subs   map[string]struct{}

	// RoomID is non-zero while the connection belongs to a contest
	// room; a connection belongs to at most one room at a time.
	RoomID atomic.Int64

	// Diagnostic counters.
	Dropped    atomic.Int64
	sendFailStreak atomic.Int32

	// OnClose is invoked exactly once when the connection is torn
	// down, letting the Hub/TopicRouter/RoomManager remove it from
	// their indices atomically with connection removal.
	OnClose func(*Connection)

	closeReason string
}

// New wraps a raw net.Conn (already upgraded) into a Connection with a
// bounded outbound queue of the given depth, the backpressure limit
// for this session.
func New(id int64, conn net.Conn, remoteAddr string, p principal.Principal, queueDepth int) *Connection {
	c := &Connection{
		ID:          id,
		Principal:   p,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, queueDepth),
		subs:        make(map[string]struct{}),
	}
	c.lastPongAt.Store(time.Now().UnixNano())
	return c
}

func (c *Connection) Conn() net.Conn { return c.conn }

func (c *Connection) SendChan() <-chan []byte { return c.send }

func (c *Connection) Touch() { c.lastPongAt.Store(time.Now().UnixNano()) }

func (c *Connection) LastPong() time.Time { return time.Unix(0, c.lastPongAt.Load()) }

// Enqueue attempts a non-blocking send. Durable frames (the outbox's
// at-least-once notifications) must never be silently dropped: if the
// queue is full, the connection is closed instead with a "congested"
// reason and the caller's OutboxEntry remains undelivered. Non-durable
// frames are dropped and the Dropped counter increments.
func (c *Connection) Enqueue(data []byte, durable bool) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		c.sendFailStreak.Store(0)
		return true
	default:
		if durable {
			c.Close("congested")
			return false
		}
		c.Dropped.Add(1)
		return false
	}
}

// Close tears the connection down exactly once, invoking OnClose so
// the Hub/TopicRouter/RoomManager can drop every index entry
// atomically with removal.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeReason = reason
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		if c.OnClose != nil {
			c.OnClose(c)
		}
	})
}

func (c *Connection) Closed() bool { return c.closed.Load() }

func (c *Connection) CloseReason() string { return c.closeReason }

// --- subscription bookkeeping (mirrored by TopicRouter's own index;
// this copy lets Close() answer "which topics did I hold" without a
// round trip through the router) ---

func (c *Connection) AddSub(topic string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs[topic] = struct{}{}
}

func (c *Connection) RemoveSub(topic string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	delete(c.subs, topic)
}

func (c *Connection) HasSub(topic string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}

func (c *Connection) Subs() []string {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

func (c *Connection) SubCount() int {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subs)
}

package topic

import (
	"context"
	"sync"

	"github.com/odin-markets/realtime-core/internal/metrics"
	"github.com/odin-markets/realtime-core/internal/transport"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

// SnapshotFunc builds the initial-state frame sent on a successful
// subscribe. Returning a nil frame means no snapshot is sent for that
// topic.
type SnapshotFunc func(ctx context.Context, c *transport.Connection, key Key) (*transport.OutboundFrame, error)

type topicEntry struct {
	mu   sync.RWMutex
	subs map[int64]*transport.Connection
}

// Router owns the subscription graph. Cross-connection operations
// acquire a short lock on the relevant topic set only; the lock is
// released before any per-connection enqueue, so a broadcast never
// blocks on a single slow subscriber.
type Router struct {
	auth *Authorizer

	mu     sync.RWMutex
	topics map[string]*topicEntry

	// snapshots maps a namespace to the function that builds its
	// subscribe-time snapshot, registered by the ServiceBridge/cache
	// wiring in cmd/realtimed, one per namespace.
	snapshots map[string]SnapshotFunc
}

func NewRouter(auth *Authorizer) *Router {
	return &Router{
		auth:      auth,
		topics:    make(map[string]*topicEntry),
		snapshots: make(map[string]SnapshotFunc),
	}
}

func (r *Router) RegisterSnapshot(namespace string, fn SnapshotFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[namespace] = fn
}

func (r *Router) entry(topic string) *topicEntry {
	r.mu.RLock()
	e, ok := r.topics[topic]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.topics[topic]; ok {
		return e
	}
	e = &topicEntry{subs: make(map[int64]*transport.Connection)}
	r.topics[topic] = e
	return e
}

// Subscribe authorizes then admits c to key, returning the snapshot
// frame to send. A connection holds at most one subscription per
// TopicKey; re-subscribing is idempotent.
func (r *Router) Subscribe(ctx context.Context, c *transport.Connection, raw string) (*transport.OutboundFrame, error) {
	key, ok := Parse(raw)
	if !ok {
		return nil, wserr.New(wserr.CodeBadRequest, "malformed topic")
	}

	allowed, err := r.auth.Authorize(ctx, c.Principal, key)
	if err != nil {
		return nil, wserr.Wrap(wserr.CodeExternalServiceFail, "authorization check failed", err)
	}
	if !allowed {
		return nil, wserr.New(wserr.CodeUnauthorized, "not authorized for topic")
	}

	e := r.entry(key.String())
	e.mu.Lock()
	e.subs[c.ID] = c
	e.mu.Unlock()
	c.AddSub(key.String())
	metrics.SubscriptionsActive.WithLabelValues(key.Namespace).Inc()

	r.mu.RLock()
	snap := r.snapshots[key.Namespace]
	r.mu.RUnlock()
	if snap == nil {
		return nil, nil
	}
	frame, err := snap(ctx, c, key)
	if err != nil {
		return nil, wserr.Wrap(wserr.CodeSubscriptionFailed, "snapshot fetch failed", err)
	}
	return frame, nil
}

// Unsubscribe removes c from key if present; absent is not an error
// at this layer (the Hub maps it to code 4005 if it cares to).
func (r *Router) Unsubscribe(c *transport.Connection, raw string) {
	key, ok := Parse(raw)
	if !ok {
		return
	}
	e := r.entry(key.String())
	e.mu.Lock()
	delete(e.subs, c.ID)
	e.mu.Unlock()
	c.RemoveSub(key.String())
	metrics.SubscriptionsActive.WithLabelValues(key.Namespace).Dec()
}

// RemoveConnection drops c from every topic it held, atomically with
// connection removal. Call this from Connection.OnClose.
func (r *Router) RemoveConnection(c *transport.Connection) {
	for _, t := range c.Subs() {
		key, ok := Parse(t)
		if !ok {
			continue
		}
		e := r.entry(t)
		e.mu.Lock()
		delete(e.subs, c.ID)
		e.mu.Unlock()
		metrics.SubscriptionsActive.WithLabelValues(key.Namespace).Dec()
	}
}

// Broadcast fans a frame out to every current subscriber of topic.
// The topic lock is held only long enough to copy the subscriber
// list; per-connection enqueue happens after release so one slow
// subscriber never blocks the others. Callers that need a
// FIFO-per-subscriber guarantee across successive broadcasts on the
// same topic must themselves call Broadcast sequentially for that
// topic (e.g. from a single ServiceBridge goroutine or refresher
// ticker) -- Router does not reorder within one call, but concurrent
// callers on the same topic race each other by design.
func (r *Router) Broadcast(topic string, frame *transport.OutboundFrame, filter func(*transport.Connection) bool) {
	e := r.entry(topic)

	e.mu.RLock()
	targets := make([]*transport.Connection, 0, len(e.subs))
	for _, c := range e.subs {
		if filter == nil || filter(c) {
			targets = append(targets, c)
		}
	}
	e.mu.RUnlock()

	data, err := frame.Marshal()
	if err != nil {
		return
	}

	key, _ := Parse(topic)
	for _, c := range targets {
		if !c.Enqueue(data, frame.IsDurable()) {
			metrics.FramesDropped.WithLabelValues(key.Namespace).Inc()
		}
	}
}

// BroadcastDurable is Broadcast for the NotificationDeliverer's
// at-least-once path: it reports whether the frame was handed to the
// transport for at least one currently connected subscriber, which is
// what the deliverer uses to decide whether an OutboxEntry may be
// marked delivered.
func (r *Router) BroadcastDurable(topic string, frame *transport.OutboundFrame) bool {
	e := r.entry(topic)

	e.mu.RLock()
	targets := make([]*transport.Connection, 0, len(e.subs))
	for _, c := range e.subs {
		targets = append(targets, c)
	}
	e.mu.RUnlock()

	if len(targets) == 0 {
		return false
	}

	data, err := frame.Marshal()
	if err != nil {
		return false
	}

	handed := false
	for _, c := range targets {
		if c.Enqueue(data, true) {
			handed = true
		}
	}
	return handed
}

// Subscribers returns the current subscriber count for diagnostics.
func (r *Router) Subscribers(topic string) int {
	e := r.entry(topic)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Topics lists every topic with at least one subscriber.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.topics))
	for t, e := range r.topics {
		e.mu.RLock()
		n := len(e.subs)
		e.mu.RUnlock()
		if n > 0 {
			out = append(out, t)
		}
	}
	return out
}

package room

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/odin-markets/realtime-core/internal/metrics"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

func randomSuffix() string {
	return uuid.NewString()[:8]
}

// ChatLimiter gates chat sends to 10 per 10s per principal.
type ChatLimiter interface {
	AllowChat(key string) bool
}

// Manager owns the {Empty -> Live -> Empty} room state machine. It
// layers participant bookkeeping on top of the TopicRouter's room.<id>
// subscription: joining a room is subscribing to its topic plus
// recording a Participant; membership and subscription are kept in
// lockstep.
type Manager struct {
	router  *topic.Router
	auth    *topic.Authorizer
	limiter ChatLimiter

	mu    sync.Mutex
	rooms map[int64]*Room
}

func NewManager(router *topic.Router, auth *topic.Authorizer, limiter ChatLimiter) *Manager {
	return &Manager{router: router, auth: auth, limiter: limiter, rooms: make(map[int64]*Room)}
}

func (m *Manager) roomFor(contestID int64) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[contestID]
	if !ok {
		r = newRoom(contestID)
		m.rooms[contestID] = r
	}
	return r
}

func (m *Manager) destroyIfEmpty(contestID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[contestID]; ok && r.memberCount() == 0 {
		delete(m.rooms, contestID)
	}
}

// Join admits c to the contest room, authorizing via the same
// predicate as the room.<id>/contest.<id> topics (participant or
// admin). The joiner receives a ROOM_STATE snapshot; every other
// member receives PARTICIPANT_JOINED.
func (m *Manager) Join(ctx context.Context, c *transport.Connection, contestID int64) (*transport.OutboundFrame, error) {
	key := topic.Key{Namespace: topic.NSRoom, Scope: fmt.Sprintf("%d", contestID)}
	allowed, err := m.auth.Authorize(ctx, c.Principal, key)
	if err != nil {
		return nil, wserr.Wrap(wserr.CodeExternalServiceFail, "authorization check failed", err)
	}
	if !allowed {
		return nil, wserr.New(wserr.CodeNotParticipant, "not a participant of this contest")
	}

	if prev := c.RoomID.Load(); prev != 0 && prev != contestID {
		m.Leave(c, prev)
	}

	r := m.roomFor(contestID)

	participant := &Participant{
		Wallet:   c.Principal.WalletAddress,
		Nickname: c.Principal.Nickname,
		JoinedAt: time.Now(),
		IsAdmin:  c.Principal.IsAdmin(),
	}

	r.mu.Lock()
	r.members[c.ID] = c
	r.participants[c.ID] = participant
	r.lastActivity = time.Now()
	r.mu.Unlock()

	c.RoomID.Store(contestID)
	c.AddSub(key.String())
	m.router.Subscribe(ctx, c, key.String())

	m.router.Broadcast(key.String(), transport.NewFrame(transport.TypeParticipantJoined, participant).WithTopic(key.String()),
		func(other *transport.Connection) bool { return other.ID != c.ID })

	return transport.NewFrame(transport.TypeRoomState, map[string]any{
		"contestId":    contestID,
		"participants": r.PresenceSnapshot(),
	}).WithTopic(key.String()), nil
}

// Leave removes c from the contest room, broadcasting
// PARTICIPANT_LEFT, and destroys the room if it becomes empty.
func (m *Manager) Leave(c *transport.Connection, contestID int64) {
	m.mu.Lock()
	r, ok := m.rooms[contestID]
	m.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	participant := r.participants[c.ID]
	delete(r.members, c.ID)
	delete(r.participants, c.ID)
	r.mu.Unlock()

	key := topic.Key{Namespace: topic.NSRoom, Scope: fmt.Sprintf("%d", contestID)}
	m.router.Unsubscribe(c, key.String())
	c.RoomID.Store(0)

	if participant != nil {
		m.router.Broadcast(key.String(), transport.NewFrame(transport.TypeParticipantLeft, participant).WithTopic(key.String()), nil)
	}

	m.destroyIfEmpty(contestID)
}

// LeaveAll is called from Connection.OnClose so a closed connection's
// room membership is torn down atomically with its other state.
func (m *Manager) LeaveAll(c *transport.Connection) {
	if id := c.RoomID.Load(); id != 0 {
		m.Leave(c, id)
	}
}

// SendChat validates membership, length, and the chat rate limit
// before broadcasting CHAT_MESSAGE to every member including the
// sender.
func (m *Manager) SendChat(c *transport.Connection, contestID int64, text string) error {
	if n := utf8.RuneCountInString(text); n == 0 || n > 200 {
		return wserr.New(wserr.CodeBadRequest, "chat message must be 1-200 characters")
	}

	m.mu.Lock()
	r, ok := m.rooms[contestID]
	m.mu.Unlock()
	if !ok || !r.isMember(c.ID) {
		return wserr.New(wserr.CodeNotParticipant, "not a member of this room")
	}

	if !m.limiter.AllowChat(c.Principal.WalletAddress) {
		metrics.RateLimited.WithLabelValues("chat").Inc()
		return wserr.New(wserr.CodeRateLimited, "chat rate limit exceeded")
	}

	msg := &ChatMessage{
		ID:           chatMessageID(contestID),
		RoomID:       contestID,
		Sender:       c.Principal,
		SenderWallet: c.Principal.WalletAddress,
		Text:         text,
		Timestamp:    time.Now(),
	}

	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()

	key := topic.Key{Namespace: topic.NSRoom, Scope: fmt.Sprintf("%d", contestID)}
	m.router.Broadcast(key.String(), transport.NewFrame(transport.TypeChatMessage, msg).WithTopic(key.String()), nil)
	return nil
}

// Activity echoes a free-form PARTICIPANT_ACTIVITY payload to the
// room without interpreting it, stamping sender identity/timestamp
// and updating last-activity.
func (m *Manager) Activity(c *transport.Connection, contestID int64, payload any) error {
	m.mu.Lock()
	r, ok := m.rooms[contestID]
	m.mu.Unlock()
	if !ok || !r.isMember(c.ID) {
		return wserr.New(wserr.CodeNotParticipant, "not a member of this room")
	}

	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()

	key := topic.Key{Namespace: topic.NSRoom, Scope: fmt.Sprintf("%d", contestID)}
	m.router.Broadcast(key.String(), transport.NewFrame(transport.TypeParticipantActivity, map[string]any{
		"senderWallet": c.Principal.WalletAddress,
		"timestamp":    time.Now().UTC(),
		"payload":      payload,
	}).WithTopic(key.String()), nil)
	return nil
}

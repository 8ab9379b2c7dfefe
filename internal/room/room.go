// Package room implements RoomManager (C6): contest room membership,
// presence, chat, and free-form participant activity.
package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/odin-markets/realtime-core/internal/principal"
	"github.com/odin-markets/realtime-core/internal/transport"
)

// Participant mirrors the per-user record tracked by a Room.
type Participant struct {
	Wallet   string    `json:"wallet"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
	IsAdmin  bool      `json:"isAdmin"`
}

// Room is destroyed when its member set becomes empty.
type Room struct {
	ContestID int64

	mu           sync.RWMutex
	members      map[int64]*transport.Connection
	participants map[int64]*Participant
	lastActivity time.Time
}

func newRoom(contestID int64) *Room {
	return &Room{
		ContestID:    contestID,
		members:      make(map[int64]*transport.Connection),
		participants: make(map[int64]*Participant),
		lastActivity: time.Now(),
	}
}

func (r *Room) memberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// PresenceSnapshot lists current participants (sent as ROOM_STATE on
// join).
func (r *Room) PresenceSnapshot() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

func (r *Room) isMember(connID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[connID]
	return ok
}

// chatMessageID has the form `<roomId>-<monotonic-ts>-<random>`.
func chatMessageID(roomID int64) string {
	return fmt.Sprintf("%d-%d-%s", roomID, time.Now().UnixNano(), randomSuffix())
}

// ChatMessage is transient; the core does not persist it.
type ChatMessage struct {
	ID        string            `json:"id"`
	RoomID    int64             `json:"roomId"`
	Sender    principal.Principal `json:"-"`
	SenderWallet string         `json:"senderWallet"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
}

package room

import (
	"context"
	"testing"
	"time"

	"github.com/odin-markets/realtime-core/internal/principal"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
)

type fakeContestStore struct {
	participant map[int64]bool
}

func (f *fakeContestStore) IsParticipant(ctx context.Context, contestID int64, wallet string) (bool, error) {
	return f.participant[contestID], nil
}

func (f *fakeContestStore) Exists(ctx context.Context, contestID int64) (bool, error) {
	return true, nil
}

type allowAllLimiter struct{ allow bool }

func (l *allowAllLimiter) AllowChat(key string) bool { return l.allow }

func newTestConn(id int64, wallet string) *transport.Connection {
	p := principal.Principal{WalletAddress: wallet, Role: principal.RoleUser}
	return transport.New(id, nil, "127.0.0.1:0", p, 4)
}

func newTestManager(participant map[int64]bool, chatAllowed bool) *Manager {
	store := &fakeContestStore{participant: participant}
	authz := &topic.Authorizer{Contests: store}
	router := topic.NewRouter(authz)
	return NewManager(router, authz, &allowAllLimiter{allow: chatAllowed})
}

func TestJoinRequiresParticipation(t *testing.T) {
	m := newTestManager(nil, true)
	c := newTestConn(1, "wallet-a")

	_, err := m.Join(context.Background(), c, 42)
	if err == nil {
		t.Fatal("expected join to fail for a non-participant")
	}
}

func TestJoinAdmitsParticipantAndReturnsRoomState(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")

	frame, err := m.Join(context.Background(), c, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Type != transport.TypeRoomState {
		t.Errorf("Type = %q, want %q", frame.Type, transport.TypeRoomState)
	}
	if c.RoomID.Load() != 42 {
		t.Errorf("RoomID = %d, want 42", c.RoomID.Load())
	}
}

func TestLeaveRemovesMembershipAndDestroysEmptyRoom(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")
	m.Join(context.Background(), c, 42)

	m.Leave(c, 42)

	if c.RoomID.Load() != 0 {
		t.Errorf("expected RoomID reset to 0 after leave, got %d", c.RoomID.Load())
	}
	m.mu.Lock()
	_, exists := m.rooms[42]
	m.mu.Unlock()
	if exists {
		t.Error("expected the room to be destroyed once empty")
	}
}

func TestLeaveAllUsesConnectionRoomID(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")
	m.Join(context.Background(), c, 42)

	m.LeaveAll(c)

	if c.RoomID.Load() != 0 {
		t.Error("expected LeaveAll to clear room membership")
	}
}

func TestSendChatRejectsNonMember(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")

	if err := m.SendChat(c, 42, "hello"); err == nil {
		t.Fatal("expected SendChat to reject a non-member")
	}
}

func TestSendChatRejectsEmptyOrOversizedText(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")
	m.Join(context.Background(), c, 42)

	if err := m.SendChat(c, 42, ""); err == nil {
		t.Fatal("expected SendChat to reject empty text")
	}
	big := make([]byte, 201)
	if err := m.SendChat(c, 42, string(big)); err == nil {
		t.Fatal("expected SendChat to reject text over 200 characters")
	}
}

func TestSendChatRespectsRateLimit(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, false)
	c := newTestConn(1, "wallet-a")
	m.Join(context.Background(), c, 42)

	if err := m.SendChat(c, 42, "hi"); err == nil {
		t.Fatal("expected SendChat to be rate limited")
	}
}

func TestSendChatBroadcastsToMember(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")
	m.Join(context.Background(), c, 42)

	// Drain the PARTICIPANT_JOINED-adjacent queue slot isn't sent to self,
	// but give the channel a moment in case of buffering.
	time.Sleep(time.Millisecond)

	if err := m.SendChat(c, 42, "hello room"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-c.SendChan():
	default:
		t.Fatal("expected the sender to receive their own chat broadcast")
	}
}

func TestActivityRejectsNonMember(t *testing.T) {
	m := newTestManager(map[int64]bool{42: true}, true)
	c := newTestConn(1, "wallet-a")

	if err := m.Activity(c, 42, map[string]any{"x": 1}); err == nil {
		t.Fatal("expected Activity to reject a non-member")
	}
}

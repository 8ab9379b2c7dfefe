package topic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/odin-markets/realtime-core/internal/principal"
	"github.com/odin-markets/realtime-core/internal/transport"
)

func newTestConn(id int64, p principal.Principal) *transport.Connection {
	return transport.New(id, nil, "127.0.0.1:0", p, 4)
}

func TestSubscribeUnauthorized(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	c := newTestConn(1, principal.Anonymous)

	_, err := r.Subscribe(context.Background(), c, "wallet.abc")
	if err == nil {
		t.Fatal("expected anonymous subscribe to wallet.abc to fail")
	}
}

func TestSubscribeMalformedTopic(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	c := newTestConn(1, principal.Anonymous)

	_, err := r.Subscribe(context.Background(), c, "noseparator")
	if err == nil {
		t.Fatal("expected malformed topic to fail")
	}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	c := newTestConn(1, principal.Anonymous)

	if _, err := r.Subscribe(context.Background(), c, "market.*"); err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	if !c.HasSub("market.*") {
		t.Fatal("expected connection to record the subscription")
	}
	if r.Subscribers("market.*") != 1 {
		t.Fatalf("Subscribers = %d, want 1", r.Subscribers("market.*"))
	}

	r.Broadcast("market.*", transport.NewFrame(transport.TypeData, "tick"), nil)

	select {
	case msg := <-c.SendChan():
		var decoded map[string]any
		json.Unmarshal(msg, &decoded)
		if decoded["data"] != "tick" {
			t.Errorf("data = %v, want tick", decoded["data"])
		}
	default:
		t.Fatal("expected a frame to be enqueued for the subscriber")
	}
}

func TestSubscribeRunsSnapshot(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	r.RegisterSnapshot(NSMarket, func(ctx context.Context, c *transport.Connection, key Key) (*transport.OutboundFrame, error) {
		return transport.NewFrame(transport.TypeData, "snapshot"), nil
	})
	c := newTestConn(1, principal.Anonymous)

	frame, err := r.Subscribe(context.Background(), c, "market.*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame == nil || frame.Data != "snapshot" {
		t.Fatalf("expected the registered snapshot frame, got %+v", frame)
	}
}

func TestUnsubscribeRemovesConnection(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	c := newTestConn(1, principal.Anonymous)
	r.Subscribe(context.Background(), c, "market.*")

	r.Unsubscribe(c, "market.*")
	if r.Subscribers("market.*") != 0 {
		t.Fatalf("Subscribers = %d, want 0 after unsubscribe", r.Subscribers("market.*"))
	}
	if c.HasSub("market.*") {
		t.Fatal("expected connection's own subscription set to be cleared")
	}
}

func TestRemoveConnectionDropsAllTopics(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	c := newTestConn(1, principal.Anonymous)
	r.Subscribe(context.Background(), c, "market.*")
	r.Subscribe(context.Background(), c, "token.sol")

	r.RemoveConnection(c)

	if r.Subscribers("market.*") != 0 || r.Subscribers("token.sol") != 0 {
		t.Fatal("expected RemoveConnection to drop every topic the connection held")
	}
}

func TestBroadcastDurableReportsHandoff(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})

	if r.BroadcastDurable("notifications.abc", transport.NewFrame(transport.TypeData, "x")) {
		t.Fatal("expected no handoff when there are no subscribers")
	}

	c := newTestConn(1, principal.Principal{WalletAddress: "abc", Role: principal.RoleUser})
	r.Subscribe(context.Background(), c, "notifications.abc")

	if !r.BroadcastDurable("notifications.abc", transport.NewFrame(transport.TypeData, "x")) {
		t.Fatal("expected handoff once a subscriber is present")
	}
}

func TestTopicsOnlyListsSubscribedTopics(t *testing.T) {
	r := NewRouter(&Authorizer{Contests: &fakeContestStore{}})
	c := newTestConn(1, principal.Anonymous)
	r.Subscribe(context.Background(), c, "market.*")
	r.Unsubscribe(c, "market.*")

	for _, topic := range r.Topics() {
		if topic == "market.*" {
			t.Fatal("expected an emptied topic to be excluded from Topics()")
		}
	}
}

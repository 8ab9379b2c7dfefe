package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-markets/realtime-core/internal/principal"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
)

type fakeStore struct {
	entries    []Entry
	delivered  []string
	markReadOK bool
	unread     []Entry
}

func (s *fakeStore) PollUndelivered(ctx context.Context, since time.Time, kinds []string, limit int) ([]Entry, error) {
	return s.entries, nil
}

func (s *fakeStore) MarkDelivered(ctx context.Context, ids []string, at time.Time) error {
	s.delivered = append(s.delivered, ids...)
	return nil
}

func (s *fakeStore) MarkRead(ctx context.Context, wallet, id string, at time.Time) (bool, error) {
	return s.markReadOK, nil
}

func (s *fakeStore) UnreadSince(ctx context.Context, wallet string, since time.Time) ([]Entry, error) {
	return s.unread, nil
}

func (s *fakeStore) DeleteDeliveredBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeContestStore struct{}

func (fakeContestStore) IsParticipant(ctx context.Context, contestID int64, wallet string) (bool, error) {
	return false, nil
}
func (fakeContestStore) Exists(ctx context.Context, contestID int64) (bool, error) { return true, nil }

func newTestDeliverer(store Store) *Deliverer {
	router := topic.NewRouter(&topic.Authorizer{Contests: fakeContestStore{}})
	return NewDeliverer(store, router, zerolog.Nop(), DefaultConfig())
}

func TestPumpSkipsTopicsWithNoSubscribers(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		{ID: "n1", Wallet: "wallet-a", Kind: KindLevelUp, CreatedAt: time.Now()},
	}}
	d := newTestDeliverer(store)

	d.pump(context.Background())

	if len(store.delivered) != 0 {
		t.Fatalf("expected no delivery with no subscribers, got %v", store.delivered)
	}
}

func TestPumpDeliversToSubscribedWallet(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		{ID: "n1", Wallet: "wallet-a", Kind: KindLevelUp, CreatedAt: time.Now()},
	}}
	router := topic.NewRouter(&topic.Authorizer{Contests: fakeContestStore{}})
	d := NewDeliverer(store, router, zerolog.Nop(), DefaultConfig())

	p := principal.Principal{WalletAddress: "wallet-a", Role: principal.RoleUser}
	c := transport.New(1, nil, "127.0.0.1:0", p, 4)
	router.Subscribe(context.Background(), c, "notifications.wallet-a")

	d.pump(context.Background())

	if len(store.delivered) != 1 || store.delivered[0] != "n1" {
		t.Fatalf("expected n1 marked delivered, got %v", store.delivered)
	}
	select {
	case <-c.SendChan():
	default:
		t.Fatal("expected the subscriber to receive the notification frame")
	}
}

func TestMarkReadUnknownEntry(t *testing.T) {
	store := &fakeStore{markReadOK: false}
	d := newTestDeliverer(store)

	_, err := d.MarkRead(context.Background(), "wallet-a", "missing")
	if err == nil {
		t.Fatal("expected an error for an unknown notification")
	}
}

func TestMarkReadConfirmed(t *testing.T) {
	store := &fakeStore{markReadOK: true}
	d := newTestDeliverer(store)

	frame, err := d.MarkRead(context.Background(), "wallet-a", "n1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Type != transport.TypeReadConfirmed {
		t.Errorf("Type = %q, want %q", frame.Type, transport.TypeReadConfirmed)
	}
}

func TestGetUnreadReturnsEntries(t *testing.T) {
	store := &fakeStore{unread: []Entry{{ID: "n1", Wallet: "wallet-a"}}}
	d := newTestDeliverer(store)

	frame, err := d.GetUnread(context.Background(), "wallet-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := json.Marshal(frame.Data)
	var entries []Entry
	json.Unmarshal(data, &entries)
	if len(entries) != 1 || entries[0].ID != "n1" {
		t.Fatalf("unexpected unread entries: %v", entries)
	}
}

func TestSnapshotFiltersByWallet(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		{ID: "n1", Wallet: "wallet-a"},
		{ID: "n2", Wallet: "wallet-b"},
	}}
	d := newTestDeliverer(store)

	frame, err := d.Snapshot(context.Background(), "wallet-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := json.Marshal(frame.Data)
	var entries []Entry
	json.Unmarshal(data, &entries)
	if len(entries) != 1 || entries[0].ID != "n1" {
		t.Fatalf("expected only wallet-a's entry, got %v", entries)
	}
}

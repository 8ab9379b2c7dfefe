// Package notify implements C7: the durable per-wallet notification
// outbox pump.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// Kind enumerates the outbox entry kinds the deliverer polls.
const (
	KindLevelUp             = "LEVEL_UP"
	KindAchievementUnlock   = "ACHIEVEMENT_UNLOCK"
	KindContestInvite       = "CONTEST_INVITE"
	KindSystemAnnouncement  = "SYSTEM_ANNOUNCEMENT"
)

// DeliverableKinds is the fixed set the poll query filters on.
var DeliverableKinds = []string{KindLevelUp, KindAchievementUnlock, KindContestInvite, KindSystemAnnouncement}

// Entry mirrors the durable outbox row shape: owned by an external
// writer, read/updated only by this package.
type Entry struct {
	ID          string          `json:"id"`
	Wallet      string          `json:"walletAddress"`
	Kind        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   time.Time       `json:"createdAt"`
	Delivered   bool            `json:"delivered"`
	DeliveredAt *time.Time      `json:"deliveredAt,omitempty"`
	Read        bool            `json:"read"`
	ReadAt      *time.Time      `json:"readAt,omitempty"`
}

// Store is the external outbox collaborator: durable, owned by an
// external writer, read/updated by the Deliverer.
type Store interface {
	// PollUndelivered returns up to limit rows with delivered=false,
	// created_at >= since, kind in kinds, ordered by created_at asc.
	PollUndelivered(ctx context.Context, since time.Time, kinds []string, limit int) ([]Entry, error)

	// MarkDelivered sets delivered=true, delivered_at=at for ids in
	// one update. Idempotent: already-delivered rows are left
	// untouched by construction (callers only pass ids just polled as
	// undelivered).
	MarkDelivered(ctx context.Context, ids []string, at time.Time) error

	// MarkRead sets read=true, read_at=at for the entry, only if it
	// belongs to wallet.
	MarkRead(ctx context.Context, wallet, id string, at time.Time) (bool, error)

	// UnreadSince returns delivered=true AND read=false entries for
	// wallet created at or after since.
	UnreadSince(ctx context.Context, wallet string, since time.Time) ([]Entry, error)

	// DeleteDeliveredBefore removes delivered=true rows whose
	// delivered_at is older than before.
	DeleteDeliveredBefore(ctx context.Context, before time.Time) (int64, error)
}

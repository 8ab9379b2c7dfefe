package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-markets/realtime-core/internal/metrics"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

// Config carries the deliverer's timing knobs.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Lookback     time.Duration // "created-at >= now-7d"
	UnreadWindow time.Duration // GET_UNREAD "last 30 days"
	RetentionAge time.Duration // "30 days after delivery"
	RetentionSweep time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		BatchSize:      100,
		Lookback:       7 * 24 * time.Hour,
		UnreadWindow:   30 * 24 * time.Hour,
		RetentionAge:   30 * 24 * time.Hour,
		RetentionSweep: 24 * time.Hour,
	}
}

// Deliverer runs the single background pump that turns outbox rows
// into notification frames.
type Deliverer struct {
	store  Store
	router *topic.Router
	logger zerolog.Logger
	cfg    Config
}

func NewDeliverer(store Store, router *topic.Router, logger zerolog.Logger, cfg Config) *Deliverer {
	return &Deliverer{store: store, router: router, logger: logger, cfg: cfg}
}

func notificationsTopic(wallet string) string {
	return topic.Key{Namespace: topic.NSNotifications, Scope: wallet}.String()
}

// Run polls the outbox every PollInterval and performs the retention
// sweep every RetentionSweep, until ctx is cancelled.
func (d *Deliverer) Run(ctx context.Context) {
	pollTicker := time.NewTicker(d.cfg.PollInterval)
	defer pollTicker.Stop()
	retentionTicker := time.NewTicker(d.cfg.RetentionSweep)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			d.pump(ctx)
		case <-retentionTicker.C:
			d.retain(ctx)
		}
	}
}

// pump polls for undelivered entries, broadcasts each to its wallet
// topic if subscribed, and marks delivered those it broadcast. If the
// delivered-mark update fails after frames were already emitted,
// entries stay delivered=false by construction -- the next pump
// re-delivers them and clients are expected to dedupe by id.
func (d *Deliverer) pump(ctx context.Context) {
	since := time.Now().Add(-d.cfg.Lookback)
	entries, err := d.store.PollUndelivered(ctx, since, DeliverableKinds, d.cfg.BatchSize)
	if err != nil {
		d.logger.Warn().Err(err).Msg("outbox poll failed")
		return
	}
	if len(entries) == 0 {
		return
	}

	byWallet := make(map[string][]Entry)
	for _, e := range entries {
		byWallet[e.Wallet] = append(byWallet[e.Wallet], e)
	}

	var delivered []string
	for wallet, walletEntries := range byWallet {
		t := notificationsTopic(wallet)
		if d.router.Subscribers(t) == 0 {
			continue
		}
		for _, e := range walletEntries {
			frame := transport.NewFrame(transport.TypeData, e).WithTopic(t).Durable()
			if d.router.BroadcastDurable(t, frame) {
				delivered = append(delivered, e.ID)
				metrics.NotificationsDelivered.Inc()
			}
		}
	}

	if len(delivered) == 0 {
		return
	}
	if err := d.store.MarkDelivered(ctx, delivered, time.Now()); err != nil {
		d.logger.Warn().Err(err).Int("count", len(delivered)).Msg("marking outbox entries delivered failed; will redeliver next poll")
	}
}

func (d *Deliverer) retain(ctx context.Context) {
	before := time.Now().Add(-d.cfg.RetentionAge)
	n, err := d.store.DeleteDeliveredBefore(ctx, before)
	if err != nil {
		d.logger.Warn().Err(err).Msg("outbox retention sweep failed")
		return
	}
	if n > 0 {
		d.logger.Info().Int64("deleted", n).Msg("outbox retention sweep compacted entries")
	}
}

// MarkRead handles client MARK_READ: only the owning wallet may mark
// its own entry read.
func (d *Deliverer) MarkRead(ctx context.Context, wallet, entryID string) (*transport.OutboundFrame, error) {
	ok, err := d.store.MarkRead(ctx, wallet, entryID, time.Now())
	if err != nil {
		return nil, wserr.Wrap(wserr.CodeExternalServiceFail, "mark read failed", err)
	}
	if !ok {
		return nil, wserr.New(wserr.CodeBadRequest, "unknown notification for this wallet")
	}
	return transport.NewFrame(transport.TypeReadConfirmed, map[string]any{"id": entryID}), nil
}

// GetUnread handles client GET_UNREAD: delivered=true AND read=false
// entries for the wallet from the last 30 days.
func (d *Deliverer) GetUnread(ctx context.Context, wallet string) (*transport.OutboundFrame, error) {
	since := time.Now().Add(-d.cfg.UnreadWindow)
	entries, err := d.store.UnreadSince(ctx, wallet, since)
	if err != nil {
		return nil, wserr.Wrap(wserr.CodeExternalServiceFail, "unread fetch failed", err)
	}
	return transport.NewFrame(transport.TypeUnreadNotifications, entries), nil
}

// Snapshot builds the notifications.<addr> subscribe-time snapshot:
// the wallet's entries among the oldest BatchSize undelivered rows of
// all wallets (the same poll the pump runs). A wallet's undelivered
// rows beyond that batch are not included.
func (d *Deliverer) Snapshot(ctx context.Context, wallet string) (*transport.OutboundFrame, error) {
	since := time.Now().Add(-d.cfg.Lookback)
	entries, err := d.store.PollUndelivered(ctx, since, DeliverableKinds, d.cfg.BatchSize)
	if err != nil {
		return nil, wserr.Wrap(wserr.CodeExternalServiceFail, "snapshot fetch failed", err)
	}
	mine := entries[:0]
	for _, e := range entries {
		if e.Wallet == wallet {
			mine = append(mine, e)
		}
	}
	return transport.NewFrame(transport.TypeData, mine).WithTopic(fmt.Sprintf("notifications.%s", wallet)), nil
}

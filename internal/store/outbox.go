package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odin-markets/realtime-core/internal/notify"
)

// OutboxStore implements notify.Store against the outbox table owned
// by the platform's notification-producing services. This package
// only reads and updates rows; it never creates the schema or inserts
// new entries.
type OutboxStore struct {
	pool *Pool
}

func NewOutboxStore(pool *Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

func (s *OutboxStore) PollUndelivered(ctx context.Context, since time.Time, kinds []string, limit int) ([]notify.Entry, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `
		SELECT id, wallet_address, kind, data, created_at, delivered, delivered_at, read, read_at
		FROM notification_outbox
		WHERE delivered = false AND created_at >= $1 AND kind = ANY($2)
		ORDER BY created_at ASC
		LIMIT $3`, since, kinds, limit)
	if err != nil {
		return nil, asStoreErr(ctx, err)
	}
	defer rows.Close()

	var out []notify.Entry
	for rows.Next() {
		var e notify.Entry
		if err := rows.Scan(&e.ID, &e.Wallet, &e.Kind, &e.Data, &e.CreatedAt, &e.Delivered, &e.DeliveredAt, &e.Read, &e.ReadAt); err != nil {
			return nil, asStoreErr(ctx, err)
		}
		out = append(out, e)
	}
	return out, asStoreErr(ctx, rows.Err())
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.pool.withWrite(ctx)
	defer cancel()

	_, err := s.pool.db.Exec(ctx, `
		UPDATE notification_outbox SET delivered = true, delivered_at = $1
		WHERE id = ANY($2)`, at, ids)
	return asStoreErr(ctx, err)
}

func (s *OutboxStore) MarkRead(ctx context.Context, wallet, id string, at time.Time) (bool, error) {
	ctx, cancel := s.pool.withWrite(ctx)
	defer cancel()

	tag, err := s.pool.db.Exec(ctx, `
		UPDATE notification_outbox SET read = true, read_at = $1
		WHERE id = $2 AND wallet_address = $3`, at, id, wallet)
	if err != nil {
		return false, asStoreErr(ctx, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *OutboxStore) UnreadSince(ctx context.Context, wallet string, since time.Time) ([]notify.Entry, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `
		SELECT id, wallet_address, kind, data, created_at, delivered, delivered_at, read, read_at
		FROM notification_outbox
		WHERE wallet_address = $1 AND delivered = true AND read = false AND created_at >= $2
		ORDER BY created_at ASC`, wallet, since)
	if err != nil {
		return nil, asStoreErr(ctx, err)
	}
	defer rows.Close()

	var out []notify.Entry
	for rows.Next() {
		var e notify.Entry
		if err := rows.Scan(&e.ID, &e.Wallet, &e.Kind, &e.Data, &e.CreatedAt, &e.Delivered, &e.DeliveredAt, &e.Read, &e.ReadAt); err != nil {
			return nil, asStoreErr(ctx, err)
		}
		out = append(out, e)
	}
	return out, asStoreErr(ctx, rows.Err())
}

func (s *OutboxStore) DeleteDeliveredBefore(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.pool.withWrite(ctx)
	defer cancel()

	tag, err := s.pool.db.Exec(ctx, `
		DELETE FROM notification_outbox WHERE delivered = true AND delivered_at < $1`, before)
	if err != nil {
		return 0, asStoreErr(ctx, err)
	}
	return tag.RowsAffected(), nil
}

// IsNotFound mirrors the teacher's pgx.ErrNoRows check, exposed for
// callers of the settings/users stores.
func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}

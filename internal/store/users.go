package store

import (
	"context"

	"github.com/odin-markets/realtime-core/internal/auth"
)

// UserStore implements auth.UserStore against the platform's user
// table. The core does not own this schema, only reads it.
type UserStore struct {
	pool *Pool
}

func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) LookupWallet(ctx context.Context, wallet string) (*auth.UserRecord, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	var rec auth.UserRecord
	err := s.pool.db.QueryRow(ctx, `
		SELECT wallet_address, user_id, role, nickname, banned
		FROM users WHERE wallet_address = $1`, wallet).
		Scan(&rec.WalletAddress, &rec.UserID, &rec.Role, &rec.Nickname, &rec.Banned)
	if err != nil {
		if IsNotFound(err) {
			return nil, auth.ErrUserNotFound
		}
		return nil, asStoreErr(ctx, err)
	}
	return &rec, nil
}

package store

import "context"

// ContestStore implements topic.ContestStore and feeds the periodic
// contest refresher against the platform's contest schema, which this
// core reads but does not own.
type ContestStore struct {
	pool *Pool
}

func NewContestStore(pool *Pool) *ContestStore {
	return &ContestStore{pool: pool}
}

func (s *ContestStore) IsParticipant(ctx context.Context, contestID int64, wallet string) (bool, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	var exists bool
	err := s.pool.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contest_participants WHERE contest_id = $1 AND wallet_address = $2)`,
		contestID, wallet).Scan(&exists)
	return exists, asStoreErr(ctx, err)
}

func (s *ContestStore) Exists(ctx context.Context, contestID int64) (bool, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	var exists bool
	err := s.pool.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM contests WHERE id = $1)`, contestID).Scan(&exists)
	return exists, asStoreErr(ctx, err)
}

// State returns the contest's current status row for CONTEST_UPDATED.
func (s *ContestStore) State(ctx context.Context, contestID int64) (any, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	var state struct {
		ID         int64  `json:"contestId"`
		Status     string `json:"status"`
		EntryCount int64  `json:"entryCount"`
	}
	err := s.pool.db.QueryRow(ctx, `
		SELECT id, status, (SELECT count(*) FROM contest_participants WHERE contest_id = c.id)
		FROM contests c WHERE id = $1`, contestID).Scan(&state.ID, &state.Status, &state.EntryCount)
	if err != nil {
		return nil, asStoreErr(ctx, err)
	}
	return state, nil
}

// Leaderboard returns the ranked standings for LEADERBOARD_UPDATED.
func (s *ContestStore) Leaderboard(ctx context.Context, contestID int64) (any, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `
		SELECT wallet_address, nickname, rank, portfolio_value
		FROM contest_leaderboard WHERE contest_id = $1 ORDER BY rank ASC LIMIT 100`, contestID)
	if err != nil {
		return nil, asStoreErr(ctx, err)
	}
	defer rows.Close()

	type entry struct {
		Wallet    string  `json:"wallet"`
		Nickname  string  `json:"nickname"`
		Rank      int     `json:"rank"`
		Portfolio float64 `json:"portfolioValue"`
	}
	var out []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.Wallet, &e.Nickname, &e.Rank, &e.Portfolio); err != nil {
			return nil, asStoreErr(ctx, err)
		}
		out = append(out, e)
	}
	return out, asStoreErr(ctx, rows.Err())
}

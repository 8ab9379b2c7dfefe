package store

import "context"

// Balance is the fetch-through payload for C8's wallet balance cache.
type Balance struct {
	Wallet string  `json:"wallet"`
	SOL    float64 `json:"sol"`
	USD    float64 `json:"usd"`
}

// Transaction is one row of the "last 5 txs" wallet subscribe snapshot
// and the REQUEST transactions cache.
type Transaction struct {
	ID        string  `json:"id"`
	Wallet    string  `json:"wallet"`
	Kind      string  `json:"kind"`
	Amount    float64 `json:"amount"`
	Token     string  `json:"token"`
	Timestamp string  `json:"timestamp"`
}

// WalletStore reads the portfolio/transactions schema the core does
// not own, backing C8's fetch-through cache.
type WalletStore struct {
	pool *Pool
}

func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

func (s *WalletStore) Balance(ctx context.Context, wallet string) (Balance, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	var b Balance
	b.Wallet = wallet
	err := s.pool.db.QueryRow(ctx, `
		SELECT sol_balance, usd_value FROM wallet_balances WHERE wallet_address = $1`, wallet).
		Scan(&b.SOL, &b.USD)
	return b, asStoreErr(ctx, err)
}

func (s *WalletStore) RecentTransactions(ctx context.Context, wallet string, limit int) ([]Transaction, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `
		SELECT id, wallet_address, kind, amount, token, created_at
		FROM wallet_transactions WHERE wallet_address = $1
		ORDER BY created_at DESC LIMIT $2`, wallet, limit)
	if err != nil {
		return nil, asStoreErr(ctx, err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Wallet, &t.Kind, &t.Amount, &t.Token, &t.Timestamp); err != nil {
			return nil, asStoreErr(ctx, err)
		}
		out = append(out, t)
	}
	return out, asStoreErr(ctx, rows.Err())
}

// Metrics returns the periodic admin-only SERVICE_METRICS payload for
// a wallet.<addr> subscriber set.
func (s *WalletStore) Metrics(ctx context.Context, wallet string) (any, error) {
	ctx, cancel := s.pool.withRead(ctx)
	defer cancel()

	var m struct {
		Wallet           string `json:"wallet"`
		TransactionCount int64  `json:"transactionCount"`
	}
	m.Wallet = wallet
	err := s.pool.db.QueryRow(ctx, `
		SELECT count(*) FROM wallet_transactions WHERE wallet_address = $1`, wallet).Scan(&m.TransactionCount)
	if err != nil {
		return nil, asStoreErr(ctx, err)
	}
	return m, nil
}

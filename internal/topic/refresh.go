package topic

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/odin-markets/realtime-core/internal/transport"
)

// ContestDataFunc fetches the current contest state and leaderboard
// for the periodic contest.<id> refresher.
type ContestDataFunc func(ctx context.Context, contestID int64) (state any, leaderboard any, err error)

// WalletMetricsFunc fetches the metrics payload broadcast to
// admin-role subscribers of wallet.<addr> every 5s.
type WalletMetricsFunc func(ctx context.Context, wallet string) (any, error)

// Refresher drives the two periodic rebroadcasts, one per active topic
// found on each tick; a topic with no subscribers left is simply
// skipped.
type Refresher struct {
	router   *Router
	logger   zerolog.Logger
}

func NewRefresher(router *Router, logger zerolog.Logger) *Refresher {
	return &Refresher{router: router, logger: logger}
}

// RunContestRefresh emits CONTEST_UPDATED/LEADERBOARD_UPDATED to every
// contest.<id> topic that has at least one subscriber, every interval,
// for as long as ctx lives. The cadence is fixed: it does not degrade
// under load. A contest whose subscribers have all left is not listed
// by Router.Topics and so is skipped.
func (rf *Refresher) RunContestRefresh(ctx context.Context, interval time.Duration, fetch ContestDataFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range rf.router.Topics() {
				key, ok := Parse(t)
				if !ok || key.Namespace != NSContest {
					continue
				}
				id, err := strconv.ParseInt(key.Scope, 10, 64)
				if err != nil {
					continue
				}
				state, leaderboard, err := fetch(ctx, id)
				if err != nil {
					rf.logger.Warn().Err(err).Int64("contest_id", id).Msg("contest refresh fetch failed")
					continue
				}
				rf.router.Broadcast(t, transport.NewFrame(transport.TypeContestUpdated, state).WithTopic(t), nil)
				rf.router.Broadcast(t, transport.NewFrame(transport.TypeLeaderboardUpdated, leaderboard).WithTopic(t), nil)
			}
		}
	}
}

// RunWalletMetricsRefresh emits SERVICE_METRICS to admin-role
// subscribers only, for every active wallet.<addr> topic.
func (rf *Refresher) RunWalletMetricsRefresh(ctx context.Context, interval time.Duration, fetch WalletMetricsFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range rf.router.Topics() {
				key, ok := Parse(t)
				if !ok || key.Namespace != NSWallet {
					continue
				}
				metricsPayload, err := fetch(ctx, key.Scope)
				if err != nil {
					rf.logger.Warn().Err(err).Str("wallet", key.Scope).Msg("wallet metrics fetch failed")
					continue
				}
				rf.router.Broadcast(t, transport.NewFrame(transport.TypeServiceMetrics, metricsPayload).WithTopic(t),
					func(c *transport.Connection) bool { return c.Principal.IsAdmin() })
			}
		}
	}
}

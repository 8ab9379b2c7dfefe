// Command realtimed runs the realtime messaging core: it wires every
// component into one process and serves the fixed WebSocket endpoint
// set until terminated.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odin-markets/realtime-core/internal/auth"
	"github.com/odin-markets/realtime-core/internal/bridge"
	"github.com/odin-markets/realtime-core/internal/cache"
	"github.com/odin-markets/realtime-core/internal/config"
	"github.com/odin-markets/realtime-core/internal/diagnostics"
	"github.com/odin-markets/realtime-core/internal/hub"
	"github.com/odin-markets/realtime-core/internal/logging"
	"github.com/odin-markets/realtime-core/internal/metrics"
	"github.com/odin-markets/realtime-core/internal/notify"
	"github.com/odin-markets/realtime-core/internal/principal"
	"github.com/odin-markets/realtime-core/internal/ratelimit"
	"github.com/odin-markets/realtime-core/internal/room"
	"github.com/odin-markets/realtime-core/internal/store"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides RT_LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New(logging.Config{Level: "info", Format: "json"})

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info().Msg("starting realtime-core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DBReadTimeout, cfg.DBWriteTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	outboxStore := store.NewOutboxStore(pool)
	settingsStore := store.NewSettingsStore(pool)
	userStore := store.NewUserStore(pool)
	contestStore := store.NewContestStore(pool)
	walletStore := store.NewWalletStore(pool)

	if err := settingsStore.Warm(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to warm settings cache")
	}

	metrics.Register(prometheus.DefaultRegisterer)

	gatePublic := auth.NewGate(cfg.JWTSecret, userStore, true)
	gateRequired := auth.NewGate(cfg.JWTSecret, userStore, false)

	limiter := ratelimit.New(ratelimit.Config{
		MessagesPerWindow: cfg.DefaultMsgRatePerMin,
		MessageWindow:     time.Minute,
		ChatPerWindow:     cfg.ChatRatePer10Sec,
		ChatWindow:        10 * time.Second,
	})
	defer limiter.Stop()

	authorizer := &topic.Authorizer{Contests: contestStore}
	router := topic.NewRouter(authorizer)

	svcBridge, err := bridge.New(logger, router, settingsStore, bridge.Config{
		KafkaBrokers:  cfg.KafkaBrokers,
		KafkaGroup:    cfg.KafkaGroupID,
		MarketTopic:   cfg.MarketTopic,
		NatsURL:       cfg.NatsURL,
		WalletSubject: cfg.WalletSubject,
		SettingsSubj:  cfg.SettingsSubj,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct service bridge")
	}
	go svcBridge.Run(ctx)

	deliverer := notify.NewDeliverer(outboxStore, router, logger, notify.Config{
		PollInterval:   cfg.DeliveryPollInterval,
		BatchSize:      cfg.DeliveryBatchSize,
		Lookback:       cfg.DeliveryLookback,
		UnreadWindow:   30 * 24 * time.Hour,
		RetentionAge:   cfg.RetentionAge,
		RetentionSweep: cfg.RetentionSweep,
	})
	go deliverer.Run(ctx)

	router.RegisterSnapshot(topic.NSMarket, svcBridge.Snapshot)
	router.RegisterSnapshot(topic.NSToken, svcBridge.Snapshot)
	router.RegisterSnapshot(topic.NSWallet, walletSnapshot(walletStore))
	router.RegisterSnapshot(topic.NSNotifications, notifySnapshot(deliverer))
	router.RegisterSnapshot(topic.NSSettings, settingsSnapshot(settingsStore))
	router.RegisterSnapshot(topic.NSContest, contestSnapshot(contestStore))

	refresher := topic.NewRefresher(router, logger)
	go refresher.RunContestRefresh(ctx, cfg.ContestRefreshInterval, func(ctx context.Context, contestID int64) (any, any, error) {
		state, err := contestStore.State(ctx, contestID)
		if err != nil {
			return nil, nil, err
		}
		board, err := contestStore.Leaderboard(ctx, contestID)
		if err != nil {
			return nil, nil, err
		}
		return state, board, nil
	})
	go refresher.RunWalletMetricsRefresh(ctx, cfg.WalletMetricsInterval, walletStore.Metrics)

	roomManager := room.NewManager(router, authorizer, limiter)

	balanceCache := cache.New(cfg.BalanceCacheTTL, func(ctx context.Context, key string) (any, error) {
		return walletStore.Balance(ctx, key)
	})
	go balanceCache.RunSweeper(ctx, 5*time.Second)

	txCache := cache.New(cfg.TransactionCacheTTL, func(ctx context.Context, key string) (any, error) {
		wallet, _ := splitCacheKey(key)
		return walletStore.RecentTransactions(ctx, wallet, 20)
	})
	go txCache.RunSweeper(ctx, 5*time.Second)

	diag := diagnostics.New()

	h := hub.New(logger, hub.Deps{
		Router:       router,
		Rooms:        roomManager,
		Deliverer:    deliverer,
		Diagnostics:  diag,
		Settings:     settingsStore,
		BalanceCache: balanceCache,
		TxCache:      txCache,
		Contests:     contestStore,
	})

	endpoints := transport.DefaultEndpoints()
	srv := transport.NewServer(logger, newEndpointAuther(endpoints, gatePublic, gateRequired), limiter, h, endpoints, cfg.SendQueueDepth, cfg.MaxConnections)

	mux := srv.Mux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received, draining")

	srv.Shutdown()
	srv.BroadcastSystem(transport.NewFrame(transport.TypeSystem, map[string]string{"event": "shutdown"}))
	time.Sleep(cfg.ShutdownDrain)
	srv.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	cancel()
	logger.Info().Msg("shutdown complete")
}

// endpointAuther dispatches each upgrade to the public or
// required-token Gate based on which endpoint's path it hit: the
// market-data firehose accepts anonymous connections, the rest require
// a verified session token.
type endpointAuther struct {
	public   *auth.Gate
	required *auth.Gate
	optional map[string]bool
}

func newEndpointAuther(endpoints []transport.EndpointConfig, public, required *auth.Gate) *endpointAuther {
	optional := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		optional[ep.Path] = ep.TokenOptional
	}
	return &endpointAuther{public: public, required: required, optional: optional}
}

func (e *endpointAuther) Authenticate(ctx context.Context, r *http.Request) (principal.Principal, error) {
	if e.optional[r.URL.Path] {
		return e.public.Authenticate(ctx, r)
	}
	return e.required.Authenticate(ctx, r)
}

func walletSnapshot(ws *store.WalletStore) topic.SnapshotFunc {
	return func(ctx context.Context, c *transport.Connection, key topic.Key) (*transport.OutboundFrame, error) {
		balance, err := ws.Balance(ctx, key.Scope)
		if err != nil {
			return nil, err
		}
		txs, err := ws.RecentTransactions(ctx, key.Scope, 5)
		if err != nil {
			return nil, err
		}
		return transport.NewFrame(transport.TypeWalletState, map[string]any{
			"balance":      balance,
			"transactions": txs,
		}).WithTopic(key.String()), nil
	}
}

// notifySnapshot delegates to the Deliverer's own snapshot builder so
// the subscribe-time backlog and the periodic pump read the outbox
// the same way.
func notifySnapshot(d *notify.Deliverer) topic.SnapshotFunc {
	return func(ctx context.Context, c *transport.Connection, key topic.Key) (*transport.OutboundFrame, error) {
		return d.Snapshot(ctx, key.Scope)
	}
}

func settingsSnapshot(st *store.SettingsStore) topic.SnapshotFunc {
	return func(ctx context.Context, c *transport.Connection, key topic.Key) (*transport.OutboundFrame, error) {
		return transport.NewFrame(transport.TypeData, st.Snapshot()).WithTopic(key.String()), nil
	}
}

func contestSnapshot(cs *store.ContestStore) topic.SnapshotFunc {
	return func(ctx context.Context, c *transport.Connection, key topic.Key) (*transport.OutboundFrame, error) {
		id, err := parseContestID(key.Scope)
		if err != nil {
			return nil, err
		}
		state, err := cs.State(ctx, id)
		if err != nil {
			return nil, err
		}
		board, err := cs.Leaderboard(ctx, id)
		if err != nil {
			return nil, err
		}
		return transport.NewFrame(transport.TypeData, map[string]any{
			"state":       state,
			"leaderboard": board,
		}).WithTopic(key.String()), nil
	}
}

func splitCacheKey(key string) (wallet, before string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func parseContestID(scope string) (int64, error) {
	return strconv.ParseInt(scope, 10, 64)
}

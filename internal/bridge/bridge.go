// Package bridge implements ServiceBridge (C9): a pure translation
// layer from internal platform events (Kafka market/token events, NATS
// wallet and settings events) into TopicRouter broadcasts. Its only
// state is its consumer connections and the last payload seen per
// market/token topic, kept for subscribe-time snapshots.
package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/odin-markets/realtime-core/internal/metrics"
	"github.com/odin-markets/realtime-core/internal/store"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
)

// restartBudget bounds how aggressively a failing source is restarted:
// failures are contained and the source is restarted with backoff.
// The budget is a token bucket (burst maxRestarts, one token back per
// restartWindow/maxRestarts, i.e. every 30s) rather than a manual
// counter-and-reset window: up to 10 restarts may happen back to back,
// then one more per 30s, so a full restartWindow can see up to about
// 2*maxRestarts restarts. Supervision gives up on the first failure
// that finds the bucket empty.
const (
	restartBackoff = time.Second
	maxRestarts    = 10
	restartWindow  = 5 * time.Minute
)

// Bridge owns the Kafka and NATS sources and restarts either
// independently on failure without taking the rest of the process down.
type Bridge struct {
	logger   zerolog.Logger
	router   *topic.Router
	settings *store.SettingsStore

	kafka *kafkaSource
	nats  *natsSource

	// latest mirrors the most recent payload per market/token topic so
	// a fresh SUBSCRIBE can be answered with "latest token list" /
	// "latest token detail" without waiting for the next Kafka tick.
	latestMu sync.RWMutex
	latest   map[string]json.RawMessage
}

// Config carries the event-source connection parameters: franz-go for
// market/token events, nats.go for wallet and settings events.
type Config struct {
	KafkaBrokers []string
	KafkaGroup   string
	MarketTopic  string

	NatsURL       string
	WalletSubject string
	SettingsSubj  string
}

func New(logger zerolog.Logger, router *topic.Router, settings *store.SettingsStore, cfg Config) (*Bridge, error) {
	b := &Bridge{logger: logger, router: router, settings: settings, latest: make(map[string]json.RawMessage)}

	k, err := newKafkaSource(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.MarketTopic, b.onMarketEvent)
	if err != nil {
		return nil, err
	}
	b.kafka = k

	n, err := newNATSSource(cfg.NatsURL, cfg.WalletSubject, cfg.SettingsSubj, b.onWalletEvent, b.onSettingsEvent)
	if err != nil {
		k.close()
		return nil, err
	}
	b.nats = n

	return b, nil
}

// Run starts both sources and supervises them with bounded restarts
// until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	go b.supervise(ctx, "kafka", b.kafka.run)
	go b.supervise(ctx, "nats", b.nats.run)
	<-ctx.Done()
	b.kafka.close()
	b.nats.close()
}

// supervise runs fn to completion, restarting it with backoff unless
// ctx is done or the restart budget for source is exhausted, so a
// failing source never cascades into the rest of the process.
func (b *Bridge) supervise(ctx context.Context, source string, fn func(context.Context) error) {
	budget := rate.NewLimiter(rate.Every(restartWindow/maxRestarts), maxRestarts)

	for {
		if ctx.Err() != nil {
			return
		}

		err := fn(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			metrics.BridgeErrors.WithLabelValues(source).Inc()
			b.logger.Error().Err(err).Str("source", source).Msg("service bridge source failed, restarting")
		}

		if !budget.Allow() {
			b.logger.Error().Str("source", source).Msg("service bridge source exceeded restart budget, giving up")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}

// onMarketEvent translates a Kafka record into one of three broadcast
// shapes: TOKEN_DATA on market.tokens, MARKET_DATA on market.summary,
// or TOKEN_UPDATE on token.<symbol> (lower-cased).
func (b *Bridge) onMarketEvent(kind, symbol string, payload []byte) {
	switch kind {
	case "token_data":
		t := marketTopic(topic.NSMarket, "tokens")
		b.remember(t, payload)
		b.router.Broadcast(t, rawFrame(transport.TypeTokenData, payload, t), nil)
	case "market_summary":
		t := marketTopic(topic.NSMarket, "summary")
		b.remember(t, payload)
		const typeMarketData = "MARKET_DATA"
		b.router.Broadcast(t, rawFrame(typeMarketData, payload, t), nil)
	case "token_update":
		scope := strings.ToLower(symbol)
		t := marketTopic(topic.NSToken, scope)
		b.remember(t, payload)
		b.router.Broadcast(t, rawFrame(transport.TypeTokenUpdate, payload, t), nil)
	}
}

func (b *Bridge) remember(topicKey string, payload []byte) {
	cp := make(json.RawMessage, len(payload))
	copy(cp, payload)
	b.latestMu.Lock()
	b.latest[topicKey] = cp
	b.latestMu.Unlock()
}

// Snapshot implements topic.SnapshotFunc for the market/token
// namespaces: the most recent payload seen for key, or an empty array
// if no event has arrived yet since startup.
func (b *Bridge) Snapshot(ctx context.Context, c *transport.Connection, key topic.Key) (*transport.OutboundFrame, error) {
	b.latestMu.RLock()
	payload, ok := b.latest[key.String()]
	b.latestMu.RUnlock()

	typ := transport.TypeTokenData
	if key.Namespace == topic.NSToken {
		typ = transport.TypeTokenUpdate
	}
	if !ok {
		return transport.NewFrame(typ, []any{}).WithTopic(key.String()), nil
	}
	return transport.NewFrame(typ, payload).WithTopic(key.String()), nil
}

// onWalletEvent translates a NATS wallet account-change notification
// into a WALLET_UPDATE broadcast on wallet.<address>.
func (b *Bridge) onWalletEvent(address string, payload []byte) {
	t := marketTopic(topic.NSWallet, address)
	b.router.Broadcast(t, rawFrame(transport.TypeWalletUpdate, payload, t), nil)
}

// onSettingsEvent mirrors an externally-written setting change into the
// local cache and broadcasts SETTING_UPDATE on both settings.<key> and
// settings.<category>.
func (b *Bridge) onSettingsEvent(entry store.SettingsEntry, category string) {
	b.settings.ApplyExternal(entry)

	keyTopic := marketTopic(topic.NSSettings, entry.Key)
	b.router.Broadcast(keyTopic, transport.NewFrame(transport.TypeSettingUpdate, entry).WithTopic(keyTopic), nil)

	if category != "" {
		catTopic := marketTopic(topic.NSSettings, category)
		b.router.Broadcast(catTopic, transport.NewFrame(transport.TypeSettingUpdate, entry).WithTopic(catTopic), nil)
	}
}

func marketTopic(ns, scope string) string {
	return topic.Key{Namespace: ns, Scope: scope}.String()
}

func rawFrame(typ string, payload []byte, t string) *transport.OutboundFrame {
	return transport.NewFrame(typ, json.RawMessage(payload)).WithTopic(t)
}

// Package hub implements the Hub (C4): message classification and
// dispatch to TopicRouter, RoomManager, NotificationDeliverer, Cache,
// and AdminDiagnostics. It is the single transport.Handler the Server
// drives -- composition over inheritance, so Connection stays free of
// handler-specific behavior.
package hub

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/odin-markets/realtime-core/internal/cache"
	"github.com/odin-markets/realtime-core/internal/diagnostics"
	"github.com/odin-markets/realtime-core/internal/notify"
	"github.com/odin-markets/realtime-core/internal/room"
	"github.com/odin-markets/realtime-core/internal/store"
	"github.com/odin-markets/realtime-core/internal/topic"
	"github.com/odin-markets/realtime-core/internal/transport"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

// Hub wires every other component's public entry points to inbound
// frames. It owns no state of its own beyond its collaborators'
// references.
type Hub struct {
	logger zerolog.Logger

	router    *topic.Router
	rooms     *room.Manager
	deliverer *notify.Deliverer
	diag      *diagnostics.Collector
	settings  *store.SettingsStore

	balanceCache *cache.TTLCache
	txCache      *cache.TTLCache
	contests     *store.ContestStore
}

// Deps groups Hub's collaborators for registration and dispatch.
type Deps struct {
	Router       *topic.Router
	Rooms        *room.Manager
	Deliverer    *notify.Deliverer
	Diagnostics  *diagnostics.Collector
	Settings     *store.SettingsStore
	BalanceCache *cache.TTLCache
	TxCache      *cache.TTLCache
	Contests     *store.ContestStore
}

func New(logger zerolog.Logger, deps Deps) *Hub {
	return &Hub{
		logger:       logger,
		router:       deps.Router,
		rooms:        deps.Rooms,
		deliverer:    deps.Deliverer,
		diag:         deps.Diagnostics,
		settings:     deps.Settings,
		balanceCache: deps.BalanceCache,
		txCache:      deps.TxCache,
		contests:     deps.Contests,
	}
}

func (h *Hub) OnConnect(ctx context.Context, c *transport.Connection, endpoint string) {
	h.diag.RecordConnect(endpoint, c.RemoteAddr, c.Protocol)
}

func (h *Hub) OnClose(c *transport.Connection, endpoint, reason string) {
	h.router.RemoveConnection(c)
	h.rooms.LeaveAll(c)
	h.diag.RecordClose(endpoint, reason)
	h.diag.RecordDropped(endpoint, c.Dropped.Load())
}

// OnFrame classifies the inbound frame by its `type` field and routes
// it to the owning component. Every branch translates its own
// failures into an ERROR frame rather than unwinding.
func (h *Hub) OnFrame(ctx context.Context, c *transport.Connection, endpoint string, frame transport.InboundFrame) {
	switch frame.Type {
	case transport.TypeSubscribe:
		h.handleSubscribe(ctx, c, frame)
	case transport.TypeUnsubscribe:
		h.handleUnsubscribe(c, frame)
	case transport.TypeRequest:
		h.handleRequest(ctx, c, frame)
	case transport.TypeCommand:
		h.handleCommand(ctx, c, frame)
	case transport.TypeJoinRoom:
		h.handleJoinRoom(ctx, c, frame)
	case transport.TypeLeaveRoom:
		h.handleLeaveRoom(c, frame)
	case transport.TypeSendChatMessage:
		h.handleSendChat(c, frame)
	case transport.TypeParticipantActivity:
		h.handleActivity(c, frame)
	case transport.TypeMarkRead:
		h.handleMarkRead(ctx, c, frame)
	case transport.TypeGetUnread:
		h.handleGetUnread(ctx, c, frame)
	default:
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnknownType, "unknown message type: "+frame.Type))
	}
}

func (h *Hub) reply(c *transport.Connection, f *transport.OutboundFrame) {
	data, err := f.Marshal()
	if err != nil {
		return
	}
	c.Enqueue(data, f.IsDurable())
}

func (h *Hub) fail(c *transport.Connection, requestID string, err error) {
	code := wserr.CodeServerError
	if werr, ok := wserr.As(err); ok {
		code = werr.Code
	}
	h.reply(c, transport.ErrorFrame(int(code), err.Error()).WithRequestID(requestID))
}

func (h *Hub) ack(c *transport.Connection, requestID string, data any) {
	h.reply(c, transport.NewFrame(transport.TypeAcknowledgment, data).WithRequestID(requestID))
}

func (h *Hub) handleSubscribe(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	topics := frame.Channels
	if frame.Topic != "" {
		topics = append(topics, frame.Topic)
	}
	if len(topics) == 0 {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "subscribe requires a topic"))
		return
	}

	for _, t := range topics {
		snapshot, err := h.router.Subscribe(ctx, c, t)
		if err != nil {
			h.fail(c, frame.RequestID, err)
			continue
		}
		h.ack(c, frame.RequestID, map[string]any{"topic": t, "subscribed": true})
		if snapshot != nil {
			h.reply(c, snapshot.WithRequestID(frame.RequestID))
		}
	}
}

func (h *Hub) handleUnsubscribe(c *transport.Connection, frame transport.InboundFrame) {
	topics := frame.Channels
	if frame.Topic != "" {
		topics = append(topics, frame.Topic)
	}
	for _, t := range topics {
		h.router.Unsubscribe(c, t)
	}
	h.ack(c, frame.RequestID, map[string]any{"topics": topics, "unsubscribed": true})
}

package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/odin-markets/realtime-core/internal/transport"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

// REQUEST kinds the client can ask for a snapshot of: balances,
// transactions, leaderboard, settings. The client selects a kind via
// the `command` field, the same way COMMAND selects an admin action --
// REQUEST and COMMAND share one envelope field because both are
// "named action" messages, distinguished by the outer `type`.
const (
	RequestBalance      = "BALANCE"
	RequestTransactions = "TRANSACTIONS"
	RequestLeaderboard  = "LEADERBOARD"
	RequestSettings     = "SETTINGS"
)

func (h *Hub) handleRequest(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	switch frame.Command {
	case RequestBalance:
		h.requestBalance(ctx, c, frame)
	case RequestTransactions:
		h.requestTransactions(ctx, c, frame)
	case RequestLeaderboard:
		h.requestLeaderboard(ctx, c, frame)
	case RequestSettings:
		h.requestSettings(c, frame)
	default:
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "unknown request kind: "+frame.Command))
	}
}

func (h *Hub) requestBalance(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	if c.Principal.IsAnonymous() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "balance requires authentication"))
		return
	}
	v, err := h.balanceCache.Get(ctx, c.Principal.WalletAddress)
	if err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
	h.reply(c, transport.NewFrame(transport.TypeData, v).WithRequestID(frame.RequestID))
}

func (h *Hub) requestTransactions(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	if c.Principal.IsAnonymous() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "transactions require authentication"))
		return
	}
	var params struct {
		Before string `json:"before"`
	}
	if len(frame.Data) > 0 {
		_ = json.Unmarshal(frame.Data, &params)
	}
	key := c.Principal.WalletAddress + ":" + params.Before
	v, err := h.txCache.Get(ctx, key)
	if err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
	h.reply(c, transport.NewFrame(transport.TypeData, v).WithRequestID(frame.RequestID))
}

func (h *Hub) requestLeaderboard(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	id, err := strconv.ParseInt(frame.Key, 10, 64)
	if err != nil {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "leaderboard request requires a numeric key (contest id)"))
		return
	}
	board, err := h.contests.Leaderboard(ctx, id)
	if err != nil {
		h.fail(c, frame.RequestID, wserr.Wrap(wserr.CodeExternalServiceFail, "leaderboard fetch failed", err))
		return
	}
	h.reply(c, transport.NewFrame(transport.TypeData, board).WithRequestID(frame.RequestID))
}

func (h *Hub) requestSettings(c *transport.Connection, frame transport.InboundFrame) {
	if !c.Principal.IsAdmin() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "settings reads are admin-only"))
		return
	}
	if frame.Key != "" {
		entry, ok := h.settings.Get(frame.Key)
		if !ok {
			h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "unknown setting key"))
			return
		}
		h.reply(c, transport.NewFrame(transport.TypeData, entry).WithRequestID(frame.RequestID))
		return
	}
	h.reply(c, transport.NewFrame(transport.TypeData, h.settings.Snapshot()).WithRequestID(frame.RequestID))
}

// CommandUpdateSetting and CommandGetDiagnostics are the two admin
// COMMANDs this core implements; cancel/start-sync commands belong to
// the external sync workers and are out of scope here.
const (
	CommandUpdateSetting  = "UPDATE_SETTING"
	CommandGetDiagnostics = "GET_WEBSOCKET_DIAGNOSTICS"
)

func (h *Hub) handleCommand(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	switch frame.Command {
	case CommandUpdateSetting:
		h.commandUpdateSetting(ctx, c, frame)
	case CommandGetDiagnostics:
		h.commandGetDiagnostics(c, frame)
	default:
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "unsupported command: "+frame.Command))
	}
}

// commandUpdateSetting persists the new value, acknowledges the
// caller, then broadcasts to both the key and category topics.
func (h *Hub) commandUpdateSetting(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	if !c.Principal.IsAdmin() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "setting updates are admin-only"))
		return
	}
	if frame.Key == "" {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "update requires a key"))
		return
	}

	entry, err := h.settings.Update(ctx, frame.Key, frame.Value, "", c.Principal.WalletAddress, time.Now())
	if err != nil {
		h.fail(c, frame.RequestID, wserr.Wrap(wserr.CodeExternalServiceFail, "setting update failed", err))
		return
	}

	h.ack(c, frame.RequestID, map[string]any{"key": frame.Key, "success": true})

	keyTopic := settingsTopic(frame.Key)
	h.router.Broadcast(keyTopic, transport.NewFrame(transport.TypeSettingUpdate, entry).WithTopic(keyTopic), nil)
	if cat := category(frame.Key); cat != "" {
		catTopic := settingsTopic(cat)
		h.router.Broadcast(catTopic, transport.NewFrame(transport.TypeSettingUpdate, entry).WithTopic(catTopic), nil)
	}
}

func (h *Hub) commandGetDiagnostics(c *transport.Connection, frame transport.InboundFrame) {
	if !c.Principal.IsAdmin() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "diagnostics are admin-only"))
		return
	}
	snap := h.diag.Snapshot(h.router)
	h.reply(c, transport.NewFrame(transport.TypeWebsocketDiagnostics, snap).WithRequestID(frame.RequestID))
}

// category returns the `category` portion of a dotted settings key
// (e.g. "ui.banner" -> "ui"), used as the settings.<category>
// broadcast target.
func category(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[:i]
		}
	}
	return ""
}

func settingsTopic(scope string) string {
	return "settings." + scope
}

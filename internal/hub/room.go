package hub

import (
	"context"
	"encoding/json"

	"github.com/odin-markets/realtime-core/internal/transport"
	"github.com/odin-markets/realtime-core/internal/wserr"
)

func (h *Hub) handleJoinRoom(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	if frame.ContestID == 0 {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "joinRoom requires contestId"))
		return
	}
	roomState, err := h.rooms.Join(ctx, c, frame.ContestID)
	if err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
	h.reply(c, roomState.WithRequestID(frame.RequestID))
}

func (h *Hub) handleLeaveRoom(c *transport.Connection, frame transport.InboundFrame) {
	if frame.ContestID == 0 {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "leaveRoom requires contestId"))
		return
	}
	h.rooms.Leave(c, frame.ContestID)
	h.ack(c, frame.RequestID, map[string]any{"contestId": frame.ContestID, "left": true})
}

func (h *Hub) handleSendChat(c *transport.Connection, frame transport.InboundFrame) {
	if frame.ContestID == 0 {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "sendChatMessage requires contestId"))
		return
	}
	if err := h.rooms.SendChat(c, frame.ContestID, frame.Text); err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
	h.ack(c, frame.RequestID, map[string]any{"contestId": frame.ContestID, "sent": true})
}

func (h *Hub) handleActivity(c *transport.Connection, frame transport.InboundFrame) {
	if frame.ContestID == 0 {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "participantActivity requires contestId"))
		return
	}
	var payload any
	if len(frame.Data) > 0 {
		_ = json.Unmarshal(frame.Data, &payload)
	}
	if err := h.rooms.Activity(c, frame.ContestID, payload); err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
}

func (h *Hub) handleMarkRead(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	if c.Principal.IsAnonymous() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "markRead requires authentication"))
		return
	}
	if frame.EntryID == "" {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeBadRequest, "markRead requires entryId"))
		return
	}
	confirmed, err := h.deliverer.MarkRead(ctx, c.Principal.WalletAddress, frame.EntryID)
	if err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
	h.reply(c, confirmed.WithRequestID(frame.RequestID))
}

func (h *Hub) handleGetUnread(ctx context.Context, c *transport.Connection, frame transport.InboundFrame) {
	if c.Principal.IsAnonymous() {
		h.fail(c, frame.RequestID, wserr.New(wserr.CodeUnauthorized, "getUnread requires authentication"))
		return
	}
	unread, err := h.deliverer.GetUnread(ctx, c.Principal.WalletAddress)
	if err != nil {
		h.fail(c, frame.RequestID, err)
		return
	}
	h.reply(c, unread.WithRequestID(frame.RequestID))
}

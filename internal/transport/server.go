package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"

	"github.com/odin-markets/realtime-core/internal/metrics"
	"github.com/odin-markets/realtime-core/internal/principal"
)

// Authenticator resolves a Principal for an upgrade request (C2).
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (principal.Principal, error)
}

// Limiter gates inbound messages per principal (C3). limit overrides
// the limiter's default budget for the call, letting each endpoint
// enforce its own per-minute cap against a shared Limiter.
type Limiter interface {
	AllowMessage(key string, limit int) bool
	RemoveClient(key string)
}

// Handler is the capability set an endpoint-specific owner (the Hub)
// satisfies: onConnect, onFrame, onClose. Composing it in rather than
// embedding a base connection type keeps Connection free of
// handler-specific state.
type Handler interface {
	OnConnect(ctx context.Context, c *Connection, endpoint string)
	OnFrame(ctx context.Context, c *Connection, endpoint string, frame InboundFrame)
	OnClose(c *Connection, endpoint, reason string)
}

// Server accepts upgrades on the fixed endpoint set and drives each
// Connection's read/write pumps.
type Server struct {
	logger      zerolog.Logger
	auth        Authenticator
	limiter     Limiter
	handler     Handler
	endpoints   []EndpointConfig
	queueDepth  int
	maxConns    int64
	nextID      atomic.Int64
	shuttingDown atomic.Bool

	count atomic.Int64

	connsMu sync.Mutex
	conns   map[int64]*Connection
}

func NewServer(logger zerolog.Logger, authn Authenticator, limiter Limiter, handler Handler, endpoints []EndpointConfig, queueDepth int, maxConns int) *Server {
	return &Server{
		logger:     logger,
		auth:       authn,
		limiter:    limiter,
		handler:    handler,
		endpoints:  endpoints,
		queueDepth: queueDepth,
		maxConns:   int64(maxConns),
		conns:      make(map[int64]*Connection),
	}
}

// Mux builds the http.ServeMux with one handler per endpoint path.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	for _, ep := range s.endpoints {
		ep := ep
		mux.HandleFunc(ep.Path, func(w http.ResponseWriter, r *http.Request) {
			s.handleUpgrade(w, r, ep)
		})
	}
	return mux
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request, ep EndpointConfig) {
	if s.shuttingDown.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	if s.maxConns > 0 && s.count.Load() >= s.maxConns {
		metrics.ConnectionsRejected.WithLabelValues(ep.Name).Inc()
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	p, err := s.auth.Authenticate(r.Context(), r)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues(ep.Name).Inc()
		http.Error(w, "unauthorized", http.StatusForbidden)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues(ep.Name).Inc()
		s.logger.Error().Err(err).Str("endpoint", ep.Name).Msg("websocket upgrade failed")
		return
	}

	id := s.nextID.Add(1)
	c := New(id, conn, r.RemoteAddr, p, s.queueDepth)
	c.Protocol = r.Header.Get("Sec-WebSocket-Protocol")
	s.count.Add(1)
	metrics.ConnectionsActive.WithLabelValues(ep.Name).Inc()

	s.connsMu.Lock()
	s.conns[id] = c
	s.connsMu.Unlock()

	c.OnClose = func(cc *Connection) {
		s.count.Add(-1)
		metrics.ConnectionsActive.WithLabelValues(ep.Name).Dec()
		s.limiter.RemoveClient(limiterKey(cc))
		s.connsMu.Lock()
		delete(s.conns, cc.ID)
		s.connsMu.Unlock()
		s.handler.OnClose(cc, ep.Name, cc.CloseReason())
	}

	s.handler.OnConnect(r.Context(), c, ep.Name)

	go s.writePump(c)
	go s.readPump(c, ep)
}

func limiterKey(c *Connection) string {
	if c.Principal.IsAnonymous() {
		return "anon-" + c.RemoteAddr
	}
	return c.Principal.WalletAddress
}

func (s *Server) readPump(c *Connection, ep EndpointConfig) {
	var violations int
	var violationsSince time.Time

	defer func() {
		if c.CloseReason() == "" {
			c.Close("read_error")
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.Touch()

		switch op {
		case ws.OpClose:
			c.Close("client_close")
			return
		case ws.OpPing, ws.OpPong:
			continue
		case ws.OpText:
			metrics.FramesReceived.WithLabelValues(ep.Name).Inc()

			var frame InboundFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				s.sendError(c, 4000, "malformed frame")
				violations, violationsSince = s.trackViolation(c, violations, violationsSince)
				continue
			}

			if frame.Type != TypePing {
				if len(msg) > int(ep.MaxFrameBytes) {
					s.sendError(c, 4000, "frame too large")
					continue
				}
				if !s.limiter.AllowMessage(limiterKey(c), ep.MsgRatePerMin) {
					metrics.RateLimited.WithLabelValues("message").Inc()
					s.sendError(c, 4290, "rate limited")
					continue
				}
			}

			if frame.Type == TypePing {
				s.pong(c, frame)
				continue
			}

			s.handler.OnFrame(context.Background(), c, ep.Name, frame)
		}
	}
}

func (s *Server) trackViolation(c *Connection, count int, since time.Time) (int, time.Time) {
	now := time.Now()
	if since.IsZero() || now.Sub(since) > violationWindow {
		since = now
		count = 0
	}
	count++
	if count > maxProtocolViolations {
		c.Close("protocol_violation")
	}
	return count, since
}

func (s *Server) pong(c *Connection, frame InboundFrame) {
	f := NewFrame(TypePong, nil)
	f.Timestamp = frame.Timestamp
	data, _ := f.Marshal()
	c.Enqueue(data, false)
}

func (s *Server) sendError(c *Connection, code int, message string) {
	f := ErrorFrame(code, message)
	data, _ := f.Marshal()
	c.Enqueue(data, false)
}

func (s *Server) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				wsutil.WriteServerMessage(c.conn, ws.OpClose, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpText, message); err != nil {
				return
			}
			metrics.FramesSent.Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
			if time.Since(c.LastPong()) > pongWait {
				c.Close("ping_timeout")
				return
			}
		}
	}
}

// Shutdown stops accepting new upgrades; draining existing
// connections (broadcast a SYSTEM notice, wait, force-close) is
// orchestrated by the caller.
func (s *Server) Shutdown() {
	s.shuttingDown.Store(true)
}

// BroadcastSystem sends a frame to every currently connected client,
// non-durably (used for the shutdown announcement; a congested client
// simply won't see it before being force-closed).
func (s *Server) BroadcastSystem(frame *OutboundFrame) {
	data, err := frame.Marshal()
	if err != nil {
		return
	}
	s.connsMu.Lock()
	targets := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		targets = append(targets, c)
	}
	s.connsMu.Unlock()
	for _, c := range targets {
		c.Enqueue(data, false)
	}
}

// CloseAll force-closes every remaining connection, the final step of
// graceful shutdown once the drain window has elapsed.
func (s *Server) CloseAll() {
	s.connsMu.Lock()
	targets := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		targets = append(targets, c)
	}
	s.connsMu.Unlock()
	for _, c := range targets {
		c.Close("server_shutdown")
	}
}

package transport

import "time"

// EndpointConfig describes one of the fixed upgrade paths the server
// accepts connections on.
type EndpointConfig struct {
	Name          string // e.g. "market-data", used as the endpoint label in diagnostics
	Path          string // e.g. "/ws/market-data"
	MaxFrameBytes int64
	TokenOptional bool // public endpoints may omit a session token
	MsgRatePerMin int  // per-endpoint override of the default message limiter
}

// DefaultEndpoints returns the five endpoints with their per-endpoint
// frame size and rate limit overrides.
func DefaultEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{Name: "market-data", Path: "/ws/market-data", MaxFrameBytes: 5 << 20, TokenOptional: true, MsgRatePerMin: 500},
		{Name: "contest", Path: "/ws/contest", MaxFrameBytes: 32 << 10, TokenOptional: false, MsgRatePerMin: 120},
		{Name: "wallet", Path: "/ws/wallet", MaxFrameBytes: 32 << 10, TokenOptional: false, MsgRatePerMin: 100},
		{Name: "notifications", Path: "/ws/notifications", MaxFrameBytes: 50 << 10, TokenOptional: false, MsgRatePerMin: 100},
		{Name: "system-settings", Path: "/ws/system-settings", MaxFrameBytes: 2 << 20, TokenOptional: false, MsgRatePerMin: 100},
	}
}

const (
	// writeWait bounds how long a single frame write may take before
	// the connection is considered dead.
	writeWait = 5 * time.Second
	// pongWait is the liveness window: no pong within it terminates
	// the connection.
	pongWait = 30 * time.Second
	// pingPeriod must be < pongWait so at least one ping lands inside
	// every pong window.
	pingPeriod = 27 * time.Second

	// maxProtocolViolations closes a connection once more than this
	// many malformed frames arrive within the violationWindow. Other
	// protocol errors (oversized frame, rate limited, unknown type) are
	// answered with an ERROR frame but not counted.
	maxProtocolViolations = 5
	violationWindow        = 60 * time.Second
)

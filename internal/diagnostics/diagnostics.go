// Package diagnostics implements AdminDiagnostics (C10): the
// GET_WEBSOCKET_DIAGNOSTICS command response, fed by lightweight hooks
// the Hub calls on connect and on close (which also reports the
// connection's dropped-frame count).
package diagnostics

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/odin-markets/realtime-core/internal/topic"
)

const historySize = 50

type upgradeRecord struct {
	Endpoint  string    `json:"endpoint"`
	RemoteAddr string   `json:"remoteAddr"`
	Protocol  string    `json:"protocol,omitempty"`
	At        time.Time `json:"at"`
}

type terminationRecord struct {
	Endpoint string    `json:"endpoint"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Collector accumulates the bounded history GET_WEBSOCKET_DIAGNOSTICS
// reports: the last N upgrade headers and recent termination reasons.
// All counters are process-lifetime, reset on restart.
type Collector struct {
	mu sync.Mutex

	connCounts    map[string]int64
	droppedTotal  map[string]int64
	upgrades      []upgradeRecord
	terminations  []terminationRecord
	proc          *process.Process
}

func New() *Collector {
	c := &Collector{
		connCounts:   make(map[string]int64),
		droppedTotal: make(map[string]int64),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

// RecordConnect logs a successful upgrade to the upgrade-header
// history and increments the endpoint's live connection count.
func (c *Collector) RecordConnect(endpoint, remoteAddr, protocol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connCounts[endpoint]++
	c.upgrades = append(c.upgrades, upgradeRecord{
		Endpoint:   endpoint,
		RemoteAddr: remoteAddr,
		Protocol:   protocol,
		At:         time.Now(),
	})
	if len(c.upgrades) > historySize {
		c.upgrades = c.upgrades[len(c.upgrades)-historySize:]
	}
}

// RecordClose logs a termination reason and decrements the live count.
func (c *Collector) RecordClose(endpoint, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connCounts[endpoint] > 0 {
		c.connCounts[endpoint]--
	}
	c.terminations = append(c.terminations, terminationRecord{Endpoint: endpoint, Reason: reason, At: time.Now()})
	if len(c.terminations) > historySize {
		c.terminations = c.terminations[len(c.terminations)-historySize:]
	}
}

// RecordDropped adds a connection's lifetime non-durable drop count to
// its endpoint's total; called once from OnClose since Connection
// tracks its own running Dropped counter while live.
func (c *Collector) RecordDropped(endpoint string, n int64) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.droppedTotal[endpoint] += n
}

// Snapshot is the GET_WEBSOCKET_DIAGNOSTICS payload: connection counts,
// per-topic subscription cardinality, upgrade/termination history, and
// dropped-frame counts.
type Snapshot struct {
	ConnectionsByEndpoint map[string]int64   `json:"connectionsByEndpoint"`
	DroppedByEndpoint     map[string]int64   `json:"droppedByEndpoint"`
	SubscriptionsByTopic  map[string]int     `json:"subscriptionsByTopic"`
	RecentUpgrades        []upgradeRecord    `json:"recentUpgrades"`
	RecentTerminations    []terminationRecord `json:"recentTerminations"`
	ProcessRSSBytes       uint64             `json:"processRssBytes,omitempty"`
}

func (c *Collector) Snapshot(router *topic.Router) Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		ConnectionsByEndpoint: copyInt64Map(c.connCounts),
		DroppedByEndpoint:     copyInt64Map(c.droppedTotal),
		RecentUpgrades:        append([]upgradeRecord(nil), c.upgrades...),
		RecentTerminations:    append([]terminationRecord(nil), c.terminations...),
	}
	c.mu.Unlock()

	snap.SubscriptionsByTopic = make(map[string]int)
	for _, t := range router.Topics() {
		snap.SubscriptionsByTopic[t] = router.Subscribers(t)
	}

	if c.proc != nil {
		if info, err := c.proc.MemoryInfo(); err == nil && info != nil {
			snap.ProcessRSSBytes = info.RSS
		}
	}

	return snap
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

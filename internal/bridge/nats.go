package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/odin-markets/realtime-core/internal/store"
)

type walletEvent struct {
	Address string          `json:"walletAddress"`
	Data    json.RawMessage `json:"data"`
}

type settingsEvent struct {
	Key         string          `json:"key"`
	Category    string          `json:"category,omitempty"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
	UpdatedBy   string          `json:"updatedBy"`
}

type onWalletFunc func(address string, payload []byte)
type onSettingsFunc func(entry store.SettingsEntry, category string)

// natsSource subscribes to the wallet-account-change and settings-update
// subjects, grounded on OmarEhab007-RemedyIQ/backend/internal/streaming's
// connection-option style (reconnect handling, named connection).
type natsSource struct {
	conn          *nats.Conn
	walletSubject string
	settingsSubj  string
	onWallet      onWalletFunc
	onSettings    onSettingsFunc
}

func newNATSSource(url, walletSubject, settingsSubj string, onWallet onWalletFunc, onSettings onSettingsFunc) (*natsSource, error) {
	conn, err := nats.Connect(url,
		nats.Name("realtime-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge: nats connect: %w", err)
	}
	return &natsSource{
		conn:          conn,
		walletSubject: walletSubject,
		settingsSubj:  settingsSubj,
		onWallet:      onWallet,
		onSettings:    onSettings,
	}, nil
}

// run subscribes both subjects and blocks until ctx is cancelled; a
// subscribe failure ends the call for the supervisor to restart.
func (s *natsSource) run(ctx context.Context) error {
	walletSub, err := s.conn.Subscribe(s.walletSubject, func(msg *nats.Msg) {
		var ev walletEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Address == "" {
			return
		}
		s.onWallet(ev.Address, ev.Data)
	})
	if err != nil {
		return fmt.Errorf("bridge: subscribe wallet subject: %w", err)
	}
	defer walletSub.Unsubscribe()

	settingsSub, err := s.conn.Subscribe(s.settingsSubj, func(msg *nats.Msg) {
		var ev settingsEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Key == "" {
			return
		}
		s.onSettings(store.SettingsEntry{
			Key:         ev.Key,
			Value:       ev.Value,
			Description: ev.Description,
			UpdatedAt:   time.Now(),
			UpdatedBy:   ev.UpdatedBy,
		}, ev.Category)
	})
	if err != nil {
		return fmt.Errorf("bridge: subscribe settings subject: %w", err)
	}
	defer settingsSub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func (s *natsSource) close() {
	if s.conn != nil {
		s.conn.Drain()
	}
}

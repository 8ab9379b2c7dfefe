package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// marketEvent mirrors the wire shape produced by the market/token
// services onto the configured Kafka topic.
type marketEvent struct {
	Kind   string          `json:"kind"`
	Symbol string          `json:"symbol,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// onMarketFunc receives a decoded event's kind, symbol (if any), and
// raw data payload to forward onward (bridge.onMarketEvent).
type onMarketFunc func(kind, symbol string, payload []byte)

// kafkaSource consumes the market-event topic via franz-go, grounded on
// the teacher's ws/kafka/consumer.go.
type kafkaSource struct {
	client *kgo.Client
	onMsg  onMarketFunc
}

func newKafkaSource(brokers []string, group, topic string, onMsg onMarketFunc) (*kafkaSource, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("bridge: at least one kafka broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(60*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge: create kafka client: %w", err)
	}
	return &kafkaSource{client: client, onMsg: onMsg}, nil
}

// run polls until ctx is cancelled or a fetch returns a fatal client
// error; either ends the call so the supervisor can restart it.
func (s *kafkaSource) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return fmt.Errorf("bridge: kafka fetch error: %w", errs[0].Err)
		}

		fetches.EachRecord(func(record *kgo.Record) {
			var ev marketEvent
			if err := json.Unmarshal(record.Value, &ev); err != nil {
				return
			}
			s.onMsg(ev.Kind, ev.Symbol, ev.Data)
		})
	}
}

func (s *kafkaSource) close() {
	if s.client != nil {
		s.client.Close()
	}
}

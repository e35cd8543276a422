// Package kafka publishes committed ledger events to a Kafka topic.
//
// Messages are keyed by item name and routed with a hash balancer, so all
// events of one item land on one partition in commit order.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/ledger"
)

type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher returns an async publisher. Delivery failures are reported
// through logger since Publish returns before the broker acknowledges.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("kafka delivery failed",
					zap.String("topic", topic),
					zap.Int("messages", len(messages)),
					zap.Error(err))
			}
		},
	}
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, ev ledger.Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

type consumption struct {
	LogID   string `json:"log_id"`
	Count   int    `json:"count"`
	Removed bool   `json:"removed"`
}

type payload struct {
	EventID    string        `json:"event_id"`
	Kind       string        `json:"kind"`
	ItemName   string        `json:"item_name"`
	UserID     string        `json:"user_id,omitempty"`
	Count      int           `json:"count"`
	LogID      string        `json:"log_id,omitempty"`
	Consumed   []consumption `json:"consumed,omitempty"`
	StockAfter int           `json:"stock_after"`
	OccurredAt string        `json:"occurred_at"`
}

func encode(ev ledger.Event) (kafka.Message, error) {
	p := payload{
		EventID:    ev.ID,
		Kind:       string(ev.Kind),
		ItemName:   string(ev.ItemName),
		UserID:     string(ev.UserID),
		Count:      ev.Count,
		LogID:      string(ev.LogID),
		StockAfter: ev.StockAfter,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	for _, c := range ev.Consumed {
		p.Consumed = append(p.Consumed, consumption{
			LogID:   string(c.LogID),
			Count:   c.Count,
			Removed: c.Removed,
		})
	}

	data, err := json.Marshal(p)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.ItemName),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(ev.Kind)},
		},
	}, nil
}

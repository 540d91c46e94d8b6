// Package notify publishes ledger events that other systems act on, currently
// lot recalls.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// RecallNotice announces that a lot was recalled and which batches it reached.
type RecallNotice struct {
	RecallID   string    `json:"recall_id"`
	LotID      string    `json:"lot_id"`
	LotNumber  string    `json:"lot_number"`
	MaterialID string    `json:"material_id"`
	Reason     string    `json:"reason"`
	BatchIDs   []string  `json:"batch_ids"`
	RecalledAt time.Time `json:"recalled_at"`
}

type Publisher interface {
	PublishRecall(ctx context.Context, notice RecallNotice) error
}

// Noop drops every notice.
type Noop struct{}

func (Noop) PublishRecall(context.Context, RecallNotice) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notices as JSON messages keyed by lot ID.
type Kafka struct {
	writer messageWriter
	topic  string
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("notify: no kafka brokers configured")
	}
	if topic == "" {
		return nil, errors.New("notify: kafka topic must not be empty")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}, nil
}

func (k *Kafka) PublishRecall(ctx context.Context, notice RecallNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode recall notice: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(notice.LotID),
		Value: payload,
		Time:  notice.RecalledAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("lot.recalled")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish recall to %s: %w", k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

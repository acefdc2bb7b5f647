// Package events публикует события жизненного цикла членства в Kafka.
package events

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/mmeshcher/clubhub/internal/model"
)

// Writer описывает используемую часть kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher записывает события из outbox в топик Kafka.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher создаёт публикатор для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaPublisherWithWriter создаёт публикатор поверх готового writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Dispatch публикует событие. Ключом служит идентификатор пользователя, поэтому события одного
// пользователя попадают в одну партицию.
func (p *KafkaPublisher) Dispatch(ctx context.Context, msg model.OutboxMessage) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(msg.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Close закрывает writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

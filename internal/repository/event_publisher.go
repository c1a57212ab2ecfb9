package repository

import (
	"context"

	"TriggerDesk/internal/domain/models"
	pkgkafka "TriggerDesk/pkg/kafka"
)

// KafkaEventPublisher implements repository.EventPublisher. Messages are keyed by symbol.
type KafkaEventPublisher struct {
	producer    *pkgkafka.Producer
	goTopic     string
	eventsTopic string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, goTopic, eventsTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, goTopic: goTopic, eventsTopic: eventsTopic}
}

type goMessage struct {
	Symbol string          `json:"symbol"`
	Go     models.GoSignal `json:"go"`
}

// eventTypeHeader lets downstream consumers filter without decoding.
const eventTypeHeader = "event_type"

func (p *KafkaEventPublisher) PublishGo(ctx context.Context, symbol string, g models.GoSignal) error {
	return p.producer.PublishBatch(ctx, p.goTopic, []pkgkafka.Message{{
		Key:     []byte(symbol),
		Value:   goMessage{Symbol: symbol, Go: g},
		Headers: map[string]string{eventTypeHeader: string(models.EventGoSignal)},
	}})
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, e models.Event) error {
	return p.PublishEvents(ctx, []models.Event{e})
}

// PublishEvents sends a batch in one write.
func (p *KafkaEventPublisher) PublishEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(events))
	for i, e := range events {
		msgs[i] = pkgkafka.Message{Key: []byte(e.Symbol), Value: e, Headers: map[string]string{eventTypeHeader: string(e.Type)}}
	}
	return p.producer.PublishBatch(ctx, p.eventsTopic, msgs)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopEventPublisher is used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishGo(context.Context, string, models.GoSignal) error { return nil }
func (NopEventPublisher) PublishEvent(context.Context, models.Event) error         { return nil }
func (NopEventPublisher) Close() error                                             { return nil }

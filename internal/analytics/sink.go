// Package analytics forwards order summaries to the reporting store and
// serves the per-menu statistics built from them.
package analytics

import (
	"context"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/messaging"
)

const DefaultTopic = "order.summary"

// Sink receives one summary per created order.
type Sink interface {
	RecordOrderSummary(ctx context.Context, s domain.OrderSummary) error
}

// KafkaSink publishes summaries for the analytics worker to store.
type KafkaSink struct {
	producer *messaging.Producer
}

func NewKafkaSink(producer *messaging.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (k *KafkaSink) RecordOrderSummary(ctx context.Context, s domain.OrderSummary) error {
	return k.producer.Publish(ctx, s.OrderNumber, s)
}

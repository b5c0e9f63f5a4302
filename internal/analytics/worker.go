package analytics

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

// SummaryHandler stores order summaries consumed from Kafka.
type SummaryHandler struct {
	sink   Sink
	logger *zap.Logger
}

func NewSummaryHandler(sink Sink, logger *zap.Logger) *SummaryHandler {
	return &SummaryHandler{sink: sink, logger: logger}
}

// Handle skips payloads it cannot decode so one bad message does not stall
// the partition. Store failures are returned and the message is redelivered.
func (h *SummaryHandler) Handle(ctx context.Context, payload []byte) error {
	var s domain.OrderSummary
	if err := json.Unmarshal(payload, &s); err != nil || s.OrderNumber == "" {
		h.logger.Warn("skipping malformed order summary", zap.ByteString("payload", payload), zap.Error(err))
		return nil
	}

	if err := h.sink.RecordOrderSummary(ctx, s); err != nil {
		return err
	}

	h.logger.Info("order summary stored",
		zap.String("order_number", s.OrderNumber),
		zap.Int64("menu_id", s.MenuID),
	)
	return nil
}

package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.InfoContext(ctx, "order event",
		"event_id", ev.ID,
		"event", string(ev.Type),
		"order_id", ev.Data.OrderID,
		"customer_id", ev.Data.CustomerID,
		"asset_name", ev.Data.AssetName,
		"side", ev.Data.Side,
		"size", ev.Data.Size,
		"price", ev.Data.Price,
		"status", ev.Data.Status,
	)
	return nil
}

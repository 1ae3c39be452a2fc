package orders

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/messaging"
)

// Broadcaster pushes events to live admin sessions.
type Broadcaster interface {
	Broadcast(event domain.Event)
}

// Notifier fans order lifecycle events out to Kafka and the admin feed. Delivery is
// best effort: the order is already committed when it runs.
type Notifier struct {
	publisher messaging.Publisher
	feed      Broadcaster
	logger    *slog.Logger
}

func NewNotifier(publisher messaging.Publisher, feed Broadcaster, logger *slog.Logger) *Notifier {
	return &Notifier{publisher: publisher, feed: feed, logger: logger}
}

func (n *Notifier) OrderPlaced(ctx context.Context, order domain.Order, email string) {
	n.emit(ctx, domain.OrderPlacedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Email:       email,
		Items:       order.Items,
		TotalAmount: order.TotalAmount,
		Timestamp:   order.CreatedAt,
	})
}

func (n *Notifier) StatusChanged(ctx context.Context, order domain.Order, from domain.OrderStatus) {
	statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(order.Status))))
	n.emit(ctx, domain.OrderStatusChangedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		From:      from,
		To:        order.Status,
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) emit(ctx context.Context, event domain.Event) {
	if n.feed != nil {
		n.feed.Broadcast(event)
	}
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Error("failed to publish event", "error", err, "topic", event.Topic(), "order_id", event.Key())
	}
}

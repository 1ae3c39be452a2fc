package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/email"
	"github.com/joao-fontenele/storefront/internal/messaging"
)

const maxParallelReservations = 4

var (
	meter              = otel.Meter("storefront/worker")
	ordersProcessed, _ = meter.Int64Counter("storefront.worker.orders",
		metric.WithDescription("Placed orders processed by outcome"))
)

var errInsufficientStock = errors.New("insufficient stock")

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// OrderProcessor fulfils placed orders: it reserves stock through the storefront's
// internal API, cancels orders that cannot be fulfilled, and emails the customer.
type OrderProcessor struct {
	apiURL     string
	apiKey     string
	mailer     Mailer
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOrderProcessor(apiURL, apiKey string, mailer Mailer, client *http.Client, logger *slog.Logger) *OrderProcessor {
	return &OrderProcessor{
		apiURL:     apiURL,
		apiKey:     apiKey,
		mailer:     mailer,
		httpClient: client,
		logger:     logger,
	}
}

type reservedItem struct {
	ProductID string
	Quantity  int
}

// Handle processes one message. Non order.placed events are skipped. Returning an
// error leaves the offset uncommitted so the message is redelivered.
func (p *OrderProcessor) Handle(ctx context.Context, msg messaging.Message) error {
	if msg.EventType != "" && msg.EventType != domain.TopicOrderPlaced {
		p.logger.Debug("skipping event", "event_type", msg.EventType, "key", msg.Key)
		return nil
	}

	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		p.logger.Error("dropping malformed order placed event", "error", err, "key", msg.Key)
		p.record(ctx, "malformed")
		return nil
	}

	p.logger.Info("processing order placed event", "order_id", event.OrderID, "user_id", event.UserID, "items", len(event.Items))

	reserved, err := p.reserveStock(ctx, event.Items)
	if err != nil {
		p.logger.Warn("failed to reserve stock", "error", err, "order_id", event.OrderID)

		p.releaseStock(ctx, reserved)

		if !errors.Is(err, errInsufficientStock) {
			p.record(ctx, "retry")
			return fmt.Errorf("reserve stock: %w", err)
		}

		if err := p.cancelOrder(ctx, event.OrderID); err != nil {
			p.logger.Error("failed to cancel order", "error", err, "order_id", event.OrderID)
			return fmt.Errorf("cancel order after stock failure: %w", err)
		}

		if err := p.mailer.Send(ctx, cancellationEmail(event)); err != nil {
			p.logger.Error("failed to send cancellation email", "error", err, "order_id", event.OrderID)
			return fmt.Errorf("send cancellation email: %w", err)
		}

		p.record(ctx, "cancelled")
		p.logger.Info("order cancelled due to insufficient stock", "order_id", event.OrderID)
		return nil
	}

	if err := p.mailer.Send(ctx, confirmationEmail(event)); err != nil {
		p.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	p.record(ctx, "confirmed")
	p.logger.Info("order processing complete", "order_id", event.OrderID)
	return nil
}

// reserveStock reserves every line concurrently. It returns what was reserved even on
// failure so the caller can release it. Requests use the parent context so a reservation
// that succeeds is never abandoned mid-flight.
func (p *OrderProcessor) reserveStock(ctx context.Context, items []domain.OrderItem) ([]reservedItem, error) {
	var (
		mu       sync.Mutex
		reserved []reservedItem
		g        errgroup.Group
	)
	g.SetLimit(maxParallelReservations)

	for _, item := range items {
		g.Go(func() error {
			if err := p.stockCall(ctx, item.ProductID, "reserve", item.Quantity); err != nil {
				return err
			}
			mu.Lock()
			reserved = append(reserved, reservedItem{ProductID: item.ProductID, Quantity: item.Quantity})
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return reserved, err
}

func (p *OrderProcessor) releaseStock(ctx context.Context, reserved []reservedItem) {
	for _, item := range reserved {
		if err := p.stockCall(ctx, item.ProductID, "release", item.Quantity); err != nil {
			p.logger.Error("failed to release stock", "error", err, "product_id", item.ProductID, "quantity", item.Quantity)
		}
	}
}

func (p *OrderProcessor) stockCall(ctx context.Context, productID, action string, quantity int) error {
	url := fmt.Sprintf("%s/api/stock/%s/%s", p.apiURL, productID, action)
	status, err := p.do(ctx, http.MethodPost, url, map[string]int{"quantity": quantity})
	if err != nil {
		return fmt.Errorf("%s stock for product %s: %w", action, productID, err)
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusConflict, http.StatusNotFound:
		return fmt.Errorf("%w for product %s", errInsufficientStock, productID)
	default:
		return fmt.Errorf("storefront returned status %d for %s of product %s", status, action, productID)
	}
}

// cancelOrder moves the order to Cancelled. A 409 means an admin already moved it
// past Pending, which is left as is.
func (p *OrderProcessor) cancelOrder(ctx context.Context, orderID string) error {
	url := fmt.Sprintf("%s/api/internal/order/%s", p.apiURL, orderID)
	status, err := p.do(ctx, http.MethodPut, url, map[string]string{"status": string(domain.OrderStatusCancelled)})
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		p.logger.Warn("order no longer cancellable", "order_id", orderID)
		return nil
	default:
		return fmt.Errorf("storefront returned status %d", status)
	}
}

func (p *OrderProcessor) do(ctx context.Context, method, url string, body any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()

	return resp.StatusCode, nil
}

func (p *OrderProcessor) record(ctx context.Context, outcome string) {
	ordersProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func confirmationEmail(event domain.OrderPlacedEvent) email.Message {
	return email.Message{
		To:      event.Email,
		Subject: "Order Confirmation: " + event.OrderID,
		Body: fmt.Sprintf("Your order %s has been confirmed with %d items totalling %s.",
			event.OrderID, len(event.Items), event.TotalAmount.StringFixed(2)),
	}
}

func cancellationEmail(event domain.OrderPlacedEvent) email.Message {
	return email.Message{
		To:      event.Email,
		Subject: "Order Cancelled: " + event.OrderID,
		Body:    fmt.Sprintf("Your order %s has been cancelled due to insufficient stock. You will be reimbursed.", event.OrderID),
	}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is anything published to the order topics. Key selects the partition so all
// events of one order stay ordered.
type Event interface {
	Topic() string
	Key() string
}

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
)

type OrderPlacedEvent struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Email       string          `json:"email"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (OrderPlacedEvent) Topic() string { return TopicOrderPlaced }
func (e OrderPlacedEvent) Key() string { return e.OrderID }

type OrderStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
}

func (OrderStatusChangedEvent) Topic() string { return TopicOrderStatusChanged }
func (e OrderStatusChangedEvent) Key() string { return e.OrderID }

package orders

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter           = otel.Meter("storefront/orders")
	ordersPlaced, _ = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders materialized from carts"))
	statusChanges, _ = meter.Int64Counter("storefront.orders.status_changes",
		metric.WithDescription("Order status transitions by target status"))
)

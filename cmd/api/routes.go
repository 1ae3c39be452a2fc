package main

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/inventory"
	"github.com/joao-fontenele/storefront/internal/orderfeed"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/users"
)

type application struct {
	cfg        config.Config
	logger     *slog.Logger
	middleware *auth.Middleware

	users     *users.Handler
	catalog   *catalog.Handler
	carts     *cart.Handler
	orders    *orders.Handler
	checkout  *checkout.Handler
	inventory *inventory.Handler
	feed      *orderfeed.Hub
	metrics   http.Handler
}

func (app *application) routes() *http.ServeMux {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
	}
	customer := app.middleware.RequireCustomer
	admin := app.middleware.RequireAdmin
	anyRole := app.middleware.RequireAnyRole
	internal := func(h http.HandlerFunc) http.HandlerFunc {
		return auth.RequireAPIKey(app.cfg.InternalAPIKey, app.logger, h)
	}

	route("POST /api/auth/sign-up", app.users.HandleSignUp)
	route("POST /api/auth/sign-in", app.users.HandleSignIn)
	route("POST /api/auth/sign-out", app.users.HandleSignOut)
	route("GET /api/auth/check-customer", customer(app.users.HandleWhoAmI))
	route("GET /api/auth/check-admin", admin(app.users.HandleWhoAmI))

	route("GET /api/user/user-list", admin(app.users.HandleList))
	route("GET /api/user/{id}", anyRole(app.users.HandleGet))
	route("PUT /api/user/{id}", anyRole(app.users.HandleUpdate))
	route("DELETE /api/user/{id}", admin(app.users.HandleArchive))

	route("POST /api/category", admin(app.catalog.HandleCreateCategory))
	route("GET /api/category/category-list", app.catalog.HandleListCategories)
	route("GET /api/category/{id}", app.catalog.HandleGetCategory)
	route("PUT /api/category/{id}", admin(app.catalog.HandleUpdateCategory))

	route("POST /api/product", admin(app.catalog.HandleCreateProduct))
	route("GET /api/product/product-list", app.catalog.HandleListProducts)
	route("GET /api/product/export", admin(app.catalog.HandleExport))
	route("GET /api/product/{id}", app.catalog.HandleGetProduct)
	route("PUT /api/product/{id}", admin(app.catalog.HandleUpdateProduct))
	route("DELETE /api/product/{id}", admin(app.catalog.HandleArchiveProduct))

	route("GET /api/cart/{userId}", anyRole(app.carts.HandleGet))
	route("POST /api/cart/{userId}", anyRole(app.carts.HandleAdd))
	route("PUT /api/cart/{cartItemId}", customer(app.carts.HandleUpdateItem))
	route("DELETE /api/cart/{cartItemId}", customer(app.carts.HandleDeleteItem))
	route("DELETE /api/cart", customer(app.carts.HandleClear))

	route("POST /api/order/checkout", customer(app.checkout.HandleCheckout))
	route("POST /api/order/save-order", customer(app.checkout.HandleSaveOrder))
	route("POST /api/order/webhook", app.checkout.HandleWebhook)
	route("GET /api/order", admin(app.orders.HandleList))
	route("GET /api/order/export", admin(app.orders.HandleExport))
	route("GET /api/order/ws", admin(app.feed.HandleWS))
	route("GET /api/order/detail/{orderId}", anyRole(app.orders.HandleGet))
	route("GET /api/order/{userId}", anyRole(app.orders.HandleHistory))
	route("PUT /api/order/{orderId}", admin(app.orders.HandleUpdateStatus))

	route("GET /api/stock", admin(app.inventory.HandleListStock))
	route("GET /api/stock/{productId}", admin(app.inventory.HandleGetStock))
	route("POST /api/stock/{productId}/reserve", internal(app.inventory.HandleReserve))
	route("POST /api/stock/{productId}/release", internal(app.inventory.HandleRelease))
	route("PUT /api/internal/order/{orderId}", internal(app.orders.HandleUpdateStatus))

	mux.Handle("GET /public/", http.StripPrefix("/public/", http.FileServer(http.Dir(app.cfg.UploadDir))))
	mux.Handle("GET /metrics", app.metrics)

	return mux
}

package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/checkout"
	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/inventory"
	"github.com/joao-fontenele/storefront/internal/orderfeed"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/users"
)

// newTestApp wires handlers without backing stores. Only requests rejected before
// reaching a store are safe to send.
func newTestApp(t *testing.T) *application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokens("secret", auth.TokenTTL)
	cfg := config.Config{UploadDir: t.TempDir(), InternalAPIKey: "internal-key"}

	return &application{
		cfg:        cfg,
		logger:     logger,
		middleware: auth.NewMiddleware(tokens, nil, logger),
		users:      users.NewHandler(nil, tokens, false, logger),
		catalog:    catalog.NewHandler(nil, nil, "", logger),
		carts:      cart.NewHandler(nil, "", logger),
		orders:     orders.NewHandler(nil, nil, "", logger),
		checkout:   checkout.NewHandler(checkout.Deps{}, logger),
		inventory:  inventory.NewHandler(nil, logger),
		feed:       orderfeed.NewHub(logger),
		metrics:    http.NotFoundHandler(),
	}
}

func TestRoutesRequireCredentials(t *testing.T) {
	mux := newTestApp(t).routes()

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/cart/user-1", http.StatusUnauthorized},
		{http.MethodPut, "/api/cart/item-1", http.StatusUnauthorized},
		{http.MethodDelete, "/api/cart", http.StatusUnauthorized},
		{http.MethodPost, "/api/order/checkout", http.StatusUnauthorized},
		{http.MethodGet, "/api/order", http.StatusUnauthorized},
		{http.MethodGet, "/api/order/ws", http.StatusUnauthorized},
		{http.MethodPost, "/api/product", http.StatusUnauthorized},
		{http.MethodGet, "/api/user/user-list", http.StatusUnauthorized},
		{http.MethodPost, "/api/stock/p-1/reserve", http.StatusUnauthorized},
		{http.MethodPut, "/api/internal/order/o-1", http.StatusUnauthorized},
		{http.MethodPatch, "/api/cart/user-1", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRoutesServeUploads(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(app.cfg.UploadDir, "tote.png"), []byte("png"), 0o644))

	rec := httptest.NewRecorder()
	app.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/tote.png", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}

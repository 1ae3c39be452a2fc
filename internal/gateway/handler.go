package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront/internal/httpx"
)

// Handler fronts the storefront API for browser clients.
type Handler struct {
	api    *ServiceProxy
	logger *slog.Logger
}

func NewHandler(api *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		api:    api,
		logger: logger,
	}
}

// HandleAPI proxies /api. Service-to-service routes are not reachable from outside.
func (h *Handler) HandleAPI(w http.ResponseWriter, r *http.Request) {
	if isInternal(r.URL.Path) {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "not found")
		return
	}
	h.proxyRequest(w, r, r.URL.Path)
}

func (h *Handler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, r.URL.Path)
}

func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("proxying feed connection", "path", r.URL.Path)
	h.api.Upgrade(w, r)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, path string) {
	resp, err := h.api.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func isInternal(path string) bool {
	if strings.HasPrefix(path, "/api/internal/") {
		return true
	}
	if strings.HasPrefix(path, "/api/stock/") {
		return strings.HasSuffix(path, "/reserve") || strings.HasSuffix(path, "/release")
	}
	return false
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/gateway"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

func main() {
	ctx := context.Background()
	config.LoadDotEnv()
	logger := telemetry.NewLogger("gateway", config.Getenv("LOG_LEVEL", "info"))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", config.Getenv("SERVICE_VERSION", "0.1.0"))
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	port := config.Getenv("GATEWAY_PORT", "8000")

	apiURL := os.Getenv("STOREFRONT_API_URL")
	if apiURL == "" {
		logger.Error("STOREFRONT_API_URL is required")
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	apiProxy, err := gateway.NewServiceProxy(apiURL, httpClient)
	if err != nil {
		logger.Error("failed to create api proxy", "error", err)
		os.Exit(1)
	}
	handler := gateway.NewHandler(apiProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/order/ws", telemetry.WithHTTPRoute(handler.HandleFeed))
	mux.HandleFunc("/api/", telemetry.WithHTTPRoute(handler.HandleAPI))
	mux.HandleFunc("GET /public/", telemetry.WithHTTPRoute(handler.HandlePublic))

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "gateway",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", port, "upstream", apiURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

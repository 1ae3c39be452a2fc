package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("cart item 1: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: quantity", domain.ErrValidation), http.StatusBadRequest},
		{domain.ErrConflict, http.StatusConflict},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{domain.ErrUpstreamRejected, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestFail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("exposes domain message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Fail(rec, logger, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation), "failed")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "validation failed: quantity must be at least 1", body["error"])
	})

	t.Run("hides internal errors", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Fail(rec, logger, errors.New("pq: connection refused"), "failed")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pq")
		assert.Contains(t, rec.Body.String(), "internal server error")
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"tote"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "tote", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	assert.ErrorIs(t, DecodeJSON(req, &v), domain.ErrValidation)
}

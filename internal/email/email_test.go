package email

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSink(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", h.HandleSend)
	mux.HandleFunc("GET /sent", h.HandleSent)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return h, server
}

func TestClientSend(t *testing.T) {
	_, server := newSink(t)
	client := NewClient(server.URL, server.Client())

	err := client.Send(context.Background(), Message{To: "ana@example.com", Subject: "Order confirmed", Body: "thanks"})
	require.NoError(t, err)

	resp, err := server.Client().Get(server.URL + "/sent")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var sent []SentMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.False(t, sent[0].SentAt.IsZero())
}

func TestClientSendRejected(t *testing.T) {
	_, server := newSink(t)
	client := NewClient(server.URL, server.Client())

	tests := []struct {
		name string
		msg  Message
	}{
		{"bad recipient", Message{To: "not-an-address", Subject: "hi"}},
		{"missing subject", Message{To: "ana@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Send(context.Background(), tt.msg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "400")
		})
	}
}

func TestOutboxIsBounded(t *testing.T) {
	h, server := newSink(t)
	client := NewClient(server.URL, server.Client())

	for range outboxSize + 5 {
		require.NoError(t, client.Send(context.Background(), Message{To: "ana@example.com", Subject: "s"}))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.outbox, outboxSize)
}

package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// Fake is an in-process provider for local runs without a Stripe account. Sessions are
// paid as soon as they are created. Webhooks are plain JSON
// {"type": "...", "session_id": "..."} and carry no signature.
type Fake struct {
	successURL string

	mu       sync.Mutex
	sessions map[string]Session
}

func NewFake(successURL string) *Fake {
	return &Fake{successURL: successURL, sessions: make(map[string]Session)}
}

func (f *Fake) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if len(req.Items) == 0 {
		return Session{}, fmt.Errorf("%w: no line items", domain.ErrUpstreamRejected)
	}

	id := "cs_fake_" + uuid.New().String()
	s := Session{
		ID:     id,
		URL:    strings.ReplaceAll(f.successURL, "{CHECKOUT_SESSION_ID}", id),
		UserID: req.UserID,
		Paid:   true,
	}

	f.mu.Lock()
	f.sessions[id] = s
	f.mu.Unlock()
	return s, nil
}

func (f *Fake) GetSession(_ context.Context, id string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: checkout session %s", domain.ErrNotFound, id)
	}
	return s, nil
}

func (f *Fake) ParseWebhook(payload []byte, _ string) (WebhookEvent, error) {
	var body struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: malformed webhook", domain.ErrValidation)
	}
	return WebhookEvent{Type: body.Type, SessionID: body.SessionID}, nil
}

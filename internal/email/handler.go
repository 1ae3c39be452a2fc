package email

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

const outboxSize = 100

// Message is the wire format of POST /send.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: invalid recipient %q", domain.ErrValidation, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	return nil
}

type SentMessage struct {
	Message
	SentAt time.Time `json:"sent_at"`
}

// Handler is a development mail sink. It logs each message and keeps the most recent
// ones for inspection.
type Handler struct {
	mu     sync.Mutex
	outbox []SentMessage
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := httpx.DecodeJSON(r, &msg); err != nil {
		httpx.Fail(w, h.logger, err, "invalid email request")
		return
	}
	if err := msg.Validate(); err != nil {
		httpx.Fail(w, h.logger, err, "invalid email request")
		return
	}

	h.mu.Lock()
	h.outbox = append(h.outbox, SentMessage{Message: msg, SentAt: time.Now().UTC()})
	if len(h.outbox) > outboxSize {
		h.outbox = h.outbox[len(h.outbox)-outboxSize:]
	}
	h.mu.Unlock()

	h.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}

// HandleSent lists recently sent messages, newest last.
func (h *Handler) HandleSent(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	sent := append([]SentMessage{}, h.outbox...)
	h.mu.Unlock()

	httpx.WriteJSON(w, h.logger, http.StatusOK, sent)
}

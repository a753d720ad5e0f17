package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zooml/survmarket/internal/domain"
)

// renderPayload is the JSON body POSTed for each slot render event.
type renderPayload struct {
	EventID   string          `json:"event_id"`
	Timestamp string          `json:"timestamp"`
	SlotIndex int             `json:"slot_index"`
	Sign      domain.Point    `json:"sign"`
	Frame     domain.Point    `json:"frame"`
	Empty     bool            `json:"empty"`
	Listing   *domain.Listing `json:"listing,omitempty"`
	SignText  string          `json:"sign_text"`
}

// WebhookRenderer delivers render events to an external display service
// over HTTP. Implements store.Renderer. Dispatch happens on a fresh
// goroutine so the caller (which holds the marketplace lock) never blocks
// on the network; failures are logged at debug level and dropped.
type WebhookRenderer struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookRenderer creates a renderer posting to url with the given
// timeout.
func NewWebhookRenderer(url string, timeout time.Duration, logger *slog.Logger) *WebhookRenderer {
	return &WebhookRenderer{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// RenderSlot posts a render event for the slot. Fire-and-forget.
func (r *WebhookRenderer) RenderSlot(index int, slot domain.SlotRef, l *domain.Listing) {
	payload := renderPayload{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
		SlotIndex: index,
		Sign:      slot.Sign,
		Frame:     slot.Frame,
		Empty:     l == nil,
		Listing:   l,
		SignText:  EmptySignText,
	}
	if l != nil {
		payload.SignText = SignText(l)
	}
	go r.deliver(payload)
}

func (r *WebhookRenderer) deliver(payload renderPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Debug("render event encode failed", slog.String("error", err.Error()))
		return
	}
	resp, err := r.client.Post(r.url, "application/json", bytes.NewReader(body))
	if err != nil {
		r.logger.Debug("render event delivery failed",
			slog.Int("slot", payload.SlotIndex),
			slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
}

// LogRenderer writes render events to the log. Used when no display
// webhook is configured, so board activity is still observable.
type LogRenderer struct {
	logger *slog.Logger
}

// NewLogRenderer creates a LogRenderer.
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

// RenderSlot logs the slot's new content.
func (r *LogRenderer) RenderSlot(index int, slot domain.SlotRef, l *domain.Listing) {
	if l == nil {
		r.logger.Debug("render slot empty", slog.Int("slot", index))
		return
	}
	r.logger.Debug("render slot",
		slog.Int("slot", index),
		slog.Int64("listing_id", l.ID),
		slog.String("seller", l.OwnerID),
		slog.String("price", domain.FormatCoins(l.Price)),
	)
}

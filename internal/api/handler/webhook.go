package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
)

// seenTTL covers the provider retry window; the database unique index
// backstops anything older.
const seenTTL = 48 * time.Hour

// WebhookHandler receives provider callbacks. It verifies the signature,
// enqueues the event and answers immediately; all account mutation happens
// in the reconcile worker. Providers retry non-2xx responses, so slow work
// here would multiply deliveries.
type WebhookHandler struct {
	queue  *queue.Queue
	paypal *payment.PayPalClient
	cfg    *config.Config
}

func NewWebhookHandler(q *queue.Queue, paypal *payment.PayPalClient, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{
		queue:  q,
		paypal: paypal,
		cfg:    cfg,
	}
}

// Stripe handles POST /api/webhooks/stripe.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "cannot read body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(body,
		c.GetHeader("Stripe-Signature"), h.cfg.Stripe.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn().Err(err).Msg("stripe webhook signature verification failed")
		c.String(http.StatusBadRequest, "signature verification failed")
		return
	}

	h.enqueue(c, &queue.EventMessage{
		EventID:    event.ID,
		Provider:   payment.ProviderStripe,
		Type:       string(event.Type),
		OccurredAt: time.Unix(event.Created, 0),
		Payload:    event.Data.Raw,
	})
}

type paypalEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime time.Time       `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

// PayPal handles POST /api/webhooks/paypal.
func (h *WebhookHandler) PayPal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "cannot read body")
		return
	}

	ok, err := h.paypal.VerifyWebhookSignature(c.Request.Context(),
		h.cfg.PayPal.WebhookID, c.Request.Header, body)
	if err != nil {
		// verification endpoint unreachable; let paypal retry
		log.Warn().Err(err).Msg("paypal webhook verification call failed")
		c.String(http.StatusServiceUnavailable, "verification unavailable")
		return
	}
	if !ok {
		log.Warn().Msg("paypal webhook signature rejected")
		c.String(http.StatusBadRequest, "signature verification failed")
		return
	}

	var event paypalEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" {
		c.String(http.StatusBadRequest, "malformed event")
		return
	}

	occurredAt := event.CreateTime
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	h.enqueue(c, &queue.EventMessage{
		EventID:    event.ID,
		Provider:   payment.ProviderPayPal,
		Type:       event.EventType,
		OccurredAt: occurredAt,
		Payload:    event.Resource,
	})
}

func (h *WebhookHandler) enqueue(c *gin.Context, msg *queue.EventMessage) {
	ctx := c.Request.Context()

	fresh, err := h.queue.MarkSeen(ctx, msg.EventID, seenTTL)
	if err != nil {
		// redis down: enqueue anyway, the database constraint still dedups
		log.Warn().Err(err).Str("event_id", msg.EventID).Msg("idempotency fast path unavailable")
	} else if !fresh {
		log.Debug().Str("event_id", msg.EventID).Msg("duplicate webhook delivery acknowledged")
		c.String(http.StatusOK, "ok")
		return
	}

	if err := h.queue.Push(ctx, msg); err != nil {
		log.Error().Err(err).Str("event_id", msg.EventID).Msg("failed to enqueue webhook event")
		// non-2xx so the provider redelivers once the queue is back
		c.String(http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	log.Info().
		Str("event_id", msg.EventID).
		Str("provider", msg.Provider).
		Str("type", msg.Type).
		Msg("webhook event queued")
	c.String(http.StatusOK, "ok")
}

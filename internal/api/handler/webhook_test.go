package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
)

const testWebhookSecret = "whsec_test_123"

func newWebhookRig(t *testing.T) (*gin.Engine, *queue.Queue) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := queue.NewQueue(client, "test_webhook_events")
	cfg := &config.Config{
		Stripe: config.StripeConfig{Enabled: true, WebhookSecret: testWebhookSecret},
	}
	h := NewWebhookHandler(q, payment.NewPayPalClient("", "", true), cfg)

	r := gin.New()
	r.POST("/api/webhooks/stripe", h.Stripe)
	r.POST("/api/webhooks/paypal", h.PayPal)
	return r, q
}

func stripeEventBody(t *testing.T, eventID, eventType string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      eventID,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":     "sub_1",
				"status": "active",
				"metadata": map[string]string{
					"tier":    "essentials",
					"user_id": "1",
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func signedRequest(t *testing.T, secret string, body []byte) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhookAcceptsValidSignature(t *testing.T) {
	r, q := newWebhookRig(t)
	body := stripeEventBody(t, "evt_valid", "customer.subscription.updated")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, testWebhookSecret, body))
	require.Equal(t, http.StatusOK, w.Code)

	n, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "verified event must be queued")

	msg, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "evt_valid", msg.EventID)
	assert.Equal(t, "customer.subscription.updated", msg.Type)
	assert.Equal(t, payment.ProviderStripe, msg.Provider)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	r, q := newWebhookRig(t)
	body := stripeEventBody(t, "evt_forged", "customer.subscription.updated")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, "whsec_wrong", body))
	require.Equal(t, http.StatusBadRequest, w.Code)

	n, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "forged event must not be queued")
}

func TestStripeWebhookRejectsUnsignedBody(t *testing.T) {
	r, _ := newWebhookRig(t)
	body := stripeEventBody(t, "evt_plain", "customer.subscription.updated")

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookDuplicateDeliveryAcked(t *testing.T) {
	r, q := newWebhookRig(t)
	body := stripeEventBody(t, "evt_retry", "customer.subscription.updated")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, testWebhookSecret, body))
	require.Equal(t, http.StatusOK, w.Code)

	// the provider retries with the same event id; we ack without requeuing
	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, testWebhookSecret, body))
	require.Equal(t, http.StatusOK, w.Code)

	n, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

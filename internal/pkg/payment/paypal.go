package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const ProviderPayPal = "paypal"

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"
)

// PayPalClient is a minimal REST client for the subscription and order
// endpoints this platform needs. There is no official Go SDK, so the calls
// are made directly.
type PayPalClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	enabled      bool

	// tokenMu guards the cached token; handlers share one client.
	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalClient(clientID, clientSecret string, sandbox bool) *PayPalClient {
	base := paypalLiveBase
	if sandbox {
		base = paypalSandboxBase
	}
	return &PayPalClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      base,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		enabled:      clientID != "" && clientSecret != "",
	}
}

// PayPalResult carries the hosted-approval redirect.
type PayPalResult struct {
	ID          string
	ApprovalURL string
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreateSubscription creates a billing subscription and returns the
// approval URL the user must be redirected to.
func (p *PayPalClient) CreateSubscription(ctx context.Context, planID, userID, returnURL, cancelURL string) (*PayPalResult, error) {
	if !p.enabled {
		return nil, &ProviderError{Provider: ProviderPayPal, Kind: KindNotConfigured, Message: "paypal disabled"}
	}
	if planID == "" {
		return nil, &ProviderError{Provider: ProviderPayPal, Kind: KindNotConfigured, Message: "plan id not configured"}
	}

	body := map[string]interface{}{
		"plan_id":   planID,
		"custom_id": userID,
		"application_context": map[string]interface{}{
			"brand_name":          "PhD Writer Pro",
			"locale":              "en-US",
			"shipping_preference": "NO_SHIPPING",
			"user_action":         "SUBSCRIBE_NOW",
			"return_url":          returnURL,
			"cancel_url":          cancelURL,
		},
	}

	var resp struct {
		ID    string       `json:"id"`
		Links []paypalLink `json:"links"`
	}
	if err := p.post(ctx, "/v1/billing/subscriptions", body, &resp); err != nil {
		return nil, err
	}

	approval := findLink(resp.Links, "approve")
	if approval == "" {
		return nil, &ProviderError{Provider: ProviderPayPal, Kind: KindRejected, Message: "no approval url in response"}
	}
	return &PayPalResult{ID: resp.ID, ApprovalURL: approval}, nil
}

// CreateOrder creates a one-time capture order for an essay purchase.
func (p *PayPalClient) CreateOrder(ctx context.Context, amount float64, wordCount int, userID, returnURL, cancelURL string) (*PayPalResult, error) {
	if !p.enabled {
		return nil, &ProviderError{Provider: ProviderPayPal, Kind: KindNotConfigured, Message: "paypal disabled"}
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"amount": map[string]string{
					"currency_code": "USD",
					"value":         fmt.Sprintf("%.2f", amount),
				},
				"description": fmt.Sprintf("PhD Essay Writing - %d words", wordCount),
				"custom_id":   userID,
			},
		},
		"application_context": map[string]interface{}{
			"brand_name":   "PhD Writer Pro",
			"landing_page": "BILLING",
			"user_action":  "PAY_NOW",
			"return_url":   returnURL,
			"cancel_url":   cancelURL,
		},
	}

	var resp struct {
		ID    string       `json:"id"`
		Links []paypalLink `json:"links"`
	}
	if err := p.post(ctx, "/v2/checkout/orders", body, &resp); err != nil {
		return nil, err
	}

	approval := findLink(resp.Links, "approve")
	if approval == "" {
		return nil, &ProviderError{Provider: ProviderPayPal, Kind: KindRejected, Message: "no approval url in response"}
	}
	return &PayPalResult{ID: resp.ID, ApprovalURL: approval}, nil
}

// CancelSubscription cancels a billing subscription. PayPal answers 422 for
// a subscription that is already cancelled; that counts as success here.
func (p *PayPalClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if !p.enabled {
		return &ProviderError{Provider: ProviderPayPal, Kind: KindNotConfigured, Message: "paypal disabled"}
	}

	body := map[string]string{"reason": "User requested cancellation"}
	path := fmt.Sprintf("/v1/billing/subscriptions/%s/cancel", url.PathEscape(subscriptionID))

	if err := p.post(ctx, path, body, nil); err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Kind == KindRejected && strings.Contains(pe.Message, "SUBSCRIPTION_STATUS_INVALID") {
			return nil
		}
		return err
	}
	return nil
}

// VerifyWebhookSignature asks PayPal to verify a webhook delivery.
func (p *PayPalClient) VerifyWebhookSignature(ctx context.Context, webhookID string, headers http.Header, rawEvent json.RawMessage) (bool, error) {
	if !p.enabled {
		return false, &ProviderError{Provider: ProviderPayPal, Kind: KindNotConfigured, Message: "paypal disabled"}
	}

	body := map[string]interface{}{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        webhookID,
		"webhook_event":     rawEvent,
	}

	var resp struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.post(ctx, "/v1/notifications/verify-webhook-signature", body, &resp); err != nil {
		return false, err
	}
	return resp.VerificationStatus == "SUCCESS", nil
}

func (p *PayPalClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return wrapErr(ProviderPayPal, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &ProviderError{
			Provider: ProviderPayPal,
			Kind:     KindRejected,
			Message:  fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(respBody), 300)),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode paypal response: %w", err)
		}
	}
	return nil
}

// accessToken returns the cached bearer token, refreshing it when expired.
// The mutex is held across the refresh so concurrent callers make a single
// token request.
func (p *PayPalClient) accessToken(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", wrapErr(ProviderPayPal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &ProviderError{
			Provider: ProviderPayPal,
			Kind:     KindRejected,
			Message:  fmt.Sprintf("token request failed: %s", truncate(string(body), 200)),
		}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}

	p.token = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return p.token, nil
}

func findLink(links []paypalLink, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}


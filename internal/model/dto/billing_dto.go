package dto

// QuoteRequest asks for the per-essay price of a given word count.
type QuoteRequest struct {
	WordCount int `json:"word_count" binding:"required,min=500,max=10000"`
}

type QuoteResponse struct {
	WordCount int     `json:"word_count"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}

// ChargeRequest initiates either a subscription or a one-time essay charge.
// Tier is required for purpose=subscription, WordCount for purpose=essay.
type ChargeRequest struct {
	Purpose   string `json:"purpose" binding:"required,oneof=subscription essay"`
	Provider  string `json:"provider" binding:"required,oneof=stripe paypal"`
	Tier      string `json:"tier" binding:"omitempty,oneof=essentials pro"`
	WordCount int    `json:"word_count" binding:"omitempty,min=500,max=10000"`
}

// ChargeResponse carries exactly one continuation: a Stripe client secret
// for in-page confirmation, or a PayPal approval URL to redirect to.
// Raw provider secrets are never returned.
type ChargeResponse struct {
	Provider      string  `json:"provider"`
	CorrelationID string  `json:"correlation_id"`
	Amount        float64 `json:"amount"`
	ClientSecret  string  `json:"client_secret,omitempty"`
	ApprovalURL   string  `json:"approval_url,omitempty"`
}

type CancelSubscriptionResponse struct {
	Cancelled bool   `json:"cancelled"`
	Tier      string `json:"tier"`
	Note      string `json:"note,omitempty"`
}

// BillingUpdate is pushed over the websocket when the reconcile worker
// applies an authoritative transition, so the UI can replace its
// optimistic pending state.
type BillingUpdate struct {
	State   string `json:"state"` // pending, confirmed, cancelled, failed
	Tier    string `json:"tier,omitempty"`
	Credits int    `json:"credits,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

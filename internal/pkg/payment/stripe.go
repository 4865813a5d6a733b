package payment

import (
	"context"
	"errors"
	"strconv"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/subscription"
)

const ProviderStripe = "stripe"

// StripeClient wraps the Stripe API for subscriptions and one-time essay
// charges. It only initiates charges; account upgrades happen when the
// webhook event comes back through reconciliation.
type StripeClient struct {
	enabled bool
}

func NewStripeClient(secretKey string) *StripeClient {
	if secretKey == "" {
		return &StripeClient{}
	}
	stripelib.Key = secretKey
	return &StripeClient{enabled: true}
}

// SubscriptionResult carries the client-side confirmation token.
type SubscriptionResult struct {
	SubscriptionID string
	CustomerID     string
	ClientSecret   string
}

// EnsureCustomer resolves an existing Stripe customer or creates one.
func (s *StripeClient) EnsureCustomer(ctx context.Context, customerID, email, name string) (string, error) {
	if !s.enabled {
		return "", &ProviderError{Provider: ProviderStripe, Kind: KindNotConfigured, Message: "stripe disabled"}
	}

	if customerID != "" {
		params := &stripelib.CustomerParams{}
		params.Context = ctx
		if _, err := customer.Get(customerID, params); err == nil {
			return customerID, nil
		}
		// fall through and create a fresh customer
	}

	params := &stripelib.CustomerParams{
		Email: stripelib.String(email),
		Name:  stripelib.String(name),
	}
	params.Context = ctx
	params.AddMetadata("source", "phd_writer_platform")

	c, err := customer.New(params)
	if err != nil {
		return "", s.mapErr(err)
	}
	return c.ID, nil
}

// CreateSubscription creates an incomplete subscription against the
// configured price and returns the confirmation client secret.
func (s *StripeClient) CreateSubscription(ctx context.Context, customerID, priceID string, userID int64, tier string) (*SubscriptionResult, error) {
	if !s.enabled {
		return nil, &ProviderError{Provider: ProviderStripe, Kind: KindNotConfigured, Message: "stripe disabled"}
	}
	if priceID == "" {
		return nil, &ProviderError{Provider: ProviderStripe, Kind: KindNotConfigured, Message: "price id not configured for tier " + tier}
	}

	params := &stripelib.SubscriptionParams{
		Customer: stripelib.String(customerID),
		Items: []*stripelib.SubscriptionItemsParams{
			{Price: stripelib.String(priceID)},
		},
		PaymentBehavior: stripelib.String("default_incomplete"),
		PaymentSettings: &stripelib.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripelib.String("on_subscription"),
		},
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.confirmation_secret")
	params.AddMetadata("tier", tier)
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	sub, err := subscription.New(params)
	if err != nil {
		return nil, s.mapErr(err)
	}

	result := &SubscriptionResult{
		SubscriptionID: sub.ID,
		CustomerID:     customerID,
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.ConfirmationSecret != nil {
		result.ClientSecret = sub.LatestInvoice.ConfirmationSecret.ClientSecret
	}
	return result, nil
}

// CreateEssayPayment creates a one-time payment intent. Amount is in the
// smallest currency unit.
func (s *StripeClient) CreateEssayPayment(ctx context.Context, amountCents int64, wordCount int, userID int64) (string, error) {
	if !s.enabled {
		return "", &ProviderError{Provider: ProviderStripe, Kind: KindNotConfigured, Message: "stripe disabled"}
	}

	params := &stripelib.PaymentIntentParams{
		Amount:   stripelib.Int64(amountCents),
		Currency: stripelib.String(string(stripelib.CurrencyUSD)),
		AutomaticPaymentMethods: &stripelib.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripelib.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("type", "essay_payment")
	params.AddMetadata("word_count", strconv.Itoa(wordCount))
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", s.mapErr(err)
	}
	return pi.ClientSecret, nil
}

// CancelSubscription cancels immediately at the provider. Cancelling an
// already-cancelled subscription is treated as success.
func (s *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if !s.enabled {
		return &ProviderError{Provider: ProviderStripe, Kind: KindNotConfigured, Message: "stripe disabled"}
	}

	params := &stripelib.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := subscription.Cancel(subscriptionID, params); err != nil {
		var stripeErr *stripelib.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil
		}
		if errors.As(err, &stripeErr) && stripeErr.Code == stripelib.ErrorCodeResourceMissing {
			return nil
		}
		return s.mapErr(err)
	}
	return nil
}

func (s *StripeClient) mapErr(err error) error {
	var stripeErr *stripelib.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripelib.ErrorTypeCard, stripelib.ErrorTypeInvalidRequest:
			return &ProviderError{Provider: ProviderStripe, Kind: KindRejected, Message: stripeErr.Msg, Err: err}
		}
		return &ProviderError{Provider: ProviderStripe, Kind: KindUnreachable, Message: stripeErr.Msg, Err: err}
	}
	return wrapErr(ProviderStripe, err)
}


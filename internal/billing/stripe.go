package billing

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// ErrInvalidSignature is returned when a webhook cannot be verified.
var ErrInvalidSignature = errors.New("invalid stripe signature")

// ErrNotConfigured is returned when no Stripe key is set.
var ErrNotConfigured = errors.New("billing is not configured")

// CheckoutInput describes a subscription checkout.
type CheckoutInput struct {
	CustomerID string
	UserID     uint
	Plan       Plan
	SuccessURL string
	CancelURL  string
}

// Gateway is the payment processor.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID uint, email, name string) (string, error)
	// CreateCheckoutSession returns the hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)
	// CreatePortalSession returns the customer portal URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeGateway implements Gateway with stripe-go.
type StripeGateway struct {
	sc *client.API
}

// StripeConfig configures StripeGateway. BaseURL and HTTPClient are for tests.
type StripeConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

// NewStripeGateway returns nil when no secret key is configured.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.SecretKey == "" {
		return nil
	}
	var backends *stripe.Backends
	if cfg.BaseURL != "" || cfg.HTTPClient != nil {
		bc := &stripe.BackendConfig{HTTPClient: cfg.HTTPClient, MaxNetworkRetries: stripe.Int64(0)}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	return &StripeGateway{sc: client.New(cfg.SecretKey, backends)}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, userID uint, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(uint64(userID), 10))

	cust, err := g.sc.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	uid := strconv.FormatUint(uint64(in.UserID), 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(in.CustomerID),
		ClientReferenceID: stripe.String(uid),
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(in.Plan.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": uid, "plan": in.Plan.ID},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", uid)
	params.AddMetadata("plan", in.Plan.ID)

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := g.sc.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ParseWebhook verifies payload against the signature header.
func ParseWebhook(payload []byte, header, secret string) (stripe.Event, error) {
	if secret == "" || header == "" {
		return stripe.Event{}, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, ErrInvalidSignature
	}
	return event, nil
}

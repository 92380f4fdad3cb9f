package billing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(map[string]string{"pro": "price_pro"})
	require.NoError(t, err)

	plans := cat.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, "free", plans[0].ID)

	pro, ok := cat.Get("pro")
	require.True(t, ok)
	assert.True(t, pro.Purchasable())
	assert.EqualValues(t, 2900, pro.PriceCents)

	agency, ok := cat.Get("agency")
	require.True(t, ok)
	assert.True(t, agency.Paid())
	assert.False(t, agency.Purchasable())

	byPrice, ok := cat.ForPrice("price_pro")
	require.True(t, ok)
	assert.Equal(t, "pro", byPrice.ID)
	_, ok = cat.ForPrice("")
	assert.False(t, ok)

	assert.Equal(t, 3, cat.MaxClients("free"))
	assert.Equal(t, 15, cat.MaxClients("pro"))
	assert.Equal(t, 3, cat.MaxClients("legacy"))
}

func TestParseCatalogRejectsBadDocuments(t *testing.T) {
	_, err := ParseCatalog([]byte("plans:\n  - id: pro\n"), nil)
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("plans:\n  - id: free\n  - id: free\n"), nil)
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("plans: ["), nil)
	assert.Error(t, err)
}

func TestParseWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.payment_failed","api_version":"2020-08-27","data":{"object":{"id":"in_1","object":"invoice","customer":"cus_1"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	event, err := ParseWebhook(payload, signed.Header, "whsec_test")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.EqualValues(t, "invoice.payment_failed", event.Type)

	_, err = ParseWebhook(payload, signed.Header, "whsec_other")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ParseWebhook(payload, "", "whsec_test")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ParseWebhook(append(payload, ' '), signed.Header, "whsec_test")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNewStripeGatewayWithoutKey(t *testing.T) {
	assert.Nil(t, NewStripeGateway(StripeConfig{}))
}

func TestStripeGateway(t *testing.T) {
	var mu sync.Mutex
	forms := map[string]url.Values{}
	formFor := func(path string) url.Values {
		mu.Lock()
		defer mu.Unlock()
		return forms[path]
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		forms[r.URL.Path] = form
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/customers":
			_, _ = io.WriteString(w, `{"id":"cus_123","object":"customer"}`)
		case "/v1/checkout/sessions":
			_, _ = io.WriteString(w, `{"id":"cs_1","object":"checkout.session","url":"https://checkout.example/cs_1"}`)
		case "/v1/billing_portal/sessions":
			_, _ = io.WriteString(w, `{"id":"bps_1","object":"billing_portal.session","url":"https://portal.example/bps_1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"message":"no such route"}}`)
		}
	}))
	defer ts.Close()

	g := NewStripeGateway(StripeConfig{SecretKey: "sk_test_x", BaseURL: ts.URL, HTTPClient: ts.Client()})
	require.NotNil(t, g)
	ctx := context.Background()

	cus, err := g.CreateCustomer(ctx, 7, "jo@x.com", "Jo")
	require.NoError(t, err)
	assert.Equal(t, "cus_123", cus)
	assert.Equal(t, "jo@x.com", formFor("/v1/customers").Get("email"))
	assert.Equal(t, "7", formFor("/v1/customers").Get("metadata[user_id]"))

	checkoutURL, err := g.CreateCheckoutSession(ctx, CheckoutInput{
		CustomerID: cus,
		UserID:     7,
		Plan:       Plan{ID: "pro", PriceID: "price_pro", PriceCents: 2900},
		SuccessURL: "http://app/billing?status=success",
		CancelURL:  "http://app/billing?status=cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", checkoutURL)
	form := formFor("/v1/checkout/sessions")
	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "7", form.Get("client_reference_id"))
	assert.Equal(t, "price_pro", form.Get("line_items[0][price]"))
	assert.Equal(t, "pro", form.Get("metadata[plan]"))

	portalURL, err := g.CreatePortalSession(ctx, cus, "http://app/billing")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example/bps_1", portalURL)
}

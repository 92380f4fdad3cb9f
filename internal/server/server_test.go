package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"ghostwriter/internal/cache"
	"ghostwriter/internal/config"
	"ghostwriter/internal/email"
	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/models"
	"ghostwriter/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testCronSecret = "cron-secret"

// offlineLinkedIn fails every call, so nothing in these tests reaches the network.
type offlineLinkedIn struct{}

var errOffline = errors.New("linkedin offline")

func (offlineLinkedIn) AuthCodeURL(state string) string {
	return "https://linkedin.test/auth?state=" + state
}

func (offlineLinkedIn) Exchange(context.Context, string) (*linkedin.TokenSet, error) {
	return nil, errOffline
}

func (offlineLinkedIn) Refresh(context.Context, string) (*linkedin.TokenSet, error) {
	return nil, errOffline
}

func (offlineLinkedIn) Profile(context.Context, string) (*linkedin.Profile, error) {
	return nil, errOffline
}

func (offlineLinkedIn) CreatePost(context.Context, string, string, string) (string, error) {
	return "", errOffline
}

func (offlineLinkedIn) MemberMetrics(context.Context, string, string) (models.EngagementCounts, error) {
	return models.EngagementCounts{}, errOffline
}

func (offlineLinkedIn) OrganizationMetrics(context.Context, string, string, string) (models.EngagementCounts, error) {
	return models.EngagementCounts{}, errOffline
}

type testAPI struct {
	t   *testing.T
	app *fiber.App
	db  *gorm.DB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	cfg := &config.Config{
		JWTSecret:             testJWTSecret,
		Env:                   "test",
		AppBaseURL:            "https://app.test",
		CronSecret:            testCronSecret,
		FeatureFlags:          "linkedin_publish=on",
		LinkedInWebhookSecret: "li-secret",
		StripeWebhookSecret:   "whsec_test",
	}
	db := testutil.NewTestDB(t)

	srv, err := newServer(cfg, db, nil, integrations{
		linkedIn: offlineLinkedIn{},
		sender:   email.LogSender{Logger: middleware.Logger},
	})
	require.NoError(t, err)

	return &testAPI{t: t, app: srv.App(), db: db}
}

func (a *testAPI) do(method, path, token string, body any, headers ...string) (int, []byte) {
	a.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer func() { _ = resp.Body.Close() }()

	out, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp.StatusCode, out
}

func (a *testAPI) register(name, addr string) string {
	a.t.Helper()
	status, raw := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": addr, "password": "secret1",
	})
	require.Equal(a.t, http.StatusOK, status, string(raw))

	var res struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(raw, &res))
	return res.Token
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestAPI_RegisterTwice(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]string{"name": "Jo", "email": "jo@x.com", "password": "secret1"}

	status, raw := api.do(http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusOK, status, string(raw))

	res := decode[map[string]any](t, raw)
	assert.NotEmpty(t, res["token"])
	user := res["user"].(map[string]any)
	assert.Equal(t, "Jo", user["name"])
	assert.NotContains(t, user, "password")

	status, raw = api.do(http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "User already exists", decode[models.ErrorResponse](t, raw).Error)
}

func TestAPI_ClientRoundTripAndScoping(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("Jo", "jo@x.com")
	stranger := api.register("Sam", "sam@x.com")

	status, raw := api.do(http.MethodPost, "/api/clients", owner, map[string]any{
		"name": "Acme", "industry": "Fintech", "tone": "professional", "topics": []string{"payments"},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	created := decode[models.Client](t, raw)

	path := "/api/clients/" + strconv.FormatUint(uint64(created.ID), 10)
	status, raw = api.do(http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	got := decode[models.Client](t, raw)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "Fintech", got.Industry)
	assert.Equal(t, "professional", got.Tone)

	status, raw = api.do(http.MethodGet, path, stranger, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodeNotFound, decode[models.ErrorResponse](t, raw).Code)

	status, _ = api.do(http.MethodDelete, path, stranger, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(http.MethodGet, "/api/clients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAPI_PostLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Jo", "jo@x.com")

	_, raw := api.do(http.MethodPost, "/api/clients", token, map[string]any{"name": "Acme"})
	client := decode[models.Client](t, raw)

	status, raw := api.do(http.MethodPost, "/api/posts", token, map[string]any{
		"client_id": client.ID, "content": "Shipping beats perfect.",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	post := decode[models.Post](t, raw)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	postPath := "/api/posts/" + strconv.FormatUint(uint64(post.ID), 10)

	status, _ = api.do(http.MethodPost, postPath+"/schedule", token, map[string]any{
		"scheduled_at": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, status, "past schedule is rejected")

	status, raw = api.do(http.MethodPost, postPath+"/schedule", token, map[string]any{
		"scheduled_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, models.PostStatusScheduled, decode[models.Post](t, raw).Status)

	// No LinkedIn connection: reconnect errors surface as 400 and the post is marked failed.
	status, raw = api.do(http.MethodPost, postPath+"/publish", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeUpstream, decode[models.ErrorResponse](t, raw).Code)

	_, raw = api.do(http.MethodGet, postPath, token, nil)
	failed := decode[models.Post](t, raw)
	assert.Equal(t, models.PostStatusFailed, failed.Status)
	assert.NotEmpty(t, failed.FailureReason)

	status, raw = api.do(http.MethodGet, "/api/posts?status=failed", token, nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[struct {
		Posts []models.Post `json:"posts"`
		Total int64         `json:"total"`
	}](t, raw)
	assert.EqualValues(t, 1, list.Total)
	require.Len(t, list.Posts, 1)

	status, _ = api.do(http.MethodGet, "/api/posts/abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(http.MethodDelete, postPath, token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = api.do(http.MethodGet, postPath, token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = api.do(http.MethodGet, "/api/activities", token, nil)
	require.Equal(t, http.StatusOK, status)
	feed := decode[struct {
		Activities []models.Activity `json:"activities"`
	}](t, raw)
	assert.NotEmpty(t, feed.Activities)
}

func TestAPI_CronJobs(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(http.MethodPost, "/api/cron/analytics/sync", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodPost, "/api/cron/analytics/sync", "", nil, middleware.CronSecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := api.do(http.MethodPost, "/api/cron/analytics/sync", "", nil, middleware.CronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, status, string(raw))
	report := decode[map[string]any](t, raw)
	assert.EqualValues(t, 0, report["total"])
	assert.Contains(t, report, "synced")
	assert.Contains(t, report, "failed")

	status, raw = api.do(http.MethodPost, "/api/cron/analytics/sync", "", nil, middleware.CronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, status, "lock is released when the run ends: %s", raw)

	status, raw = api.do(http.MethodPost, "/api/cron/analytics/rollup?date=2026-03-01", "", nil, middleware.CronSecretHeader, testCronSecret)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Equal(t, "2026-03-01", decode[map[string]any](t, raw)["date"])

	status, _ = api.do(http.MethodPost, "/api/cron/analytics/rollup?date=03/01/2026", "", nil, middleware.CronSecretHeader, testCronSecret)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(http.MethodPost, "/api/cron/posts/publish-due", "", nil, middleware.CronSecretHeader, testCronSecret)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.do(http.MethodPost, "/api/cron/reports/weekly", "", nil, middleware.CronSecretHeader, testCronSecret)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_CronJobLockConflict(t *testing.T) {
	api := newTestAPI(t)

	release, err := cache.AcquireLock(context.Background(), jobAnalyticsSync, time.Minute)
	require.NoError(t, err)

	status, raw := api.do(http.MethodPost, "/api/cron/analytics/sync", "", nil, middleware.CronSecretHeader, testCronSecret)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeConflict, decode[models.ErrorResponse](t, raw).Code)

	release()
	status, _ = api.do(http.MethodPost, "/api/cron/analytics/sync", "", nil, middleware.CronSecretHeader, testCronSecret)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_WebhooksRejectBadSignatures(t *testing.T) {
	api := newTestAPI(t)

	liBody := []byte(`{"notificationId":"n-1","eventType":"SHARE_STATISTICS","postUrn":"urn:li:share:1","metrics":{"likes":3}}`)
	status, _ := api.do(http.MethodPost, "/api/linkedin/webhook", "", liBody, linkedin.SignatureHeader, "hmacsha256=deadbeef")
	assert.Equal(t, http.StatusBadRequest, status)

	stripeBody := []byte(`{"id":"evt_1","object":"event","type":"invoice.payment_failed"}`)
	status, raw := api.do(http.MethodPost, "/api/billing/webhook", "", stripeBody, "Stripe-Signature", "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid signature", decode[models.ErrorResponse](t, raw).Error)

	var events int64
	require.NoError(t, api.db.Model(&models.WebhookEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}

func TestAPI_LinkedInEndpoints(t *testing.T) {
	api := newTestAPI(t)

	status, raw := api.do(http.MethodGet, "/api/linkedin/webhook?challengeCode=abc", "", nil)
	require.Equal(t, http.StatusOK, status)
	challenge := decode[map[string]string](t, raw)
	assert.Equal(t, "abc", challenge["challengeCode"])
	assert.Equal(t, linkedin.ChallengeResponse("li-secret", "abc"), challenge["challengeResponse"])

	req := httptest.NewRequest(http.MethodGet, "/api/linkedin/callback?code=x&state=forged", nil)
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "https://app.test/clients?")
	assert.Contains(t, resp.Header.Get("Location"), "linkedin=error")

	token := api.register("Jo", "jo@x.com")
	_, raw = api.do(http.MethodPost, "/api/clients", token, map[string]any{"name": "Acme"})
	client := decode[models.Client](t, raw)
	id := strconv.FormatUint(uint64(client.ID), 10)

	status, raw = api.do(http.MethodGet, "/api/linkedin/auth?client_id="+id, token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, decode[map[string]string](t, raw)["url"], "https://linkedin.test/auth?state=")

	status, raw = api.do(http.MethodGet, "/api/linkedin/status/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, decode[map[string]any](t, raw)["connected"])
}

func TestAPI_BillingAndFlags(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Jo", "jo@x.com")

	status, raw := api.do(http.MethodGet, "/api/billing/plans", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, decode[map[string][]any](t, raw)["plans"])

	status, raw = api.do(http.MethodGet, "/api/billing/subscription", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.PlanFree, decode[map[string]any](t, raw)["plan"])

	status, raw = api.do(http.MethodPost, "/api/billing/checkout", token, map[string]string{"plan": models.PlanPro})
	assert.Equal(t, http.StatusBadRequest, status, string(raw))

	status, raw = api.do(http.MethodGet, "/api/feature-flags", token, nil)
	require.Equal(t, http.StatusOK, status)
	flags := decode[struct {
		Evaluated map[string]bool `json:"evaluated"`
	}](t, raw)
	assert.True(t, flags.Evaluated["linkedin_publish"])
	assert.True(t, flags.Evaluated["weekly_digest"])
}

func TestAPI_Health(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw := api.do(http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	checks := decode[struct {
		Checks map[string]string `json:"checks"`
	}](t, raw).Checks
	assert.Equal(t, "healthy", checks["database"])
	assert.Equal(t, "unavailable", checks["redis"])
}

// Package linkedin is the LinkedIn REST client: OAuth, publishing and
// engagement metrics, plus webhook and OAuth state verification.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ghostwriter/internal/models"
	"ghostwriter/internal/observability"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultScopes are requested during authorization.
var DefaultScopes = []string{"openid", "profile", "email", "w_member_social", "r_organization_social", "w_organization_social"}

// TokenSet is the result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// Profile is the authorizing member.
type Profile struct {
	ID   string
	Name string
}

// API is the subset of LinkedIn the application uses.
type API interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	Profile(ctx context.Context, accessToken string) (*Profile, error)
	// CreatePost publishes text as author and returns the post URN.
	CreatePost(ctx context.Context, accessToken, authorURN, text string) (string, error)
	// MemberMetrics reads likes and comments for a personal post.
	MemberMetrics(ctx context.Context, accessToken, postURN string) (models.EngagementCounts, error)
	// OrganizationMetrics reads share statistics for an organization post.
	OrganizationMetrics(ctx context.Context, accessToken, orgURN, postURN string) (models.EngagementCounts, error)
}

// Config configures HTTPClient.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	RPS          float64
	HTTPClient   *http.Client
}

// HTTPClient talks to LinkedIn over REST. Calls are throttled and never retried.
type HTTPClient struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client from cfg.
func NewHTTPClient(cfg Config) *HTTPClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	return &HTTPClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       DefaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(rps), 5),
	}
}

func (c *HTTPClient) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *HTTPClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *HTTPClient) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	ctx, span := observability.StartClientSpan(ctx, "linkedin", "exchange")
	if err := c.limiter.Wait(ctx); err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		err = oauthError(err)
	}
	c.record("exchange", err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return tokenSet(tok), nil
}

// Refresh performs a single refresh_token grant.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	ctx, span := observability.StartClientSpan(ctx, "linkedin", "refresh")
	if err := c.limiter.Wait(ctx); err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	tok, err := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		err = oauthError(err)
	}
	c.record("refresh", err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return tokenSet(tok), nil
}

func tokenSet(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	if ts.ExpiresAt.IsZero() {
		ts.ExpiresAt = time.Now().UTC().Add(60 * 24 * time.Hour)
	}
	return ts
}

func oauthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = strings.TrimSpace(string(re.Body))
		}
		return &APIError{Status: re.Response.StatusCode, Message: msg}
	}
	return err
}

func (c *HTTPClient) record(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			status = strconv.Itoa(apiErr.Status)
		}
	}
	observability.LinkedInRequests.WithLabelValues(operation, status).Inc()
}

// do sends an authenticated REST request and returns the body of a 2xx response.
func (c *HTTPClient) do(ctx context.Context, operation, method, path, accessToken string, body any) ([]byte, http.Header, error) {
	ctx, span := observability.StartClientSpan(ctx, "linkedin", operation)
	b, h, err := c.send(ctx, method, path, accessToken, body)
	c.record(operation, err)
	observability.EndSpan(span, err)
	return b, h, err
}

func (c *HTTPClient) send(ctx context.Context, method, path, accessToken string, body any) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return data, resp.Header, nil
}

func (c *HTTPClient) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	data, _, err := c.do(ctx, "profile", http.MethodGet, "/v2/userinfo", accessToken, nil)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(data)
	p := &Profile{ID: res.Get("sub").String(), Name: res.Get("name").String()}
	if p.ID == "" {
		return nil, fmt.Errorf("linkedin profile response has no member id")
	}
	if p.Name == "" {
		p.Name = strings.TrimSpace(res.Get("given_name").String() + " " + res.Get("family_name").String())
	}
	return p, nil
}

func (c *HTTPClient) CreatePost(ctx context.Context, accessToken, authorURN, text string) (string, error) {
	body := map[string]any{
		"author":         authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	data, header, err := c.do(ctx, "create_post", http.MethodPost, "/v2/ugcPosts", accessToken, body)
	if err != nil {
		return "", err
	}
	id := header.Get("X-RestLi-Id")
	if id == "" {
		id = gjson.GetBytes(data, "id").String()
	}
	if id == "" {
		return "", fmt.Errorf("linkedin did not return a post id")
	}
	return id, nil
}

func (c *HTTPClient) MemberMetrics(ctx context.Context, accessToken, postURN string) (models.EngagementCounts, error) {
	data, _, err := c.do(ctx, "social_actions", http.MethodGet, "/v2/socialActions/"+url.PathEscape(postURN), accessToken, nil)
	if err != nil {
		return models.EngagementCounts{}, err
	}
	res := gjson.ParseBytes(data)
	return models.EngagementCounts{
		Likes:    int(res.Get("likesSummary.totalLikes").Int()),
		Comments: int(res.Get("commentsSummary.aggregatedTotalComments").Int()),
	}, nil
}

func (c *HTTPClient) OrganizationMetrics(ctx context.Context, accessToken, orgURN, postURN string) (models.EngagementCounts, error) {
	q := url.Values{}
	q.Set("q", "organizationalEntity")
	q.Set("organizationalEntity", orgURN)
	param := "shares[0]"
	if strings.HasPrefix(postURN, "urn:li:ugcPost:") {
		param = "ugcPosts[0]"
	}
	q.Set(param, postURN)

	data, _, err := c.do(ctx, "share_statistics", http.MethodGet, "/v2/organizationalEntityShareStatistics?"+q.Encode(), accessToken, nil)
	if err != nil {
		return models.EngagementCounts{}, err
	}
	stats := gjson.GetBytes(data, "elements.0.totalShareStatistics")
	return models.EngagementCounts{
		Likes:       int(stats.Get("likeCount").Int()),
		Comments:    int(stats.Get("commentCount").Int()),
		Shares:      int(stats.Get("shareCount").Int()),
		Impressions: int(stats.Get("impressionCount").Int()),
		Clicks:      int(stats.Get("clickCount").Int()),
		Views:       int(stats.Get("uniqueImpressionsCount").Int()),
	}, nil
}

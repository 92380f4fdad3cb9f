package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"ghostwriter/internal/featureflags"
	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/models"
	"ghostwriter/internal/observability"
	"ghostwriter/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// TokenRefreshSkew treats tokens this close to expiry as expired.
const TokenRefreshSkew = 60 * time.Second

// Publish triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// LinkedInService owns everything that talks to LinkedIn on behalf of a
// client: the OAuth handshake, token refresh, publishing, metrics sync and
// the engagement webhook.
type LinkedInService struct {
	api           linkedin.API
	tokenRepo     repository.TokenRepository
	clientRepo    repository.ClientRepository
	postRepo      repository.PostRepository
	userRepo      repository.UserRepository
	analyticsRepo repository.AnalyticsRepository
	webhookRepo   repository.WebhookEventRepository
	activity      *ActivityService
	flags         *featureflags.Manager
	stateSecret   string
	webhookSecret string
	appBaseURL    string
	now           func() time.Time
}

// LinkedInDeps wires a LinkedInService.
type LinkedInDeps struct {
	API           linkedin.API
	Tokens        repository.TokenRepository
	Clients       repository.ClientRepository
	Posts         repository.PostRepository
	Users         repository.UserRepository
	Analytics     repository.AnalyticsRepository
	Webhooks      repository.WebhookEventRepository
	Activity      *ActivityService
	Flags         *featureflags.Manager
	StateSecret   string
	WebhookSecret string
	AppBaseURL    string
}

func NewLinkedInService(deps LinkedInDeps) *LinkedInService {
	return &LinkedInService{
		api:           deps.API,
		tokenRepo:     deps.Tokens,
		clientRepo:    deps.Clients,
		postRepo:      deps.Posts,
		userRepo:      deps.Users,
		analyticsRepo: deps.Analytics,
		webhookRepo:   deps.Webhooks,
		activity:      deps.Activity,
		flags:         deps.Flags,
		stateSecret:   deps.StateSecret,
		webhookSecret: deps.WebhookSecret,
		appBaseURL:    deps.AppBaseURL,
		now:           utcNow,
	}
}

// ConnectionStatus describes a client's stored LinkedIn credentials.
type ConnectionStatus struct {
	Connected       bool       `json:"connected"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Expired         bool       `json:"expired"`
	HasRefreshToken bool       `json:"has_refresh_token"`
}

// SyncReport is the outcome of a metrics sync run.
type SyncReport struct {
	Synced  int          `json:"synced"`
	Failed  int          `json:"failed"`
	Total   int          `json:"total"`
	Results []ItemResult `json:"results"`
}

// PublishReport is the outcome of a publish-due run.
type PublishReport struct {
	Published int          `json:"published"`
	Failed    int          `json:"failed"`
	Total     int          `json:"total"`
	Results   []ItemResult `json:"results"`
}

func (s *LinkedInService) visibleClient(ctx context.Context, userID, clientID uint) (*models.Client, error) {
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.clientRepo.GetVisible(ctx, clientID, scope)
}

// AuthURL returns the LinkedIn authorization URL for connecting a client.
func (s *LinkedInService) AuthURL(ctx context.Context, userID, clientID uint) (string, error) {
	if clientID == 0 {
		return "", models.NewValidationError("client_id is required")
	}
	client, err := s.visibleClient(ctx, userID, clientID)
	if err != nil {
		return "", err
	}
	state, err := linkedin.SignState(s.stateSecret, userID, client.ID, s.now())
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return s.api.AuthCodeURL(state), nil
}

// Callback completes the OAuth handshake. The returned client ID is set
// whenever the state could be verified, even if a later step failed.
func (s *LinkedInService) Callback(ctx context.Context, code, rawState string) (uint, error) {
	state, err := linkedin.VerifyState(s.stateSecret, rawState, s.now())
	if err != nil {
		return 0, models.NewValidationError("Invalid or expired state")
	}
	if code == "" {
		return state.ClientID, models.NewValidationError("Missing authorization code")
	}

	client, err := s.visibleClient(ctx, state.UserID, state.ClientID)
	if err != nil {
		return state.ClientID, err
	}

	set, err := s.api.Exchange(ctx, code)
	if err != nil {
		return client.ID, models.NewUpstreamError("LinkedIn authorization failed", err)
	}
	profile, err := s.api.Profile(ctx, set.AccessToken)
	if err != nil {
		return client.ID, models.NewUpstreamError("Could not load LinkedIn profile", err)
	}

	token := &models.LinkedInToken{
		ClientID:     client.ID,
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		ExpiresAt:    set.ExpiresAt,
		Scope:        set.Scope,
	}
	if err := s.tokenRepo.Upsert(ctx, token); err != nil {
		return client.ID, err
	}

	client.LinkedInProfileID = profile.ID
	client.LinkedInDisplayName = profile.Name
	if err := s.clientRepo.Update(ctx, client); err != nil {
		return client.ID, err
	}

	s.activity.Record(ctx, state.UserID, models.ActivityLinkedInConnected,
		fmt.Sprintf("Connected LinkedIn for %s", client.Name),
		map[string]any{"client_id": client.ID, "profile": profile.Name})
	return client.ID, nil
}

// CallbackRedirect is where the browser lands after the OAuth callback.
func (s *LinkedInService) CallbackRedirect(clientID uint, err error) string {
	path := s.appBaseURL + "/clients"
	if clientID != 0 {
		path += "/" + strconv.FormatUint(uint64(clientID), 10)
	}
	if err == nil {
		return path + "?linkedin=connected"
	}

	reason := err.Error()
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		reason = appErr.Message
	}
	q := url.Values{"linkedin": {"error"}, "reason": {reason}}
	return path + "?" + q.Encode()
}

func (s *LinkedInService) Status(ctx context.Context, userID, clientID uint) (*ConnectionStatus, error) {
	client, err := s.visibleClient(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokenRepo.GetByClientID(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return &ConnectionStatus{}, nil
	}
	expiresAt := token.ExpiresAt
	return &ConnectionStatus{
		Connected:       true,
		ExpiresAt:       &expiresAt,
		Expired:         token.ExpiredAt(s.now(), 0),
		HasRefreshToken: token.RefreshToken != "",
	}, nil
}

func (s *LinkedInService) Disconnect(ctx context.Context, userID, clientID uint) error {
	client, err := s.visibleClient(ctx, userID, clientID)
	if err != nil {
		return err
	}
	if err := s.tokenRepo.DeleteByClientID(ctx, client.ID); err != nil {
		return err
	}
	s.activity.Record(ctx, userID, models.ActivityLinkedInRemoved,
		fmt.Sprintf("Disconnected LinkedIn for %s", client.Name),
		map[string]any{"client_id": client.ID})
	return nil
}

// EnsureFreshToken returns a usable access token for the client. An expired
// token is refreshed at most once; without a refresh token it fails with
// linkedin.ErrTokenExpired and LinkedIn is not called.
func (s *LinkedInService) EnsureFreshToken(ctx context.Context, clientID uint) (*models.LinkedInToken, error) {
	token, err := s.tokenRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, linkedin.ErrNotConnected
	}
	if !token.ExpiredAt(s.now(), TokenRefreshSkew) {
		return token, nil
	}
	if token.RefreshToken == "" {
		return nil, linkedin.ErrTokenExpired
	}

	set, err := s.api.Refresh(ctx, token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh linkedin token: %w", err)
	}
	token.AccessToken = set.AccessToken
	token.ExpiresAt = set.ExpiresAt
	if set.RefreshToken != "" {
		token.RefreshToken = set.RefreshToken
	}
	if set.Scope != "" {
		token.Scope = set.Scope
	}
	if err := s.tokenRepo.Update(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *LinkedInService) clientOf(ctx context.Context, post *models.Post) (*models.Client, error) {
	if post.Client != nil {
		return post.Client, nil
	}
	client, err := s.clientRepo.GetByID(ctx, post.ClientID)
	if err != nil {
		return nil, err
	}
	post.Client = client
	return client, nil
}

// PublishPost sends the post to LinkedIn. On failure the post is marked
// failed with the reason and an upstream error is returned.
func (s *LinkedInService) PublishPost(ctx context.Context, post *models.Post, trigger string) (err error) {
	if post.Status == models.PostStatusPublished {
		return models.NewValidationError("Post is already published")
	}
	if !models.CanTransition(post.Status, models.PostStatusPublished) {
		return models.NewValidationError(fmt.Sprintf("Cannot publish a %s post", post.Status))
	}

	ctx, span := observability.StartSpan(ctx, "linkedin.publish_post",
		attribute.Int64("post.id", int64(post.ID)),
		attribute.String("publish.trigger", trigger))
	defer func() {
		observability.PostsPublished.WithLabelValues(trigger, observability.ResultLabel(err)).Inc()
		observability.EndSpan(span, err)
	}()

	client, err := s.clientOf(ctx, post)
	if err != nil {
		return err
	}

	urn, pubErr := s.publish(ctx, client, post)
	if pubErr != nil {
		return s.markFailed(ctx, post, client, pubErr)
	}

	now := s.now()
	post.Status = models.PostStatusPublished
	post.PublishedAt = &now
	post.ExternalPostID = urn
	post.FailureReason = ""
	if err := s.postRepo.Update(ctx, post); err != nil {
		return err
	}

	s.activity.Record(ctx, post.UserID, models.ActivityPostPublished,
		fmt.Sprintf("Published a post for %s", client.Name),
		map[string]any{"post_id": post.ID, "client_id": client.ID, "external_post_id": urn, "trigger": trigger})
	invalidateOverviews(ctx, s.userRepo, post.UserID, client)
	return nil
}

func (s *LinkedInService) publish(ctx context.Context, client *models.Client, post *models.Post) (string, error) {
	author := client.AuthorURN()
	if author == "" {
		return "", linkedin.ErrNotConnected
	}
	token, err := s.EnsureFreshToken(ctx, client.ID)
	if err != nil {
		return "", err
	}
	return s.api.CreatePost(ctx, token.AccessToken, author, post.Content)
}

func (s *LinkedInService) markFailed(ctx context.Context, post *models.Post, client *models.Client, cause error) error {
	post.Status = models.PostStatusFailed
	post.FailureReason = cause.Error()
	if err := s.postRepo.Update(ctx, post); err != nil {
		slog.ErrorContext(ctx, "failed to mark post failed",
			slog.Uint64("post_id", uint64(post.ID)),
			slog.String("error", err.Error()))
	}

	slog.WarnContext(ctx, "linkedin publish failed",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.Uint64("client_id", uint64(client.ID)),
		slog.String("error", cause.Error()))
	s.activity.Record(ctx, post.UserID, models.ActivityPostFailed,
		fmt.Sprintf("Publishing for %s failed", client.Name),
		map[string]any{"post_id": post.ID, "client_id": client.ID, "reason": cause.Error()})

	if linkedin.NeedsReconnect(cause) {
		return models.NewUpstreamError("LinkedIn account needs to be reconnected", cause)
	}
	return models.NewUpstreamError("LinkedIn publish failed", cause)
}

// PublishDue publishes every scheduled post whose time has come. One
// failure does not stop the others.
func (s *LinkedInService) PublishDue(ctx context.Context) (*PublishReport, error) {
	posts, err := s.postRepo.ListDueScheduled(ctx, s.now())
	if err != nil {
		return nil, err
	}

	report := &PublishReport{Total: len(posts), Results: make([]ItemResult, 0, len(posts))}
	for i := range posts {
		post := &posts[i]
		res := ItemResult{PostID: post.ID}

		switch {
		case !s.flags.Allows(featureflags.LinkedInPublish, post.UserID):
			res.Error = "LinkedIn publishing is disabled"
		default:
			if err := s.PublishPost(ctx, post, TriggerScheduled); err != nil {
				res.Error = err.Error()
			} else {
				res.Success = true
			}
		}

		if res.Success {
			report.Published++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// SyncAll pulls current metrics for every published post. One failure does
// not stop the others.
func (s *LinkedInService) SyncAll(ctx context.Context) (*SyncReport, error) {
	posts, err := s.postRepo.ListPublishedWithExternalID(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Total: len(posts), Results: make([]ItemResult, 0, len(posts))}
	for i := range posts {
		post := &posts[i]
		res := ItemResult{PostID: post.ID}
		if err := s.SyncPost(ctx, post); err != nil {
			res.Error = err.Error()
			report.Failed++
			observability.AnalyticsSyncItems.WithLabelValues(observability.ResultError).Inc()
			slog.WarnContext(ctx, "analytics sync failed",
				slog.Uint64("post_id", uint64(post.ID)),
				slog.String("error", err.Error()))
		} else {
			res.Success = true
			report.Synced++
			observability.AnalyticsSyncItems.WithLabelValues(observability.ResultOK).Inc()
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// SyncPost refreshes one post's counters from LinkedIn and appends a snapshot.
func (s *LinkedInService) SyncPost(ctx context.Context, post *models.Post) error {
	client, err := s.clientOf(ctx, post)
	if err != nil {
		return err
	}
	token, err := s.EnsureFreshToken(ctx, client.ID)
	if err != nil {
		return err
	}

	counts := post.Counts()
	if client.AccountType == models.AccountTypeOrganization {
		counts, err = s.api.OrganizationMetrics(ctx, token.AccessToken, client.AuthorURN(), post.ExternalPostID)
		if err != nil {
			return err
		}
	} else {
		m, err := s.api.MemberMetrics(ctx, token.AccessToken, post.ExternalPostID)
		if err != nil {
			return err
		}
		// Member posts only expose likes and comments.
		counts.Likes = m.Likes
		counts.Comments = m.Comments
	}

	return s.recordMetrics(ctx, post, counts, models.SnapshotSourceSync)
}

func (s *LinkedInService) recordMetrics(ctx context.Context, post *models.Post, counts models.EngagementCounts, source string) error {
	now := s.now()
	post.ApplyMetrics(counts, now)
	if err := s.postRepo.Update(ctx, post); err != nil {
		return err
	}
	if err := s.analyticsRepo.CreateSnapshot(ctx, models.NewSnapshot(post, source, now)); err != nil {
		return err
	}
	invalidateOverviews(ctx, s.userRepo, post.UserID, post.Client)
	return nil
}

// WebhookChallenge answers LinkedIn's endpoint validation.
func (s *LinkedInService) WebhookChallenge(code string) string {
	return linkedin.ChallengeResponse(s.webhookSecret, code)
}

// HandleWebhook verifies and applies an engagement notification. Nothing is
// written unless the signature matches.
func (s *LinkedInService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if err := linkedin.VerifySignature(s.webhookSecret, body, signature); err != nil {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceLinkedIn, observability.ResultRejected).Inc()
		return nil, models.NewValidationError("Invalid signature")
	}
	note, err := linkedin.ParseNotification(body)
	if err != nil {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceLinkedIn, observability.ResultRejected).Inc()
		return nil, models.NewValidationError("Invalid payload")
	}

	event, err := s.webhookRepo.Record(ctx, &models.WebhookEvent{
		Source:     models.WebhookSourceLinkedIn,
		ExternalID: note.ID,
		EventType:  note.EventType,
		Payload:    string(body),
	})
	if err != nil {
		return nil, err
	}
	if event.Processed {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceLinkedIn, observability.ResultDuplicate).Inc()
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	if err := s.applyNotification(ctx, note); err != nil {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceLinkedIn, observability.ResultError).Inc()
		if markErr := s.webhookRepo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "failed to record webhook error", slog.String("error", markErr.Error()))
		}
		return nil, models.NewInternalError(err)
	}

	if err := s.webhookRepo.MarkProcessed(ctx, event.ID, s.now()); err != nil {
		return nil, err
	}
	observability.WebhookEvents.WithLabelValues(models.WebhookSourceLinkedIn, observability.ResultOK).Inc()
	return &WebhookResult{Received: true}, nil
}

func (s *LinkedInService) applyNotification(ctx context.Context, note *linkedin.Notification) error {
	post, err := s.postRepo.GetByExternalID(ctx, note.PostURN)
	if err != nil {
		return err
	}
	if post == nil {
		slog.InfoContext(ctx, "webhook for unknown post", slog.String("post_urn", note.PostURN))
		return nil
	}
	if !s.flags.Allows(featureflags.AnalyticsWebhook, post.UserID) {
		return nil
	}
	return s.recordMetrics(ctx, post, note.Metrics, models.SnapshotSourceWebhook)
}

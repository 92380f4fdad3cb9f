package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ghostwriter/internal/billing"
	"ghostwriter/internal/email"
	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The stubs below satisfy the repository and integration interfaces with
// overridable function fields. Unset functions return zero values.

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// runInline replaces the background runner so side effects are observable.
func runInline(ctx context.Context, _ string, fn func(context.Context) error) {
	_ = fn(ctx)
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation)
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn                func(context.Context, uint) (*models.User, error)
	getByEmailFn             func(context.Context, string) (*models.User, error)
	getByVerificationTokenFn func(context.Context, string) (*models.User, error)
	getByResetTokenFn        func(context.Context, string) (*models.User, error)
	getByStripeCustomerIDFn  func(context.Context, string) (*models.User, error)
	listVerifiedFn           func(context.Context) ([]models.User, error)
	listIDsByAgencyFn        func(context.Context, uint) ([]uint, error)
	createFn                 func(context.Context, *models.User) error
	updateFn                 func(context.Context, *models.User) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	if s.getByIDFn == nil {
		return &models.User{ID: id, Plan: models.PlanFree}, nil
	}
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, addr string) (*models.User, error) {
	if s.getByEmailFn == nil {
		return nil, nil
	}
	return s.getByEmailFn(ctx, addr)
}
func (s *userRepoStub) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if s.getByVerificationTokenFn == nil {
		return nil, nil
	}
	return s.getByVerificationTokenFn(ctx, token)
}
func (s *userRepoStub) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	if s.getByResetTokenFn == nil {
		return nil, nil
	}
	return s.getByResetTokenFn(ctx, token)
}
func (s *userRepoStub) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	if s.getByStripeCustomerIDFn == nil {
		return nil, nil
	}
	return s.getByStripeCustomerIDFn(ctx, customerID)
}
func (s *userRepoStub) ListVerified(ctx context.Context) ([]models.User, error) {
	if s.listVerifiedFn == nil {
		return nil, nil
	}
	return s.listVerifiedFn(ctx)
}
func (s *userRepoStub) ListIDsByAgency(ctx context.Context, agencyID uint) ([]uint, error) {
	if s.listIDsByAgencyFn == nil {
		return nil, nil
	}
	return s.listIDsByAgencyFn(ctx, agencyID)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	if s.createFn == nil {
		user.ID = 1
		return nil
	}
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, user)
}

// clientRepoStub is a stub for repository.ClientRepository.
type clientRepoStub struct {
	createFn      func(context.Context, *models.Client) error
	getByIDFn     func(context.Context, uint) (*models.Client, error)
	getVisibleFn  func(context.Context, uint, repository.Scope) (*models.Client, error)
	listVisibleFn func(context.Context, repository.Scope) ([]models.Client, error)
	listAllFn     func(context.Context) ([]models.Client, error)
	countOwnedFn  func(context.Context, uint) (int64, error)
	updateFn      func(context.Context, *models.Client) error
	deleteFn      func(context.Context, uint) error
}

func (s *clientRepoStub) Create(ctx context.Context, client *models.Client) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, client)
}
func (s *clientRepoStub) GetByID(ctx context.Context, id uint) (*models.Client, error) {
	if s.getByIDFn == nil {
		return nil, models.NewNotFoundError("Client", id)
	}
	return s.getByIDFn(ctx, id)
}
func (s *clientRepoStub) GetVisible(ctx context.Context, id uint, scope repository.Scope) (*models.Client, error) {
	if s.getVisibleFn == nil {
		return nil, models.NewNotFoundError("Client", id)
	}
	return s.getVisibleFn(ctx, id, scope)
}
func (s *clientRepoStub) ListVisible(ctx context.Context, scope repository.Scope) ([]models.Client, error) {
	if s.listVisibleFn == nil {
		return nil, nil
	}
	return s.listVisibleFn(ctx, scope)
}
func (s *clientRepoStub) ListAll(ctx context.Context) ([]models.Client, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx)
}
func (s *clientRepoStub) CountOwned(ctx context.Context, userID uint) (int64, error) {
	if s.countOwnedFn == nil {
		return 0, nil
	}
	return s.countOwnedFn(ctx, userID)
}
func (s *clientRepoStub) Update(ctx context.Context, client *models.Client) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, client)
}
func (s *clientRepoStub) Delete(ctx context.Context, id uint) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, id)
}

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn          func(context.Context, *models.Post) error
	getByIDFn         func(context.Context, uint) (*models.Post, error)
	getVisibleFn      func(context.Context, uint, repository.Scope) (*models.Post, error)
	listFn            func(context.Context, repository.Scope, repository.PostFilter) ([]models.Post, int64, error)
	getByExternalIDFn func(context.Context, string) (*models.Post, error)
	listDueFn         func(context.Context, time.Time) ([]models.Post, error)
	listPublishedFn   func(context.Context) ([]models.Post, error)
	updateFn          func(context.Context, *models.Post) error
	deleteFn          func(context.Context, uint) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	if s.getByIDFn == nil {
		return nil, models.NewNotFoundError("Post", id)
	}
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) GetVisible(ctx context.Context, id uint, scope repository.Scope) (*models.Post, error) {
	if s.getVisibleFn == nil {
		return nil, models.NewNotFoundError("Post", id)
	}
	return s.getVisibleFn(ctx, id, scope)
}
func (s *postRepoStub) List(ctx context.Context, scope repository.Scope, filter repository.PostFilter) ([]models.Post, int64, error) {
	if s.listFn == nil {
		return nil, 0, nil
	}
	return s.listFn(ctx, scope, filter)
}
func (s *postRepoStub) GetByExternalID(ctx context.Context, externalID string) (*models.Post, error) {
	if s.getByExternalIDFn == nil {
		return nil, nil
	}
	return s.getByExternalIDFn(ctx, externalID)
}
func (s *postRepoStub) ListDueScheduled(ctx context.Context, now time.Time) ([]models.Post, error) {
	if s.listDueFn == nil {
		return nil, nil
	}
	return s.listDueFn(ctx, now)
}
func (s *postRepoStub) ListPublishedWithExternalID(ctx context.Context) ([]models.Post, error) {
	if s.listPublishedFn == nil {
		return nil, nil
	}
	return s.listPublishedFn(ctx)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, id)
}

// tokenRepoStub is a stub for repository.TokenRepository.
type tokenRepoStub struct {
	getFn    func(context.Context, uint) (*models.LinkedInToken, error)
	upsertFn func(context.Context, *models.LinkedInToken) error
	updateFn func(context.Context, *models.LinkedInToken) error
	deleteFn func(context.Context, uint) error
}

func (s *tokenRepoStub) GetByClientID(ctx context.Context, clientID uint) (*models.LinkedInToken, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, clientID)
}
func (s *tokenRepoStub) Upsert(ctx context.Context, token *models.LinkedInToken) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, token)
}
func (s *tokenRepoStub) Update(ctx context.Context, token *models.LinkedInToken) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, token)
}
func (s *tokenRepoStub) DeleteByClientID(ctx context.Context, clientID uint) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, clientID)
}

// analyticsRepoStub is a stub for repository.AnalyticsRepository.
type analyticsRepoStub struct {
	createSnapshotFn     func(context.Context, *models.PostAnalytics) error
	listSnapshotsFn      func(context.Context, uint) ([]models.PostAnalytics, error)
	upsertRollupFn       func(context.Context, *models.ClientAnalytics) error
	listRollupsFn        func(context.Context, uint, time.Time) ([]models.ClientAnalytics, error)
	countClientsFn       func(context.Context, repository.Scope) (int64, error)
	countPostsByStatusFn func(context.Context, repository.Scope) ([]repository.StatusCount, error)
	publishedTotalsFn    func(context.Context, repository.PublishedQuery) (*repository.MetricTotals, error)
	topPostsFn           func(context.Context, repository.PublishedQuery, int) ([]models.Post, error)
	clientTotalsFn       func(context.Context, uint) (*repository.MetricTotals, error)
}

func (s *analyticsRepoStub) CreateSnapshot(ctx context.Context, snapshot *models.PostAnalytics) error {
	if s.createSnapshotFn == nil {
		return nil
	}
	return s.createSnapshotFn(ctx, snapshot)
}
func (s *analyticsRepoStub) ListSnapshots(ctx context.Context, postID uint) ([]models.PostAnalytics, error) {
	if s.listSnapshotsFn == nil {
		return nil, nil
	}
	return s.listSnapshotsFn(ctx, postID)
}
func (s *analyticsRepoStub) UpsertRollup(ctx context.Context, rollup *models.ClientAnalytics) error {
	if s.upsertRollupFn == nil {
		return nil
	}
	return s.upsertRollupFn(ctx, rollup)
}
func (s *analyticsRepoStub) ListRollups(ctx context.Context, clientID uint, since time.Time) ([]models.ClientAnalytics, error) {
	if s.listRollupsFn == nil {
		return nil, nil
	}
	return s.listRollupsFn(ctx, clientID, since)
}
func (s *analyticsRepoStub) CountClients(ctx context.Context, scope repository.Scope) (int64, error) {
	if s.countClientsFn == nil {
		return 0, nil
	}
	return s.countClientsFn(ctx, scope)
}
func (s *analyticsRepoStub) CountPostsByStatus(ctx context.Context, scope repository.Scope) ([]repository.StatusCount, error) {
	if s.countPostsByStatusFn == nil {
		return nil, nil
	}
	return s.countPostsByStatusFn(ctx, scope)
}
func (s *analyticsRepoStub) PublishedTotals(ctx context.Context, q repository.PublishedQuery) (*repository.MetricTotals, error) {
	if s.publishedTotalsFn == nil {
		return &repository.MetricTotals{}, nil
	}
	return s.publishedTotalsFn(ctx, q)
}
func (s *analyticsRepoStub) TopPosts(ctx context.Context, q repository.PublishedQuery, limit int) ([]models.Post, error) {
	if s.topPostsFn == nil {
		return nil, nil
	}
	return s.topPostsFn(ctx, q, limit)
}
func (s *analyticsRepoStub) ClientTotals(ctx context.Context, clientID uint) (*repository.MetricTotals, error) {
	if s.clientTotalsFn == nil {
		return &repository.MetricTotals{}, nil
	}
	return s.clientTotalsFn(ctx, clientID)
}

// webhookRepoStub records events in memory keyed by source and external id.
type webhookRepoStub struct {
	mu        sync.Mutex
	events    map[string]*models.WebhookEvent
	recorded  int
	processed []uint
	failed    map[uint]string
}

func newWebhookRepoStub() *webhookRepoStub {
	return &webhookRepoStub{events: map[string]*models.WebhookEvent{}, failed: map[uint]string{}}
}

func (s *webhookRepoStub) Record(_ context.Context, ev *models.WebhookEvent) (*models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded++
	key := ev.Source + ":" + ev.ExternalID
	if existing, ok := s.events[key]; ok {
		return existing, nil
	}
	ev.ID = uint(len(s.events) + 1)
	s.events[key] = ev
	return ev, nil
}
func (s *webhookRepoStub) MarkProcessed(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			ev.Processed = true
			ev.ProcessedAt = &at
		}
	}
	s.processed = append(s.processed, id)
	return nil
}
func (s *webhookRepoStub) MarkFailed(_ context.Context, id uint, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

// activityRepoStub collects created activities.
type activityRepoStub struct {
	mu         sync.Mutex
	activities []models.Activity
}

func (s *activityRepoStub) Create(_ context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uint(len(s.activities) + 1)
	s.activities = append(s.activities, *a)
	return nil
}
func (s *activityRepoStub) ListByUser(_ context.Context, userID uint, _, _ int) ([]models.Activity, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Activity
	for _, a := range s.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}
func (s *activityRepoStub) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a.Type)
	}
	return out
}

// agencyRepoStub is a stub for repository.AgencyRepository.
type agencyRepoStub struct {
	getByIDFn            func(context.Context, uint) (*models.Agency, error)
	createWithOwnerFn    func(context.Context, *models.Agency, *models.User) error
	renameFn             func(context.Context, uint, string) error
	addMemberFn          func(context.Context, *models.AgencyInvite, *models.User) error
	removeMemberFn       func(context.Context, uint, uint) error
	createInviteFn       func(context.Context, *models.AgencyInvite) error
	getInviteByTokenFn   func(context.Context, string) (*models.AgencyInvite, error)
	listPendingInvitesFn func(context.Context, uint, time.Time) ([]models.AgencyInvite, error)
}

func (s *agencyRepoStub) GetByID(ctx context.Context, id uint) (*models.Agency, error) {
	if s.getByIDFn == nil {
		return &models.Agency{ID: id, Name: "Agency"}, nil
	}
	return s.getByIDFn(ctx, id)
}
func (s *agencyRepoStub) CreateWithOwner(ctx context.Context, agency *models.Agency, owner *models.User) error {
	if s.createWithOwnerFn == nil {
		agency.ID = 1
		return nil
	}
	return s.createWithOwnerFn(ctx, agency, owner)
}
func (s *agencyRepoStub) Rename(ctx context.Context, id uint, name string) error {
	if s.renameFn == nil {
		return nil
	}
	return s.renameFn(ctx, id, name)
}
func (s *agencyRepoStub) AddMember(ctx context.Context, invite *models.AgencyInvite, user *models.User) error {
	if s.addMemberFn == nil {
		return nil
	}
	return s.addMemberFn(ctx, invite, user)
}
func (s *agencyRepoStub) RemoveMember(ctx context.Context, agencyID, userID uint) error {
	if s.removeMemberFn == nil {
		return nil
	}
	return s.removeMemberFn(ctx, agencyID, userID)
}
func (s *agencyRepoStub) CreateInvite(ctx context.Context, invite *models.AgencyInvite) error {
	if s.createInviteFn == nil {
		return nil
	}
	return s.createInviteFn(ctx, invite)
}
func (s *agencyRepoStub) GetInviteByToken(ctx context.Context, token string) (*models.AgencyInvite, error) {
	if s.getInviteByTokenFn == nil {
		return nil, nil
	}
	return s.getInviteByTokenFn(ctx, token)
}
func (s *agencyRepoStub) ListPendingInvites(ctx context.Context, agencyID uint, now time.Time) ([]models.AgencyInvite, error) {
	if s.listPendingInvitesFn == nil {
		return nil, nil
	}
	return s.listPendingInvitesFn(ctx, agencyID, now)
}

// linkedInStub is a stub for linkedin.API that counts calls.
type linkedInStub struct {
	mu    sync.Mutex
	calls map[string]int

	exchangeFn   func(context.Context, string) (*linkedin.TokenSet, error)
	refreshFn    func(context.Context, string) (*linkedin.TokenSet, error)
	profileFn    func(context.Context, string) (*linkedin.Profile, error)
	createPostFn func(context.Context, string, string, string) (string, error)
	memberFn     func(context.Context, string, string) (models.EngagementCounts, error)
	orgFn        func(context.Context, string, string, string) (models.EngagementCounts, error)
}

func newLinkedInStub() *linkedInStub {
	return &linkedInStub{calls: map[string]int{}}
}

func (s *linkedInStub) hit(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *linkedInStub) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *linkedInStub) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *linkedInStub) AuthCodeURL(state string) string {
	return "https://linkedin.test/authorize?state=" + state
}
func (s *linkedInStub) Exchange(ctx context.Context, code string) (*linkedin.TokenSet, error) {
	s.hit("exchange")
	if s.exchangeFn == nil {
		return &linkedin.TokenSet{AccessToken: "at", RefreshToken: "rt", ExpiresAt: fixedNow.Add(time.Hour)}, nil
	}
	return s.exchangeFn(ctx, code)
}
func (s *linkedInStub) Refresh(ctx context.Context, refreshToken string) (*linkedin.TokenSet, error) {
	s.hit("refresh")
	if s.refreshFn == nil {
		return &linkedin.TokenSet{AccessToken: "refreshed", ExpiresAt: fixedNow.Add(time.Hour)}, nil
	}
	return s.refreshFn(ctx, refreshToken)
}
func (s *linkedInStub) Profile(ctx context.Context, accessToken string) (*linkedin.Profile, error) {
	s.hit("profile")
	if s.profileFn == nil {
		return &linkedin.Profile{ID: "abc123", Name: "Jo Writer"}, nil
	}
	return s.profileFn(ctx, accessToken)
}
func (s *linkedInStub) CreatePost(ctx context.Context, accessToken, authorURN, text string) (string, error) {
	s.hit("create_post")
	if s.createPostFn == nil {
		return "urn:li:share:1", nil
	}
	return s.createPostFn(ctx, accessToken, authorURN, text)
}
func (s *linkedInStub) MemberMetrics(ctx context.Context, accessToken, postURN string) (models.EngagementCounts, error) {
	s.hit("member_metrics")
	if s.memberFn == nil {
		return models.EngagementCounts{}, nil
	}
	return s.memberFn(ctx, accessToken, postURN)
}
func (s *linkedInStub) OrganizationMetrics(ctx context.Context, accessToken, orgURN, postURN string) (models.EngagementCounts, error) {
	s.hit("org_metrics")
	if s.orgFn == nil {
		return models.EngagementCounts{}, nil
	}
	return s.orgFn(ctx, accessToken, orgURN, postURN)
}

// mailerStub records sent emails by template.
type mailerStub struct {
	mu      sync.Mutex
	sent    []string
	to      []string
	digests []email.Digest
	failFor map[string]error
}

func (m *mailerStub) record(template, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[to]; err != nil {
		return err
	}
	m.sent = append(m.sent, template)
	m.to = append(m.to, to)
	return nil
}

func (m *mailerStub) templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *mailerStub) SendVerification(_ context.Context, to, _, _ string) error {
	return m.record(email.TemplateVerification, to)
}
func (m *mailerStub) SendPasswordReset(_ context.Context, to, _, _ string) error {
	return m.record(email.TemplatePasswordReset, to)
}
func (m *mailerStub) SendAgencyInvite(_ context.Context, to, _, _, _ string) error {
	return m.record(email.TemplateAgencyInvite, to)
}
func (m *mailerStub) SendPaymentFailed(_ context.Context, to, _, _ string) error {
	return m.record(email.TemplatePaymentFailed, to)
}
func (m *mailerStub) SendWeeklyDigest(_ context.Context, to string, d email.Digest) error {
	if err := m.record(email.TemplateWeeklyDigest, to); err != nil {
		return err
	}
	m.mu.Lock()
	m.digests = append(m.digests, d)
	m.mu.Unlock()
	return nil
}

// gatewayStub is a stub for billing.Gateway.
type gatewayStub struct {
	customers int
	checkouts []billing.CheckoutInput
	portalFor string
	err       error
}

func (g *gatewayStub) CreateCustomer(_ context.Context, userID uint, _, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.customers++
	return "cus_new", nil
}
func (g *gatewayStub) CreateCheckoutSession(_ context.Context, in billing.CheckoutInput) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.checkouts = append(g.checkouts, in)
	return "https://checkout.stripe.test/" + in.Plan.ID, nil
}
func (g *gatewayStub) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.portalFor = customerID
	return "https://billing.stripe.test/" + customerID, nil
}

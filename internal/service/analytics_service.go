package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"ghostwriter/internal/cache"
	"ghostwriter/internal/models"
	"ghostwriter/internal/observability"
	"ghostwriter/internal/repository"
)

const (
	DefaultAnalyticsDays = 30
	MaxAnalyticsDays     = 365
	overviewTopPosts     = 5
)

type AnalyticsService struct {
	analyticsRepo repository.AnalyticsRepository
	postRepo      repository.PostRepository
	clientRepo    repository.ClientRepository
	userRepo      repository.UserRepository
	now           func() time.Time
}

// Overview is the dashboard summary for one user and window.
type Overview struct {
	Days                int                     `json:"days"`
	Clients             int64                   `json:"clients"`
	PostsByStatus       map[string]int64        `json:"posts_by_status"`
	Totals              repository.MetricTotals `json:"totals"`
	AvgEngagementRate   float64                 `json:"avg_engagement_rate"`
	AvgClickThroughRate float64                 `json:"avg_click_through_rate"`
	TopPosts            []models.Post           `json:"top_posts"`
}

// PostHistory is a post with its snapshots, oldest first.
type PostHistory struct {
	Post      *models.Post           `json:"post"`
	Snapshots []models.PostAnalytics `json:"snapshots"`
}

// ClientHistory is a client's daily rollups, oldest first.
type ClientHistory struct {
	Client  *models.Client           `json:"client"`
	Days    int                      `json:"days"`
	Rollups []models.ClientAnalytics `json:"rollups"`
}

// RollupReport is the outcome of a daily rollup run.
type RollupReport struct {
	Clients int    `json:"clients"`
	Failed  int    `json:"failed"`
	Date    string `json:"date"`
}

func NewAnalyticsService(
	analyticsRepo repository.AnalyticsRepository,
	postRepo repository.PostRepository,
	clientRepo repository.ClientRepository,
	userRepo repository.UserRepository,
) *AnalyticsService {
	return &AnalyticsService{
		analyticsRepo: analyticsRepo,
		postRepo:      postRepo,
		clientRepo:    clientRepo,
		userRepo:      userRepo,
		now:           utcNow,
	}
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultAnalyticsDays
	}
	if days > MaxAnalyticsDays {
		return MaxAnalyticsDays
	}
	return days
}

// Overview summarizes the user's visible clients and posts. Results are
// cached per user and window for cache.OverviewTTL.
func (s *AnalyticsService) Overview(ctx context.Context, userID uint, days int) (*Overview, error) {
	days = clampDays(days)
	var out Overview
	err := cache.Aside(ctx, cache.OverviewKey(userID, days), &out, cache.OverviewTTL, func() error {
		return s.buildOverview(ctx, userID, days, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AnalyticsService) buildOverview(ctx context.Context, userID uint, days int, out *Overview) error {
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return err
	}

	clients, err := s.analyticsRepo.CountClients(ctx, scope)
	if err != nil {
		return err
	}
	counts, err := s.analyticsRepo.CountPostsByStatus(ctx, scope)
	if err != nil {
		return err
	}

	q := repository.PublishedQuery{Scope: &scope, From: s.now().AddDate(0, 0, -days)}
	totals, err := s.analyticsRepo.PublishedTotals(ctx, q)
	if err != nil {
		return err
	}
	top, err := s.analyticsRepo.TopPosts(ctx, q, overviewTopPosts)
	if err != nil {
		return err
	}

	byStatus := map[string]int64{
		models.PostStatusDraft:     0,
		models.PostStatusScheduled: 0,
		models.PostStatusPublished: 0,
		models.PostStatusFailed:    0,
	}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	if top == nil {
		top = []models.Post{}
	}

	*out = Overview{
		Days:                days,
		Clients:             clients,
		PostsByStatus:       byStatus,
		Totals:              *totals,
		AvgEngagementRate:   round2(totals.AvgEngagementRate),
		AvgClickThroughRate: round2(totals.AvgClickThroughRate),
		TopPosts:            top,
	}
	return nil
}

func (s *AnalyticsService) PostHistory(ctx context.Context, userID, postID uint) (*PostHistory, error) {
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	post, err := s.postRepo.GetVisible(ctx, postID, scope)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.analyticsRepo.ListSnapshots(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return &PostHistory{Post: post, Snapshots: snapshots}, nil
}

func (s *AnalyticsService) ClientHistory(ctx context.Context, userID, clientID uint, days int) (*ClientHistory, error) {
	days = clampDays(days)
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRepo.GetVisible(ctx, clientID, scope)
	if err != nil {
		return nil, err
	}
	since := startOfDay(s.now()).AddDate(0, 0, -days)
	rollups, err := s.analyticsRepo.ListRollups(ctx, client.ID, since)
	if err != nil {
		return nil, err
	}
	return &ClientHistory{Client: client, Days: days, Rollups: rollups}, nil
}

// Rollup writes one ClientAnalytics row per client for the UTC day of date.
// A failing client is logged and counted, the rest still roll up.
func (s *AnalyticsService) Rollup(ctx context.Context, date time.Time) (*RollupReport, error) {
	day := startOfDay(date)
	ctx, span := observability.StartSpan(ctx, "analytics.rollup")
	defer span.End()

	clients, err := s.clientRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &RollupReport{Date: day.Format(time.DateOnly)}
	for _, c := range clients {
		if err := s.rollupClient(ctx, c.ID, day); err != nil {
			report.Failed++
			slog.WarnContext(ctx, "client rollup failed",
				slog.Uint64("client_id", uint64(c.ID)),
				slog.String("date", report.Date),
				slog.String("error", err.Error()))
			continue
		}
		report.Clients++
	}
	return report, nil
}

func (s *AnalyticsService) rollupClient(ctx context.Context, clientID uint, day time.Time) error {
	daily, err := s.analyticsRepo.PublishedTotals(ctx, repository.PublishedQuery{
		ClientID: clientID,
		From:     day,
		To:       day.AddDate(0, 0, 1),
	})
	if err != nil {
		return err
	}
	totals, err := s.analyticsRepo.ClientTotals(ctx, clientID)
	if err != nil {
		return err
	}

	return s.analyticsRepo.UpsertRollup(ctx, &models.ClientAnalytics{
		ClientID:          clientID,
		Date:              day,
		PostsPublished:    int(daily.Posts),
		Likes:             int(daily.Likes),
		Comments:          int(daily.Comments),
		Shares:            int(daily.Shares),
		Impressions:       int(daily.Impressions),
		Clicks:            int(daily.Clicks),
		TotalPosts:        int(totals.Posts),
		TotalImpressions:  int(totals.Impressions),
		AvgEngagementRate: round2(totals.AvgEngagementRate),
	})
}

// Yesterday is the default rollup day.
func (s *AnalyticsService) Yesterday() time.Time {
	return startOfDay(s.now()).AddDate(0, 0, -1)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package service

import (
	"context"
	"log/slog"
	"time"

	"ghostwriter/internal/email"
	"ghostwriter/internal/featureflags"
	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
)

const digestWindow = 7 * 24 * time.Hour

// ReportService sends the weekly performance digest.
type ReportService struct {
	userRepo      repository.UserRepository
	analyticsRepo repository.AnalyticsRepository
	mailer        Mailer
	flags         *featureflags.Manager
	now           func() time.Time
}

// DigestReport is the outcome of a weekly digest run.
type DigestReport struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

func NewReportService(
	userRepo repository.UserRepository,
	analyticsRepo repository.AnalyticsRepository,
	mailer Mailer,
	flags *featureflags.Manager,
) *ReportService {
	return &ReportService{
		userRepo:      userRepo,
		analyticsRepo: analyticsRepo,
		mailer:        mailer,
		flags:         flags,
		now:           utcNow,
	}
}

// WeeklyDigest emails every verified user their last seven days. One failing
// user does not stop the others.
func (s *ReportService) WeeklyDigest(ctx context.Context) (*DigestReport, error) {
	users, err := s.userRepo.ListVerified(ctx)
	if err != nil {
		return nil, err
	}

	report := &DigestReport{Total: len(users)}
	for i := range users {
		user := &users[i]
		if !s.flags.Allows(featureflags.WeeklyDigest, user.ID) {
			report.Skipped++
			continue
		}
		if err := s.sendDigest(ctx, user); err != nil {
			report.Failed++
			slog.WarnContext(ctx, "weekly digest failed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.String("error", err.Error()))
			continue
		}
		report.Sent++
	}
	return report, nil
}

func (s *ReportService) sendDigest(ctx context.Context, user *models.User) error {
	digest, err := s.BuildDigest(ctx, user)
	if err != nil {
		return err
	}
	return s.mailer.SendWeeklyDigest(ctx, user.Email, *digest)
}

// BuildDigest computes the user's stats for the last seven days.
func (s *ReportService) BuildDigest(ctx context.Context, user *models.User) (*email.Digest, error) {
	scope := repository.ScopeFor(user)
	now := s.now()
	q := repository.PublishedQuery{Scope: &scope, From: now.Add(-digestWindow), To: now}

	totals, err := s.analyticsRepo.PublishedTotals(ctx, q)
	if err != nil {
		return nil, err
	}
	top, err := s.analyticsRepo.TopPosts(ctx, q, 1)
	if err != nil {
		return nil, err
	}

	digest := &email.Digest{
		Name:           user.Name,
		PostsPublished: totals.Posts,
		Impressions:    totals.Impressions,
		Engagements:    totals.Engagements(),
	}
	if len(top) > 0 {
		digest.TopPost = &email.DigestPost{
			Excerpt:        excerpt(top[0].Content, 140),
			EngagementRate: top[0].EngagementRate,
		}
	}
	return digest, nil
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ghostwriter/internal/cache"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/models"
	"ghostwriter/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Lock names and lifetimes for the batch jobs. A running job keeps
// extending its lock, so the TTL only bounds how long a crashed run blocks
// the next one.
const (
	jobAnalyticsSync   = "analytics_sync"
	jobAnalyticsRollup = "analytics_rollup"
	jobPublishDue      = "publish_due"
	jobWeeklyReport    = "weekly_report"

	syncLockTTL    = 15 * time.Minute
	rollupLockTTL  = 10 * time.Minute
	publishLockTTL = 5 * time.Minute
	reportLockTTL  = 30 * time.Minute
)

var errJobRunning = models.NewConflictError("Job is already running")

// runJob executes fn while holding the job's lock and writes its report.
// The lock is renewed for as long as fn runs.
func (s *Server) runJob(c *fiber.Ctx, job string, ttl time.Duration, fn func(ctx context.Context) (any, error)) error {
	ctx := c.UserContext()

	release, err := cache.HoldLock(ctx, job, ttl)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			middleware.Logger.InfoContext(ctx, "job skipped, lock held", slog.String("job", job))
			return respondServiceError(c, errJobRunning)
		}
		return respondServiceError(c, models.NewInternalError(err))
	}
	defer release()

	done := observability.TrackJob(job)
	report, err := fn(ctx)
	done()
	if err != nil {
		return respondServiceError(c, err)
	}

	middleware.Logger.InfoContext(ctx, "job finished", slog.String("job", job), slog.Any("report", report))
	return c.JSON(report)
}

// SyncAnalytics handles POST /api/cron/analytics/sync
func (s *Server) SyncAnalytics(c *fiber.Ctx) error {
	return s.runJob(c, jobAnalyticsSync, syncLockTTL, func(ctx context.Context) (any, error) {
		return s.linkedInService.SyncAll(ctx)
	})
}

// RollupAnalytics handles POST /api/cron/analytics/rollup?date=YYYY-MM-DD.
// The date defaults to yesterday in UTC.
func (s *Server) RollupAnalytics(c *fiber.Ctx) error {
	date := s.analyticsService.Yesterday()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("date must be YYYY-MM-DD"))
		}
		date = parsed
	}

	return s.runJob(c, jobAnalyticsRollup, rollupLockTTL, func(ctx context.Context) (any, error) {
		return s.analyticsService.Rollup(ctx, date)
	})
}

// PublishDuePosts handles POST /api/cron/posts/publish-due
func (s *Server) PublishDuePosts(c *fiber.Ctx) error {
	return s.runJob(c, jobPublishDue, publishLockTTL, func(ctx context.Context) (any, error) {
		return s.linkedInService.PublishDue(ctx)
	})
}

// SendWeeklyReports handles POST /api/cron/reports/weekly
func (s *Server) SendWeeklyReports(c *fiber.Ctx) error {
	return s.runJob(c, jobWeeklyReport, reportLockTTL, func(ctx context.Context) (any, error) {
		return s.reportService.WeeklyDigest(ctx)
	})
}

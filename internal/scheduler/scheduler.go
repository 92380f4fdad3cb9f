// Package scheduler fires the API's batch job endpoints on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ghostwriter/internal/config"
	"ghostwriter/internal/middleware"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"
)

// ErrJobRunning is returned when the API reports the job lock is held.
var ErrJobRunning = errors.New("job already running")

// Job is one scheduled endpoint.
type Job struct {
	Name string
	Spec string
	Path string
}

// Jobs returns the configured jobs. A job with an empty schedule is disabled.
func Jobs(cfg *config.Config) []Job {
	all := []Job{
		{Name: "analytics_sync", Spec: cfg.ScheduleSync, Path: "/cron/analytics/sync"},
		{Name: "analytics_rollup", Spec: cfg.ScheduleRollup, Path: "/cron/analytics/rollup"},
		{Name: "publish_due", Spec: cfg.SchedulePublish, Path: "/cron/posts/publish-due"},
		{Name: "weekly_report", Spec: cfg.ScheduleWeeklyReport, Path: "/cron/reports/weekly"},
	}
	out := all[:0]
	for _, j := range all {
		if strings.TrimSpace(j.Spec) != "" {
			out = append(out, j)
		}
	}
	return out
}

// Result summarizes a job response.
type Result struct {
	Status int
	Total  int64
	Failed int64
	Body   []byte
}

// Trigger calls job endpoints with the shared cron secret.
type Trigger struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewTrigger builds a Trigger. baseURL includes the /api prefix.
func NewTrigger(baseURL, secret string, client *http.Client) *Trigger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Trigger{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  client,
	}
}

// Fire posts to the job endpoint and reads its report.
func (t *Trigger) Fire(ctx context.Context, job Job) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+job.Path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(middleware.CronSecretHeader, t.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", job.Name, err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrJobRunning
	case resp.StatusCode >= 300:
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: status %d: %s", job.Name, resp.StatusCode, msg)
	}

	res := gjson.ParseBytes(body)
	return &Result{
		Status: resp.StatusCode,
		Total:  res.Get("total").Int(),
		Failed: res.Get("failed").Int(),
		Body:   body,
	}, nil
}

// New builds a cron runner with every job registered. Overlapping runs of
// the same job are skipped.
func New(jobs []Job, trigger *Trigger, logger *slog.Logger) (*cron.Cron, error) {
	cl := cronLogger{l: logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, job := range jobs {
		if _, err := c.AddFunc(job.Spec, runner(job, trigger, logger)); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
		}
		logger.Info("job scheduled", slog.String("job", job.Name), slog.String("spec", job.Spec))
	}
	return c, nil
}

func runner(job Job, trigger *Trigger, logger *slog.Logger) func() {
	return func() {
		start := time.Now()
		res, err := trigger.Fire(context.Background(), job)
		switch {
		case errors.Is(err, ErrJobRunning):
			logger.Info("job skipped, already running", slog.String("job", job.Name))
		case err != nil:
			logger.Error("job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
		default:
			logger.Info("job finished",
				slog.String("job", job.Name),
				slog.Int64("total", res.Total),
				slog.Int64("failed", res.Failed),
				slog.Duration("duration", time.Since(start)))
		}
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

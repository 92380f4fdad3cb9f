package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostwriter_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghostwriter_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// LinkedInRequests counts outbound LinkedIn API calls by operation and status.
	LinkedInRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostwriter_linkedin_api_requests_total",
		Help: "Total LinkedIn API requests by operation and HTTP status",
	}, []string{"operation", "status"})

	// AnalyticsSyncItems counts posts visited by the analytics sync by result.
	AnalyticsSyncItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostwriter_analytics_sync_items_total",
		Help: "Posts processed by analytics sync by result",
	}, []string{"result"})

	// WebhookEvents counts inbound webhook deliveries by source and result.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostwriter_webhook_events_total",
		Help: "Inbound webhook deliveries by source and result",
	}, []string{"source", "result"})

	// EmailsSent counts transactional email attempts by template and result.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostwriter_emails_sent_total",
		Help: "Transactional emails by template and result",
	}, []string{"template", "result"})

	// PostsPublished counts LinkedIn publishes by trigger (manual or scheduled) and result.
	PostsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghostwriter_posts_published_total",
		Help: "Post publish attempts by trigger and result",
	}, []string{"trigger", "result"})

	// JobDuration records scheduled job runtimes.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghostwriter_job_duration_seconds",
		Help:    "Scheduled job duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

// Result label values.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultSkipped   = "skipped"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
)

// ResultLabel maps an error to ResultOK or ResultError.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackJob returns a function that records a job's duration when called.
func TrackJob(job string) func() {
	start := time.Now()
	return func() {
		JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	}
}

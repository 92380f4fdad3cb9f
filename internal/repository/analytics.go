package repository

import (
	"context"
	"time"

	"ghostwriter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PublishedQuery selects published posts for aggregation. A nil Scope
// means no visibility filter; zero ClientID, From or To are ignored.
type PublishedQuery struct {
	Scope    *Scope
	ClientID uint
	From     time.Time
	To       time.Time
}

// MetricTotals aggregates counters over a set of published posts.
type MetricTotals struct {
	Posts               int64   `json:"posts"`
	Likes               int64   `json:"likes"`
	Comments            int64   `json:"comments"`
	Shares              int64   `json:"shares"`
	Views               int64   `json:"views"`
	Impressions         int64   `json:"impressions"`
	Clicks              int64   `json:"clicks"`
	AvgEngagementRate   float64 `json:"avg_engagement_rate"`
	AvgClickThroughRate float64 `json:"avg_click_through_rate"`
}

// Engagements is likes plus comments plus shares.
func (m MetricTotals) Engagements() int64 {
	return m.Likes + m.Comments + m.Shares
}

// StatusCount is the number of posts in one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// AnalyticsRepository stores snapshots and rollups and runs the aggregate
// queries behind the dashboard, digests and daily rollups.
type AnalyticsRepository interface {
	CreateSnapshot(ctx context.Context, snapshot *models.PostAnalytics) error
	ListSnapshots(ctx context.Context, postID uint) ([]models.PostAnalytics, error)
	UpsertRollup(ctx context.Context, rollup *models.ClientAnalytics) error
	ListRollups(ctx context.Context, clientID uint, since time.Time) ([]models.ClientAnalytics, error)
	CountClients(ctx context.Context, scope Scope) (int64, error)
	CountPostsByStatus(ctx context.Context, scope Scope) ([]StatusCount, error)
	PublishedTotals(ctx context.Context, q PublishedQuery) (*MetricTotals, error)
	TopPosts(ctx context.Context, q PublishedQuery, limit int) ([]models.Post, error)
	// ClientTotals aggregates every published post of the client.
	ClientTotals(ctx context.Context, clientID uint) (*MetricTotals, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository returns a new AnalyticsRepository implementation.
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) CreateSnapshot(ctx context.Context, snapshot *models.PostAnalytics) error {
	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *analyticsRepository) ListSnapshots(ctx context.Context, postID uint) ([]models.PostAnalytics, error) {
	var snapshots []models.PostAnalytics
	if err := readDB(r.db).WithContext(ctx).
		Where("post_id = ?", postID).
		Order("captured_at ASC, id ASC").
		Find(&snapshots).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return snapshots, nil
}

func (r *analyticsRepository) UpsertRollup(ctx context.Context, rollup *models.ClientAnalytics) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "client_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"posts_published", "likes", "comments", "shares", "impressions", "clicks",
			"total_posts", "total_impressions", "avg_engagement_rate", "updated_at",
		}),
	}).Create(rollup).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *analyticsRepository) ListRollups(ctx context.Context, clientID uint, since time.Time) ([]models.ClientAnalytics, error) {
	var rollups []models.ClientAnalytics
	if err := readDB(r.db).WithContext(ctx).
		Where("client_id = ? AND date >= ?", clientID, since).
		Order("date ASC").
		Find(&rollups).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rollups, nil
}

func (r *analyticsRepository) CountClients(ctx context.Context, scope Scope) (int64, error) {
	var n int64
	if err := visibleClients(readDB(r.db).WithContext(ctx).Model(&models.Client{}), scope).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *analyticsRepository) CountPostsByStatus(ctx context.Context, scope Scope) ([]StatusCount, error) {
	var counts []StatusCount
	if err := readDB(r.db).WithContext(ctx).Model(&models.Post{}).
		Select("status, COUNT(*) AS count").
		Where("client_id IN (?)", visibleClientIDs(r.db, scope)).
		Group("status").
		Order("status").
		Scan(&counts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return counts, nil
}

func (r *analyticsRepository) published(ctx context.Context, q PublishedQuery) *gorm.DB {
	db := readDB(r.db).WithContext(ctx).Model(&models.Post{}).
		Where("posts.status = ?", models.PostStatusPublished)
	if q.Scope != nil {
		db = db.Where("posts.client_id IN (?)", visibleClientIDs(r.db, *q.Scope))
	}
	if q.ClientID != 0 {
		db = db.Where("posts.client_id = ?", q.ClientID)
	}
	if !q.From.IsZero() {
		db = db.Where("posts.published_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		db = db.Where("posts.published_at < ?", q.To)
	}
	return db
}

const totalsSelect = `COUNT(*) AS posts,
	COALESCE(SUM(likes), 0) AS likes,
	COALESCE(SUM(comments), 0) AS comments,
	COALESCE(SUM(shares), 0) AS shares,
	COALESCE(SUM(views), 0) AS views,
	COALESCE(SUM(impressions), 0) AS impressions,
	COALESCE(SUM(clicks), 0) AS clicks,
	COALESCE(AVG(engagement_rate), 0) AS avg_engagement_rate,
	COALESCE(AVG(click_through_rate), 0) AS avg_click_through_rate`

func (r *analyticsRepository) PublishedTotals(ctx context.Context, q PublishedQuery) (*MetricTotals, error) {
	var totals MetricTotals
	if err := r.published(ctx, q).Select(totalsSelect).Scan(&totals).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return &totals, nil
}

func (r *analyticsRepository) TopPosts(ctx context.Context, q PublishedQuery, limit int) ([]models.Post, error) {
	var posts []models.Post
	if err := r.published(ctx, q).
		Order("posts.engagement_rate DESC, posts.id ASC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *analyticsRepository) ClientTotals(ctx context.Context, clientID uint) (*MetricTotals, error) {
	return r.PublishedTotals(ctx, PublishedQuery{ClientID: clientID})
}

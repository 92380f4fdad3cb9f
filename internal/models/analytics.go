package models

import "time"

// Snapshot sources.
const (
	SnapshotSourceSync    = "sync"
	SnapshotSourceWebhook = "webhook"
)

// PostAnalytics is an append-only snapshot of a post's counters.
type PostAnalytics struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	PostID           uint      `gorm:"not null;index" json:"post_id"`
	Likes            int       `json:"likes"`
	Comments         int       `json:"comments"`
	Shares           int       `json:"shares"`
	Views            int       `json:"views"`
	Impressions      int       `json:"impressions"`
	Clicks           int       `json:"clicks"`
	EngagementRate   float64   `json:"engagement_rate"`
	ClickThroughRate float64   `json:"click_through_rate"`
	Source           string    `gorm:"size:20;not null" json:"source"`
	CapturedAt       time.Time `gorm:"not null;index" json:"captured_at"`
}

// TableName pins the snapshot table name.
func (PostAnalytics) TableName() string {
	return "post_analytics"
}

// NewSnapshot captures the post's current counters.
func NewSnapshot(p *Post, source string, at time.Time) *PostAnalytics {
	return &PostAnalytics{
		PostID:           p.ID,
		Likes:            p.Likes,
		Comments:         p.Comments,
		Shares:           p.Shares,
		Views:            p.Views,
		Impressions:      p.Impressions,
		Clicks:           p.Clicks,
		EngagementRate:   p.EngagementRate,
		ClickThroughRate: p.ClickThroughRate,
		Source:           source,
		CapturedAt:       at,
	}
}

// ClientAnalytics is a daily per-client rollup.
type ClientAnalytics struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ClientID          uint      `gorm:"not null;uniqueIndex:ux_client_analytics_client_date,priority:1" json:"client_id"`
	Date              time.Time `gorm:"type:date;not null;uniqueIndex:ux_client_analytics_client_date,priority:2" json:"date"`
	PostsPublished    int       `json:"posts_published"`
	Likes             int       `json:"likes"`
	Comments          int       `json:"comments"`
	Shares            int       `json:"shares"`
	Impressions       int       `json:"impressions"`
	Clicks            int       `json:"clicks"`
	TotalPosts        int       `json:"total_posts"`
	TotalImpressions  int       `json:"total_impressions"`
	AvgEngagementRate float64   `json:"avg_engagement_rate"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName pins the rollup table name.
func (ClientAnalytics) TableName() string {
	return "client_analytics"
}

package models

import (
	"math"
	"time"
)

// Post lifecycle states.
const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)

// MaxPostContentLength is LinkedIn's commentary limit.
const MaxPostContentLength = 3000

var postTransitions = map[string][]string{
	PostStatusDraft:     {PostStatusScheduled, PostStatusPublished},
	PostStatusScheduled: {PostStatusDraft, PostStatusPublished, PostStatusFailed},
	PostStatusFailed:    {PostStatusDraft, PostStatusScheduled, PostStatusPublished},
}

// Post is content written for a client.
type Post struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ClientID       uint       `gorm:"not null;index" json:"client_id"`
	Client         *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Status         string     `gorm:"size:20;not null;default:draft;index" json:"status"`
	ScheduledAt    *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	ExternalPostID string     `gorm:"size:255;index" json:"external_post_id,omitempty"`
	FailureReason  string     `gorm:"type:text" json:"failure_reason,omitempty"`

	Likes            int     `gorm:"not null;default:0" json:"likes"`
	Comments         int     `gorm:"not null;default:0" json:"comments"`
	Shares           int     `gorm:"not null;default:0" json:"shares"`
	Views            int     `gorm:"not null;default:0" json:"views"`
	Impressions      int     `gorm:"not null;default:0" json:"impressions"`
	Clicks           int     `gorm:"not null;default:0" json:"clicks"`
	EngagementRate   float64 `gorm:"not null;default:0" json:"engagement_rate"`
	ClickThroughRate float64 `gorm:"not null;default:0" json:"click_through_rate"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CanTransition reports whether a post may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range postTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValidPostStatus reports whether s is a known status.
func IsValidPostStatus(s string) bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished, PostStatusFailed:
		return true
	}
	return false
}

// EngagementCounts are the raw counters reported by LinkedIn.
type EngagementCounts struct {
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Shares      int `json:"shares"`
	Views       int `json:"views"`
	Impressions int `json:"impressions"`
	Clicks      int `json:"clicks"`
}

// EngagementRate is (likes+comments+shares)/impressions as a percentage.
func (e EngagementCounts) EngagementRate() float64 {
	if e.Impressions <= 0 {
		return 0
	}
	return round2(float64(e.Likes+e.Comments+e.Shares) / float64(e.Impressions) * 100)
}

// ClickThroughRate is clicks/impressions as a percentage.
func (e EngagementCounts) ClickThroughRate() float64 {
	if e.Impressions <= 0 {
		return 0
	}
	return round2(float64(e.Clicks) / float64(e.Impressions) * 100)
}

// ApplyMetrics overwrites the post's current counters and derived rates.
func (p *Post) ApplyMetrics(m EngagementCounts, at time.Time) {
	p.Likes = m.Likes
	p.Comments = m.Comments
	p.Shares = m.Shares
	p.Views = m.Views
	p.Impressions = m.Impressions
	p.Clicks = m.Clicks
	p.EngagementRate = m.EngagementRate()
	p.ClickThroughRate = m.ClickThroughRate()
	p.LastSyncedAt = &at
}

// Counts returns the post's current counters.
func (p *Post) Counts() EngagementCounts {
	return EngagementCounts{
		Likes:       p.Likes,
		Comments:    p.Comments,
		Shares:      p.Shares,
		Views:       p.Views,
		Impressions: p.Impressions,
		Clicks:      p.Clicks,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

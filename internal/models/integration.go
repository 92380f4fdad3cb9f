package models

import "time"

// Webhook sources.
const (
	WebhookSourceStripe   = "stripe"
	WebhookSourceLinkedIn = "linkedin"
)

// LinkedInToken holds OAuth credentials for a client's LinkedIn account.
type LinkedInToken struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ClientID     uint      `gorm:"not null;uniqueIndex" json:"client_id"`
	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`
	Scope        string    `gorm:"size:255" json:"scope"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName pins the token table name.
func (LinkedInToken) TableName() string {
	return "linkedin_tokens"
}

// ExpiredAt reports whether the access token is unusable at now, allowing skew.
func (t *LinkedInToken) ExpiredAt(now time.Time, skew time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(skew))
}

// WebhookEvent logs an inbound webhook delivery.
type WebhookEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Source      string     `gorm:"size:20;not null;uniqueIndex:ux_webhook_events_source_external,priority:1" json:"source"`
	ExternalID  string     `gorm:"size:191;not null;uniqueIndex:ux_webhook_events_source_external,priority:2" json:"external_id"`
	EventType   string     `gorm:"size:100;not null;index" json:"event_type"`
	Payload     string     `gorm:"type:text;not null" json:"-"`
	Processed   bool       `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

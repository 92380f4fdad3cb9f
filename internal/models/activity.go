package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Activity types.
const (
	ActivityClientCreated     = "client.created"
	ActivityClientUpdated     = "client.updated"
	ActivityClientDeleted     = "client.deleted"
	ActivityPostCreated       = "post.created"
	ActivityPostScheduled     = "post.scheduled"
	ActivityPostPublished     = "post.published"
	ActivityPostFailed        = "post.failed"
	ActivityLinkedInConnected = "linkedin.connected"
	ActivityLinkedInRemoved   = "linkedin.disconnected"
	ActivityPlanChanged       = "billing.plan_changed"
	ActivityAgencyCreated     = "agency.created"
	ActivityAgencyJoined      = "agency.member_joined"
	ActivityAgencyMemberLeft  = "agency.member_removed"
)

// Activity is an append-only feed entry for a user.
type Activity struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	Type         string          `gorm:"size:50;not null;index" json:"type"`
	Message      string          `gorm:"size:500;not null" json:"message"`
	Metadata     string          `gorm:"type:text" json:"-"`
	MetadataJSON json.RawMessage `gorm:"-" json:"metadata,omitempty"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

// SetMetadata encodes free-form metadata onto the row.
func (a *Activity) SetMetadata(meta map[string]any) error {
	if len(meta) == 0 {
		a.Metadata = ""
		a.MetadataJSON = nil
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	a.Metadata = string(b)
	a.MetadataJSON = b
	return nil
}

// AfterFind exposes the stored metadata as raw JSON.
func (a *Activity) AfterFind(_ *gorm.DB) error {
	if a.Metadata != "" && json.Valid([]byte(a.Metadata)) {
		a.MetadataJSON = json.RawMessage(a.Metadata)
	}
	return nil
}

package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// LinkedIn account types a client can publish as.
const (
	AccountTypePersonal     = "personal"
	AccountTypeOrganization = "organization"
)

// Client is a profile a ghostwriter writes for.
type Client struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UserID         uint   `gorm:"not null;index" json:"user_id"`
	AgencyID       *uint  `gorm:"index" json:"agency_id,omitempty"`
	Name           string `gorm:"size:100;not null" json:"name"`
	Industry       string `gorm:"size:100" json:"industry"`
	Tone           string `gorm:"size:30" json:"tone"`
	BrandVoice     string `gorm:"type:text" json:"brand_voice"`
	TargetAudience string `gorm:"type:text" json:"target_audience"`
	// Topics is stored comma separated.
	Topics      string `gorm:"type:text" json:"-"`
	AccountType string `gorm:"size:20;not null;default:personal" json:"account_type"`

	LinkedInProfileID   string `gorm:"column:linkedin_profile_id;size:100" json:"linkedin_profile_id,omitempty"`
	LinkedInOrgID       string `gorm:"column:linkedin_org_id;size:100" json:"linkedin_org_id,omitempty"`
	LinkedInDisplayName string `gorm:"column:linkedin_display_name;size:200" json:"linkedin_display_name,omitempty"`

	TopicList []string `gorm:"-" json:"topics"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetTopics normalizes and stores the topic list.
func (c *Client) SetTopics(topics []string) {
	clean := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", " "))
		if t != "" {
			clean = append(clean, t)
		}
	}
	c.TopicList = clean
	c.Topics = strings.Join(clean, ",")
}

// AfterFind populates TopicList from the stored column.
func (c *Client) AfterFind(_ *gorm.DB) error {
	c.TopicList = []string{}
	if c.Topics != "" {
		c.TopicList = strings.Split(c.Topics, ",")
	}
	return nil
}

// AuthorURN returns the LinkedIn author URN for this client's account type.
func (c *Client) AuthorURN() string {
	if c.AccountType == AccountTypeOrganization {
		if c.LinkedInOrgID == "" {
			return ""
		}
		return "urn:li:organization:" + c.LinkedInOrgID
	}
	if c.LinkedInProfileID == "" {
		return ""
	}
	return "urn:li:person:" + c.LinkedInProfileID
}

// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Subscription plans.
const (
	PlanFree   = "free"
	PlanPro    = "pro"
	PlanAgency = "agency"
)

// Agency roles.
const (
	AgencyRoleOwner  = "owner"
	AgencyRoleMember = "member"
)

// User is a ghostwriter account.
type User struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"size:100;not null" json:"name"`
	Email         string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password      string `gorm:"not null" json:"-"`
	EmailVerified bool   `gorm:"not null;default:false" json:"email_verified"`

	VerificationToken          string     `gorm:"size:128;index" json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`
	ResetToken                 string     `gorm:"size:128;index" json:"-"`
	ResetTokenExpiresAt        *time.Time `json:"-"`

	Plan                 string     `gorm:"size:20;not null;default:free" json:"plan"`
	SubscriptionStatus   string     `gorm:"size:30" json:"subscription_status,omitempty"`
	StripeCustomerID     string     `gorm:"size:255;index" json:"-"`
	StripeSubscriptionID string     `gorm:"size:255" json:"-"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`

	AgencyID   *uint  `gorm:"index" json:"agency_id,omitempty"`
	AgencyRole string `gorm:"size:20" json:"agency_role,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAgencyOwner reports whether the user owns their agency.
func (u *User) IsAgencyOwner() bool {
	return u.AgencyID != nil && u.AgencyRole == AgencyRoleOwner
}

// EffectivePlan returns the plan, defaulting to free.
func (u *User) EffectivePlan() string {
	if u.Plan == "" {
		return PlanFree
	}
	return u.Plan
}

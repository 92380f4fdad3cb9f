package models

import (
	"time"
)

// Agency groups ghostwriters who share clients.
type Agency struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	Members   []User    `gorm:"foreignKey:AgencyID" json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgencyInvite is a single-use invitation to join an agency.
type AgencyInvite struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	AgencyID    uint       `gorm:"not null;index" json:"agency_id"`
	Email       string     `gorm:"size:255;not null;index" json:"email"`
	Token       string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	InvitedByID uint       `gorm:"not null" json:"invited_by_id"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsPending reports whether the invite can still be accepted at now.
func (i *AgencyInvite) IsPending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}

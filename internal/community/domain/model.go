// Package domain contains the community entity and its billing state.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentStatus is the coarse billing state a community advertises.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusExpired PaymentStatus = "expired"
)

// TrialInfo tracks the single, non-repeatable admin trial for a community.
type TrialInfo struct {
	Activated     bool       `gorm:"column:trial_activated;not null;default:false" json:"activated"`
	HasUsedTrial  bool       `gorm:"column:trial_has_used;not null;default:false" json:"has_used_trial"`
	StartDate     *time.Time `gorm:"column:trial_start_date" json:"start_date,omitempty"`
	EndDate       *time.Time `gorm:"column:trial_end_date" json:"end_date,omitempty"`
	Cancelled     bool       `gorm:"column:trial_cancelled;not null;default:false" json:"cancelled"`
	Converted     bool       `gorm:"column:trial_converted;not null;default:false" json:"converted"`
	TrialUsedAt   *time.Time `gorm:"column:trial_used_at" json:"trial_used_at,omitempty"`
	CancelledDate *time.Time `gorm:"column:trial_cancelled_date" json:"cancelled_date,omitempty"`
}

// Community carries the billing state mirrored from subscription records.
// SubscriptionID, when set, should reference a record whose status is still
// active or authenticated; reconciliation repairs violations of that.
type Community struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	Slug    string       `gorm:"type:text;not null;uniqueIndex"`
	Name    string       `gorm:"type:text;not null"`
	AdminID snowflake.ID `gorm:"not null;index"`
	// AdminEmail is denormalized here so billing notifications don't depend
	// on the user store.
	AdminEmail string `gorm:"type:text"`

	PaymentStatus         PaymentStatus `gorm:"type:text;not null;default:unpaid"`
	SubscriptionID        *string       `gorm:"type:text;index"`
	SubscriptionStatus    *string       `gorm:"type:text"`
	SubscriptionStartDate *time.Time    `gorm:""`
	SubscriptionEndDate   *time.Time    `gorm:""`

	// FreeTrialActivated predates TrialInfo; old rows still rely on it
	// together with SubscriptionEndDate for access checks.
	FreeTrialActivated bool `gorm:"not null;default:false"`

	Trial TrialInfo `gorm:"embedded"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Community) TableName() string { return "communities" }

// IsAdmin reports whether the given user owns this community.
func (c *Community) IsAdmin(userID snowflake.ID) bool {
	return c.AdminID != 0 && c.AdminID == userID
}

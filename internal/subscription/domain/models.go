// Package domain contains persistence models for gateway subscription records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents lifecycle states mirrored from the payment gateway.
type Status string

const (
	StatusCreated       Status = "created"
	StatusAuthenticated Status = "authenticated"
	StatusActive        Status = "active"
	StatusPending       Status = "pending"
	StatusHalted        Status = "halted"
	StatusCancelled     Status = "cancelled"
	StatusCompleted     Status = "completed"
	StatusExpired       Status = "expired"

	// Legacy statuses written by earlier webhook handlers. Rows still carry
	// them and they count as in-force for conflict analysis.
	StatusTrial   Status = "trial"
	StatusPastDue Status = "past_due"
)

// InForceStatuses are the statuses considered live for conflict purposes.
var InForceStatuses = []Status{
	StatusActive,
	StatusTrial,
	StatusPastDue,
	StatusAuthenticated,
	StatusCreated,
}

// AuthoritativeStatuses are the only statuses a community's subscription_id
// may legitimately point at.
var AuthoritativeStatuses = []Status{
	StatusActive,
	StatusAuthenticated,
}

// Record is the local mirror of a gateway subscription.
type Record struct {
	ID snowflake.ID `gorm:"primaryKey"`

	GatewaySubscriptionID string `gorm:"type:text;not null;uniqueIndex"`
	GatewayPlanID         string `gorm:"type:text"`
	GatewayCustomerID     string `gorm:"type:text"`

	AdminID     snowflake.ID `gorm:"not null;index"`
	CommunityID snowflake.ID `gorm:"not null;index"`

	Status Status `gorm:"type:text;not null"`

	// Billing period as reported by the gateway. Either side may be missing
	// when webhook data was bad; reconciliation treats that as a fault.
	CurrentStart *time.Time `gorm:""`
	CurrentEnd   *time.Time `gorm:""`

	AuthAttempts        int `gorm:"not null;default:0"`
	TotalCount          int `gorm:"not null;default:0"`
	PaidCount           int `gorm:"not null;default:0"`
	RetryAttempts       int `gorm:"not null;default:0"`
	ConsecutiveFailures int `gorm:"not null;default:0"`

	CancelAtCycleEnd bool       `gorm:"not null;default:false"`
	CancelledAt      *time.Time `gorm:""`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "subscription_records" }

// InForce reports whether the record still counts as live.
func (r *Record) InForce() bool {
	for _, status := range InForceStatuses {
		if r.Status == status {
			return true
		}
	}
	return false
}

// Authoritative reports whether a community may point at this record.
func (r *Record) Authoritative() bool {
	return r.Status == StatusActive || r.Status == StatusAuthenticated
}

// ExpiredButStale reports an in-force-flagged record whose period already
// ended.
func (r *Record) ExpiredButStale(now time.Time) bool {
	if r.Status != StatusActive && r.Status != StatusAuthenticated {
		return false
	}
	return r.CurrentEnd != nil && r.CurrentEnd.Before(now)
}

// Event is an append-only webhook history entry for a record.
type Event struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	RecordID   snowflake.ID   `gorm:"not null;index"`
	Name       string         `gorm:"type:text;not null"`
	ReceivedAt time.Time      `gorm:"not null"`
	Processed  bool           `gorm:"not null;default:false"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "subscription_events" }

// Notification kinds recorded in the append-only log.
const (
	NotificationTrialReminder = "trial_reminder"
	NotificationSuspension    = "suspension"
)

// NotificationLog records every notification and trial reminder sent, so the
// sweep never sends the same reminder twice.
type NotificationLog struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	CommunityID snowflake.ID `gorm:"not null;index"`
	Kind        string       `gorm:"type:text;not null"`
	// Threshold distinguishes reminders for the same community (days before
	// expiry); zero for non-reminder kinds.
	Threshold int       `gorm:"not null;default:0"`
	Recipient string    `gorm:"type:text"`
	Template  string    `gorm:"type:text"`
	SentAt    time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (NotificationLog) TableName() string { return "notification_logs" }

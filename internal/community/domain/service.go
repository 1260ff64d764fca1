package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// StatusSnapshot is the read model for a community's billing state. Admin
// callers get the full picture; everyone else only the access fields.
type StatusSnapshot struct {
	Slug                    string `json:"slug"`
	Name                    string `json:"name"`
	HasActiveTrialOrPayment bool   `json:"has_active_trial_or_payment"`
	AccessSource            string `json:"access_source"`
	DaysRemaining           int    `json:"days_remaining"`
	TrialEligible           bool   `json:"trial_eligible"`

	// Admin-only fields.
	IsAdmin               bool       `json:"is_admin,omitempty"`
	PaymentStatus         string     `json:"payment_status,omitempty"`
	SubscriptionID        *string    `json:"subscription_id,omitempty"`
	SubscriptionStatus    *string    `json:"subscription_status,omitempty"`
	SubscriptionStartDate *time.Time `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date,omitempty"`
	Trial                 *TrialInfo `json:"trial,omitempty"`
	// DataFault is surfaced to admins so they know to run conflict analysis.
	DataFault bool `json:"data_fault,omitempty"`
}

type StartTrialResult struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      int       `json:"days"`
}

type CreateCommunityRequest struct {
	Name       string       `json:"name"`
	AdminEmail string       `json:"admin_email"`
	AdminID    snowflake.ID `json:"-"`
}

type Service interface {
	Create(ctx context.Context, req CreateCommunityRequest) (*Community, error)
	Get(ctx context.Context, slug string) (*Community, error)
	GetStatus(ctx context.Context, slug string, callerID snowflake.ID) (StatusSnapshot, error)
	StartTrial(ctx context.Context, slug string, callerID snowflake.ID) (StartTrialResult, error)
}

var (
	ErrCommunityNotFound = errors.New("community_not_found")
	ErrNotCommunityAdmin = errors.New("not_community_admin")
	ErrTrialAlreadyUsed  = errors.New("trial_already_used")
	ErrAlreadyHasAccess  = errors.New("community_already_has_access")
	ErrInvalidName       = errors.New("invalid_community_name")
	ErrSlugTaken         = errors.New("community_slug_taken")
)

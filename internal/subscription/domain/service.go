package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// VerifyAndActivateRequest carries a gateway payment confirmation. The
// signature is checked against the gateway secret before any state changes.
type VerifyAndActivateRequest struct {
	GatewaySubscriptionID string       `json:"subscription_id"`
	GatewayPaymentID      string       `json:"payment_id"`
	Signature             string       `json:"signature"`
	AdminID               snowflake.ID `json:"-"`
	CommunityID           snowflake.ID `json:"community_id,omitempty"`
	Amount                int64        `json:"amount,omitempty"`
	Currency              string       `json:"currency,omitempty"`
}

type ActivationResult struct {
	GatewaySubscriptionID string    `json:"subscription_id"`
	CommunityID           string    `json:"community_id"`
	Status                Status    `json:"status"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	TrialConverted        bool      `json:"trial_converted"`
}

type CancelRequest struct {
	CommunitySlug    string
	CallerID         snowflake.ID
	CancelAtCycleEnd bool
}

type CancellationResult struct {
	GatewaySubscriptionID string     `json:"subscription_id"`
	Status                Status     `json:"status"`
	CancelAtCycleEnd      bool       `json:"cancel_at_cycle_end"`
	AccessUntil           *time.Time `json:"access_until,omitempty"`
}

type Service interface {
	VerifyAndActivate(ctx context.Context, req VerifyAndActivateRequest) (ActivationResult, error)
	Cancel(ctx context.Context, req CancelRequest) (CancellationResult, error)
	// History returns the event log of the community's authoritative record.
	// Admin only.
	History(ctx context.Context, communitySlug string, callerID snowflake.ID) ([]Event, error)
}

var (
	ErrRecordNotFound    = errors.New("subscription_record_not_found")
	ErrCommunityNotFound = errors.New("community_not_found")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrNotCommunityAdmin = errors.New("not_community_admin")
	ErrNoActiveRecord    = errors.New("no_active_subscription")
	ErrInvalidRequest    = errors.New("invalid_request")
)

// Package domain defines the conflict-analysis contract for drift between a
// community's billing state and its subscription records.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Action selects the repair policy. There is no default: destructive repairs
// must be chosen explicitly.
type Action string

const (
	ActionCleanup    Action = "cleanup"
	ActionForceReset Action = "force-reset"
)

// Finding is one human-readable fault description.
type Finding struct {
	Category              string `json:"category"`
	GatewaySubscriptionID string `json:"subscription_id,omitempty"`
	Detail                string `json:"detail"`
}

const (
	CategoryExpiredActive  = "expired_but_active"
	CategoryInvalidDate    = "invalid_date"
	CategoryOrphanedRef    = "orphaned_reference"
	CategoryStatusMismatch = "status_mismatch"
)

// AnalysisResult is computed, never stored; Analyze is safe to call
// arbitrarily often.
type AnalysisResult struct {
	CommunityID        string    `json:"community_id"`
	TotalRecords       int       `json:"total_records"`
	InForceCount       int       `json:"in_force_count"`
	ExpiredActiveCount int       `json:"expired_active_count"`
	InvalidDateCount   int       `json:"invalid_date_count"`
	OrphanedReference  bool      `json:"orphaned_reference"`
	StatusMismatch     bool      `json:"status_mismatch"`
	HasConflicts       bool      `json:"has_conflicts"`
	Findings           []Finding `json:"findings"`
}

// ResolutionResult reports what a repair changed. A failed record update
// lands in Errors without aborting the rest; success with a non-empty Errors
// list is a partial failure, not a fatal one.
type ResolutionResult struct {
	Action                 Action   `json:"action"`
	RemovedSubscriptions   int      `json:"removed_subscriptions"`
	ExpiredSubscriptions   int      `json:"expired_subscriptions"`
	UpdatedCommunityFields []string `json:"updated_community_fields"`
	Errors                 []string `json:"errors,omitempty"`
}

type Service interface {
	Analyze(ctx context.Context, communitySlug string, callerID snowflake.ID) (AnalysisResult, error)
	Resolve(ctx context.Context, communitySlug string, callerID snowflake.ID, action Action) (ResolutionResult, error)
}

var (
	ErrCommunityNotFound = errors.New("community_not_found")
	ErrNotCommunityAdmin = errors.New("not_community_admin")
	ErrInvalidAction     = errors.New("invalid_resolution_action")
)

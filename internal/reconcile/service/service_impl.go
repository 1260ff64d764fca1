package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/communityhq/billingcore/internal/cache"
	"github.com/communityhq/billingcore/internal/clock"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	reconciledomain "github.com/communityhq/billingcore/internal/reconcile/domain"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// dateSentinel mirrors the activation flow: period timestamps at or before
// this are treated as garbage, not data.
var dateSentinel = time.Date(1971, time.January, 1, 0, 0, 0, 0, time.UTC)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock         clock.Clock
	repo          subscriptiondomain.Repository
	communityRepo communitydomain.Repository
	statusCache   cache.StatusCache
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Repo          subscriptiondomain.Repository
	CommunityRepo communitydomain.Repository
	StatusCache   cache.StatusCache `optional:"true"`
}

func NewService(p Params) reconciledomain.Service {
	statusCache := p.StatusCache
	if statusCache == nil {
		statusCache = cache.NewStatusCache(nil)
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("reconcile.service"),

		clock:         p.Clock,
		repo:          p.Repo,
		communityRepo: p.CommunityRepo,
		statusCache:   statusCache,
	}
}

// Analyze implements domain.Service. Read-only; safe to call arbitrarily
// often.
func (s *Service) Analyze(ctx context.Context, communitySlug string, callerID snowflake.ID) (reconciledomain.AnalysisResult, error) {
	community, err := s.authorize(ctx, communitySlug, callerID)
	if err != nil {
		return reconciledomain.AnalysisResult{}, err
	}

	records, err := s.repo.FindForCommunityOrAdmin(ctx, s.db, community.ID, community.AdminID)
	if err != nil {
		return reconciledomain.AnalysisResult{}, err
	}

	now := s.clock.Now()
	result := reconciledomain.AnalysisResult{
		CommunityID:  community.ID.String(),
		TotalRecords: len(records),
	}

	for i := range records {
		record := &records[i]
		if record.InForce() {
			result.InForceCount++
		}
		if record.ExpiredButStale(now) {
			result.ExpiredActiveCount++
			result.Findings = append(result.Findings, reconciledomain.Finding{
				Category:              reconciledomain.CategoryExpiredActive,
				GatewaySubscriptionID: record.GatewaySubscriptionID,
				Detail:                fmt.Sprintf("status %s but period ended %s", record.Status, record.CurrentEnd.Format(time.RFC3339)),
			})
		}
		if invalidPeriod(record) {
			result.InvalidDateCount++
			result.Findings = append(result.Findings, reconciledomain.Finding{
				Category:              reconciledomain.CategoryInvalidDate,
				GatewaySubscriptionID: record.GatewaySubscriptionID,
				Detail:                "billing period is missing or unusable",
			})
		}
	}

	if community.SubscriptionID != nil && *community.SubscriptionID != "" {
		if !backedByAuthoritative(records, *community.SubscriptionID) {
			result.OrphanedReference = true
			result.Findings = append(result.Findings, reconciledomain.Finding{
				Category:              reconciledomain.CategoryOrphanedRef,
				GatewaySubscriptionID: *community.SubscriptionID,
				Detail:                "community points at a subscription that is not active or authenticated",
			})
		}
	}

	if community.PaymentStatus == communitydomain.PaymentStatusPaid && !hasValidBacking(records, now) {
		result.StatusMismatch = true
		result.Findings = append(result.Findings, reconciledomain.Finding{
			Category: reconciledomain.CategoryStatusMismatch,
			Detail:   "community is marked paid but no live subscription backs it",
		})
	}

	result.HasConflicts = result.ExpiredActiveCount > 0 ||
		result.InvalidDateCount > 0 ||
		result.OrphanedReference ||
		result.StatusMismatch

	return result, nil
}

// Resolve implements domain.Service. Both policies are idempotent: running
// the same repair twice produces no further changes the second time.
func (s *Service) Resolve(ctx context.Context, communitySlug string, callerID snowflake.ID, action reconciledomain.Action) (reconciledomain.ResolutionResult, error) {
	community, err := s.authorize(ctx, communitySlug, callerID)
	if err != nil {
		return reconciledomain.ResolutionResult{}, err
	}

	var result reconciledomain.ResolutionResult
	switch action {
	case reconciledomain.ActionCleanup:
		result, err = s.cleanup(ctx, community)
	case reconciledomain.ActionForceReset:
		result, err = s.forceReset(ctx, community)
	default:
		return reconciledomain.ResolutionResult{}, reconciledomain.ErrInvalidAction
	}
	if err != nil {
		return result, err
	}

	s.statusCache.Invalidate(ctx, community.Slug)
	return result, nil
}

// cleanup is the minimally destructive repair: expire stale records in place,
// delete only rows whose period cannot be trusted, and pull the community's
// mirrored fields back in line. A single record failure is recorded and the
// rest keep going.
func (s *Service) cleanup(ctx context.Context, community *communitydomain.Community) (reconciledomain.ResolutionResult, error) {
	result := reconciledomain.ResolutionResult{Action: reconciledomain.ActionCleanup}

	records, err := s.repo.FindForCommunityOrAdmin(ctx, s.db, community.ID, community.AdminID)
	if err != nil {
		return result, err
	}

	now := s.clock.Now()
	for i := range records {
		record := &records[i]

		if invalidPeriod(record) {
			if err := s.repo.Delete(ctx, s.db, record.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", record.GatewaySubscriptionID, err))
				continue
			}
			record.Status = subscriptiondomain.StatusExpired // exclude from backing checks below
			result.RemovedSubscriptions++
			continue
		}

		if record.InForce() && record.CurrentEnd != nil && record.CurrentEnd.Before(now) {
			if err := s.repo.UpdateStatus(ctx, s.db, record.ID, subscriptiondomain.StatusExpired, now); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("expire %s: %v", record.GatewaySubscriptionID, err))
				continue
			}
			record.Status = subscriptiondomain.StatusExpired
			result.ExpiredSubscriptions++
		}
	}

	fields := map[string]any{}
	if community.SubscriptionID != nil && *community.SubscriptionID != "" {
		if !backedByAuthoritative(records, *community.SubscriptionID) {
			fields["subscription_id"] = nil
			result.UpdatedCommunityFields = append(result.UpdatedCommunityFields, "subscriptionId")
		}
	}
	if community.PaymentStatus == communitydomain.PaymentStatusPaid && !hasValidBacking(records, now) {
		fields["payment_status"] = communitydomain.PaymentStatusUnpaid
		result.UpdatedCommunityFields = append(result.UpdatedCommunityFields, "paymentStatus")
	}

	if len(fields) > 0 {
		fields["updated_at"] = now
		if err := s.communityRepo.UpdateFields(ctx, s.db, community.ID, fields); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update community: %v", err))
			result.UpdatedCommunityFields = nil
		}
	}

	s.log.Info("cleanup resolved",
		zap.String("community", community.Slug),
		zap.Int("expired", result.ExpiredSubscriptions),
		zap.Int("removed", result.RemovedSubscriptions),
		zap.Strings("community_fields", result.UpdatedCommunityFields),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

// forceReset is the last resort: every in-force record for the community or
// its admin is deleted and the community's billing state is zeroed, trial
// bookkeeping included.
func (s *Service) forceReset(ctx context.Context, community *communitydomain.Community) (reconciledomain.ResolutionResult, error) {
	result := reconciledomain.ResolutionResult{Action: reconciledomain.ActionForceReset}

	removed, err := s.repo.DeleteInForce(ctx, s.db, community.ID, community.AdminID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("delete in-force records: %v", err))
	}
	result.RemovedSubscriptions = int(removed)

	now := s.clock.Now()
	fields := map[string]any{
		"payment_status":          communitydomain.PaymentStatusUnpaid,
		"subscription_id":         nil,
		"subscription_status":     nil,
		"subscription_start_date": nil,
		"subscription_end_date":   nil,
		"free_trial_activated":    false,
		"trial_activated":         false,
		"trial_has_used":          false,
		"trial_start_date":        nil,
		"trial_end_date":          nil,
		"trial_cancelled":         false,
		"trial_converted":         false,
		"trial_used_at":           nil,
		"trial_cancelled_date":    nil,
		"updated_at":              now,
	}
	if err := s.communityRepo.UpdateFields(ctx, s.db, community.ID, fields); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("reset community: %v", err))
		return result, nil
	}
	result.UpdatedCommunityFields = []string{
		"paymentStatus", "subscriptionId", "subscriptionStatus",
		"subscriptionStartDate", "subscriptionEndDate",
		"freeTrialActivated", "adminTrialInfo",
	}

	s.log.Warn("force reset resolved",
		zap.String("community", community.Slug),
		zap.Int("removed", result.RemovedSubscriptions),
	)

	return result, nil
}

func (s *Service) authorize(ctx context.Context, communitySlug string, callerID snowflake.ID) (*communitydomain.Community, error) {
	community, err := s.communityRepo.FindBySlug(ctx, s.db, strings.TrimSpace(communitySlug))
	if err != nil {
		return nil, err
	}
	if community == nil {
		return nil, reconciledomain.ErrCommunityNotFound
	}
	if !community.IsAdmin(callerID) {
		return nil, reconciledomain.ErrNotCommunityAdmin
	}
	return community, nil
}

// invalidPeriod reports a record whose currentEnd cannot be trusted and
// cannot be repaired.
func invalidPeriod(record *subscriptiondomain.Record) bool {
	if record.CurrentEnd == nil {
		return true
	}
	if !record.CurrentEnd.After(dateSentinel) {
		return true
	}
	if record.CurrentStart != nil && !record.CurrentEnd.After(*record.CurrentStart) {
		return true
	}
	return false
}

func backedByAuthoritative(records []subscriptiondomain.Record, gatewayID string) bool {
	for i := range records {
		if records[i].GatewaySubscriptionID == gatewayID && records[i].Authoritative() {
			return true
		}
	}
	return false
}

func hasValidBacking(records []subscriptiondomain.Record, now time.Time) bool {
	for i := range records {
		record := &records[i]
		if record.Authoritative() && record.CurrentEnd != nil && record.CurrentEnd.After(now) {
			return true
		}
	}
	return false
}

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
	"github.com/communityhq/billingcore/internal/config"
	gatewaydomain "github.com/communityhq/billingcore/internal/gateway/domain"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	transactiondomain "github.com/communityhq/billingcore/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// dateSentinel marks period timestamps that are clearly wrong; gateways have
// been seen reporting epoch-adjacent values when webhook data was bad.
var dateSentinel = time.Date(1971, time.January, 1, 0, 0, 0, 0, time.UTC)

const fallbackPeriod = 30 * 24 * time.Hour

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID         *snowflake.Node
	clock         clock.Clock
	repo          subscriptiondomain.Repository
	communityRepo communitydomain.Repository
	txnRepo       transactiondomain.Repository
	gateway       gatewaydomain.Gateway
	statusCache   cache.StatusCache

	allowSignatureBypass bool
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          subscriptiondomain.Repository
	CommunityRepo communitydomain.Repository
	TxnRepo       transactiondomain.Repository
	Gateway       gatewaydomain.Gateway
	StatusCache   cache.StatusCache `optional:"true"`
	Cfg           config.Config
}

func NewService(p Params) subscriptiondomain.Service {
	statusCache := p.StatusCache
	if statusCache == nil {
		statusCache = cache.NewStatusCache(nil)
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		communityRepo: p.CommunityRepo,
		txnRepo:       p.TxnRepo,
		gateway:       p.Gateway,
		statusCache:   statusCache,

		allowSignatureBypass: p.Cfg.AllowSignatureBypass,
	}
}

// VerifyAndActivate implements domain.Service.
func (s *Service) VerifyAndActivate(ctx context.Context, req subscriptiondomain.VerifyAndActivateRequest) (subscriptiondomain.ActivationResult, error) {
	subID := strings.TrimSpace(req.GatewaySubscriptionID)
	paymentID := strings.TrimSpace(req.GatewayPaymentID)
	if subID == "" || paymentID == "" || req.AdminID == 0 {
		return subscriptiondomain.ActivationResult{}, subscriptiondomain.ErrInvalidRequest
	}

	// Lookup is scoped to the caller's admin id so a forged or foreign
	// subscription id cannot activate anything.
	record, err := s.repo.FindByGatewayIDForAdmin(ctx, s.db, subID, req.AdminID)
	if err != nil {
		return subscriptiondomain.ActivationResult{}, err
	}
	if record == nil {
		return subscriptiondomain.ActivationResult{}, subscriptiondomain.ErrRecordNotFound
	}

	if !s.gateway.VerifySignature(subID, paymentID, req.Signature) {
		if !s.allowSignatureBypass {
			return subscriptiondomain.ActivationResult{}, subscriptiondomain.ErrInvalidSignature
		}
		s.log.Warn("signature verification bypassed (dev build)",
			zap.String("subscription_id", subID),
			zap.String("payment_id", paymentID),
		)
	}

	now := s.clock.Now()
	start, end := validatePeriod(record.CurrentStart, record.CurrentEnd, now)

	communityID := req.CommunityID
	if communityID == 0 {
		communityID = record.CommunityID
	}
	community, err := s.communityRepo.FindByID(ctx, s.db, communityID)
	if err != nil {
		return subscriptiondomain.ActivationResult{}, err
	}
	if community == nil {
		return subscriptiondomain.ActivationResult{}, subscriptiondomain.ErrCommunityNotFound
	}

	trialConverted := community.Trial.Activated && !community.Trial.Converted

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record.Status = subscriptiondomain.StatusActive
		record.PaidCount++
		record.AuthAttempts = 0
		record.RetryAttempts = 0
		record.ConsecutiveFailures = 0
		record.CurrentStart = &start
		record.CurrentEnd = &end
		record.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}

		payload := datatypes.JSON(fmt.Sprintf(
			`{"payment_id":%q,"subscription_id":%q}`, paymentID, subID,
		))
		if err := s.repo.AppendEvent(ctx, tx, &subscriptiondomain.Event{
			ID:         s.genID.Generate(),
			RecordID:   record.ID,
			Name:       "payment.verified",
			ReceivedAt: now,
			Processed:  true,
			Payload:    payload,
		}); err != nil {
			return err
		}

		fields := map[string]any{
			"payment_status":          communitydomain.PaymentStatusPaid,
			"subscription_id":         subID,
			"subscription_status":     string(subscriptiondomain.StatusActive),
			"subscription_start_date": start,
			"subscription_end_date":   end,
			"updated_at":              now,
		}
		if trialConverted {
			fields["trial_converted"] = true
			fields["trial_activated"] = false
		}
		if err := s.communityRepo.UpdateFields(ctx, tx, community.ID, fields); err != nil {
			return err
		}

		currency := strings.ToUpper(strings.TrimSpace(req.Currency))
		if currency == "" {
			currency = "INR"
		}
		return s.txnRepo.Insert(ctx, tx, &transactiondomain.Transaction{
			ID:                    s.genID.Generate(),
			CommunityID:           community.ID,
			AdminID:               req.AdminID,
			GatewayPaymentID:      paymentID,
			GatewaySubscriptionID: subID,
			Amount:                req.Amount,
			Currency:              currency,
			Status:                transactiondomain.TransactionStatusCaptured,
			CreatedAt:             now,
		})
	}); err != nil {
		return subscriptiondomain.ActivationResult{}, err
	}

	s.statusCache.Invalidate(ctx, community.Slug)

	s.log.Info("subscription activated",
		zap.String("subscription_id", subID),
		zap.String("community_id", community.ID.String()),
		zap.Bool("trial_converted", trialConverted),
	)

	return subscriptiondomain.ActivationResult{
		GatewaySubscriptionID: subID,
		CommunityID:           community.ID.String(),
		Status:                subscriptiondomain.StatusActive,
		PeriodStart:           start,
		PeriodEnd:             end,
		TrialConverted:        trialConverted,
	}, nil
}

// Cancel implements domain.Service. The gateway call happens first; local
// state is only mutated after the gateway confirms.
func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.CancellationResult, error) {
	community, err := s.communityRepo.FindBySlug(ctx, s.db, strings.TrimSpace(req.CommunitySlug))
	if err != nil {
		return subscriptiondomain.CancellationResult{}, err
	}
	if community == nil {
		return subscriptiondomain.CancellationResult{}, subscriptiondomain.ErrCommunityNotFound
	}
	if !community.IsAdmin(req.CallerID) {
		return subscriptiondomain.CancellationResult{}, subscriptiondomain.ErrNotCommunityAdmin
	}

	record, err := s.repo.FindAuthoritative(ctx, s.db, community.ID)
	if err != nil {
		return subscriptiondomain.CancellationResult{}, err
	}
	if record == nil {
		return subscriptiondomain.CancellationResult{}, subscriptiondomain.ErrNoActiveRecord
	}

	if err := s.gateway.CancelSubscription(ctx, record.GatewaySubscriptionID, req.CancelAtCycleEnd); err != nil {
		return subscriptiondomain.CancellationResult{}, err
	}

	now := s.clock.Now()
	result := subscriptiondomain.CancellationResult{
		GatewaySubscriptionID: record.GatewaySubscriptionID,
		CancelAtCycleEnd:      req.CancelAtCycleEnd,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record.CancelledAt = &now
		record.UpdatedAt = now
		if req.CancelAtCycleEnd {
			// Access continues until the period ends; the sweep expires the
			// record afterwards.
			record.CancelAtCycleEnd = true
			result.Status = record.Status
			result.AccessUntil = record.CurrentEnd
		} else {
			record.Status = subscriptiondomain.StatusCancelled
			result.Status = subscriptiondomain.StatusCancelled
		}
		if err := s.repo.Update(ctx, tx, record); err != nil {
			return err
		}

		if err := s.repo.AppendEvent(ctx, tx, &subscriptiondomain.Event{
			ID:         s.genID.Generate(),
			RecordID:   record.ID,
			Name:       "subscription.cancelled",
			ReceivedAt: now,
			Processed:  true,
		}); err != nil {
			return err
		}

		if !req.CancelAtCycleEnd {
			return s.communityRepo.UpdateFields(ctx, tx, community.ID, map[string]any{
				"payment_status":      communitydomain.PaymentStatusUnpaid,
				"subscription_id":     nil,
				"subscription_status": string(subscriptiondomain.StatusCancelled),
				"updated_at":          now,
			})
		}
		return nil
	}); err != nil {
		return subscriptiondomain.CancellationResult{}, err
	}

	s.statusCache.Invalidate(ctx, community.Slug)

	s.log.Info("subscription cancelled",
		zap.String("subscription_id", record.GatewaySubscriptionID),
		zap.String("community", community.Slug),
		zap.Bool("at_cycle_end", req.CancelAtCycleEnd),
	)

	return result, nil
}

// History implements domain.Service. The event log is admin-only and follows
// the community's authoritative record.
func (s *Service) History(ctx context.Context, communitySlug string, callerID snowflake.ID) ([]subscriptiondomain.Event, error) {
	community, err := s.communityRepo.FindBySlug(ctx, s.db, strings.TrimSpace(communitySlug))
	if err != nil {
		return nil, err
	}
	if community == nil {
		return nil, subscriptiondomain.ErrCommunityNotFound
	}
	if !community.IsAdmin(callerID) {
		return nil, subscriptiondomain.ErrNotCommunityAdmin
	}

	record, err := s.repo.FindAuthoritative(ctx, s.db, community.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, subscriptiondomain.ErrNoActiveRecord
	}
	return s.repo.ListEvents(ctx, s.db, record.ID)
}

// validatePeriod substitutes a sane period when the gateway-reported dates
// cannot be trusted: missing values or anything before the 1971 sentinel.
func validatePeriod(start, end *time.Time, now time.Time) (time.Time, time.Time) {
	validStart := start != nil && start.After(dateSentinel)
	validEnd := end != nil && end.After(dateSentinel)
	if validStart && validEnd && end.After(*start) {
		return start.UTC(), end.UTC()
	}
	return now, now.Add(fallbackPeriod)
}

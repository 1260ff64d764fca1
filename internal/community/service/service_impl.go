package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/communityhq/billingcore/internal/cache"
	"github.com/communityhq/billingcore/internal/clock"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	"github.com/communityhq/billingcore/internal/config"
	"github.com/communityhq/billingcore/internal/policy"
	"github.com/communityhq/billingcore/pkg/db"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        communitydomain.Repository
	statusCache cache.StatusCache
	trialDays   int
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        communitydomain.Repository
	StatusCache cache.StatusCache `optional:"true"`
	Cfg         config.Config
}

func NewService(p Params) communitydomain.Service {
	statusCache := p.StatusCache
	if statusCache == nil {
		statusCache = cache.NewStatusCache(nil)
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("community.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		statusCache: statusCache,
		trialDays:   p.Cfg.Trial.Days,
	}
}

// Create implements domain.Service.
func (s *Service) Create(ctx context.Context, req communitydomain.CreateCommunityRequest) (*communitydomain.Community, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.AdminID == 0 {
		return nil, communitydomain.ErrInvalidName
	}

	now := s.clock.Now()
	community := &communitydomain.Community{
		ID:            s.genID.Generate(),
		Slug:          slug.Make(name),
		Name:          name,
		AdminID:       req.AdminID,
		AdminEmail:    strings.TrimSpace(req.AdminEmail),
		PaymentStatus: communitydomain.PaymentStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, community); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, communitydomain.ErrSlugTaken
		}
		return nil, err
	}
	return community, nil
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, communitySlug string) (*communitydomain.Community, error) {
	community, err := s.repo.FindBySlug(ctx, s.db, strings.TrimSpace(communitySlug))
	if err != nil {
		return nil, err
	}
	if community == nil {
		return nil, communitydomain.ErrCommunityNotFound
	}
	return community, nil
}

// GetStatus implements domain.Service. Non-admin reads are served from the
// redis snapshot cache when available.
func (s *Service) GetStatus(ctx context.Context, communitySlug string, callerID snowflake.ID) (communitydomain.StatusSnapshot, error) {
	communitySlug = strings.TrimSpace(communitySlug)

	// The cached snapshot never contains admin fields, so it can only serve
	// callers we would not show them to anyway.
	cachedOK := false
	var cached communitydomain.StatusSnapshot
	if callerID == 0 {
		cached, cachedOK = s.statusCache.Get(ctx, communitySlug)
	}
	if cachedOK {
		return cached, nil
	}

	community, err := s.repo.FindBySlug(ctx, s.db, communitySlug)
	if err != nil {
		return communitydomain.StatusSnapshot{}, err
	}
	if community == nil {
		return communitydomain.StatusSnapshot{}, communitydomain.ErrCommunityNotFound
	}

	now := s.clock.Now()
	decision := policy.Evaluate(community, now)
	if decision.Fault {
		// Documented fail-open: grant data is malformed, so err on the side
		// of availability rather than suspending a paying community. The
		// admin sees DataFault and can run conflict analysis.
		s.log.Warn("billing state malformed, defaulting to access granted",
			zap.String("community", community.Slug),
		)
		decision.HasAccess = true
	}

	snapshot := communitydomain.StatusSnapshot{
		Slug:                    community.Slug,
		Name:                    community.Name,
		HasActiveTrialOrPayment: decision.HasAccess,
		AccessSource:            string(decision.Source),
		DaysRemaining:           decision.DaysRemaining,
		TrialEligible:           decision.TrialEligible,
	}

	if community.IsAdmin(callerID) {
		trial := community.Trial
		snapshot.IsAdmin = true
		snapshot.PaymentStatus = string(community.PaymentStatus)
		snapshot.SubscriptionID = community.SubscriptionID
		snapshot.SubscriptionStatus = community.SubscriptionStatus
		snapshot.SubscriptionStartDate = community.SubscriptionStartDate
		snapshot.SubscriptionEndDate = community.SubscriptionEndDate
		snapshot.Trial = &trial
		snapshot.DataFault = decision.Fault
	} else if callerID == 0 {
		s.statusCache.Set(ctx, communitySlug, snapshot)
	}

	return snapshot, nil
}

// StartTrial implements domain.Service. The trial is single and
// non-repeatable per community admin.
func (s *Service) StartTrial(ctx context.Context, communitySlug string, callerID snowflake.ID) (communitydomain.StartTrialResult, error) {
	community, err := s.repo.FindBySlug(ctx, s.db, strings.TrimSpace(communitySlug))
	if err != nil {
		return communitydomain.StartTrialResult{}, err
	}
	if community == nil {
		return communitydomain.StartTrialResult{}, communitydomain.ErrCommunityNotFound
	}
	if !community.IsAdmin(callerID) {
		return communitydomain.StartTrialResult{}, communitydomain.ErrNotCommunityAdmin
	}

	now := s.clock.Now()
	decision := policy.Evaluate(community, now)
	if decision.HasAccess {
		return communitydomain.StartTrialResult{}, communitydomain.ErrAlreadyHasAccess
	}
	if community.Trial.HasUsedTrial {
		return communitydomain.StartTrialResult{}, communitydomain.ErrTrialAlreadyUsed
	}

	end := now.Add(time.Duration(s.trialDays) * 24 * time.Hour)
	fields := map[string]any{
		"trial_activated":  true,
		"trial_has_used":   true,
		"trial_start_date": now,
		"trial_end_date":   end,
		"trial_cancelled":  false,
		"trial_converted":  false,
		"trial_used_at":    now,
		"updated_at":       now,
	}
	if err := s.repo.UpdateFields(ctx, s.db, community.ID, fields); err != nil {
		return communitydomain.StartTrialResult{}, err
	}
	s.statusCache.Invalidate(ctx, community.Slug)

	s.log.Info("trial started",
		zap.String("community", community.Slug),
		zap.Int("days", s.trialDays),
	)

	return communitydomain.StartTrialResult{
		StartDate: now,
		EndDate:   end,
		Days:      s.trialDays,
	}, nil
}

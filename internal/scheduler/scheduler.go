// Package scheduler runs the periodic billing sweep: trial reminders, trial
// expiry suspensions and stale-record expiry. It reuses the same repair
// primitives as the reconciliation service so there is a single logic path
// for flipping records to expired.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/communityhq/billingcore/internal/cache"
	"github.com/communityhq/billingcore/internal/clock"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	"github.com/communityhq/billingcore/internal/notification"
	obsmetrics "github.com/communityhq/billingcore/internal/observability/metrics"
	"github.com/communityhq/billingcore/internal/policy"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	CommunityRepo    communitydomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Notifier         notification.Provider
	StatusCache      cache.StatusCache        `optional:"true"`
	SweepMetrics     *obsmetrics.SweepMetrics `optional:"true"`
	Config           Config                   `optional:"true"`
}

type Scheduler struct {
	db               *gorm.DB
	log              *zap.Logger
	cfg              Config
	genID            *snowflake.Node
	clock            clock.Clock
	communityRepo    communitydomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	notifier         notification.Provider
	statusCache      cache.StatusCache
	metrics          *obsmetrics.SweepMetrics
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	RemindersSent  int      `json:"reminders_sent"`
	Suspensions    int      `json:"suspensions"`
	RecordsExpired int      `json:"records_expired"`
	Errors         []string `json:"errors,omitempty"`
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.CommunityRepo == nil || p.SubscriptionRepo == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	statusCache := p.StatusCache
	if statusCache == nil {
		statusCache = cache.NewStatusCache(nil)
	}
	return &Scheduler{
		db:               p.DB,
		log:              p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:              p.Config.withDefaults(),
		genID:            p.GenID,
		clock:            p.Clock,
		communityRepo:    p.CommunityRepo,
		subscriptionRepo: p.SubscriptionRepo,
		notifier:         p.Notifier,
		statusCache:      statusCache,
		metrics:          p.SweepMetrics,
	}, nil
}

// RunForever ticks until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunSweep(ctx)
		}
	}
}

// RunSweep performs one full pass. Per-community failures are accumulated,
// never fatal to the rest of the batch.
func (s *Scheduler) RunSweep(parent context.Context) SweepResult {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	result := SweepResult{}

	s.sweepTrials(ctx, &result)
	s.sweepStaleRecords(ctx, &result)

	if s.metrics != nil {
		s.metrics.ObserveRun(s.clock.Now().Sub(start),
			result.RemindersSent, result.Suspensions, result.RecordsExpired, len(result.Errors))
	}

	s.log.Info("sweep completed",
		zap.Int("reminders_sent", result.RemindersSent),
		zap.Int("suspensions", result.Suspensions),
		zap.Int("records_expired", result.RecordsExpired),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

func (s *Scheduler) sweepTrials(ctx context.Context, result *SweepResult) {
	communities, err := s.communityRepo.ListActiveTrials(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list active trials: %v", err))
		return
	}

	now := s.clock.Now()
	for i := range communities {
		community := &communities[i]

		if policy.TrialExpired(community, now) {
			if err := s.suspend(ctx, community, now); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("suspend %s: %v", community.Slug, err))
				continue
			}
			result.Suspensions++
			continue
		}

		days := policy.DaysRemaining(community, now)
		for _, threshold := range s.cfg.ReminderThresholds {
			if days != threshold {
				continue
			}
			sent, err := s.sendReminder(ctx, community, threshold, now)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("remind %s: %v", community.Slug, err))
			} else if sent {
				result.RemindersSent++
			}
		}
	}
}

// sweepStaleRecords expires in-force-flagged records whose period already
// ended, the same repair the cleanup action applies.
func (s *Scheduler) sweepStaleRecords(ctx context.Context, result *SweepResult) {
	now := s.clock.Now()
	records, err := s.subscriptionRepo.ListStaleActive(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list stale records: %v", err))
		return
	}

	for i := range records {
		record := &records[i]
		if err := s.subscriptionRepo.UpdateStatus(ctx, s.db, record.ID, subscriptiondomain.StatusExpired, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("expire %s: %v", record.GatewaySubscriptionID, err))
			continue
		}
		result.RecordsExpired++
	}
}

func (s *Scheduler) suspend(ctx context.Context, community *communitydomain.Community, now time.Time) error {
	fields := map[string]any{
		"payment_status":  communitydomain.PaymentStatusExpired,
		"trial_activated": false,
		"updated_at":      now,
	}
	if err := s.communityRepo.UpdateFields(ctx, s.db, community.ID, fields); err != nil {
		return err
	}
	s.statusCache.Invalidate(ctx, community.Slug)

	if community.AdminEmail != "" {
		if err := s.notifier.SendTemplate(ctx, []string{community.AdminEmail}, notification.TemplateSuspension, map[string]any{
			"community_name": community.Name,
		}); err != nil {
			// The suspension is already persisted; a failed email is logged,
			// not retried here.
			s.log.Warn("suspension email failed", zap.String("community", community.Slug), zap.Error(err))
		}
	}

	return s.subscriptionRepo.AppendNotification(ctx, s.db, &subscriptiondomain.NotificationLog{
		ID:          s.genID.Generate(),
		CommunityID: community.ID,
		Kind:        subscriptiondomain.NotificationSuspension,
		Recipient:   community.AdminEmail,
		Template:    notification.TemplateSuspension,
		SentAt:      now,
	})
}

func (s *Scheduler) sendReminder(ctx context.Context, community *communitydomain.Community, threshold int, now time.Time) (bool, error) {
	already, err := s.subscriptionRepo.HasNotification(ctx, s.db, community.ID, subscriptiondomain.NotificationTrialReminder, threshold)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}

	if community.AdminEmail != "" {
		if err := s.notifier.SendTemplate(ctx, []string{community.AdminEmail}, notification.TemplateTrialReminder, map[string]any{
			"community_name": community.Name,
			"days_remaining": threshold,
		}); err != nil {
			return false, err
		}
	}

	if err := s.subscriptionRepo.AppendNotification(ctx, s.db, &subscriptiondomain.NotificationLog{
		ID:          s.genID.Generate(),
		CommunityID: community.ID,
		Kind:        subscriptiondomain.NotificationTrialReminder,
		Threshold:   threshold,
		Recipient:   community.AdminEmail,
		Template:    notification.TemplateTrialReminder,
		SentAt:      now,
	}); err != nil {
		return false, err
	}
	return true, nil
}

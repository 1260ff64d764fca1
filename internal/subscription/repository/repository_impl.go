package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *subscriptiondomain.Record) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) FindByGatewayIDForAdmin(ctx context.Context, db *gorm.DB, gatewaySubscriptionID string, adminID snowflake.ID) (*subscriptiondomain.Record, error) {
	var record subscriptiondomain.Record
	err := db.WithContext(ctx).
		Where("gateway_subscription_id = ? AND admin_id = ?", gatewaySubscriptionID, adminID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) FindForCommunityOrAdmin(ctx context.Context, db *gorm.DB, communityID, adminID snowflake.ID) ([]subscriptiondomain.Record, error) {
	var records []subscriptiondomain.Record
	err := db.WithContext(ctx).
		Where("community_id = ? OR admin_id = ?", communityID, adminID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) FindAuthoritative(ctx context.Context, db *gorm.DB, communityID snowflake.ID) (*subscriptiondomain.Record, error) {
	var record subscriptiondomain.Record
	err := db.WithContext(ctx).
		Where("community_id = ? AND status IN ?", communityID, subscriptiondomain.AuthoritativeStatuses).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.Status, now time.Time) error {
	return db.WithContext(ctx).
		Model(&subscriptiondomain.Record{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": now,
		}).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, record *subscriptiondomain.Record) error {
	return db.WithContext(ctx).Save(record).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&subscriptiondomain.Record{}).Error
}

func (r *repo) DeleteInForce(ctx context.Context, db *gorm.DB, communityID, adminID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Where("(community_id = ? OR admin_id = ?) AND status IN ?", communityID, adminID, subscriptiondomain.InForceStatuses).
		Delete(&subscriptiondomain.Record{})
	return result.RowsAffected, result.Error
}

func (r *repo) ListStaleActive(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Record, error) {
	var records []subscriptiondomain.Record
	q := db.WithContext(ctx).
		Where("status IN ? AND current_end IS NOT NULL AND current_end < ?",
			[]subscriptiondomain.Status{subscriptiondomain.StatusActive, subscriptiondomain.StatusAuthenticated}, now).
		Order("current_end ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) AppendEvent(ctx context.Context, db *gorm.DB, event *subscriptiondomain.Event) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]subscriptiondomain.Event, error) {
	var events []subscriptiondomain.Event
	err := db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("received_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) AppendNotification(ctx context.Context, db *gorm.DB, entry *subscriptiondomain.NotificationLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) HasNotification(ctx context.Context, db *gorm.DB, communityID snowflake.ID, kind string, threshold int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&subscriptiondomain.NotificationLog{}).
		Where("community_id = ? AND kind = ? AND threshold = ?", communityID, kind, threshold).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

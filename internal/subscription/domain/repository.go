package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	FindByGatewayIDForAdmin(ctx context.Context, db *gorm.DB, gatewaySubscriptionID string, adminID snowflake.ID) (*Record, error)
	// FindForCommunityOrAdmin loads every record matching either owner key.
	// The OR is intentional: a record mis-filed under another community must
	// still surface in conflict analysis for its admin.
	FindForCommunityOrAdmin(ctx context.Context, db *gorm.DB, communityID, adminID snowflake.ID) ([]Record, error)
	FindAuthoritative(ctx context.Context, db *gorm.DB, communityID snowflake.ID) (*Record, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, now time.Time) error
	Update(ctx context.Context, db *gorm.DB, record *Record) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteInForce(ctx context.Context, db *gorm.DB, communityID, adminID snowflake.ID) (int64, error)
	// ListStaleActive returns in-force-flagged records whose period ended
	// before now, for the scheduled sweep.
	ListStaleActive(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Record, error)

	AppendEvent(ctx context.Context, db *gorm.DB, event *Event) error
	ListEvents(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]Event, error)

	AppendNotification(ctx context.Context, db *gorm.DB, entry *NotificationLog) error
	HasNotification(ctx context.Context, db *gorm.DB, communityID snowflake.ID, kind string, threshold int) (bool, error)
}

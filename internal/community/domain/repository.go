package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, community *Community) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Community, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Community, error)
	// UpdateFields persists only the given columns; callers build the map so
	// an unchanged community never produces a write.
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// ListActiveTrials returns communities whose trial is activated and not
	// yet converted or cancelled, for the scheduled sweep.
	ListActiveTrials(ctx context.Context, db *gorm.DB, limit int) ([]Community, error)
}

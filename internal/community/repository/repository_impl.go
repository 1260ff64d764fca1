package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() communitydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, community *communitydomain.Community) error {
	return db.WithContext(ctx).Create(community).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*communitydomain.Community, error) {
	var community communitydomain.Community
	err := db.WithContext(ctx).Where("id = ?", id).First(&community).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*communitydomain.Community, error) {
	var community communitydomain.Community
	err := db.WithContext(ctx).Where("slug = ?", slug).First(&community).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &community, nil
}

func (r *repo) UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&communitydomain.Community{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) ListActiveTrials(ctx context.Context, db *gorm.DB, limit int) ([]communitydomain.Community, error) {
	var communities []communitydomain.Community
	q := db.WithContext(ctx).
		Where("trial_activated = ? AND trial_converted = ? AND trial_cancelled = ?", true, false, false).
		Order("trial_end_date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&communities).Error; err != nil {
		return nil, err
	}
	return communities, nil
}

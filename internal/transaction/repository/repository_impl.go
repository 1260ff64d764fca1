package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/communityhq/billingcore/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() transactiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, transaction *transactiondomain.Transaction) error {
	return db.WithContext(ctx).Create(transaction).Error
}

func (r *repo) ListByCommunity(ctx context.Context, db *gorm.DB, communityID snowflake.ID) ([]transactiondomain.Transaction, error) {
	var transactions []transactiondomain.Transaction
	err := db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at DESC").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

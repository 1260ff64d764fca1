// Package domain contains the append-only billing transaction audit trail.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	TransactionStatusCaptured TransactionStatus = "captured"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// Transaction rows are never mutated after creation, except refund
// bookkeeping which appends a separate row.
type Transaction struct {
	ID                    snowflake.ID      `gorm:"primaryKey"`
	CommunityID           snowflake.ID      `gorm:"not null;index"`
	AdminID               snowflake.ID      `gorm:"not null;index"`
	GatewayPaymentID      string            `gorm:"type:text;not null"`
	GatewaySubscriptionID string            `gorm:"type:text;index"`
	Amount                int64             `gorm:"not null"`
	Currency              string            `gorm:"type:text;not null"`
	Status                TransactionStatus `gorm:"type:text;not null"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "billing_transactions" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transaction *Transaction) error
	ListByCommunity(ctx context.Context, db *gorm.DB, communityID snowflake.ID) ([]Transaction, error)
}

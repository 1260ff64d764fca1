package migration

import (
	"github.com/communityhq/billingcore/internal/config"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	transactiondomain "github.com/communityhq/billingcore/internal/transaction/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The versioned SQL migrations target postgres. Other dialects
		// (sqlite in development, mysql) get the schema from the models.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&communitydomain.Community{},
				&subscriptiondomain.Record{},
				&subscriptiondomain.Event{},
				&subscriptiondomain.NotificationLog{},
				&transactiondomain.Transaction{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

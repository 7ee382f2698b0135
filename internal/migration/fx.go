package migration

import (
	auditdomain "github.com/humanline/humanline/internal/audit/domain"
	"github.com/humanline/humanline/internal/config"
	"github.com/humanline/humanline/internal/onboarding/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The versioned SQL targets postgres. mysql and sqlite setups
			// derive the schema from the models instead.
			if err := conn.AutoMigrate(
				&domain.Invitation{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
			if cfg.DBType == "mysql" {
				// MySQL cannot express a partial unique index; the duplicate
				// check in the service is the only guard there.
				return nil
			}
			return EnsureActiveEmailIndex(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

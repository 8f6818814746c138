package migration

import (
	"github.com/smallbiznis/paysync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(applyMigrations),
)

func applyMigrations(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if !cfg.DBRunMigrations {
		return nil
	}
	if !Supported(cfg.DBType) {
		log.Warn("no embedded schema for database type, skipping migrations", zap.String("type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := RunMigrations(sqlDB, cfg.DBType)
	if err != nil {
		return err
	}
	log.Info("schema migrated", zap.String("type", cfg.DBType), zap.Uint("version", version))
	return nil
}

package migration

import (
	"github.com/smallbiznis/quoteflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("auto migration disabled")
			return nil
		}
		if cfg.DBType != "postgres" {
			log.Warn("auto migration skipped, embedded schema targets postgres", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		files, err := Files()
		if err != nil {
			return err
		}
		fields := []zap.Field{zap.Int("files", len(files))}
		if len(files) > 0 {
			fields = append(fields, zap.String("latest", files[len(files)-1]))
		}
		log.Info("database migrations applied", fields...)
		return nil
	}),
)

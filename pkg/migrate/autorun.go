package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/popcatch-backend/pkg/config"
	"github.com/angelmondragon/popcatch-backend/pkg/db"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. The goose files target Postgres, so sqlite runs
// fall back to gorm's schema sync from the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "driver": client.Driver()}
	ctx = logg.WithFields(ctx, meta)

	if client.Driver() == db.DriverSQLite {
		logg.Info(ctx, "syncing sqlite schema from models (dev auto-run)")
		if err := AutoMigrateModels(ctx, client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema synced")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, GooseDialect(client.Driver()), DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrateModels creates the popcatch tables through gorm.
func AutoMigrateModels(ctx context.Context, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(
		&models.Store{},
		&models.Popup{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		return fmt.Errorf("auto migrating models: %w", err)
	}
	return nil
}

package migrate

import (
	"context"

	"fulfillment-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions bool // pgcrypto
	CreateChecks     bool // CHECK-constraint'ы
	CreateIndexes    bool // индексы и UNIQUE
	CreateFKsViaSQL  bool // FK через Exec после AutoMigrate
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions: true,
		CreateChecks:     true,
		CreateIndexes:    true,
		CreateFKsViaSQL:  true,
	}
}

func MigrateFulfillmentDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы фулфилмента")

	if opt.CreateExtensions {
		if err := db.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц")
	if err := db.WithContext(ctx).AutoMigrate(
		&models.Item{},
		&models.Location{},
		&models.StockEntry{},
		&models.Reservation{},
		&models.ReservedItem{},
		&models.Purchase{},
		&models.PurchasedItem{},
		&models.SagaExecution{},
		&models.SagaStepRecord{},
	); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}

	if opt.CreateChecks {
		checks := []string{
			`ALTER TABLE stock_entries DROP CONSTRAINT IF EXISTS chk_stock_quantity_non_negative`,
			`ALTER TABLE stock_entries ADD CONSTRAINT chk_stock_quantity_non_negative CHECK (quantity >= 0)`,
			`ALTER TABLE reservations DROP CONSTRAINT IF EXISTS chk_reservations_status`,
			`ALTER TABLE reservations ADD CONSTRAINT chk_reservations_status CHECK (status IN ('reserved','cancelled','paid'))`,
			`ALTER TABLE saga_executions DROP CONSTRAINT IF EXISTS chk_saga_executions_status`,
			`ALTER TABLE saga_executions ADD CONSTRAINT chk_saga_executions_status CHECK (status IN ('RUNNING','COMPENSATING','COMPLETED','FAILED'))`,
		}
		for _, q := range checks {
			if err := db.WithContext(ctx).Exec(q).Error; err != nil {
				log.Error("check constraint error", zap.String("sql", q), zap.Error(err))
				return err
			}
		}
	}

	if opt.CreateIndexes {
		indexes := []string{
			// незавершённые саги — рабочий набор восстановления после рестарта
			`CREATE INDEX IF NOT EXISTS idx_saga_executions_active ON saga_executions (started_at) WHERE status IN ('RUNNING','COMPENSATING')`,
			`CREATE INDEX IF NOT EXISTS idx_purchases_user_date ON purchases (user_id, purchase_date DESC)`,
		}
		for _, q := range indexes {
			if err := db.WithContext(ctx).Exec(q).Error; err != nil {
				log.Error("index error", zap.String("sql", q), zap.Error(err))
				return err
			}
		}
	}

	if opt.CreateFKsViaSQL {
		fks := []string{
			`DO $$ BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_stock_entries_location') THEN
					ALTER TABLE stock_entries ADD CONSTRAINT fk_stock_entries_location
						FOREIGN KEY (location_id) REFERENCES locations(id);
				END IF;
			END $$`,
			`DO $$ BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_stock_entries_item') THEN
					ALTER TABLE stock_entries ADD CONSTRAINT fk_stock_entries_item
						FOREIGN KEY (item_id) REFERENCES items(id);
				END IF;
			END $$`,
		}
		for _, q := range fks {
			if err := db.WithContext(ctx).Exec(q).Error; err != nil {
				log.Error("fk error", zap.Error(err))
				return err
			}
		}
	}

	log.Info("Миграция завершена")
	return nil
}

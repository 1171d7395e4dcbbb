package repository

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepo interface {
	Get(ctx context.Context, itemID, locationID int64) (*models.StockEntry, error)
	// GetForUpdate читает строку под row-level блокировкой (SELECT ... FOR UPDATE).
	GetForUpdate(ctx context.Context, itemID, locationID int64) (*models.StockEntry, error)
	// Adjust применяет дельту одним условным UPDATE:
	// quantity = quantity + delta, только если quantity + delta >= 0.
	// Возвращает обновлённую строку; applied=false, если guard не прошёл.
	Adjust(ctx context.Context, itemID, locationID, delta int64) (*models.StockEntry, bool, error)
	// Set ставит абсолютное значение (reset-операция).
	Set(ctx context.Context, itemID, locationID, quantity int64) (*models.StockEntry, error)
	Create(ctx context.Context, e *models.StockEntry) error
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepo(db *gorm.DB) StockRepo { return &stockRepo{db: db} }

func (r *stockRepo) Get(ctx context.Context, itemID, locationID int64) (*models.StockEntry, error) {
	var e models.StockEntry
	err := r.db.WithContext(ctx).First(&e, "item_id = ? AND location_id = ?", itemID, locationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &e, err
}

func (r *stockRepo) GetForUpdate(ctx context.Context, itemID, locationID int64) (*models.StockEntry, error) {
	var e models.StockEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&e, "item_id = ? AND location_id = ?", itemID, locationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &e, err
}

func (r *stockRepo) Adjust(ctx context.Context, itemID, locationID, delta int64) (*models.StockEntry, bool, error) {
	// атомарно: guard и мутация в одном statement, иначе два
	// конкурентных deduct прочитают одно и то же значение (oversell)
	var e models.StockEntry
	res := r.db.WithContext(ctx).Raw(`
UPDATE stock_entries
SET quantity  = quantity + @delta,
    updated_at = now()
WHERE item_id = @item
  AND location_id = @loc
  AND quantity + @delta >= 0
RETURNING id, item_id, location_id, quantity, updated_at
`, map[string]any{
		"item":  itemID,
		"loc":   locationID,
		"delta": delta,
	}).Scan(&e)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	return &e, true, nil
}

func (r *stockRepo) Set(ctx context.Context, itemID, locationID, quantity int64) (*models.StockEntry, error) {
	var e models.StockEntry
	res := r.db.WithContext(ctx).Raw(`
UPDATE stock_entries
SET quantity  = @q,
    updated_at = now()
WHERE item_id = @item
  AND location_id = @loc
RETURNING id, item_id, location_id, quantity, updated_at
`, map[string]any{
		"item": itemID,
		"loc":  locationID,
		"q":    quantity,
	}).Scan(&e)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &e, nil
}

func (r *stockRepo) Create(ctx context.Context, e *models.StockEntry) error {
	e.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(e).Error
}

package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PurchaseRepo interface {
	Create(ctx context.Context, p *models.Purchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	GetByExecutionID(ctx context.Context, execID uuid.UUID) (*models.Purchase, error)
	// DeleteWithItems удаляет покупку вместе со строками. Отсутствие записи — не ошибка.
	DeleteWithItems(ctx context.Context, id uuid.UUID) error
}

type purchaseRepo struct{ db *gorm.DB }

func NewPurchaseRepo(db *gorm.DB) PurchaseRepo { return &purchaseRepo{db: db} }

func (r *purchaseRepo) Create(ctx context.Context, p *models.Purchase) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *purchaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var p models.Purchase
	err := r.db.WithContext(ctx).Preload("Items").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *purchaseRepo) GetByExecutionID(ctx context.Context, execID uuid.UUID) (*models.Purchase, error) {
	var p models.Purchase
	err := r.db.WithContext(ctx).Preload("Items").First(&p, "execution_id = ?", execID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *purchaseRepo) DeleteWithItems(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("purchase_id = ?", id).Delete(&models.PurchasedItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Purchase{}).Error
	})
}

package repository

import (
	"context"

	"fulfillment-service/internal/models"

	"gorm.io/gorm"
)

type CatalogRepo interface {
	// ExistingItemIDs возвращает подмножество ids, которое есть в каталоге.
	ExistingItemIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	ExistingLocationIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	CreateItem(ctx context.Context, item *models.Item) error
	CreateLocation(ctx context.Context, loc *models.Location) error
}

type catalogRepo struct{ db *gorm.DB }

func NewCatalogRepo(db *gorm.DB) CatalogRepo { return &catalogRepo{db: db} }

func (r *catalogRepo) ExistingItemIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return r.existingIDs(ctx, &models.Item{}, ids)
}

func (r *catalogRepo) ExistingLocationIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return r.existingIDs(ctx, &models.Location{}, ids)
}

func (r *catalogRepo) existingIDs(ctx context.Context, model any, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var present []int64
	err := r.db.WithContext(ctx).Model(model).Where("id IN ?", ids).Pluck("id", &present).Error
	if err != nil {
		return nil, err
	}
	for _, id := range present {
		found[id] = true
	}
	return found, nil
}

func (r *catalogRepo) CreateItem(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *catalogRepo) CreateLocation(ctx context.Context, loc *models.Location) error {
	return r.db.WithContext(ctx).Create(loc).Error
}

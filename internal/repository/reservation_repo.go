package repository

import (
	"context"
	"errors"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReservationRepo interface {
	Create(ctx context.Context, res *models.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	// GetByExecutionID ищет бронь, созданную конкретной сагой (идемпотентность шага).
	GetByExecutionID(ctx context.Context, execID uuid.UUID) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReservationStatus) (bool, error)
	// DeleteItems удаляет строки брони и возвращает удалённые.
	DeleteItems(ctx context.Context, reservationID uuid.UUID) ([]models.ReservedItem, error)
	// DeleteWithItems удаляет бронь вместе со строками. Отсутствие записи — не ошибка.
	DeleteWithItems(ctx context.Context, id uuid.UUID) error
	// RestoreItems вставляет обратно снятые строки (компенсация финализации).
	RestoreItems(ctx context.Context, items []models.ReservedItem) error
}

type reservationRepo struct{ db *gorm.DB }

func NewReservationRepo(db *gorm.DB) ReservationRepo { return &reservationRepo{db: db} }

func (r *reservationRepo) Create(ctx context.Context, res *models.Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *reservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).Preload("Items").First(&res, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &res, err
}

func (r *reservationRepo) GetByExecutionID(ctx context.Context, execID uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).Preload("Items").First(&res, "execution_id = ?", execID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &res, err
}

func (r *reservationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReservationStatus) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status})
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) DeleteItems(ctx context.Context, reservationID uuid.UUID) ([]models.ReservedItem, error) {
	var items []models.ReservedItem
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Delete(&models.ReservedItem{}).Error
	return items, err
}

func (r *reservationRepo) RestoreItems(ctx context.Context, items []models.ReservedItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *reservationRepo) DeleteWithItems(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reservation_id = ?", id).Delete(&models.ReservedItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Reservation{}).Error
	})
}

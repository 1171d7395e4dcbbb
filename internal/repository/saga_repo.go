package repository

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SagaRepo interface {
	CreateExecution(ctx context.Context, e *models.SagaExecution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*models.SagaExecution, error)
	UpdateCurrentStep(ctx context.Context, id uuid.UUID, step string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SagaStatus, errorKind string, compensationFailed bool) error
	// AppendStep дописывает запись в историю. Seq проставляется по числу
	// уже записанных шагов; история никогда не мутируется задним числом.
	AppendStep(ctx context.Context, rec *models.SagaStepRecord) error
	// CompletedStep возвращает OK-запись шага для (execution, name), если есть —
	// ключ идемпотентности executionID+stepName.
	CompletedStep(ctx context.Context, execID uuid.UUID, name string) (*models.SagaStepRecord, error)
	// ListCompletedForward возвращает OK-шаги в порядке выполнения,
	// ещё не компенсированные.
	ListCompletedForward(ctx context.Context, execID uuid.UUID) ([]models.SagaStepRecord, error)
	// MarkCompensated помечает запись условно: claimed=false, если она
	// уже была помечена. Claim-then-apply в одной транзакции делает
	// компенсацию безопасной при повторной доставке.
	MarkCompensated(ctx context.Context, recID uuid.UUID) (bool, error)
}

type sagaRepo struct{ db *gorm.DB }

func NewSagaRepo(db *gorm.DB) SagaRepo { return &sagaRepo{db: db} }

func (r *sagaRepo) CreateExecution(ctx context.Context, e *models.SagaExecution) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *sagaRepo) GetExecution(ctx context.Context, id uuid.UUID) (*models.SagaExecution, error) {
	var e models.SagaExecution
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &e, err
}

func (r *sagaRepo) UpdateCurrentStep(ctx context.Context, id uuid.UUID, step string) error {
	return r.db.WithContext(ctx).Model(&models.SagaExecution{}).
		Where("id = ?", id).
		Update("current_step", step).Error
}

func (r *sagaRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SagaStatus, errorKind string, compensationFailed bool) error {
	upd := map[string]any{"status": status}
	if errorKind != "" {
		upd["error_kind"] = errorKind
	}
	if compensationFailed {
		upd["compensation_failed"] = true
	}
	if status == models.SagaCompleted || status == models.SagaFailed {
		now := time.Now()
		upd["ended_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&models.SagaExecution{}).
		Where("id = ?", id).
		Updates(upd).Error
}

func (r *sagaRepo) AppendStep(ctx context.Context, rec *models.SagaStepRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&models.SagaStepRecord{}).
			Where("execution_id = ?", rec.ExecutionID).
			Count(&cnt).Error; err != nil {
			return err
		}
		rec.Seq = int(cnt) + 1
		return tx.Create(rec).Error
	})
}

func (r *sagaRepo) CompletedStep(ctx context.Context, execID uuid.UUID, name string) (*models.SagaStepRecord, error) {
	var rec models.SagaStepRecord
	err := r.db.WithContext(ctx).
		Where("execution_id = ? AND name = ? AND outcome = ?", execID, name, "OK").
		Order("seq DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (r *sagaRepo) ListCompletedForward(ctx context.Context, execID uuid.UUID) ([]models.SagaStepRecord, error) {
	var recs []models.SagaStepRecord
	err := r.db.WithContext(ctx).
		Where("execution_id = ? AND outcome = ? AND compensated = false", execID, "OK").
		Order("seq ASC").
		Find(&recs).Error
	return recs, err
}

func (r *sagaRepo) MarkCompensated(ctx context.Context, recID uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.SagaStepRecord{}).
		Where("id = ? AND compensated = false", recID).
		Update("compensated", true)
	return tx.RowsAffected > 0, tx.Error
}

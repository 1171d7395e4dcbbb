package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/saga"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fulfillmentService struct {
	repos       *repository.Repository
	coordinator *saga.Coordinator
	log         *zap.Logger
}

func NewFulfillmentService(repos *repository.Repository, coordinator *saga.Coordinator, log *zap.Logger) FulfillmentService {
	return &fulfillmentService{
		repos:       repos,
		coordinator: coordinator,
		log:         log,
	}
}

func (s *fulfillmentService) StartReservationSaga(ctx context.Context, in StartReservationInput) (*SagaResult, error) {
	doc := saga.Document{
		UserID: in.UserID,
		Lines:  toLines(in.Items),
	}
	return s.start(ctx, saga.SagaReservation, doc)
}

func (s *fulfillmentService) StartPurchaseSaga(ctx context.Context, in StartPurchaseInput) (*SagaResult, error) {
	status := in.Status
	if status == "" {
		status = string(models.PurchasePaid)
	}
	doc := saga.Document{
		UserID:        in.UserID,
		PaymentToken:  in.PaymentToken,
		NewStatus:     status,
		Lines:         toLines(in.Items),
		Operation:     saga.OpDeduct,
		ReservationID: in.ReservationID,
	}
	return s.start(ctx, saga.SagaPurchase, doc)
}

func (s *fulfillmentService) StartReservationFinalizeSaga(ctx context.Context, in FinalizeReservationInput) (*SagaResult, error) {
	var sagaType saga.SagaType
	switch models.ReservationStatus(in.NewStatus) {
	case models.ReservationCancelled:
		sagaType = saga.SagaReservationCancel
	case models.ReservationPaid:
		sagaType = saga.SagaReservationPayment
	default:
		return nil, fmt.Errorf("%w: new_status must be cancelled or paid", ErrInvalidInput)
	}

	resID := in.ReservationID
	doc := saga.Document{
		ReservationID: &resID,
		NewStatus:     in.NewStatus,
		PaymentToken:  in.PaymentToken,
		Operation:     saga.OpDeduct,
	}
	return s.start(ctx, sagaType, doc)
}

func (s *fulfillmentService) StartStockAdjustmentSaga(ctx context.Context, in StartStockAdjustmentInput) (*SagaResult, error) {
	doc := saga.Document{
		Lines:         toLines(in.Items),
		Operation:     saga.StockOperation(in.Operation),
		ResetQuantity: in.ResetQuantity,
	}
	return s.start(ctx, saga.SagaStockAdjustment, doc)
}

func (s *fulfillmentService) GetExecution(ctx context.Context, id uuid.UUID) (*models.SagaExecution, error) {
	exec, err := s.repos.Sagas.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, ErrExecutionNotFound
	}
	return exec, nil
}

func (s *fulfillmentService) start(ctx context.Context, sagaType saga.SagaType, doc saga.Document) (*SagaResult, error) {
	execID, err := s.coordinator.Start(ctx, sagaType, doc)
	if err != nil {
		if errors.Is(err, saga.ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
		return nil, err
	}

	exec, err := s.coordinator.Run(ctx, execID)
	if err != nil {
		return nil, err
	}

	result := buildResult(exec)
	if exec.Status == models.SagaFailed {
		return result, failureError(exec)
	}
	return result, nil
}

func buildResult(exec *models.SagaExecution) *SagaResult {
	r := &SagaResult{
		ExecutionID: exec.ID,
		Status:      exec.Status,
		ErrorKind:   exec.ErrorKind,
	}
	// идентификаторы вытаскиваются из истории шагов
	for _, rec := range exec.Steps {
		if rec.Outcome != string(saga.OutcomeOK) || len(rec.Output) == 0 {
			continue
		}
		var out saga.Document
		if err := json.Unmarshal(rec.Output, &out); err != nil {
			continue
		}
		if out.ReservationID != nil {
			r.ReservationID = out.ReservationID
		}
		if out.PurchaseID != nil {
			r.PurchaseID = out.PurchaseID
		}
	}
	return r
}

// failureError переводит терминальный исход саги в ошибку для транспорта.
// Статус исходного запроса выводится из финального состояния, не из
// промежуточных шагов.
func failureError(exec *models.SagaExecution) error {
	if exec.CompensationFailed {
		return ErrCompensationFailed
	}
	switch exec.ErrorKind {
	case saga.KindInvalidInput:
		return ErrInvalidInput
	case saga.KindNotFound:
		return ErrNotFound
	case saga.KindConflict:
		return ErrConflict
	default:
		return ErrSagaFailed
	}
}

func toLines(items []LineInput) []saga.Line {
	lines := make([]saga.Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, saga.Line{
			ItemID:     it.ItemID,
			LocationID: it.LocationID,
			Quantity:   it.Quantity,
		})
	}
	return lines
}

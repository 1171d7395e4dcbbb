package service

import (
	"context"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
)

type LineInput struct {
	ItemID     int64
	LocationID int64
	Quantity   int64
}

type StartReservationInput struct {
	UserID string
	Items  []LineInput
}

type StartPurchaseInput struct {
	UserID        string
	PaymentToken  string
	Status        string // пустой = paid
	Items         []LineInput
	ReservationID *uuid.UUID
}

type FinalizeReservationInput struct {
	ReservationID uuid.UUID
	NewStatus     string // cancelled | paid
	PaymentToken  string // обязателен при paid
}

type StartStockAdjustmentInput struct {
	Operation     string // deduct | add | reset
	ResetQuantity int64  // только для reset
	Items         []LineInput
}

// SagaResult — то, что видит исходный запрос: финальный статус саги
// и идентификаторы, никакого доступа к промежуточным исходам.
type SagaResult struct {
	ExecutionID   uuid.UUID
	Status        models.SagaStatus
	ErrorKind     string
	ReservationID *uuid.UUID
	PurchaseID    *uuid.UUID
}

type FulfillmentService interface {
	StartReservationSaga(ctx context.Context, in StartReservationInput) (*SagaResult, error)
	StartPurchaseSaga(ctx context.Context, in StartPurchaseInput) (*SagaResult, error)
	StartReservationFinalizeSaga(ctx context.Context, in FinalizeReservationInput) (*SagaResult, error)
	StartStockAdjustmentSaga(ctx context.Context, in StartStockAdjustmentInput) (*SagaResult, error)
	GetExecution(ctx context.Context, id uuid.UUID) (*models.SagaExecution, error)
}

package http

import (
	"time"

	"github.com/google/uuid"
)

type LineRequest struct {
	ItemID     int64 `json:"item_id" binding:"required"`
	LocationID int64 `json:"location_id"`
	Quantity   int64 `json:"quantity" binding:"required"`
}

type ReservationRequest struct {
	UserID string        `json:"user_id" binding:"required"`
	Items  []LineRequest `json:"items" binding:"required"`
}

type PurchaseRequest struct {
	UserID        string        `json:"user_id" binding:"required"`
	PaymentToken  string        `json:"payment_token"`
	Status        string        `json:"status"`
	Items         []LineRequest `json:"items" binding:"required"`
	ReservationID *uuid.UUID    `json:"reservation_id"`
}

type FinalizeRequest struct {
	Status       string `json:"status" binding:"required"`
	PaymentToken string `json:"payment_token"`
}

// StockLineRequest — строка корректировки: quantity не обязателен,
// для reset количество задаётся полем reset_quantity запроса.
type StockLineRequest struct {
	ItemID     int64 `json:"item_id" binding:"required"`
	LocationID int64 `json:"location_id"`
	Quantity   int64 `json:"quantity"`
}

type StockAdjustmentRequest struct {
	Operation     string             `json:"operation" binding:"required"`
	ResetQuantity int64              `json:"reset_quantity"`
	Items         []StockLineRequest `json:"items" binding:"required"`
}

type SagaResponse struct {
	ExecutionID   uuid.UUID  `json:"execution_id"`
	Status        string     `json:"status"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	PurchaseID    *uuid.UUID `json:"purchase_id,omitempty"`
}

type ExecutionStepResponse struct {
	Seq         int       `json:"seq"`
	Name        string    `json:"name"`
	Outcome     string    `json:"outcome"`
	Compensated bool      `json:"compensated"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExecutionResponse struct {
	ExecutionID        uuid.UUID               `json:"execution_id"`
	SagaType           string                  `json:"saga_type"`
	Status             string                  `json:"status"`
	CurrentStep        string                  `json:"current_step"`
	ErrorKind          string                  `json:"error_kind,omitempty"`
	CompensationFailed bool                    `json:"compensation_failed,omitempty"`
	Steps              []ExecutionStepResponse `json:"steps"`
	StartedAt          time.Time               `json:"started_at"`
	EndedAt            *time.Time              `json:"ended_at,omitempty"`
}

// ErrorResponse — единый формат ошибки: машинный код + описание.
// ExecutionID присутствует, если сага успела стартовать: по нему
// доступна история шагов через GET /executions/:execution_id.
type ErrorResponse struct {
	Code        string     `json:"code"`
	Message     string     `json:"message"`
	ExecutionID *uuid.UUID `json:"execution_id,omitempty"`
}

func newError(code, msg string) ErrorResponse {
	return ErrorResponse{Code: code, Message: msg}
}

func newSagaError(code, msg string, execID uuid.UUID) ErrorResponse {
	return ErrorResponse{Code: code, Message: msg, ExecutionID: &execID}
}

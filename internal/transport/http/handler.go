package http

import (
	"errors"
	"net/http"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FulfillmentHandler struct {
	svc service.FulfillmentService
	log *zap.Logger
}

func NewFulfillmentHandler(svc service.FulfillmentService, log *zap.Logger) *FulfillmentHandler {
	return &FulfillmentHandler{svc: svc, log: log}
}

func (h *FulfillmentHandler) StartReservation(c *gin.Context) {
	var req ReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid reservation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, newError("validation_error", "invalid request body"))
		return
	}

	result, err := h.svc.StartReservationSaga(c.Request.Context(), service.StartReservationInput{
		UserID: req.UserID,
		Items:  toLineInputs(req.Items),
	})
	if err != nil {
		h.respondSagaError(c, result, err)
		return
	}
	c.JSON(http.StatusCreated, toSagaResponse(result))
}

func (h *FulfillmentHandler) StartPurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid purchase request", zap.Error(err))
		c.JSON(http.StatusBadRequest, newError("validation_error", "invalid request body"))
		return
	}

	result, err := h.svc.StartPurchaseSaga(c.Request.Context(), service.StartPurchaseInput{
		UserID:        req.UserID,
		PaymentToken:  req.PaymentToken,
		Status:        req.Status,
		Items:         toLineInputs(req.Items),
		ReservationID: req.ReservationID,
	})
	if err != nil {
		h.respondSagaError(c, result, err)
		return
	}
	c.JSON(http.StatusCreated, toSagaResponse(result))
}

func (h *FulfillmentHandler) FinalizeReservation(c *gin.Context) {
	reservationID, err := uuid.Parse(c.Param("reservation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, newError("validation_error", "invalid reservation_id"))
		return
	}
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid finalize request", zap.Error(err))
		c.JSON(http.StatusBadRequest, newError("validation_error", "invalid request body"))
		return
	}

	result, err := h.svc.StartReservationFinalizeSaga(c.Request.Context(), service.FinalizeReservationInput{
		ReservationID: reservationID,
		NewStatus:     req.Status,
		PaymentToken:  req.PaymentToken,
	})
	if err != nil {
		h.respondSagaError(c, result, err)
		return
	}
	c.JSON(http.StatusOK, toSagaResponse(result))
}

func (h *FulfillmentHandler) AdjustStock(c *gin.Context) {
	var req StockAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("invalid stock adjustment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, newError("validation_error", "invalid request body"))
		return
	}

	items := make([]service.LineInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.LineInput{
			ItemID:     it.ItemID,
			LocationID: it.LocationID,
			Quantity:   it.Quantity,
		})
	}
	result, err := h.svc.StartStockAdjustmentSaga(c.Request.Context(), service.StartStockAdjustmentInput{
		Operation:     req.Operation,
		ResetQuantity: req.ResetQuantity,
		Items:         items,
	})
	if err != nil {
		h.respondSagaError(c, result, err)
		return
	}
	c.JSON(http.StatusOK, toSagaResponse(result))
}

func (h *FulfillmentHandler) GetExecution(c *gin.Context) {
	execID, err := uuid.Parse(c.Param("execution_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, newError("validation_error", "invalid execution_id"))
		return
	}

	exec, err := h.svc.GetExecution(c.Request.Context(), execID)
	if err != nil {
		if errors.Is(err, service.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, newError("not_found", "execution not found"))
			return
		}
		h.log.Error("get execution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, newError("internal_error", "internal server error"))
		return
	}
	c.JSON(http.StatusOK, toExecutionResponse(exec))
}

// respondSagaError выводит статус-код из финального исхода саги.
func (h *FulfillmentHandler) respondSagaError(c *gin.Context, result *service.SagaResult, err error) {
	body := func(code, msg string) ErrorResponse {
		if result != nil {
			return newSagaError(code, msg, result.ExecutionID)
		}
		return newError(code, msg)
	}
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, body("validation_error", err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, body("not_found", err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, body("conflict", err.Error()))
	case errors.Is(err, service.ErrCompensationFailed):
		h.log.Error("saga ended with failed compensation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, body("compensation_failed", err.Error()))
	default:
		h.log.Error("saga failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, body("internal_error", "internal server error"))
	}
}

func toLineInputs(items []LineRequest) []service.LineInput {
	lines := make([]service.LineInput, 0, len(items))
	for _, it := range items {
		lines = append(lines, service.LineInput{
			ItemID:     it.ItemID,
			LocationID: it.LocationID,
			Quantity:   it.Quantity,
		})
	}
	return lines
}

func toSagaResponse(r *service.SagaResult) SagaResponse {
	return SagaResponse{
		ExecutionID:   r.ExecutionID,
		Status:        string(r.Status),
		ReservationID: r.ReservationID,
		PurchaseID:    r.PurchaseID,
	}
}

func toExecutionResponse(exec *models.SagaExecution) ExecutionResponse {
	steps := make([]ExecutionStepResponse, 0, len(exec.Steps))
	for _, s := range exec.Steps {
		steps = append(steps, ExecutionStepResponse{
			Seq:         s.Seq,
			Name:        s.Name,
			Outcome:     s.Outcome,
			Compensated: s.Compensated,
			CreatedAt:   s.CreatedAt,
		})
	}
	return ExecutionResponse{
		ExecutionID:        exec.ID,
		SagaType:           exec.SagaType,
		Status:             string(exec.Status),
		CurrentStep:        exec.CurrentStep,
		ErrorKind:          exec.ErrorKind,
		CompensationFailed: exec.CompensationFailed,
		Steps:              steps,
		StartedAt:          exec.StartedAt,
		EndedAt:            exec.EndedAt,
	}
}

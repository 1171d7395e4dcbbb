package saga

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
)

// CreateReservationHandler вставляет бронь со строками, status=reserved.
// Сток на этом этапе не трогается: списание происходит только при покупке.
type CreateReservationHandler struct {
	reservations repository.ReservationRepo
}

func NewCreateReservationHandler(reservations repository.ReservationRepo) *CreateReservationHandler {
	return &CreateReservationHandler{reservations: reservations}
}

func (h *CreateReservationHandler) Step() Step { return StepCreateReservation }

func (h *CreateReservationHandler) Handle(ctx context.Context, execID uuid.UUID, in Document) Result {
	if in.UserID == "" {
		return failed(OutcomeValidationFailed, KindInvalidInput, "missing user_id")
	}
	if len(in.Lines) == 0 {
		return failed(OutcomeValidationFailed, KindInvalidInput, "no lines provided")
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 {
			return failed(OutcomeValidationFailed, KindInvalidInput, "quantity must be > 0")
		}
	}

	// Идемпотентность: бронь этой саги уже существует — эффект не дублируем.
	existing, err := h.reservations.GetByExecutionID(ctx, execID)
	if err != nil {
		return storeErr(err)
	}
	if existing != nil {
		id := existing.ID
		return ok(Document{ReservationID: &id})
	}

	items := make([]models.ReservedItem, 0, len(in.Lines))
	for _, l := range in.Lines {
		items = append(items, models.ReservedItem{
			ItemID:     l.ItemID,
			LocationID: l.LocationID,
			Quantity:   l.Quantity,
		})
	}
	res := &models.Reservation{
		UserID:      in.UserID,
		Status:      models.ReservationReserved,
		ExecutionID: &execID,
		Items:       items,
	}
	if err := h.reservations.Create(ctx, res); err != nil {
		return storeErr(err)
	}

	id := res.ID
	return ok(Document{ReservationID: &id})
}

// FinalizeReservationHandler переводит бронь в cancelled/paid, снимает её
// строки и отдаёт их дальше: при оплате из них собирается покупка.
type FinalizeReservationHandler struct {
	repos *repository.Repository
}

func NewFinalizeReservationHandler(repos *repository.Repository) *FinalizeReservationHandler {
	return &FinalizeReservationHandler{repos: repos}
}

func (h *FinalizeReservationHandler) Step() Step { return StepFinalizeReservation }

func (h *FinalizeReservationHandler) Handle(ctx context.Context, execID uuid.UUID, in Document) Result {
	// повторная доставка: финализация уже применена этой сагой
	if rec, err := h.repos.Sagas.CompletedStep(ctx, execID, string(StepFinalizeReservation)); err != nil {
		return storeErr(err)
	} else if rec != nil {
		return replayResult(rec)
	}

	if in.ReservationID == nil {
		return failed(OutcomeValidationFailed, KindInvalidInput, "missing reservation_id")
	}
	newStatus := models.ReservationStatus(in.NewStatus)
	if newStatus != models.ReservationCancelled && newStatus != models.ReservationPaid {
		return failed(OutcomeValidationFailed, KindInvalidInput, "new_status must be cancelled or paid")
	}

	res, err := h.repos.Reservations.GetByID(ctx, *in.ReservationID)
	if err != nil {
		return storeErr(err)
	}
	if res == nil {
		return failed(OutcomeError, KindNotFound, "reservation not found")
	}
	// финализировать можно только из reserved: повторный запрос по уже
	// оплаченной или отменённой брони ничего не мутирует, а компенсация
	// ReinstateReservation остаётся корректной (pre-image всегда reserved)
	if res.Status != models.ReservationReserved {
		return failed(OutcomeConflict, KindConflict,
			fmt.Sprintf("reservation is already %s", res.Status))
	}

	var out Document
	err = h.repos.WithTx(func(tx *repository.Repository) error {
		if _, err := tx.Reservations.UpdateStatus(ctx, res.ID, newStatus); err != nil {
			return err
		}
		deleted, err := tx.Reservations.DeleteItems(ctx, res.ID)
		if err != nil {
			return err
		}
		lines := make([]Line, 0, len(deleted))
		for _, it := range deleted {
			lines = append(lines, Line{ItemID: it.ItemID, LocationID: it.LocationID, Quantity: it.Quantity})
		}
		id := res.ID
		out = Document{
			ReservationID: &id,
			UserID:        res.UserID,
			Lines:         lines,
		}
		return appendStepRecord(ctx, tx.Sagas, execID, StepFinalizeReservation, out)
	})
	if err != nil {
		return storeErr(err)
	}
	return ok(out)
}

package saga

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
)

// CancelReservationCompensator удаляет строки брони, затем бронь.
// Отсутствующая бронь — уже компенсирована, no-op.
type CancelReservationCompensator struct {
	reservations repository.ReservationRepo
}

func NewCancelReservationCompensator(reservations repository.ReservationRepo) *CancelReservationCompensator {
	return &CancelReservationCompensator{reservations: reservations}
}

func (c *CancelReservationCompensator) Compensates() Step { return StepCreateReservation }

func (c *CancelReservationCompensator) Compensate(ctx context.Context, execID, recID uuid.UUID, forwardOutput Document) error {
	if forwardOutput.ReservationID == nil {
		return nil
	}
	return c.reservations.DeleteWithItems(ctx, *forwardOutput.ReservationID)
}

// CancelPurchaseCompensator удаляет строки покупки, затем покупку.
type CancelPurchaseCompensator struct {
	purchases repository.PurchaseRepo
}

func NewCancelPurchaseCompensator(purchases repository.PurchaseRepo) *CancelPurchaseCompensator {
	return &CancelPurchaseCompensator{purchases: purchases}
}

func (c *CancelPurchaseCompensator) Compensates() Step { return StepRecordPurchase }

func (c *CancelPurchaseCompensator) Compensate(ctx context.Context, execID, recID uuid.UUID, forwardOutput Document) error {
	if forwardOutput.PurchaseID == nil {
		return nil
	}
	return c.purchases.DeleteWithItems(ctx, *forwardOutput.PurchaseID)
}

// ReverseStockAdjustmentCompensator применяет обратную операцию к каждой
// записанной мутации стока: deduct↔add через обратную дельту, reset —
// восстановлением pre-image из истории шага. Обратная мутация сама
// необратима, поэтому сначала claim записи прямого шага, затем эффект,
// в одной транзакции: повторная доставка не применит откат дважды.
type ReverseStockAdjustmentCompensator struct {
	repos *repository.Repository
}

func NewReverseStockAdjustmentCompensator(repos *repository.Repository) *ReverseStockAdjustmentCompensator {
	return &ReverseStockAdjustmentCompensator{repos: repos}
}

func (c *ReverseStockAdjustmentCompensator) Compensates() Step { return StepAdjustStock }

func (c *ReverseStockAdjustmentCompensator) Compensate(ctx context.Context, execID, recID uuid.UUID, forwardOutput Document) error {
	return c.repos.WithTx(func(tx *repository.Repository) error {
		claimed, err := tx.Sagas.MarkCompensated(ctx, recID)
		if err != nil {
			return err
		}
		if !claimed {
			// уже откачено прошлой доставкой
			return nil
		}
		// в обратном порядке применения
		for i := len(forwardOutput.StockChanges) - 1; i >= 0; i-- {
			ch := forwardOutput.StockChanges[i]
			switch ch.Operation {
			case OpDeduct, OpAdd:
				_, applied, err := tx.Stock.Adjust(ctx, ch.ItemID, ch.LocationID, -ch.Delta)
				if err != nil {
					return err
				}
				if !applied {
					return fmt.Errorf("reverse adjustment not applied: item %d location %d delta %d",
						ch.ItemID, ch.LocationID, -ch.Delta)
				}
			case OpReset:
				entry, err := tx.Stock.Set(ctx, ch.ItemID, ch.LocationID, ch.PrevQuantity)
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("reverse reset: stock entry gone: item %d location %d", ch.ItemID, ch.LocationID)
				}
			default:
				return fmt.Errorf("cannot reverse unknown operation %q", ch.Operation)
			}
		}
		return nil
	})
}

// ReinstateReservationCompensator откатывает FinalizeReservation: бронь
// возвращается в reserved, снятые строки вставляются обратно. Без этого
// упавшая после финализации сага не вернула бы состояние к исходному.
type ReinstateReservationCompensator struct {
	repos *repository.Repository
}

func NewReinstateReservationCompensator(repos *repository.Repository) *ReinstateReservationCompensator {
	return &ReinstateReservationCompensator{repos: repos}
}

func (c *ReinstateReservationCompensator) Compensates() Step { return StepFinalizeReservation }

func (c *ReinstateReservationCompensator) Compensate(ctx context.Context, execID, recID uuid.UUID, forwardOutput Document) error {
	if forwardOutput.ReservationID == nil {
		return nil
	}
	resID := *forwardOutput.ReservationID
	return c.repos.WithTx(func(tx *repository.Repository) error {
		res, err := tx.Reservations.GetByID(ctx, resID)
		if err != nil {
			return err
		}
		if res == nil {
			// бронь уже удалена другой компенсацией — нечего восстанавливать
			return nil
		}
		if _, err := tx.Reservations.UpdateStatus(ctx, resID, models.ReservationReserved); err != nil {
			return err
		}
		if len(res.Items) > 0 {
			// строки уже на месте (повторная компенсация)
			return nil
		}
		items := make([]models.ReservedItem, 0, len(forwardOutput.Lines))
		for _, l := range forwardOutput.Lines {
			items = append(items, models.ReservedItem{
				ReservationID: resID,
				ItemID:        l.ItemID,
				LocationID:    l.LocationID,
				Quantity:      l.Quantity,
			})
		}
		return tx.Reservations.RestoreItems(ctx, items)
	})
}

package saga

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errStockNotFound = errors.New("stock entry not found")
	errStockConflict = errors.New("insufficient stock")
)

// AdjustStockHandler выполняет read-modify-write по строкам стока.
// Все строки саги мутируются в одной транзакции: конфликт на любой
// строке откатывает шаг целиком, частичного списания не бывает.
type AdjustStockHandler struct {
	repos    *repository.Repository
	notifier Notifier
	log      *zap.Logger
}

func NewAdjustStockHandler(repos *repository.Repository, notifier Notifier, log *zap.Logger) *AdjustStockHandler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AdjustStockHandler{repos: repos, notifier: notifier, log: log}
}

func (h *AdjustStockHandler) Step() Step { return StepAdjustStock }

func (h *AdjustStockHandler) Handle(ctx context.Context, execID uuid.UUID, in Document) Result {
	// списание необратимо без истории, поэтому запись шага коммитится
	// в одной транзакции с мутацией — повторная доставка после сбоя
	// находит запись и не применяет эффект заново
	if rec, err := h.repos.Sagas.CompletedStep(ctx, execID, string(StepAdjustStock)); err != nil {
		return storeErr(err)
	} else if rec != nil {
		return replayResult(rec)
	}

	op := in.Operation
	if op == "" {
		op = OpDeduct
	}
	if op != OpDeduct && op != OpAdd && op != OpReset {
		return failed(OutcomeValidationFailed, KindInvalidInput, fmt.Sprintf("unknown stock operation %q", op))
	}
	if len(in.Lines) == 0 {
		return failed(OutcomeValidationFailed, KindInvalidInput, "no lines provided")
	}

	var changes []StockChange
	txErr := h.repos.WithTx(func(tx *repository.Repository) error {
		for _, l := range in.Lines {
			change, err := applyLine(ctx, tx.Stock, op, l, in.ResetQuantity)
			if err != nil {
				return err
			}
			changes = append(changes, *change)
		}
		return appendStepRecord(ctx, tx.Sagas, execID, StepAdjustStock, Document{StockChanges: changes})
	})
	switch {
	case errors.Is(txErr, errStockNotFound):
		return failed(OutcomeError, KindNotFound, txErr.Error())
	case errors.Is(txErr, errStockConflict):
		return failed(OutcomeConflict, KindConflict, txErr.Error())
	case txErr != nil:
		return storeErr(txErr)
	}

	// Алерт после успешного списания — вне транзакции и вне корректности саги.
	if op == OpDeduct {
		for _, c := range changes {
			if c.Quantity < LowStockThreshold {
				if err := h.notifier.NotifyLowStock(ctx, c.ItemID, c.LocationID, c.Quantity); err != nil {
					h.log.Error("low stock notification failed",
						zap.Int64("item_id", c.ItemID),
						zap.Int64("location_id", c.LocationID),
						zap.Error(err),
					)
				}
			}
		}
	}

	return ok(Document{StockChanges: changes})
}

func applyLine(ctx context.Context, stock repository.StockRepo, op StockOperation, l Line, resetQty int64) (*StockChange, error) {
	switch op {
	case OpDeduct, OpAdd:
		delta := l.Quantity
		if op == OpDeduct {
			delta = -delta
		}
		entry, applied, err := stock.Adjust(ctx, l.ItemID, l.LocationID, delta)
		if err != nil {
			return nil, err
		}
		if !applied {
			existing, err := stock.Get(ctx, l.ItemID, l.LocationID)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, fmt.Errorf("%w: item %d location %d", errStockNotFound, l.ItemID, l.LocationID)
			}
			return nil, fmt.Errorf("%w: item %d location %d has %d, requested %d",
				errStockConflict, l.ItemID, l.LocationID, existing.Quantity, l.Quantity)
		}
		return &StockChange{
			ItemID:       l.ItemID,
			LocationID:   l.LocationID,
			Operation:    op,
			Delta:        delta,
			PrevQuantity: entry.Quantity - delta,
			Quantity:     entry.Quantity,
		}, nil

	case OpReset:
		// Pre-image читается под блокировкой и уходит в историю шага:
		// без него ReverseStockAdjustment не восстановит точное значение.
		prev, err := stock.GetForUpdate(ctx, l.ItemID, l.LocationID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, fmt.Errorf("%w: item %d location %d", errStockNotFound, l.ItemID, l.LocationID)
		}
		if resetQty < 0 {
			return nil, fmt.Errorf("%w: reset to negative quantity", errStockConflict)
		}
		entry, err := stock.Set(ctx, l.ItemID, l.LocationID, resetQty)
		if err != nil {
			return nil, err
		}
		return &StockChange{
			ItemID:       l.ItemID,
			LocationID:   l.LocationID,
			Operation:    op,
			PrevQuantity: prev.Quantity,
			Quantity:     entry.Quantity,
		}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

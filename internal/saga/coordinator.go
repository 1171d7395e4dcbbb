package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Coordinator — машина состояний саги. Между вызовами не держит ничего:
// всё состояние лежит в SagaExecution и доменных таблицах, поэтому
// внешний планировщик может дёргать Advance с ретраями безопасно.
type Coordinator struct {
	sagas        repository.SagaRepo
	executor     StepExecutor
	compensators map[Step]Compensator
	log          *zap.Logger
}

func NewCoordinator(sagas repository.SagaRepo, executor StepExecutor, log *zap.Logger, compensators ...Compensator) *Coordinator {
	m := make(map[Step]Compensator, len(compensators))
	for _, c := range compensators {
		m[c.Compensates()] = c
	}
	return &Coordinator{
		sagas:        sagas,
		executor:     executor,
		compensators: m,
		log:          log,
	}
}

// Start создаёт SagaExecution и возвращает его ID. Платёж не двигается:
// шаги исполняются последующими вызовами Advance/Run.
func (c *Coordinator) Start(ctx context.Context, sagaType SagaType, input Document) (uuid.UUID, error) {
	first, found := firstStep[sagaType]
	if !found {
		return uuid.Nil, ErrUnknownSagaType
	}
	if err := validateStart(sagaType, input); err != nil {
		return uuid.Nil, err
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return uuid.Nil, err
	}
	exec := &models.SagaExecution{
		SagaType:    string(sagaType),
		CurrentStep: string(first),
		Status:      models.SagaRunning,
		Input:       raw,
	}
	if err := c.sagas.CreateExecution(ctx, exec); err != nil {
		return uuid.Nil, err
	}

	c.log.Info("saga started",
		zap.String("execution_id", exec.ID.String()),
		zap.String("saga_type", string(sagaType)),
		zap.String("first_step", string(first)),
	)
	return exec.ID, nil
}

// Run гонит сагу до терминального состояния. Возвращает финальную запись.
func (c *Coordinator) Run(ctx context.Context, execID uuid.UUID) (*models.SagaExecution, error) {
	for {
		done, err := c.Advance(ctx, execID)
		if err != nil {
			return nil, err
		}
		if done {
			return c.sagas.GetExecution(ctx, execID)
		}
	}
}

// Advance исполняет один шаг (или один цикл компенсации) и записывает
// результат в историю до диспатча следующего шага. Повторный вызов
// после сбоя продолжает с последнего записанного состояния.
func (c *Coordinator) Advance(ctx context.Context, execID uuid.UUID) (bool, error) {
	exec, err := c.sagas.GetExecution(ctx, execID)
	if err != nil {
		return false, err
	}
	if exec == nil {
		return false, ErrExecutionNotFound
	}

	switch exec.Status {
	case models.SagaCompleted, models.SagaFailed:
		return true, nil
	case models.SagaCompensating:
		return true, c.compensate(ctx, exec)
	}

	doc, err := c.currentDocument(exec)
	if err != nil {
		return false, err
	}

	step := Step(exec.CurrentStep)
	res := c.executor.Invoke(ctx, execID, step, doc)

	// Валидатор жёстко не падает: исход из его выхода выводит координатор.
	if step == StepValidateReferences && res.Outcome == OutcomeOK &&
		(len(res.Output.InvalidItems) > 0 || len(res.Output.InvalidLocations) > 0) {
		res.Outcome = OutcomeValidationFailed
		res.Kind = KindNotFound
		res.Detail = fmt.Sprintf("unresolved references: items %v locations %v",
			res.Output.InvalidItems, res.Output.InvalidLocations)
	}

	// Хендлеры с необратимым эффектом пишут свою OK-запись сами, в одной
	// транзакции с эффектом; второй раз её не вставляем.
	recorded, err := c.sagas.CompletedStep(ctx, execID, string(step))
	if err != nil {
		return false, err
	}
	if recorded == nil {
		rawOut, err := json.Marshal(res.Output)
		if err != nil {
			return false, err
		}
		if err := c.sagas.AppendStep(ctx, &models.SagaStepRecord{
			ExecutionID: execID,
			Name:        string(step),
			Outcome:     string(res.Outcome),
			Output:      rawOut,
		}); err != nil {
			return false, err
		}
	}

	c.log.Info("saga step finished",
		zap.String("execution_id", execID.String()),
		zap.String("step", string(step)),
		zap.String("outcome", string(res.Outcome)),
	)

	tr, found := lookupTransition(SagaType(exec.SagaType), step, res.Outcome)
	if !found {
		return false, fmt.Errorf("%w: no transition for (%s, %s, %s)", ErrUnknownStep, exec.SagaType, step, res.Outcome)
	}

	switch {
	case tr.Compensate:
		kind := res.Kind
		if kind == "" {
			kind = KindInternal
		}
		if err := c.sagas.UpdateStatus(ctx, execID, models.SagaCompensating, kind, false); err != nil {
			return false, err
		}
		exec.Status = models.SagaCompensating
		return true, c.compensate(ctx, exec)

	case tr.Complete:
		if err := c.sagas.UpdateStatus(ctx, execID, models.SagaCompleted, "", false); err != nil {
			return false, err
		}
		return true, nil

	default:
		if err := c.sagas.UpdateCurrentStep(ctx, execID, string(tr.Next)); err != nil {
			return false, err
		}
		return false, nil
	}
}

// compensate откатывает завершённые прямые шаги строго в обратном
// порядке. Падение компенсации фатально: сага помечается FAILED с
// флагом CompensationFailed и ждёт оператора, автоматических ретраев нет.
func (c *Coordinator) compensate(ctx context.Context, exec *models.SagaExecution) error {
	recs, err := c.sagas.ListCompletedForward(ctx, exec.ID)
	if err != nil {
		return err
	}

	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		comp, found := c.compensators[Step(rec.Name)]
		if !found {
			// шаг без эффекта (например, валидатор) — компенсировать нечего
			if _, err := c.sagas.MarkCompensated(ctx, rec.ID); err != nil {
				return err
			}
			continue
		}

		var out Document
		if err := json.Unmarshal(rec.Output, &out); err != nil {
			return c.failCompensation(ctx, exec, rec.Name, err)
		}
		if err := comp.Compensate(ctx, exec.ID, rec.ID, out); err != nil {
			if recErr := c.recordCompensation(ctx, exec.ID, rec.Name, OutcomeCompensationFailed, err.Error()); recErr != nil {
				c.log.Error("failed to record compensation outcome",
					zap.String("execution_id", exec.ID.String()),
					zap.String("step", rec.Name),
					zap.Error(recErr),
				)
			}
			return c.failCompensation(ctx, exec, rec.Name, err)
		}
		// компенсатор мог claim-нуть запись сам; здесь добиваем флаг
		if _, err := c.sagas.MarkCompensated(ctx, rec.ID); err != nil {
			return err
		}
		if err := c.recordCompensation(ctx, exec.ID, rec.Name, OutcomeCompensated, ""); err != nil {
			return err
		}

		c.log.Info("step compensated",
			zap.String("execution_id", exec.ID.String()),
			zap.String("step", rec.Name),
		)
	}

	return c.sagas.UpdateStatus(ctx, exec.ID, models.SagaFailed, "", false)
}

// recordCompensation фиксирует исход компенсации в истории шагов.
// Эти записи в прямой обход не попадают: CompletedStep и
// ListCompletedForward отбирают только исход OK.
func (c *Coordinator) recordCompensation(ctx context.Context, execID uuid.UUID, step string, outcome Outcome, detail string) error {
	rec := &models.SagaStepRecord{
		ExecutionID: execID,
		Name:        step,
		Outcome:     string(outcome),
	}
	if detail != "" {
		raw, err := json.Marshal(map[string]string{"detail": detail})
		if err != nil {
			return err
		}
		rec.Output = raw
	}
	return c.sagas.AppendStep(ctx, rec)
}

func (c *Coordinator) failCompensation(ctx context.Context, exec *models.SagaExecution, step string, cause error) error {
	c.log.Error("compensation failed, manual reconciliation required",
		zap.String("execution_id", exec.ID.String()),
		zap.String("step", step),
		zap.Error(cause),
	)
	return c.sagas.UpdateStatus(ctx, exec.ID, models.SagaFailed, KindCompensationFailed, true)
}

// currentDocument восстанавливает документ текущего шага: исходный вход
// плюс выходы всех OK-шагов в порядке выполнения.
func (c *Coordinator) currentDocument(exec *models.SagaExecution) (Document, error) {
	var doc Document
	if len(exec.Input) > 0 {
		if err := json.Unmarshal(exec.Input, &doc); err != nil {
			return Document{}, err
		}
	}
	for _, rec := range exec.Steps {
		if rec.Outcome != string(OutcomeOK) || len(rec.Output) == 0 {
			continue
		}
		var out Document
		if err := json.Unmarshal(rec.Output, &out); err != nil {
			return Document{}, err
		}
		doc = doc.Apply(out)
	}
	return doc, nil
}

func validateStart(sagaType SagaType, input Document) error {
	switch sagaType {
	case SagaReservation:
		if input.UserID == "" {
			return fmt.Errorf("%w: missing user_id", ErrInvalidInput)
		}
		if len(input.Lines) == 0 {
			return fmt.Errorf("%w: empty item list", ErrInvalidInput)
		}
	case SagaPurchase:
		if input.UserID == "" {
			return fmt.Errorf("%w: missing user_id", ErrInvalidInput)
		}
		if len(input.Lines) == 0 {
			return fmt.Errorf("%w: empty item list", ErrInvalidInput)
		}
		if models.PurchaseStatus(input.NewStatus) == models.PurchasePaid && input.PaymentToken == "" {
			return fmt.Errorf("%w: missing payment_token", ErrInvalidInput)
		}
	case SagaReservationCancel:
		if input.ReservationID == nil {
			return fmt.Errorf("%w: missing reservation_id", ErrInvalidInput)
		}
	case SagaReservationPayment:
		if input.ReservationID == nil {
			return fmt.Errorf("%w: missing reservation_id", ErrInvalidInput)
		}
		if input.PaymentToken == "" {
			return fmt.Errorf("%w: missing payment_token", ErrInvalidInput)
		}
	case SagaStockAdjustment:
		if len(input.Lines) == 0 {
			return fmt.Errorf("%w: empty item list", ErrInvalidInput)
		}
		switch input.Operation {
		case OpDeduct, OpAdd:
		case OpReset:
			if input.ResetQuantity < 0 {
				return fmt.Errorf("%w: reset quantity must be >= 0", ErrInvalidInput)
			}
			// количество в строках при reset не участвует
			return nil
		default:
			return fmt.Errorf("%w: unknown stock operation %q", ErrInvalidInput, input.Operation)
		}
	default:
		return ErrUnknownSagaType
	}
	for _, l := range input.Lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be > 0", ErrInvalidInput)
		}
	}
	return nil
}

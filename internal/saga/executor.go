package saga

import (
	"context"
	"encoding/json"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler — контракт прямого шага: чистая функция от (состояние, вход)
// к (мутация, выход, исход). Повторный вызов с тем же executionID
// не должен применить эффект дважды.
type Handler interface {
	Step() Step
	Handle(ctx context.Context, execID uuid.UUID, in Document) Result
}

// Compensator — обратная операция прямого шага. recID — запись прямого
// шага в истории: компенсатор с собственным эффектом обязан claim'ить
// её в одной транзакции с эффектом. Отсутствующая цель компенсации
// трактуется как уже компенсированная (no-op).
type Compensator interface {
	Compensates() Step
	Compensate(ctx context.Context, execID, recID uuid.UUID, forwardOutput Document) error
}

// StepExecutor — точка подключения внешнего планировщика. Координатору
// всё равно, workflow-движок это, очередь или прямой вызов.
type StepExecutor interface {
	Invoke(ctx context.Context, execID uuid.UUID, step Step, input Document) Result
}

// replayResult восстанавливает результат уже завершённого шага из его
// записи в истории.
func replayResult(rec *models.SagaStepRecord) Result {
	var out Document
	if err := json.Unmarshal(rec.Output, &out); err != nil {
		return failed(OutcomeError, KindInternal, "corrupt step history: "+err.Error())
	}
	return ok(out)
}

// appendStepRecord дописывает OK-запись шага. Вызванный на tx-репозитории
// внутри транзакции шага, он делает эффект и ключ идемпотентности
// атомарными: либо коммитятся оба, либо ни одного.
func appendStepRecord(ctx context.Context, sagas repository.SagaRepo, execID uuid.UUID, step Step, out Document) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return sagas.AppendStep(ctx, &models.SagaStepRecord{
		ExecutionID: execID,
		Name:        string(step),
		Outcome:     string(OutcomeOK),
		Output:      raw,
	})
}

// InProcessExecutor вызывает хендлеры напрямую. Ключ идемпотентности
// executionID+stepName: завершённый шаг при повторе возвращает
// записанный выход, не применяя эффект заново.
type InProcessExecutor struct {
	handlers map[Step]Handler
	sagas    repository.SagaRepo
	log      *zap.Logger
}

func NewInProcessExecutor(sagas repository.SagaRepo, log *zap.Logger, handlers ...Handler) *InProcessExecutor {
	m := make(map[Step]Handler, len(handlers))
	for _, h := range handlers {
		m[h.Step()] = h
	}
	return &InProcessExecutor{handlers: m, sagas: sagas, log: log}
}

func (e *InProcessExecutor) Invoke(ctx context.Context, execID uuid.UUID, step Step, input Document) Result {
	if rec, err := e.sagas.CompletedStep(ctx, execID, string(step)); err != nil {
		return storeErr(err)
	} else if rec != nil {
		e.log.Info("step already completed, returning recorded output",
			zap.String("execution_id", execID.String()),
			zap.String("step", string(step)),
		)
		return replayResult(rec)
	}

	h, found := e.handlers[step]
	if !found {
		return failed(OutcomeError, KindInternal, "no handler registered for step "+string(step))
	}
	return h.Handle(ctx, execID, input)
}

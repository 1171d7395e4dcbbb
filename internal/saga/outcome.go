package saga

import "errors"

// Outcome — типизированный результат шага, по которому координатор
// выбирает следующий переход.
type Outcome string

const (
	OutcomeOK               Outcome = "OK"
	OutcomeValidationFailed Outcome = "VALIDATION_FAILED"
	OutcomeConflict         Outcome = "CONFLICT"
	OutcomeError            Outcome = "ERROR"

	// Исходы компенсационных записей в истории шагов.
	OutcomeCompensated        Outcome = "COMPENSATED"
	OutcomeCompensationFailed Outcome = "COMPENSATION_FAILED"
)

// Классификация ошибок. Kind хранится на SagaExecution и определяет
// статус-код для исходного запроса.
const (
	KindInvalidInput       = "INVALID_INPUT"
	KindNotFound           = "NOT_FOUND"
	KindConflict           = "CONFLICT"
	KindTransientStore     = "TRANSIENT_STORE"
	KindCompensationFailed = "COMPENSATION_FAILED"
	KindInternal           = "INTERNAL"
)

var (
	ErrInvalidInput      = errors.New("invalid saga input")
	ErrExecutionNotFound = errors.New("saga execution not found")
	ErrUnknownSagaType   = errors.New("unknown saga type")
	ErrUnknownStep       = errors.New("unknown saga step")
)

// Result — результат вызова шага: Ok(output) либо Err(kind, detail).
type Result struct {
	Outcome Outcome  `json:"outcome"`
	Kind    string   `json:"kind,omitempty"`
	Detail  string   `json:"detail,omitempty"`
	Output  Document `json:"output"`
}

func ok(out Document) Result {
	return Result{Outcome: OutcomeOK, Output: out}
}

func failed(outcome Outcome, kind, detail string) Result {
	return Result{Outcome: outcome, Kind: kind, Detail: detail}
}

func storeErr(err error) Result {
	return Result{Outcome: OutcomeError, Kind: KindTransientStore, Detail: err.Error()}
}

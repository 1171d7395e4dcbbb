package saga

type SagaType string

const (
	SagaReservation        SagaType = "reservation"
	SagaPurchase           SagaType = "purchase"
	SagaReservationCancel  SagaType = "reservation_cancel"
	SagaReservationPayment SagaType = "reservation_payment"
	SagaStockAdjustment    SagaType = "stock_adjustment"
)

type Step string

const (
	StepCreateReservation   Step = "CreateReservation"
	StepValidateReferences  Step = "ValidateReferences"
	StepAdjustStock         Step = "AdjustStock"
	StepRecordPurchase      Step = "RecordPurchase"
	StepFinalizeReservation Step = "FinalizeReservation"
)

type transitionKey struct {
	Saga    SagaType
	Step    Step
	Outcome Outcome
}

type transition struct {
	Next     Step
	Complete bool
	// Compensate выставляется lookupTransition для любых не-OK исходов.
	Compensate bool
}

// Статическая таблица переходов. Ветвление cancelled/paid выражено
// отдельными типами саг, чтобы ключ оставался (saga, step, outcome).
var transitions = map[transitionKey]transition{
	// Бронирование: вставить бронь, затем проверить ссылки каталога.
	{SagaReservation, StepCreateReservation, OutcomeOK}:  {Next: StepValidateReferences},
	{SagaReservation, StepValidateReferences, OutcomeOK}: {Complete: true},

	// Покупка: проверить ссылки, записать покупку, списать сток.
	// Порядок purchase→stock повторяет исходный конвейер: строка покупки
	// существует к моменту списания и компенсируется при конфликте стока.
	{SagaPurchase, StepValidateReferences, OutcomeOK}: {Next: StepRecordPurchase},
	{SagaPurchase, StepRecordPurchase, OutcomeOK}:     {Next: StepAdjustStock},
	{SagaPurchase, StepAdjustStock, OutcomeOK}:        {Complete: true},

	// Отмена брони: снять строки, статус cancelled. Сток не трогался
	// на этапе брони, поэтому и при отмене не трогается.
	{SagaReservationCancel, StepFinalizeReservation, OutcomeOK}: {Complete: true},

	// Оплата брони: финализация → покупка → списание, одной сагой.
	{SagaReservationPayment, StepFinalizeReservation, OutcomeOK}: {Next: StepRecordPurchase},
	{SagaReservationPayment, StepRecordPurchase, OutcomeOK}:      {Next: StepAdjustStock},
	{SagaReservationPayment, StepAdjustStock, OutcomeOK}:         {Complete: true},

	// Ручная корректировка стока: проверить ссылки, применить операцию.
	{SagaStockAdjustment, StepValidateReferences, OutcomeOK}: {Next: StepAdjustStock},
	{SagaStockAdjustment, StepAdjustStock, OutcomeOK}:        {Complete: true},
}

var firstStep = map[SagaType]Step{
	SagaReservation:        StepCreateReservation,
	SagaPurchase:           StepValidateReferences,
	SagaReservationCancel:  StepFinalizeReservation,
	SagaReservationPayment: StepFinalizeReservation,
	SagaStockAdjustment:    StepValidateReferences,
}

// lookupTransition возвращает переход для (saga, step, outcome).
// Любой не-OK исход уводит в компенсацию.
func lookupTransition(saga SagaType, step Step, outcome Outcome) (transition, bool) {
	if outcome != OutcomeOK {
		return transition{Compensate: true}, true
	}
	tr, found := transitions[transitionKey{Saga: saga, Step: step, Outcome: outcome}]
	return tr, found
}

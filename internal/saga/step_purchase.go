package saga

import (
	"context"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
)

// RecordPurchaseHandler вставляет покупку со строками. Платёжный токен
// непрозрачен: сюда он только протаскивается, обработки платежа нет.
type RecordPurchaseHandler struct {
	purchases repository.PurchaseRepo
}

func NewRecordPurchaseHandler(purchases repository.PurchaseRepo) *RecordPurchaseHandler {
	return &RecordPurchaseHandler{purchases: purchases}
}

func (h *RecordPurchaseHandler) Step() Step { return StepRecordPurchase }

func (h *RecordPurchaseHandler) Handle(ctx context.Context, execID uuid.UUID, in Document) Result {
	if in.UserID == "" {
		return failed(OutcomeValidationFailed, KindInvalidInput, "missing user_id")
	}
	if len(in.Lines) == 0 {
		return failed(OutcomeValidationFailed, KindInvalidInput, "no lines provided")
	}
	status := models.PurchaseStatus(in.NewStatus)
	if status == "" {
		status = models.PurchasePaid
	}
	if status == models.PurchasePaid && in.PaymentToken == "" {
		return failed(OutcomeValidationFailed, KindInvalidInput, "missing payment_token for paid purchase")
	}

	existing, err := h.purchases.GetByExecutionID(ctx, execID)
	if err != nil {
		return storeErr(err)
	}
	if existing != nil {
		id := existing.ID
		return ok(Document{PurchaseID: &id})
	}

	items := make([]models.PurchasedItem, 0, len(in.Lines))
	for _, l := range in.Lines {
		items = append(items, models.PurchasedItem{
			ItemID:     l.ItemID,
			LocationID: l.LocationID,
			Quantity:   l.Quantity,
		})
	}
	var token *string
	if in.PaymentToken != "" {
		t := in.PaymentToken
		token = &t
	}
	p := &models.Purchase{
		UserID:        in.UserID,
		PaymentToken:  token,
		Status:        status,
		ReservationID: in.ReservationID,
		ExecutionID:   &execID,
		Items:         items,
	}
	if err := h.purchases.Create(ctx, p); err != nil {
		return storeErr(err)
	}

	id := p.ID
	return ok(Document{PurchaseID: &id})
}

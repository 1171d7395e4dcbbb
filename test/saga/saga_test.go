package saga_test

import (
	"context"
	"sync"
	"testing"

	"fulfillment-service/internal/migrate"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/saga"
	"fulfillment-service/pkg/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateFulfillmentDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newCoordinator(t *testing.T, repos *repository.Repository) *saga.Coordinator {
	t.Helper()
	log := zap.NewNop()
	executor := saga.NewInProcessExecutor(repos.Sagas, log,
		saga.NewCreateReservationHandler(repos.Reservations),
		saga.NewValidateReferencesHandler(repos.Catalog),
		saga.NewAdjustStockHandler(repos, saga.NopNotifier{}, log),
		saga.NewRecordPurchaseHandler(repos.Purchases),
		saga.NewFinalizeReservationHandler(repos),
	)
	return saga.NewCoordinator(repos.Sagas, executor, log,
		saga.NewCancelReservationCompensator(repos.Reservations),
		saga.NewCancelPurchaseCompensator(repos.Purchases),
		saga.NewReverseStockAdjustmentCompensator(repos),
		saga.NewReinstateReservationCompensator(repos),
	)
}

// seedCatalog создаёт товар и локацию с заданным остатком, возвращает их ID.
func seedCatalog(t *testing.T, repos *repository.Repository, quantity int64) (int64, int64) {
	t.Helper()
	ctx := context.Background()

	item := &models.Item{Name: "Widget", Description: "test widget", PriceCents: 1500}
	if err := repos.Catalog.CreateItem(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	loc := &models.Location{
		Address: "Main St 1", ZipCode: "1000", City: "Testville",
		Street: "Main St", State: "TS", Number: 1, Type: "warehouse",
	}
	if err := repos.Catalog.CreateLocation(ctx, loc); err != nil {
		t.Fatalf("create location: %v", err)
	}
	if err := repos.Stock.Create(ctx, &models.StockEntry{
		ItemID: item.ID, LocationID: loc.ID, Quantity: quantity,
	}); err != nil {
		t.Fatalf("create stock: %v", err)
	}
	return item.ID, loc.ID
}

func runSaga(t *testing.T, c *saga.Coordinator, sagaType saga.SagaType, doc saga.Document) *models.SagaExecution {
	t.Helper()
	ctx := context.Background()
	execID, err := c.Start(ctx, sagaType, doc)
	if err != nil {
		t.Fatalf("start %s: %v", sagaType, err)
	}
	exec, err := c.Run(ctx, execID)
	if err != nil {
		t.Fatalf("run %s: %v", sagaType, err)
	}
	return exec
}

func stockQuantity(t *testing.T, repos *repository.Repository, itemID, locID int64) int64 {
	t.Helper()
	entry, err := repos.Stock.Get(context.Background(), itemID, locID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if entry == nil {
		t.Fatalf("stock entry missing for item %d location %d", itemID, locID)
	}
	return entry.Quantity
}

func TestPurchaseSaga_HappyPath(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 20)

	token := "tok-123"
	exec := runSaga(t, c, saga.SagaPurchase, saga.Document{
		UserID:       "user-1",
		PaymentToken: token,
		NewStatus:    string(models.PurchasePaid),
		Operation:    saga.OpDeduct,
		Lines:        []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 3}},
	})

	if exec.Status != models.SagaCompleted {
		t.Fatalf("status = %s, want COMPLETED (kind=%s)", exec.Status, exec.ErrorKind)
	}
	if got := stockQuantity(t, repos, itemID, locID); got != 17 {
		t.Fatalf("stock = %d, want 17", got)
	}

	p, err := repos.Purchases.GetByExecutionID(ctx, exec.ID)
	if err != nil || p == nil {
		t.Fatalf("purchase not recorded: %v", err)
	}
	if p.Status != models.PurchasePaid || p.PaymentToken == nil || *p.PaymentToken != token {
		t.Fatalf("purchase mismatch: %+v", p)
	}
	if len(p.Items) != 1 || p.Items[0].Quantity != 3 {
		t.Fatalf("purchase items mismatch: %+v", p.Items)
	}

	// история: три OK-шага в порядке выполнения
	wantSteps := []saga.Step{saga.StepValidateReferences, saga.StepRecordPurchase, saga.StepAdjustStock}
	if len(exec.Steps) != len(wantSteps) {
		t.Fatalf("steps = %d, want %d", len(exec.Steps), len(wantSteps))
	}
	for i, rec := range exec.Steps {
		if rec.Name != string(wantSteps[i]) || rec.Outcome != string(saga.OutcomeOK) {
			t.Fatalf("step %d = (%s, %s), want (%s, OK)", i, rec.Name, rec.Outcome, wantSteps[i])
		}
	}
}

func TestReservationSaga_DoesNotTouchStock(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	exec := runSaga(t, c, saga.SagaReservation, saga.Document{
		UserID: "user-1",
		Lines:  []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 4}},
	})
	if exec.Status != models.SagaCompleted {
		t.Fatalf("status = %s, want COMPLETED", exec.Status)
	}
	if got := stockQuantity(t, repos, itemID, locID); got != 10 {
		t.Fatalf("reservation must not move stock: got %d", got)
	}

	res, err := repos.Reservations.GetByExecutionID(ctx, exec.ID)
	if err != nil || res == nil {
		t.Fatalf("reservation not created: %v", err)
	}
	if res.Status != models.ReservationReserved || len(res.Items) != 1 {
		t.Fatalf("reservation mismatch: %+v", res)
	}
}

func TestCancelSaga_RemovesLinesKeepsStock(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	created := runSaga(t, c, saga.SagaReservation, saga.Document{
		UserID: "user-1",
		Lines:  []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 4}},
	})
	res, _ := repos.Reservations.GetByExecutionID(ctx, created.ID)

	exec := runSaga(t, c, saga.SagaReservationCancel, saga.Document{
		ReservationID: &res.ID,
		NewStatus:     string(models.ReservationCancelled),
	})
	if exec.Status != models.SagaCompleted {
		t.Fatalf("status = %s, want COMPLETED", exec.Status)
	}

	got, err := repos.Reservations.GetByID(ctx, res.ID)
	if err != nil || got == nil {
		t.Fatalf("reservation gone: %v", err)
	}
	if got.Status != models.ReservationCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if len(got.Items) != 0 {
		t.Fatalf("reserved lines must be removed, got %d", len(got.Items))
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 10 {
		t.Fatalf("cancel must not move stock: got %d", q)
	}
}

func TestPaymentSaga_PurchasesReservedLines(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	created := runSaga(t, c, saga.SagaReservation, saga.Document{
		UserID: "user-1",
		Lines:  []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 4}},
	})
	res, _ := repos.Reservations.GetByExecutionID(ctx, created.ID)

	exec := runSaga(t, c, saga.SagaReservationPayment, saga.Document{
		ReservationID: &res.ID,
		NewStatus:     string(models.ReservationPaid),
		PaymentToken:  "tok-456",
		Operation:     saga.OpDeduct,
	})
	if exec.Status != models.SagaCompleted {
		t.Fatalf("status = %s, want COMPLETED (kind=%s)", exec.Status, exec.ErrorKind)
	}

	got, _ := repos.Reservations.GetByID(ctx, res.ID)
	if got.Status != models.ReservationPaid || len(got.Items) != 0 {
		t.Fatalf("reservation after payment: %+v", got)
	}

	p, err := repos.Purchases.GetByExecutionID(ctx, exec.ID)
	if err != nil || p == nil {
		t.Fatalf("purchase not recorded: %v", err)
	}
	if p.ReservationID == nil || *p.ReservationID != res.ID {
		t.Fatalf("purchase not linked to reservation: %+v", p)
	}
	if len(p.Items) != 1 || p.Items[0].Quantity != 4 {
		t.Fatalf("purchase must carry reserved lines: %+v", p.Items)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 6 {
		t.Fatalf("stock = %d, want 6", q)
	}
}

func TestPurchaseSaga_StockConflictCompensates(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 2)

	exec := runSaga(t, c, saga.SagaPurchase, saga.Document{
		UserID:       "user-1",
		PaymentToken: "tok-1",
		NewStatus:    string(models.PurchasePaid),
		Operation:    saga.OpDeduct,
		Lines:        []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 5}},
	})

	if exec.Status != models.SagaFailed {
		t.Fatalf("status = %s, want FAILED", exec.Status)
	}
	if exec.ErrorKind != saga.KindConflict {
		t.Fatalf("error kind = %s, want CONFLICT", exec.ErrorKind)
	}
	if exec.CompensationFailed {
		t.Fatal("compensation must succeed")
	}

	// покупка была записана до списания и должна быть снята компенсацией
	p, err := repos.Purchases.GetByExecutionID(ctx, exec.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if p != nil {
		t.Fatalf("purchase must be compensated away: %+v", p)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 2 {
		t.Fatalf("stock must be untouched: got %d", q)
	}

	// исход каждого отката остаётся в истории шагов
	var compensated int
	for _, rec := range exec.Steps {
		if rec.Outcome == string(saga.OutcomeCompensated) {
			if rec.Name != string(saga.StepRecordPurchase) {
				t.Fatalf("unexpected compensated step %s", rec.Name)
			}
			compensated++
		}
	}
	if compensated != 1 {
		t.Fatalf("compensation records = %d, want 1", compensated)
	}
}

func TestPurchaseSaga_UnknownReferences(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	exec := runSaga(t, c, saga.SagaPurchase, saga.Document{
		UserID:       "user-1",
		PaymentToken: "tok-1",
		NewStatus:    string(models.PurchasePaid),
		Operation:    saga.OpDeduct,
		Lines: []saga.Line{
			{ItemID: itemID, LocationID: locID, Quantity: 1},
			{ItemID: 999, LocationID: locID, Quantity: 1},
		},
	})

	if exec.Status != models.SagaFailed {
		t.Fatalf("status = %s, want FAILED", exec.Status)
	}
	if exec.ErrorKind != saga.KindNotFound {
		t.Fatalf("error kind = %s, want NOT_FOUND", exec.ErrorKind)
	}

	p, _ := repos.Purchases.GetByExecutionID(ctx, exec.ID)
	if p != nil {
		t.Fatal("no purchase may exist after failed validation")
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 10 {
		t.Fatalf("stock must be untouched: got %d", q)
	}
}

func TestPaymentSaga_ConflictReinstatesReservation(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 3)

	created := runSaga(t, c, saga.SagaReservation, saga.Document{
		UserID: "user-1",
		Lines:  []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 5}},
	})
	res, _ := repos.Reservations.GetByExecutionID(ctx, created.ID)

	exec := runSaga(t, c, saga.SagaReservationPayment, saga.Document{
		ReservationID: &res.ID,
		NewStatus:     string(models.ReservationPaid),
		PaymentToken:  "tok-1",
		Operation:     saga.OpDeduct,
	})
	if exec.Status != models.SagaFailed || exec.ErrorKind != saga.KindConflict {
		t.Fatalf("exec = (%s, %s), want (FAILED, CONFLICT)", exec.Status, exec.ErrorKind)
	}

	// финализация откатана: бронь снова reserved, строки на месте
	got, _ := repos.Reservations.GetByID(ctx, res.ID)
	if got == nil {
		t.Fatal("reservation must survive compensation")
	}
	if got.Status != models.ReservationReserved {
		t.Fatalf("status = %s, want reserved", got.Status)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 5 {
		t.Fatalf("reserved lines not reinstated: %+v", got.Items)
	}

	p, _ := repos.Purchases.GetByExecutionID(ctx, exec.ID)
	if p != nil {
		t.Fatal("purchase must be compensated away")
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 3 {
		t.Fatalf("stock must be untouched: got %d", q)
	}
}

func TestConcurrentPurchases_NoOversell(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 5)

	start := func() *models.SagaExecution {
		execID, err := c.Start(ctx, saga.SagaPurchase, saga.Document{
			UserID:       "user-" + uuid.NewString(),
			PaymentToken: "tok",
			NewStatus:    string(models.PurchasePaid),
			Operation:    saga.OpDeduct,
			Lines:        []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 4}},
		})
		if err != nil {
			t.Errorf("start: %v", err)
			return nil
		}
		exec, err := c.Run(ctx, execID)
		if err != nil {
			t.Errorf("run: %v", err)
			return nil
		}
		return exec
	}

	var wg sync.WaitGroup
	results := make([]*models.SagaExecution, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = start()
		}(i)
	}
	wg.Wait()

	var completed, conflicted int
	for _, exec := range results {
		if exec == nil {
			t.Fatal("saga did not finish")
		}
		switch exec.Status {
		case models.SagaCompleted:
			completed++
		case models.SagaFailed:
			if exec.ErrorKind != saga.KindConflict {
				t.Fatalf("loser kind = %s, want CONFLICT", exec.ErrorKind)
			}
			conflicted++
		default:
			t.Fatalf("unexpected status %s", exec.Status)
		}
	}
	if completed != 1 || conflicted != 1 {
		t.Fatalf("completed=%d conflicted=%d, want 1/1", completed, conflicted)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 1 {
		t.Fatalf("stock = %d, want 1", q)
	}

	var purchases int64
	if err := db.Model(&models.Purchase{}).Count(&purchases).Error; err != nil {
		t.Fatalf("count purchases: %v", err)
	}
	if purchases != 1 {
		t.Fatalf("purchases = %d, want 1 (loser compensated)", purchases)
	}
}

func TestExecutorReplay_DoesNotReapplyEffect(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	log := zap.NewNop()
	executor := saga.NewInProcessExecutor(repos.Sagas, log,
		saga.NewValidateReferencesHandler(repos.Catalog),
		saga.NewRecordPurchaseHandler(repos.Purchases),
		saga.NewAdjustStockHandler(repos, saga.NopNotifier{}, log),
	)
	c := saga.NewCoordinator(repos.Sagas, executor, log,
		saga.NewCancelPurchaseCompensator(repos.Purchases),
		saga.NewReverseStockAdjustmentCompensator(repos),
	)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	doc := saga.Document{
		UserID:       "user-1",
		PaymentToken: "tok",
		NewStatus:    string(models.PurchasePaid),
		Operation:    saga.OpDeduct,
		Lines:        []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 2}},
	}
	exec := runSaga(t, c, saga.SagaPurchase, doc)
	if exec.Status != models.SagaCompleted {
		t.Fatalf("status = %s, want COMPLETED", exec.Status)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 8 {
		t.Fatalf("stock = %d, want 8", q)
	}

	// повторная доставка завершённого шага возвращает записанный выход
	res := executor.Invoke(ctx, exec.ID, saga.StepAdjustStock, doc)
	if res.Outcome != saga.OutcomeOK {
		t.Fatalf("replay outcome = %s, want OK", res.Outcome)
	}
	if len(res.Output.StockChanges) != 1 || res.Output.StockChanges[0].Quantity != 8 {
		t.Fatalf("replay must return recorded output: %+v", res.Output.StockChanges)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 8 {
		t.Fatalf("replay must not deduct again: got %d", q)
	}

	res = executor.Invoke(ctx, exec.ID, saga.StepRecordPurchase, doc)
	if res.Outcome != saga.OutcomeOK || res.Output.PurchaseID == nil {
		t.Fatalf("purchase replay: %+v", res)
	}
	var purchases int64
	if err := db.Model(&models.Purchase{}).Count(&purchases).Error; err != nil {
		t.Fatalf("count purchases: %v", err)
	}
	if purchases != 1 {
		t.Fatalf("purchases = %d, want 1", purchases)
	}
}

func TestAdvance_TerminalIsStable(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	exec := runSaga(t, c, saga.SagaReservation, saga.Document{
		UserID: "user-1",
		Lines:  []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 1}},
	})
	if exec.Status != models.SagaCompleted {
		t.Fatalf("status = %s, want COMPLETED", exec.Status)
	}

	done, err := c.Advance(ctx, exec.ID)
	if err != nil {
		t.Fatalf("advance on terminal saga: %v", err)
	}
	if !done {
		t.Fatal("terminal saga must report done")
	}

	after, _ := repos.Sagas.GetExecution(ctx, exec.ID)
	if after.Status != models.SagaCompleted || len(after.Steps) != len(exec.Steps) {
		t.Fatalf("terminal saga mutated: %+v", after)
	}
}

func TestStockReset_ReversesToPreImage(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	log := zap.NewNop()
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 42)

	exec := &models.SagaExecution{
		SagaType:    string(saga.SagaStockAdjustment),
		CurrentStep: string(saga.StepAdjustStock),
		Status:      models.SagaRunning,
	}
	if err := repos.Sagas.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("create execution: %v", err)
	}

	h := saga.NewAdjustStockHandler(repos, saga.NopNotifier{}, log)
	res := h.Handle(ctx, exec.ID, saga.Document{
		Operation:     saga.OpReset,
		ResetQuantity: 7,
		Lines:         []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 1}},
	})
	if res.Outcome != saga.OutcomeOK {
		t.Fatalf("reset outcome = %s (%s)", res.Outcome, res.Detail)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 7 {
		t.Fatalf("stock = %d, want 7", q)
	}
	if len(res.Output.StockChanges) != 1 || res.Output.StockChanges[0].PrevQuantity != 42 {
		t.Fatalf("pre-image not recorded: %+v", res.Output.StockChanges)
	}

	rec, err := repos.Sagas.CompletedStep(ctx, exec.ID, string(saga.StepAdjustStock))
	if err != nil || rec == nil {
		t.Fatalf("step record missing: %v", err)
	}

	comp := saga.NewReverseStockAdjustmentCompensator(repos)
	if err := comp.Compensate(ctx, exec.ID, rec.ID, res.Output); err != nil {
		t.Fatalf("compensate reset: %v", err)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 42 {
		t.Fatalf("stock = %d, want pre-image 42", q)
	}

	// повторная доставка отката не применяет его второй раз
	if err := comp.Compensate(ctx, exec.ID, rec.ID, res.Output); err != nil {
		t.Fatalf("redelivered compensation: %v", err)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 42 {
		t.Fatalf("stock = %d, compensation must apply once", q)
	}
}

func TestAdjustStockHandler_RedeliverySingleDeduct(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	log := zap.NewNop()
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	exec := &models.SagaExecution{
		SagaType:    string(saga.SagaStockAdjustment),
		CurrentStep: string(saga.StepAdjustStock),
		Status:      models.SagaRunning,
	}
	if err := repos.Sagas.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("create execution: %v", err)
	}

	h := saga.NewAdjustStockHandler(repos, saga.NopNotifier{}, log)
	doc := saga.Document{
		Operation: saga.OpDeduct,
		Lines:     []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 3}},
	}
	first := h.Handle(ctx, exec.ID, doc)
	if first.Outcome != saga.OutcomeOK {
		t.Fatalf("first handle = %s (%s)", first.Outcome, first.Detail)
	}

	// запись шага закоммичена вместе со списанием
	rec, err := repos.Sagas.CompletedStep(ctx, exec.ID, string(saga.StepAdjustStock))
	if err != nil || rec == nil {
		t.Fatalf("step record must exist alongside the effect: %v", err)
	}

	second := h.Handle(ctx, exec.ID, doc)
	if second.Outcome != saga.OutcomeOK {
		t.Fatalf("redelivery = %s, want OK", second.Outcome)
	}
	if len(second.Output.StockChanges) != 1 || second.Output.StockChanges[0].Quantity != 7 {
		t.Fatalf("redelivery must return recorded output: %+v", second.Output.StockChanges)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 7 {
		t.Fatalf("stock = %d, want a single deduct to 7", q)
	}
}

func TestPaymentSaga_DuplicateFinalizeConflicts(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)
	ctx := context.Background()

	itemID, locID := seedCatalog(t, repos, 10)

	created := runSaga(t, c, saga.SagaReservation, saga.Document{
		UserID: "user-1",
		Lines:  []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 2}},
	})
	res, _ := repos.Reservations.GetByExecutionID(ctx, created.ID)

	payDoc := saga.Document{
		ReservationID: &res.ID,
		NewStatus:     string(models.ReservationPaid),
		PaymentToken:  "tok-1",
		Operation:     saga.OpDeduct,
	}
	first := runSaga(t, c, saga.SagaReservationPayment, payDoc)
	if first.Status != models.SagaCompleted {
		t.Fatalf("first payment = %s, want COMPLETED (kind=%s)", first.Status, first.ErrorKind)
	}

	// повторная оплата той же брони отбивается до любых мутаций
	second := runSaga(t, c, saga.SagaReservationPayment, payDoc)
	if second.Status != models.SagaFailed || second.ErrorKind != saga.KindConflict {
		t.Fatalf("second payment = (%s, %s), want (FAILED, CONFLICT)", second.Status, second.ErrorKind)
	}

	got, _ := repos.Reservations.GetByID(ctx, res.ID)
	if got == nil || got.Status != models.ReservationPaid {
		t.Fatalf("paid reservation must keep its status: %+v", got)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 8 {
		t.Fatalf("stock = %d, want 8", q)
	}
	var purchases int64
	if err := db.Model(&models.Purchase{}).Count(&purchases).Error; err != nil {
		t.Fatalf("count purchases: %v", err)
	}
	if purchases != 1 {
		t.Fatalf("purchases = %d, want 1", purchases)
	}
}

func TestStockAdjustmentSaga_AddResetConflict(t *testing.T) {
	db := setupDB(t)
	repos := repository.New(db)
	c := newCoordinator(t, repos)

	itemID, locID := seedCatalog(t, repos, 5)

	exec := runSaga(t, c, saga.SagaStockAdjustment, saga.Document{
		Operation: saga.OpAdd,
		Lines:     []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 10}},
	})
	if exec.Status != models.SagaCompleted {
		t.Fatalf("add = %s (kind=%s), want COMPLETED", exec.Status, exec.ErrorKind)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 15 {
		t.Fatalf("stock after add = %d, want 15", q)
	}

	exec = runSaga(t, c, saga.SagaStockAdjustment, saga.Document{
		Operation:     saga.OpReset,
		ResetQuantity: 3,
		Lines:         []saga.Line{{ItemID: itemID, LocationID: locID}},
	})
	if exec.Status != models.SagaCompleted {
		t.Fatalf("reset = %s (kind=%s), want COMPLETED", exec.Status, exec.ErrorKind)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 3 {
		t.Fatalf("stock after reset = %d, want 3", q)
	}

	// списание ниже нуля — конфликт, сток не тронут
	exec = runSaga(t, c, saga.SagaStockAdjustment, saga.Document{
		Operation: saga.OpDeduct,
		Lines:     []saga.Line{{ItemID: itemID, LocationID: locID, Quantity: 5}},
	})
	if exec.Status != models.SagaFailed || exec.ErrorKind != saga.KindConflict {
		t.Fatalf("deduct = (%s, %s), want (FAILED, CONFLICT)", exec.Status, exec.ErrorKind)
	}
	if q := stockQuantity(t, repos, itemID, locID); q != 3 {
		t.Fatalf("stock after conflict = %d, want 3", q)
	}
}

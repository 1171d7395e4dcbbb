package repository

import "gorm.io/gorm"

type Repository struct {
	DB           *gorm.DB
	Catalog      CatalogRepo
	Stock        StockRepo
	Reservations ReservationRepo
	Purchases    PurchaseRepo
	Sagas        SagaRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:           db,
		Catalog:      NewCatalogRepo(db),
		Stock:        NewStockRepo(db),
		Reservations: NewReservationRepo(db),
		Purchases:    NewPurchaseRepo(db),
		Sagas:        NewSagaRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// WithTx выполняет fn в транзакции, передавая репозитории на tx-соединении.
func (r *Repository) WithTx(fn func(tx *Repository) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}

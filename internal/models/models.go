package models

import (
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"type:text;not null"`
	Description string `gorm:"type:text;not null"`
	PriceCents  int64  `gorm:"not null;default:0"`
	S3Key       *string
}

func (Item) TableName() string {
	return "items"
}

type Location struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Address  string `gorm:"type:text;not null"`
	ZipCode  string `gorm:"type:text;not null"`
	City     string `gorm:"type:text;not null"`
	Street   string `gorm:"type:text;not null"`
	State    string `gorm:"type:text;not null"`
	Number   int    `gorm:"not null"`
	Addition *string
	Type     string `gorm:"type:text;not null"`
}

func (Location) TableName() string {
	return "locations"
}

// StockEntry — единственный общий изменяемый ресурс между сагами.
// quantity >= 0 держится условным UPDATE в репозитории + CHECK в миграции.
type StockEntry struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	ItemID     int64 `gorm:"not null;uniqueIndex:ux_stock_item_location"`
	LocationID int64 `gorm:"not null;uniqueIndex:ux_stock_item_location"`
	Quantity   int64 `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (StockEntry) TableName() string {
	return "stock_entries"
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationPaid      ReservationStatus = "paid"
)

type Reservation struct {
	ID     uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID string            `gorm:"type:text;not null;index"`
	Status ReservationStatus `gorm:"type:text;not null;default:'reserved';index"`

	// Сага, создавшая бронь. Уникальность = идемпотентность CreateReservation.
	ExecutionID *uuid.UUID `gorm:"type:uuid;uniqueIndex"`

	Items []ReservedItem `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Reservation) TableName() string {
	return "reservations"
}

type ReservedItem struct {
	ReservationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ItemID        int64     `gorm:"primaryKey"`
	LocationID    int64     `gorm:"primaryKey"`
	Quantity      int64     `gorm:"not null"`
}

func (ReservedItem) TableName() string {
	return "reserved_items"
}

type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
)

type Purchase struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       string         `gorm:"type:text;not null;index"`
	PaymentToken *string        `gorm:"type:text"`
	Status       PurchaseStatus `gorm:"type:text;not null;default:'pending'"`

	// Бронь, из которой оформлена покупка (finalize → paid).
	ReservationID *uuid.UUID `gorm:"type:uuid;index"`
	ExecutionID   *uuid.UUID `gorm:"type:uuid;uniqueIndex"`

	Items []PurchasedItem `gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE"`

	PurchaseDate time.Time `gorm:"not null;default:now()"`
	UpdatedAt    time.Time `gorm:"not null;default:now()"`
}

func (Purchase) TableName() string {
	return "purchases"
}

type PurchasedItem struct {
	PurchaseID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ItemID     int64     `gorm:"primaryKey"`
	LocationID int64     `gorm:"primaryKey"`
	Quantity   int64     `gorm:"not null"`
}

func (PurchasedItem) TableName() string {
	return "purchased_items"
}

type SagaStatus string

const (
	SagaRunning      SagaStatus = "RUNNING"
	SagaCompensating SagaStatus = "COMPENSATING"
	SagaCompleted    SagaStatus = "COMPLETED"
	SagaFailed       SagaStatus = "FAILED"
)

// SagaExecution — журнал выполнения саги. История шагов append-only:
// по ней идёт компенсация и защита от повторного применения шага.
type SagaExecution struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SagaType    string     `gorm:"type:text;not null;index"`
	CurrentStep string     `gorm:"type:text;not null"`
	Status      SagaStatus `gorm:"type:text;not null;default:'RUNNING';index"`
	Input       []byte     `gorm:"type:jsonb"`

	// Классификация ошибки терминально-неуспешной саги (см. taxonomy в saga).
	ErrorKind          string `gorm:"type:text"`
	CompensationFailed bool   `gorm:"not null;default:false"`

	Steps []SagaStepRecord `gorm:"foreignKey:ExecutionID;constraint:OnDelete:CASCADE"`

	StartedAt time.Time  `gorm:"not null;default:now();index"`
	EndedAt   *time.Time `gorm:""`
}

func (SagaExecution) TableName() string {
	return "saga_executions"
}

type SagaStepRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ExecutionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_saga_steps_exec_seq"`
	Seq         int       `gorm:"not null;uniqueIndex:ux_saga_steps_exec_seq"`
	Name        string    `gorm:"type:text;not null"`
	Outcome     string    `gorm:"type:text;not null"`
	Output      []byte    `gorm:"type:jsonb"`
	Compensated bool      `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (SagaStepRecord) TableName() string {
	return "saga_steps"
}

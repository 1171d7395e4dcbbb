package saga

import (
	"github.com/google/uuid"
)

type StockOperation string

const (
	OpDeduct StockOperation = "deduct"
	OpAdd    StockOperation = "add"
	OpReset  StockOperation = "reset"
)

type Line struct {
	ItemID     int64 `json:"item_id"`
	LocationID int64 `json:"location_id,omitempty"`
	Quantity   int64 `json:"quantity"`
}

// StockChange — применённая мутация стока. PrevQuantity — pre-image,
// без него reset необратим.
type StockChange struct {
	ItemID       int64          `json:"item_id"`
	LocationID   int64          `json:"location_id"`
	Operation    StockOperation `json:"operation"`
	Delta        int64          `json:"delta,omitempty"`
	PrevQuantity int64          `json:"prev_quantity"`
	Quantity     int64          `json:"quantity"`
}

// Document — вход/выход шага. Течёт по саге накапливаясь: выход шага
// накладывается на вход следующего (см. Apply).
type Document struct {
	UserID       string `json:"user_id,omitempty"`
	PaymentToken string `json:"payment_token,omitempty"`
	NewStatus    string `json:"new_status,omitempty"`

	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	PurchaseID    *uuid.UUID `json:"purchase_id,omitempty"`

	Lines     []Line         `json:"lines,omitempty"`
	Operation StockOperation `json:"stock_operation,omitempty"`
	// Абсолютное значение для reset.
	ResetQuantity int64 `json:"reset_quantity,omitempty"`

	InvalidItems     []int64 `json:"invalid_items,omitempty"`
	InvalidLocations []int64 `json:"invalid_locations,omitempty"`

	StockChanges []StockChange `json:"stock_changes,omitempty"`
}

// Apply накладывает выход шага на текущий документ: заполненные поля
// выхода замещают, пустые оставляют прежние значения.
func (d Document) Apply(out Document) Document {
	if out.UserID != "" {
		d.UserID = out.UserID
	}
	if out.PaymentToken != "" {
		d.PaymentToken = out.PaymentToken
	}
	if out.NewStatus != "" {
		d.NewStatus = out.NewStatus
	}
	if out.ReservationID != nil {
		d.ReservationID = out.ReservationID
	}
	if out.PurchaseID != nil {
		d.PurchaseID = out.PurchaseID
	}
	if len(out.Lines) > 0 {
		d.Lines = out.Lines
	}
	if out.Operation != "" {
		d.Operation = out.Operation
	}
	if out.ResetQuantity != 0 {
		d.ResetQuantity = out.ResetQuantity
	}
	if len(out.InvalidItems) > 0 {
		d.InvalidItems = out.InvalidItems
	}
	if len(out.InvalidLocations) > 0 {
		d.InvalidLocations = out.InvalidLocations
	}
	if len(out.StockChanges) > 0 {
		d.StockChanges = out.StockChanges
	}
	return d
}

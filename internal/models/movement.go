package models

import (
	"time"

	"github.com/google/uuid"
)

// Movement status values. The movement lifecycle is owned by the stock
// movement service; this engine only reads them.
const (
	MovementStatusPending   = "PENDING"
	MovementStatusCompleted = "COMPLETED"
	MovementStatusCancelled = "CANCELLED"
)

type StockMovement struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	Reference              string    `json:"reference" db:"reference"`
	SourceWarehouseID      uuid.UUID `json:"source_warehouse_id" db:"source_warehouse_id"`
	DestinationWarehouseID uuid.UUID `json:"destination_warehouse_id" db:"destination_warehouse_id"`
	Status                 string    `json:"status" db:"status"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// MovementLine is one manifest line of a stock movement: a product, the
// quantity that was dispatched, and the barcode a scanner resolves it by.
type MovementLine struct {
	ID          uuid.UUID `json:"id" db:"id"`
	MovementID  uuid.UUID `json:"movement_id" db:"movement_id"`
	ProductID   uuid.UUID `json:"product_id" db:"product_id"`
	ProductName string    `json:"product_name" db:"product_name"`
	Barcode     string    `json:"barcode" db:"barcode"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Position    int       `json:"position" db:"position"`
}

// Validatable reports whether a validation session may be started for the
// movement. Only pending movements have goods still in transit to receive.
func (m *StockMovement) Validatable() bool {
	return m.Status == MovementStatusPending
}

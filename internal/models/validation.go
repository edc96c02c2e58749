package models

import (
	"time"

	"github.com/google/uuid"
)

// Validation session status values. COMPLETED and COMPLETED_WITH_DISCREPANCY
// are terminal: no scan or finalization is accepted afterwards.
const (
	SessionStatusInProgress               = "IN_PROGRESS"
	SessionStatusCompleted                = "COMPLETED"
	SessionStatusCompletedWithDiscrepancy = "COMPLETED_WITH_DISCREPANCY"
)

// Validation item status values, derived from (scanned, expected).
const (
	ItemStatusPending  = "PENDING"
	ItemStatusPartial  = "PARTIAL"
	ItemStatusComplete = "COMPLETE"
)

// ValidationSession is the reconciliation activity for one stock movement.
// At most one session per movement may be IN_PROGRESS at any time.
type ValidationSession struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	MovementID  uuid.UUID         `json:"movement_id" db:"movement_id"`
	Status      string            `json:"status" db:"status"`
	StartedAt   time.Time         `json:"started_at" db:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	Items       []*ValidationItem `json:"items" db:"-"`
}

// ValidationItem is one manifest line snapshotted into a session. The
// snapshot is immutable except for scanned_quantity and the derived status.
type ValidationItem struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	SessionID        uuid.UUID  `json:"session_id" db:"session_id"`
	ProductID        uuid.UUID  `json:"product_id" db:"product_id"`
	ProductName      string     `json:"product_name" db:"product_name"`
	Barcode          string     `json:"barcode" db:"barcode"`
	ExpectedQuantity int        `json:"expected_quantity" db:"expected_quantity"`
	ScannedQuantity  int        `json:"scanned_quantity" db:"scanned_quantity"`
	Status           string     `json:"status" db:"status"`
	Position         int        `json:"position" db:"position"`
	LastScannedAt    *time.Time `json:"last_scanned_at,omitempty" db:"last_scanned_at"`
}

// ValidationScanResult is the transient outcome of a single scan attempt.
// A rejected scan (unknown barcode, item already complete) is a normal
// outcome, not a system error, and never mutates state.
type ValidationScanResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Item    *ValidationItem `json:"item,omitempty"`
}

// ValidationDiscrepancy is a manifest line that came up short at
// finalization. Derived on demand, never persisted.
type ValidationDiscrepancy struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Expected    int       `json:"expected"`
	Received    int       `json:"received"`
	Missing     int       `json:"missing"`
}

// ValidationProgress buckets a session's items by status.
// CompleteItems + PartialItems + PendingItems == TotalItems always holds.
type ValidationProgress struct {
	TotalItems    int `json:"total_items"`
	CompleteItems int `json:"complete_items"`
	PartialItems  int `json:"partial_items"`
	PendingItems  int `json:"pending_items"`
	Percentage    int `json:"percentage"`
}

// ScanEvent is one row of the append-only scan audit trail. Both accepted
// and rejected attempts are recorded.
type ScanEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SessionID uuid.UUID  `json:"session_id" db:"session_id"`
	ItemID    *uuid.UUID `json:"item_id,omitempty" db:"item_id"`
	Barcode   string     `json:"barcode" db:"barcode"`
	Accepted  bool       `json:"accepted" db:"accepted"`
	Message   string     `json:"message" db:"message"`
	RequestID *string    `json:"request_id,omitempty" db:"request_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ItemStatusFor derives an item status from its counters: PENDING at zero,
// COMPLETE at or above the expected quantity, PARTIAL in between.
func ItemStatusFor(scanned, expected int) string {
	switch {
	case scanned == 0:
		return ItemStatusPending
	case scanned >= expected:
		return ItemStatusComplete
	default:
		return ItemStatusPartial
	}
}

// Terminal reports whether the session reached a state that accepts no
// further transitions.
func (s *ValidationSession) Terminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCompletedWithDiscrepancy
}

// Progress computes the session-wide bucket counts in a single pass.
// An empty session reports 0%, never a division by zero.
func (s *ValidationSession) Progress() *ValidationProgress {
	p := &ValidationProgress{TotalItems: len(s.Items)}
	for _, item := range s.Items {
		switch item.Status {
		case ItemStatusComplete:
			p.CompleteItems++
		case ItemStatusPartial:
			p.PartialItems++
		default:
			p.PendingItems++
		}
	}
	if p.TotalItems > 0 {
		p.Percentage = int(float64(p.CompleteItems)/float64(p.TotalItems)*100 + 0.5)
	}
	return p
}

// Discrepancies lists every item whose scanned quantity fell short of its
// expected quantity, in manifest order. Items assemble in position order at
// load time, so the result is stable and deterministic.
func (s *ValidationSession) Discrepancies() []*ValidationDiscrepancy {
	discrepancies := []*ValidationDiscrepancy{}
	for _, item := range s.Items {
		if item.ScannedQuantity < item.ExpectedQuantity {
			discrepancies = append(discrepancies, &ValidationDiscrepancy{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Expected:    item.ExpectedQuantity,
				Received:    item.ScannedQuantity,
				Missing:     item.ExpectedQuantity - item.ScannedQuantity,
			})
		}
	}
	return discrepancies
}

// ItemByBarcode returns the session item matching the barcode, or nil.
func (s *ValidationSession) ItemByBarcode(barcode string) *ValidationItem {
	for _, item := range s.Items {
		if item.Barcode == barcode {
			return item
		}
	}
	return nil
}

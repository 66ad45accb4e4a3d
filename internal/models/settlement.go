package models

import (
	"fmt"

	"github.com/mmynk/settlewise/internal/money"
)

// SettlementStatus is the lifecycle state of a SettlementRecord.
type SettlementStatus string

const (
	// StatusPending is a request to pay that has not been confirmed.
	StatusPending SettlementStatus = "pending"
	// StatusSettled confirms the payment happened out of band.
	StatusSettled SettlementStatus = "settled"
)

// Valid reports whether s is one of the known statuses.
func (s SettlementStatus) Valid() bool {
	return s == StatusPending || s == StatusSettled
}

// ParseStatus converts a stored or wire string into a SettlementStatus.
func ParseStatus(s string) (SettlementStatus, error) {
	status := SettlementStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown settlement status %q", ErrInvalidRecord, s)
	}
	return status, nil
}

// SettlementRecord represents a payment between group members, either
// requested (Pending) or confirmed (Settled). A record moves from Pending to
// Settled at most once and is never deleted by the engine.
type SettlementRecord struct {
	// ID is the unique identifier for the record (UUID format).
	ID string `json:"id"`

	// GroupID is the group this record belongs to.
	GroupID string `json:"group_id"`

	// From is the member who pays (debtor settling up).
	From string `json:"from"`

	// To is the member who receives payment (creditor being paid).
	To string `json:"to"`

	// Amount is the payment amount.
	Amount money.Money `json:"amount"`

	Status SettlementStatus `json:"status"`

	// CreatedAt is the Unix timestamp when the record was created.
	CreatedAt int64 `json:"created_at"`

	// SettledAt is the Unix timestamp of the Pending to Settled transition.
	// Zero while pending.
	SettledAt int64 `json:"settled_at,omitempty"`

	// SettledBy is the member ID who confirmed the payment.
	SettledBy string `json:"settled_by,omitempty"`

	// Version is bumped by the store on every write. Zero means the record
	// has not been stored yet.
	Version int64 `json:"version"`
}

// Validate checks required fields and status consistency.
func (r *SettlementRecord) Validate() error {
	if r.GroupID == "" {
		return fmt.Errorf("%w: settlement group_id required", ErrInvalidRecord)
	}
	if r.From == "" || r.To == "" {
		return fmt.Errorf("%w: settlement from and to required", ErrInvalidRecord)
	}
	if r.From == r.To {
		return fmt.Errorf("%w: settlement from and to must differ", ErrInvalidRecord)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown settlement status %q", ErrInvalidRecord, r.Status)
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return fmt.Errorf("%w: settlement amount must be positive, got %s", ErrInvalidRecord, r.Amount)
	}
	if r.Status == StatusPending && r.SettledAt != 0 {
		return fmt.Errorf("%w: pending settlement cannot have settled_at", ErrInvalidRecord)
	}
	return nil
}

// IsSettled reports whether the record confirms a payment.
func (r *SettlementRecord) IsSettled() bool {
	return r.Status == StatusSettled
}

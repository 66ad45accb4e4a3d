package models

import (
	"fmt"

	"github.com/mmynk/settlewise/internal/money"
)

// Split is one member's share of an expense.
type Split struct {
	MemberID string      `json:"member_id"`
	Amount   money.Money `json:"amount"`
}

// Expense represents one purchase paid by a single member and shared by the
// members listed in Splits. Expenses are immutable once created except for
// an explicit delete.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// GroupID is the group this expense belongs to.
	GroupID string `json:"group_id"`

	// Description is a free-form label (e.g., "Groceries").
	Description string `json:"description,omitempty"`

	// Amount is the total paid.
	Amount money.Money `json:"amount"`

	// PaidBy is the member ID of the payer.
	PaidBy string `json:"paid_by"`

	// Splits attributes the amount to members. The payer's own split is
	// allowed and is not a debt.
	Splits []Split `json:"splits"`

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64 `json:"created_at"`
}

// SplitTotal returns the sum of all split amounts.
func (e *Expense) SplitTotal() money.Money {
	var total money.Money
	for _, s := range e.Splits {
		total = total.Add(s.Amount)
	}
	return total
}

// Validate checks required fields. A small mismatch between Amount and
// SplitTotal is allowed; the calculator reports it.
func (e *Expense) Validate() error {
	if e.GroupID == "" {
		return fmt.Errorf("%w: expense group_id required", ErrInvalidRecord)
	}
	if e.PaidBy == "" {
		return fmt.Errorf("%w: expense paid_by required", ErrInvalidRecord)
	}
	if e.Amount.IsNegative() || e.Amount.IsZero() {
		return fmt.Errorf("%w: expense amount must be positive, got %s", ErrInvalidRecord, e.Amount)
	}
	if len(e.Splits) == 0 {
		return fmt.Errorf("%w: expense needs at least one split", ErrInvalidRecord)
	}
	seen := make(map[string]bool, len(e.Splits))
	for _, s := range e.Splits {
		if s.MemberID == "" {
			return fmt.Errorf("%w: split member_id required", ErrInvalidRecord)
		}
		if seen[s.MemberID] {
			return fmt.Errorf("%w: duplicate split for member %s", ErrInvalidRecord, s.MemberID)
		}
		seen[s.MemberID] = true
		if s.Amount.IsNegative() {
			return fmt.Errorf("%w: split amount for %s is negative", ErrInvalidRecord, s.MemberID)
		}
	}
	return nil
}

package calculator

import (
	"errors"
	"fmt"

	"github.com/mmynk/settlewise/internal/money"
)

var (
	// ErrInvalidInput is returned when a required aggregation input is
	// missing or inconsistent.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownMember marks a diagnostic for a member ID absent from the
	// roster. It never aborts a computation.
	ErrUnknownMember = errors.New("unknown member")

	// ErrSplitMismatch marks a diagnostic for an expense whose splits do not
	// add up to its amount.
	ErrSplitMismatch = errors.New("split mismatch")
)

// UnknownMemberName is the placeholder label for unresolvable member IDs.
const UnknownMemberName = "Unknown member"

// DiagnosticKind classifies a recoverable problem found while aggregating.
type DiagnosticKind string

const (
	DiagUnknownMember DiagnosticKind = "unknown_member"
	DiagSplitMismatch DiagnosticKind = "split_mismatch"
)

// Diagnostic describes a recoverable input problem. It satisfies error so
// callers can match it with errors.Is(d, ErrUnknownMember).
type Diagnostic struct {
	Kind DiagnosticKind `json:"kind"`

	// ExpenseID or RecordID identifies the offending input.
	ExpenseID string `json:"expense_id,omitempty"`
	RecordID  string `json:"record_id,omitempty"`

	// MemberID is set for DiagUnknownMember.
	MemberID string `json:"member_id,omitempty"`

	// Residual is amount minus split total, set for DiagSplitMismatch.
	Residual money.Money `json:"residual,omitempty"`
}

func (d Diagnostic) Error() string {
	switch d.Kind {
	case DiagUnknownMember:
		if d.RecordID != "" {
			return fmt.Sprintf("settlement %s references unknown member %s", d.RecordID, d.MemberID)
		}
		return fmt.Sprintf("expense %s references unknown member %s", d.ExpenseID, d.MemberID)
	case DiagSplitMismatch:
		return fmt.Sprintf("expense %s splits differ from amount by %s", d.ExpenseID, d.Residual)
	default:
		return string(d.Kind)
	}
}

func (d Diagnostic) Unwrap() error {
	switch d.Kind {
	case DiagUnknownMember:
		return ErrUnknownMember
	case DiagSplitMismatch:
		return ErrSplitMismatch
	default:
		return nil
	}
}

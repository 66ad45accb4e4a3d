// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/settlewise/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write finds the stored
	// state different from the expected prior state.
	ErrConflict = errors.New("conflict")
)

// ChangeKind names what changed in a group.
type ChangeKind string

const (
	ChangeGroup      ChangeKind = "group"
	ChangeExpense    ChangeKind = "expense"
	ChangeSettlement ChangeKind = "settlement"
)

// Change is delivered to subscribers after a successful write.
type Change struct {
	GroupID string     `json:"group_id"`
	Kind    ChangeKind `json:"kind"`
	// ID of the written record.
	ID string `json:"id,omitempty"`
}

// Precondition is the state a settlement write expects to find.
type Precondition struct {
	// Status the stored record must still carry. Used for updates
	// (record.Version > 0), together with the record's Version.
	Status models.SettlementStatus

	// PairRecords is the number of records the (group, from, to) triple held
	// when the caller read it. Used for inserts (record.Version == 0).
	PairRecords int
}

// Store defines the interface for group, expense and settlement storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the engine or service layer.
type Store interface {
	// CreateGroup persists a new group. ID, CreatedAt and member IDs are
	// generated when empty.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its roster in join order.
	// Returns ErrNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups retrieves all groups, newest first.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// AddGroupMembers appends members to the roster. Missing IDs are
	// generated and written back into members.
	AddGroupMembers(ctx context.Context, groupID string, members []models.Member) error

	// CreateExpense validates and persists an expense.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpenses returns the group's expenses, oldest first.
	GetExpenses(ctx context.Context, groupID string) ([]models.Expense, error)

	// DeleteExpense removes an expense. Returns ErrNotFound if absent.
	DeleteExpense(ctx context.Context, expenseID string) error

	// GetSettlementRecords returns the group's settlement history, oldest first.
	GetSettlementRecords(ctx context.Context, groupID string) ([]models.SettlementRecord, error)

	// WriteSettlementRecord inserts (Version == 0) or updates a record only if
	// the stored state still matches cond. On success record.Version is
	// updated. Returns ErrConflict when the precondition no longer holds.
	WriteSettlementRecord(ctx context.Context, record *models.SettlementRecord, cond Precondition) error

	// Subscribe registers onChange for writes to groupID. The returned
	// function cancels the subscription.
	Subscribe(groupID string, onChange func(Change)) (func(), error)

	// Close releases any resources held by the store.
	Close() error
}

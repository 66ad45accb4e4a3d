package service

import (
	"github.com/mmynk/settlewise/internal/calculator"
	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
)

// GroupService messages

type CreateGroupRequest struct {
	Name string `json:"name"`
	// Members without an ID get one assigned.
	Members []models.Member `json:"members"`
}

type CreateGroupResponse struct {
	Group *models.Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupResponse struct {
	Group *models.Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*models.Group `json:"groups"`
}

type AddMembersRequest struct {
	GroupID string          `json:"group_id"`
	Members []models.Member `json:"members"`
}

type AddMembersResponse struct {
	Group *models.Group `json:"group"`
}

// ExpenseService messages

// Item is one line of an itemized receipt, shared equally by MemberIDs.
type Item struct {
	Description string      `json:"description,omitempty"`
	Amount      money.Money `json:"amount"`
	MemberIDs   []string    `json:"member_ids"`
}

// CreateExpenseRequest describes an expense. Shares come from the first of
// these that is set:
//   - Splits: explicit per-member amounts
//   - Items: itemized receipt; Amount (default: the item sum) is spread in
//     proportion to each member's item subtotal, covering tax and tip
//   - SplitAmong: equal split among these members
//
// With none set the amount is split equally among the whole group.
type CreateExpenseRequest struct {
	GroupID     string      `json:"group_id"`
	Description string      `json:"description,omitempty"`
	Amount      money.Money `json:"amount"`
	// PaidBy defaults to the authenticated member.
	PaidBy     string         `json:"paid_by,omitempty"`
	Splits     []models.Split `json:"splits,omitempty"`
	Items      []Item         `json:"items,omitempty"`
	SplitAmong []string       `json:"split_among,omitempty"`
}

type CreateExpenseResponse struct {
	Expense *models.Expense `json:"expense"`
}

type ListExpensesRequest struct {
	GroupID string `json:"group_id"`
}

type ListExpensesResponse struct {
	Expenses []models.Expense `json:"expenses"`
}

type DeleteExpenseRequest struct {
	ExpenseID string `json:"expense_id"`
}

type DeleteExpenseResponse struct{}

// SettlementService messages

// Balance is what From still owes To.
type Balance struct {
	From   models.Member `json:"from"`
	To     models.Member `json:"to"`
	Amount money.Money   `json:"amount"`
	// Display is Amount formatted for the request locale.
	Display string `json:"display"`
}

// Settlement is a settlement instruction with a locale-formatted amount.
type Settlement struct {
	calculator.SettlementInstruction
	Display string `json:"display"`
}

type GetBalancesRequest struct {
	GroupID string `json:"group_id"`
	// Locale is a BCP 47 tag such as "en" or "de-DE".
	Locale string `json:"locale,omitempty"`
	// IncludeZero also returns pairs that owe nothing.
	IncludeZero bool `json:"include_zero,omitempty"`
}

type GetBalancesResponse struct {
	GroupID     string                  `json:"group_id"`
	Balances    []Balance               `json:"balances"`
	TotalOwed   money.Money             `json:"total_owed"`
	Diagnostics []calculator.Diagnostic `json:"diagnostics,omitempty"`
}

type GetSettlementsRequest struct {
	GroupID string `json:"group_id"`
	Locale  string `json:"locale,omitempty"`
}

type GetSettlementsResponse struct {
	GroupID     string                  `json:"group_id"`
	Settlements []Settlement            `json:"settlements"`
	Diagnostics []calculator.Diagnostic `json:"diagnostics,omitempty"`
}

type MarkSettledRequest struct {
	GroupID string `json:"group_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	// SettledBy is used only when the caller is not authenticated.
	SettledBy string `json:"settled_by,omitempty"`
}

type MarkSettledResponse struct {
	Record *models.SettlementRecord `json:"record"`
}

type RequestPaymentRequest struct {
	GroupID string `json:"group_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type RequestPaymentResponse struct {
	Record *models.SettlementRecord `json:"record"`
}

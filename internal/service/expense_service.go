package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settlewise/internal/calculator"
	"github.com/mmynk/settlewise/internal/middleware"
	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
	"github.com/mmynk/settlewise/internal/storage"
)

// ExpenseService implements the Connect ExpenseService
type ExpenseService struct {
	store storage.Store
}

// NewExpenseService creates a new ExpenseService with the given storage backend.
func NewExpenseService(store storage.Store) *ExpenseService {
	return &ExpenseService{store: store}
}

// CreateExpense records an expense paid by one member.
func (s *ExpenseService) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[CreateExpenseResponse], error) {
	msg := req.Msg
	slog.Info("CreateExpense request received",
		"group_id", msg.GroupID,
		"amount", msg.Amount.String(),
		"splits_count", len(msg.Splits),
		"items_count", len(msg.Items),
	)

	group, err := s.store.GetGroup(ctx, msg.GroupID)
	if err != nil {
		slog.Error("CreateExpense: failed to get group", "group_id", msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	paidBy := msg.PaidBy
	if paidBy == "" {
		paidBy = middleware.GetMemberID(ctx)
	}
	if !group.HasMember(paidBy) {
		return nil, invalidArgument("paid_by %q must be a member of the group", paidBy)
	}

	amount, splits, err := buildSplits(group, msg)
	if err != nil {
		slog.Error("CreateExpense: invalid shares", "group_id", msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	expense := &models.Expense{
		GroupID:     group.ID,
		Description: msg.Description,
		Amount:      amount,
		PaidBy:      paidBy,
		Splits:      splits,
	}
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		slog.Error("CreateExpense failed", "error", err)
		return nil, toConnectError(err)
	}

	if residual := expense.Amount.Sub(expense.SplitTotal()); !residual.IsZero() {
		slog.Warn("Expense splits differ from amount",
			"expense_id", expense.ID,
			"residual", residual.String(),
		)
	}
	slog.Info("Expense created", "expense_id", expense.ID, "group_id", expense.GroupID)

	return connect.NewResponse(&CreateExpenseResponse{Expense: expense}), nil
}

// buildSplits works out the expense amount and shares from whichever of
// Splits, Items or SplitAmong the request uses.
func buildSplits(group *models.Group, msg *CreateExpenseRequest) (money.Money, []models.Split, error) {
	switch {
	case len(msg.Splits) > 0:
		for _, split := range msg.Splits {
			if !group.HasMember(split.MemberID) {
				return 0, nil, invalidArgument("split member %q is not in the group", split.MemberID)
			}
		}
		return msg.Amount, msg.Splits, nil

	case len(msg.Items) > 0:
		var bases []models.Split
		index := make(map[string]int)
		var itemTotal money.Money
		for _, item := range msg.Items {
			for _, id := range item.MemberIDs {
				if !group.HasMember(id) {
					return 0, nil, invalidArgument("item member %q is not in the group", id)
				}
			}
			shares, err := calculator.SplitEqually(item.Amount, item.MemberIDs)
			if err != nil {
				return 0, nil, err
			}
			for _, share := range shares {
				i, ok := index[share.MemberID]
				if !ok {
					i = len(bases)
					index[share.MemberID] = i
					bases = append(bases, models.Split{MemberID: share.MemberID})
				}
				bases[i].Amount = bases[i].Amount.Add(share.Amount)
			}
			itemTotal = itemTotal.Add(item.Amount)
		}

		amount := msg.Amount
		if amount.IsZero() {
			amount = itemTotal
		}
		splits, err := calculator.SplitProportional(amount, bases)
		if err != nil {
			return 0, nil, err
		}
		return amount, splits, nil

	default:
		ids := msg.SplitAmong
		if len(ids) == 0 {
			ids = group.MemberIDs()
		}
		for _, id := range ids {
			if !group.HasMember(id) {
				return 0, nil, invalidArgument("member %q is not in the group", id)
			}
		}
		splits, err := calculator.SplitEqually(msg.Amount, ids)
		if err != nil {
			return 0, nil, err
		}
		return msg.Amount, splits, nil
	}
}

// ListExpenses returns a group's expenses, oldest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	slog.Info("ListExpenses request received", "group_id", req.Msg.GroupID)

	if _, err := s.store.GetGroup(ctx, req.Msg.GroupID); err != nil {
		slog.Error("ListExpenses: failed to get group", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	expenses, err := s.store.GetExpenses(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("ListExpenses failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}

	slog.Info("ListExpenses successful", "group_id", req.Msg.GroupID, "count", len(expenses))

	return connect.NewResponse(&ListExpensesResponse{Expenses: expenses}), nil
}

// DeleteExpense removes an expense.
func (s *ExpenseService) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	slog.Info("DeleteExpense request received", "expense_id", req.Msg.ExpenseID)

	if req.Msg.ExpenseID == "" {
		return nil, invalidArgument("expense_id required")
	}

	if err := s.store.DeleteExpense(ctx, req.Msg.ExpenseID); err != nil {
		slog.Error("DeleteExpense failed", "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Expense deleted", "expense_id", req.Msg.ExpenseID)

	return connect.NewResponse(&DeleteExpenseResponse{}), nil
}

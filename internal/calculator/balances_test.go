package calculator

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
)

var roster = []models.Member{
	{ID: "a", Name: "Alice"},
	{ID: "b", Name: "Bob"},
	{ID: "c", Name: "Charlie"},
}

func equalExpense(id, payer, amount string, members ...string) models.Expense {
	splits, err := SplitEqually(money.MustParse(amount), members)
	if err != nil {
		panic(err)
	}
	return models.Expense{
		ID:      id,
		GroupID: "g1",
		Amount:  money.MustParse(amount),
		PaidBy:  payer,
		Splits:  splits,
	}
}

func settled(id, from, to, amount string) models.SettlementRecord {
	return models.SettlementRecord{
		ID:        id,
		GroupID:   "g1",
		From:      from,
		To:        to,
		Amount:    money.MustParse(amount),
		Status:    models.StatusSettled,
		CreatedAt: 100,
		SettledAt: 100,
	}
}

func pending(id, from, to, amount string) models.SettlementRecord {
	return models.SettlementRecord{
		ID:        id,
		GroupID:   "g1",
		From:      from,
		To:        to,
		Amount:    money.MustParse(amount),
		Status:    models.StatusPending,
		CreatedAt: 50,
	}
}

func TestAggregateBalances_NilMembers(t *testing.T) {
	_, err := AggregateBalances(nil, nil, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAggregateBalances_EmptyRoster(t *testing.T) {
	b, err := AggregateBalances([]models.Member{}, nil, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	if len(b.Pairs()) != 0 {
		t.Errorf("expected no pairs, got %d", len(b.Pairs()))
	}
}

func TestAggregateBalances_InitializesEveryPair(t *testing.T) {
	b, err := AggregateBalances(roster, nil, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}

	want := []Pair{
		{"a", "b"}, {"a", "c"},
		{"b", "a"}, {"b", "c"},
		{"c", "a"}, {"c", "b"},
	}
	if !reflect.DeepEqual(b.Pairs(), want) {
		t.Errorf("Pairs() = %v, want %v", b.Pairs(), want)
	}
	for _, bal := range b.Balances() {
		if !bal.GrossOwed.IsZero() {
			t.Errorf("%s->%s = %s, want 0", bal.From, bal.To, bal.GrossOwed)
		}
	}
}

func TestAggregateBalances_EqualSplit(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "90.00", "a", "b", "c")}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}

	want := map[Pair]string{
		{"b", "a"}: "30.00",
		{"c", "a"}: "30.00",
	}
	for _, bal := range b.Balances() {
		expected, ok := want[Pair{bal.From, bal.To}]
		if !ok {
			expected = "0.00"
		}
		if bal.GrossOwed.String() != expected {
			t.Errorf("%s owes %s %s, want %s", bal.From, bal.To, bal.GrossOwed, expected)
		}
	}
	if b.GroupID != "g1" {
		t.Errorf("GroupID = %q, want g1", b.GroupID)
	}
	if len(b.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", b.Diagnostics)
	}
}

func TestAggregateBalances_DirectionsAreNotNetted(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "20.00", "a", "b"),
		equalExpense("e2", "b", "6.00", "a", "b"),
	}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	if got := b.Owed("b", "a"); got != money.MustParse("10.00") {
		t.Errorf("b owes a %s, want 10.00", got)
	}
	if got := b.Owed("a", "b"); got != money.MustParse("3.00") {
		t.Errorf("a owes b %s, want 3.00", got)
	}
}

func TestAggregateBalances_SettledRecordsReduceDebt(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "90.00", "a", "b", "c")}
	records := []models.SettlementRecord{
		settled("s1", "b", "a", "30.00"),
		settled("s2", "c", "a", "10.00"),
		pending("p1", "c", "a", "20.00"),
	}

	b, err := AggregateBalances(roster, expenses, records)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	if got := b.Owed("b", "a"); !got.IsZero() {
		t.Errorf("b owes a %s, want 0", got)
	}
	if got := b.Owed("c", "a"); got != money.MustParse("20.00") {
		t.Errorf("c owes a %s, want 20.00 (pending records must be ignored)", got)
	}
	if !b.Applied("s1") || !b.Applied("s2") || b.Applied("p1") {
		t.Error("Applied() does not match the settled records")
	}
}

func TestAggregateBalances_NoNegativeDebt(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "20.00", "a", "b")}
	records := []models.SettlementRecord{
		settled("s1", "b", "a", "50.00"),
		settled("s2", "c", "b", "5.00"),
	}

	b, err := AggregateBalances(roster, expenses, records)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	for _, bal := range b.Balances() {
		if bal.GrossOwed.IsNegative() {
			t.Errorf("%s->%s is negative: %s", bal.From, bal.To, bal.GrossOwed)
		}
	}
}

func TestAggregateBalances_ToleranceBoundary(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "60.00", "a", "b")}

	tests := []struct {
		name     string
		paid     string
		wantOwed string
	}{
		{"exact payment", "30.00", "0.00"},
		{"short by exactly the tolerance", "29.99", "0.00"},
		{"short by one cent more", "29.98", "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := AggregateBalances(roster, expenses, []models.SettlementRecord{settled("s1", "b", "a", tt.paid)})
			if err != nil {
				t.Fatalf("AggregateBalances failed: %v", err)
			}
			if got := b.Owed("b", "a").String(); got != tt.wantOwed {
				t.Errorf("b owes a %s, want %s", got, tt.wantOwed)
			}
		})
	}
}

func TestAggregateBalances_IgnoresNegligibleAndOwnSplits(t *testing.T) {
	expenses := []models.Expense{{
		ID:      "e1",
		GroupID: "g1",
		Amount:  money.MustParse("10.02"),
		PaidBy:  "a",
		Splits: []models.Split{
			{MemberID: "a", Amount: money.MustParse("10.00")},
			{MemberID: "b", Amount: money.MustParse("0.01")},
			{MemberID: "c", Amount: money.MustParse("0.01")},
		},
	}}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	if !b.Total().IsZero() {
		t.Errorf("Total() = %s, want 0", b.Total())
	}
}

// Sub-tolerance splits are dropped per expense, before aggregation, so many
// one-cent shares never add up to a debt.
func TestAggregateBalances_SubToleranceSplitsDoNotAccumulate(t *testing.T) {
	var expenses []models.Expense
	for i := 0; i < 100; i++ {
		expenses = append(expenses, models.Expense{
			ID:      fmt.Sprintf("e%d", i),
			GroupID: "g1",
			Amount:  money.MustParse("0.02"),
			PaidBy:  "a",
			Splits: []models.Split{
				{MemberID: "a", Amount: money.MustParse("0.01")},
				{MemberID: "b", Amount: money.MustParse("0.01")},
			},
		})
	}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	if got := b.Owed("b", "a"); !got.IsZero() {
		t.Errorf("Owed(b, a) = %s, want 0", got)
	}
	if len(b.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", b.Diagnostics)
	}
}

func TestAggregateBalances_UnknownMember(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "90.00", "a", "b", "c"),
		equalExpense("e2", "a", "40.00", "a", "X"),
	}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}

	if len(b.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", b.Diagnostics)
	}
	d := b.Diagnostics[0]
	if d.Kind != DiagUnknownMember || d.MemberID != "X" || d.ExpenseID != "e2" {
		t.Errorf("unexpected diagnostic: %+v", d)
	}
	if !errors.Is(d, ErrUnknownMember) {
		t.Error("diagnostic should match ErrUnknownMember")
	}

	if got := b.Owed("b", "a"); got != money.MustParse("30.00") {
		t.Errorf("b owes a %s, want 30.00", got)
	}
	if got := b.Owed("c", "a"); got != money.MustParse("30.00") {
		t.Errorf("c owes a %s, want 30.00", got)
	}
	// The unknown member's debt is kept, not dropped.
	if got := b.Owed("X", "a"); got != money.MustParse("20.00") {
		t.Errorf("X owes a %s, want 20.00", got)
	}
	pairs := b.Pairs()
	if last := pairs[len(pairs)-1]; last != (Pair{"X", "a"}) {
		t.Errorf("unknown pair should be appended last, got %v", last)
	}
	if name := b.Member("X").Name; name != UnknownMemberName {
		t.Errorf("Member(X).Name = %q, want placeholder", name)
	}
}

func TestAggregateBalances_SplitMismatch(t *testing.T) {
	expenses := []models.Expense{{
		ID:      "e1",
		GroupID: "g1",
		Amount:  money.MustParse("100.00"),
		PaidBy:  "a",
		Splits: []models.Split{
			{MemberID: "a", Amount: money.MustParse("33.33")},
			{MemberID: "b", Amount: money.MustParse("33.33")},
			{MemberID: "c", Amount: money.MustParse("33.33")},
		},
	}}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	if len(b.Diagnostics) != 1 || b.Diagnostics[0].Kind != DiagSplitMismatch {
		t.Fatalf("expected split mismatch diagnostic, got %v", b.Diagnostics)
	}
	if b.Diagnostics[0].Residual != money.MustParse("0.01") {
		t.Errorf("Residual = %s, want 0.01", b.Diagnostics[0].Residual)
	}
	if !errors.Is(b.Diagnostics[0], ErrSplitMismatch) {
		t.Error("diagnostic should match ErrSplitMismatch")
	}
}

func TestAggregateBalances_MixedGroups(t *testing.T) {
	e := equalExpense("e1", "a", "10.00", "a", "b")
	other := settled("s1", "b", "a", "5.00")
	other.GroupID = "g2"

	_, err := AggregateBalances(roster, []models.Expense{e}, []models.SettlementRecord{other})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAggregateBalances_Conservation(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "90.00", "a", "b", "c"),
		equalExpense("e2", "b", "100.00", "a", "b", "c"),
		equalExpense("e3", "c", "17.35", "a", "c"),
		equalExpense("e4", "a", "5.00", "b", "c"),
	}

	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}

	var want money.Money
	for _, e := range expenses {
		var payerShare money.Money
		for _, s := range e.Splits {
			if s.MemberID == e.PaidBy {
				payerShare = s.Amount
			}
		}
		want = want.Add(e.Amount.Sub(payerShare))
	}

	if diff := b.Total().Sub(want); !diff.Negligible() {
		t.Errorf("Total() = %s, want %s", b.Total(), want)
	}
}

func TestAggregateBalances_Deterministic(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "90.00", "a", "b", "c"),
		equalExpense("e2", "c", "12.00", "a", "b", "c", "Y"),
	}
	records := []models.SettlementRecord{settled("s1", "b", "a", "10.00")}

	first, err := AggregateBalances(roster, expenses, records)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := AggregateBalances(roster, expenses, records)
		if err != nil {
			t.Fatalf("AggregateBalances failed: %v", err)
		}
		if !reflect.DeepEqual(first.Balances(), again.Balances()) {
			t.Fatalf("run %d differs:\n%v\n%v", i, first.Balances(), again.Balances())
		}
		if !reflect.DeepEqual(first.Diagnostics, again.Diagnostics) {
			t.Fatalf("run %d diagnostics differ", i)
		}
	}
}

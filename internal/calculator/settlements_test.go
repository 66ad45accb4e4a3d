package calculator

import (
	"reflect"
	"testing"

	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
)

// pipeline runs aggregation over the settled subset and simplification over
// the full history, the way callers are expected to.
func pipeline(t *testing.T, members []models.Member, expenses []models.Expense, records []models.SettlementRecord) []SettlementInstruction {
	t.Helper()
	var settledOnly []models.SettlementRecord
	for _, r := range records {
		if r.IsSettled() {
			settledOnly = append(settledOnly, r)
		}
	}
	b, err := AggregateBalances(members, expenses, settledOnly)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	return SimplifySettlements(b, records)
}

func TestSimplifySettlements_NilAndEmpty(t *testing.T) {
	if got := SimplifySettlements(nil, nil); got == nil || len(got) != 0 {
		t.Errorf("SimplifySettlements(nil) = %v, want empty slice", got)
	}

	got := pipeline(t, roster, nil, nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty slice, got %v", got)
	}
}

func TestSimplifySettlements_EqualSplitScenario(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "90.00", "a", "b", "c")}

	got := pipeline(t, roster, expenses, nil)

	want := []SettlementInstruction{
		{
			ID:     "g1:b:a:30.00",
			From:   models.Member{ID: "b", Name: "Bob"},
			To:     models.Member{ID: "a", Name: "Alice"},
			Amount: money.MustParse("30.00"),
			Status: models.StatusPending,
		},
		{
			ID:     "g1:c:a:30.00",
			From:   models.Member{ID: "c", Name: "Charlie"},
			To:     models.Member{ID: "a", Name: "Alice"},
			Amount: money.MustParse("30.00"),
			Status: models.StatusPending,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SimplifySettlements() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestSimplifySettlements_PartiallySettledScenario(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "90.00", "a", "b", "c")}
	records := []models.SettlementRecord{settled("s1", "b", "a", "30.00")}

	got := pipeline(t, roster, expenses, records)

	if len(got) != 2 {
		t.Fatalf("expected 2 instructions, got %d: %+v", len(got), got)
	}

	settledIn, pendingIn := got[0], got[1]
	if settledIn.Status != models.StatusSettled || settledIn.From.ID != "b" || settledIn.To.ID != "a" {
		t.Errorf("first instruction = %+v, want settled b->a", settledIn)
	}
	if settledIn.Amount != money.MustParse("30.00") || settledIn.ID != "s1" || !settledIn.Persisted {
		t.Errorf("settled instruction should mirror record s1: %+v", settledIn)
	}
	if pendingIn.Status != models.StatusPending || pendingIn.From.ID != "c" || pendingIn.To.ID != "a" {
		t.Errorf("second instruction = %+v, want pending c->a", pendingIn)
	}
	if pendingIn.Amount != money.MustParse("30.00") || pendingIn.Persisted {
		t.Errorf("pending instruction should be synthetic 30.00: %+v", pendingIn)
	}
}

func TestSimplifySettlements_PendingRecordIdentity(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "90.00", "a", "b", "c")}
	records := []models.SettlementRecord{
		pending("p-old", "b", "a", "12.00"),
		pending("p1", "b", "a", "30.00"),
	}

	got := pipeline(t, roster, expenses, records)

	var bToA *SettlementInstruction
	for i := range got {
		if got[i].From.ID == "b" {
			bToA = &got[i]
		}
	}
	if bToA == nil {
		t.Fatal("missing b->a instruction")
	}
	if bToA.ID != "p1" || !bToA.Persisted || bToA.Status != models.StatusPending {
		t.Errorf("b->a should mirror pending record p1, got %+v", bToA)
	}

	for _, in := range got {
		if in.From.ID == "c" && in.Persisted {
			t.Errorf("c->a has no record and must be synthetic: %+v", in)
		}
	}
}

func TestSimplifySettlements_CoveredBySettlementNotYetAggregated(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "90.00", "a", "b", "c")}

	// The aggregator ran before s1 was written; the simplifier sees it.
	b, err := AggregateBalances(roster, expenses, nil)
	if err != nil {
		t.Fatalf("AggregateBalances failed: %v", err)
	}
	got := SimplifySettlements(b, []models.SettlementRecord{settled("s1", "b", "a", "30.00")})

	for _, in := range got {
		if in.From.ID == "b" && in.Status == models.StatusPending {
			t.Errorf("b->a is covered by s1 and must not be pending: %+v", in)
		}
	}
	if len(got) != 2 || got[0].ID != "s1" || got[0].Status != models.StatusSettled {
		t.Errorf("expected settled s1 then pending c->a, got %+v", got)
	}
}

func TestSimplifySettlements_DeduplicatesRaceDuplicates(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "60.00", "a", "b")}
	records := []models.SettlementRecord{
		settled("s1", "b", "a", "30.00"),
		settled("s2", "b", "a", "30.00"),
	}

	got := pipeline(t, roster, expenses, records)

	if len(got) != 1 {
		t.Fatalf("expected 1 instruction, got %+v", got)
	}
	if got[0].ID != "s1" || got[0].Status != models.StatusSettled {
		t.Errorf("expected settled s1, got %+v", got[0])
	}
}

func TestSimplifySettlements_NoCrossMemberNetting(t *testing.T) {
	// a owes b 10, b owes c 10: both instructions remain.
	expenses := []models.Expense{
		{ID: "e1", GroupID: "g1", Amount: money.MustParse("10"), PaidBy: "b",
			Splits: []models.Split{{MemberID: "a", Amount: money.MustParse("10")}}},
		{ID: "e2", GroupID: "g1", Amount: money.MustParse("10"), PaidBy: "c",
			Splits: []models.Split{{MemberID: "b", Amount: money.MustParse("10")}}},
	}

	got := pipeline(t, roster, expenses, nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 instructions, got %+v", got)
	}
	if got[0].From.ID != "a" || got[0].To.ID != "b" || got[1].From.ID != "b" || got[1].To.ID != "c" {
		t.Errorf("unexpected instructions: %+v", got)
	}
}

func TestSimplifySettlements_ToleranceBoundary(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "60.00", "a", "b")}

	got := pipeline(t, roster, expenses, []models.SettlementRecord{settled("s1", "b", "a", "29.99")})
	if len(got) != 1 || got[0].Status != models.StatusSettled {
		t.Errorf("a one-cent residue should count as settled, got %+v", got)
	}

	got = pipeline(t, roster, expenses, []models.SettlementRecord{settled("s1", "b", "a", "29.98")})
	if len(got) != 1 || got[0].Status != models.StatusPending || got[0].Amount != money.MustParse("0.02") {
		t.Errorf("a two-cent residue should be outstanding, got %+v", got)
	}
}

func TestSimplifySettlements_UnknownMemberPlaceholder(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "90.00", "a", "b", "c"),
		equalExpense("e2", "a", "40.00", "a", "X"),
	}

	got := pipeline(t, roster, expenses, nil)

	if len(got) != 3 {
		t.Fatalf("expected 3 instructions, got %+v", got)
	}
	last := got[2]
	if last.From.ID != "X" || last.From.Name != UnknownMemberName {
		t.Errorf("expected placeholder for X, got %+v", last.From)
	}
	if last.Amount != money.MustParse("20.00") {
		t.Errorf("X owes %s, want 20.00", last.Amount)
	}
}

func TestSimplifySettlements_EmptyRosterUsesPlaceholders(t *testing.T) {
	expenses := []models.Expense{equalExpense("e1", "a", "10.00", "a", "b")}

	got := pipeline(t, []models.Member{}, expenses, nil)

	if len(got) != 1 {
		t.Fatalf("expected 1 instruction, got %+v", got)
	}
	if got[0].From.Name != UnknownMemberName || got[0].To.Name != UnknownMemberName {
		t.Errorf("expected placeholder labels, got %+v", got[0])
	}
}

func TestSimplifySettlements_Idempotent(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "90.00", "a", "b", "c"),
		equalExpense("e2", "b", "45.50", "a", "b", "c"),
	}
	records := []models.SettlementRecord{
		settled("s1", "c", "a", "30.00"),
		pending("p1", "a", "b", "15.17"),
	}

	first := pipeline(t, roster, expenses, records)
	second := pipeline(t, roster, expenses, records)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("pipeline is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestSimplifySettlements_SettleConvergence(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("e1", "a", "90.00", "a", "b", "c"),
		equalExpense("e2", "b", "100.00", "a", "b", "c"),
		equalExpense("e3", "c", "7.01", "a", "b", "c"),
	}
	var records []models.SettlementRecord

	instructions := pipeline(t, roster, expenses, records)
	for i, in := range instructions {
		if in.Status != models.StatusPending {
			continue
		}
		records = append(records, models.SettlementRecord{
			ID:        in.ID + "-settled",
			GroupID:   "g1",
			From:      in.From.ID,
			To:        in.To.ID,
			Amount:    in.Amount,
			Status:    models.StatusSettled,
			CreatedAt: int64(i + 1),
			SettledAt: int64(i + 1),
		})
	}

	for _, in := range pipeline(t, roster, expenses, records) {
		if in.Status == models.StatusPending {
			t.Errorf("still pending after settling everything: %+v", in)
		}
	}
}

package calculator

import (
	"fmt"
	"log/slog"

	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
)

// Pair is an ordered (debtor, creditor) pair.
type Pair struct {
	From string // Member who owes
	To   string // Member who is owed
}

// PairwiseBalance is what From still owes To for that direction only.
type PairwiseBalance struct {
	From      string      `json:"from"`
	To        string      `json:"to"`
	GrossOwed money.Money `json:"gross_owed"`
}

// BalanceMap is the output of AggregateBalances: one non-negative amount per
// ordered member pair, in deterministic order.
type BalanceMap struct {
	// GroupID is taken from the expenses and records that were aggregated.
	// Empty when there were none.
	GroupID string

	// Diagnostics lists recoverable input problems, in discovery order.
	Diagnostics []Diagnostic

	pairs   []Pair
	owed    map[Pair]money.Money
	members map[string]models.Member
	applied map[string]bool
	seen    map[Diagnostic]bool
}

func newBalanceMap(groupID string, members []models.Member) *BalanceMap {
	b := &BalanceMap{
		GroupID: groupID,
		owed:    make(map[Pair]money.Money),
		members: make(map[string]models.Member, len(members)),
		applied: make(map[string]bool),
		seen:    make(map[Diagnostic]bool),
	}

	roster := make([]models.Member, 0, len(members))
	for _, m := range members {
		if _, dup := b.members[m.ID]; dup {
			continue
		}
		b.members[m.ID] = m
		roster = append(roster, m)
	}

	// Every ordered pair starts at zero so that "no debt" is explicit.
	for _, a := range roster {
		for _, c := range roster {
			if a.ID == c.ID {
				continue
			}
			p := Pair{From: a.ID, To: c.ID}
			b.pairs = append(b.pairs, p)
			b.owed[p] = 0
		}
	}
	return b
}

// AggregateBalances converts expenses and already-settled records into
// per-direction balances. Directions are not netted against each other.
//
// Algorithm:
//   - Every ordered roster pair starts at zero
//   - For each split (m, amt) with m != payer and amt above money.Tolerance,
//     m owes the payer amt
//   - Each Settled record (from, to, amt) reduces what from owes to
//   - Results at or below money.Tolerance clamp to zero
//
// Member IDs missing from the roster are kept (appended after the roster
// pairs) and reported as DiagUnknownMember. Records that are not Settled are
// ignored. The function is pure apart from logging diagnostics.
func AggregateBalances(members []models.Member, expenses []models.Expense, settledRecords []models.SettlementRecord) (*BalanceMap, error) {
	if members == nil {
		return nil, fmt.Errorf("%w: members is nil", ErrInvalidInput)
	}

	groupID, err := commonGroupID(expenses, settledRecords)
	if err != nil {
		return nil, err
	}

	b := newBalanceMap(groupID, members)

	for _, e := range expenses {
		payer := e.PaidBy
		b.checkMember(payer, Diagnostic{Kind: DiagUnknownMember, ExpenseID: e.ID, MemberID: payer})

		if residual := e.Amount.Sub(e.SplitTotal()); !residual.IsZero() {
			b.report(Diagnostic{Kind: DiagSplitMismatch, ExpenseID: e.ID, Residual: residual})
		}

		for _, split := range e.Splits {
			// Paying your own share is not a debt.
			if split.MemberID == payer {
				continue
			}
			if split.Amount.Cmp(money.Tolerance) <= 0 {
				continue
			}
			b.checkMember(split.MemberID, Diagnostic{Kind: DiagUnknownMember, ExpenseID: e.ID, MemberID: split.MemberID})
			b.add(Pair{From: split.MemberID, To: payer}, split.Amount)
		}
	}

	for _, r := range settledRecords {
		if r.Status != models.StatusSettled || r.From == r.To {
			continue
		}
		b.checkMember(r.From, Diagnostic{Kind: DiagUnknownMember, RecordID: r.ID, MemberID: r.From})
		b.checkMember(r.To, Diagnostic{Kind: DiagUnknownMember, RecordID: r.ID, MemberID: r.To})
		b.add(Pair{From: r.From, To: r.To}, r.Amount.Neg())
		if r.ID != "" {
			b.applied[r.ID] = true
		}
	}

	for p, owed := range b.owed {
		if owed.Cmp(money.Tolerance) <= 0 {
			b.owed[p] = 0
		}
	}

	return b, nil
}

// commonGroupID returns the single group referenced by the inputs.
func commonGroupID(expenses []models.Expense, records []models.SettlementRecord) (string, error) {
	groupID := ""
	check := func(id, what string) error {
		if id == "" {
			return nil
		}
		if groupID == "" {
			groupID = id
			return nil
		}
		if id != groupID {
			return fmt.Errorf("%w: %s belongs to group %s, expected %s", ErrInvalidInput, what, id, groupID)
		}
		return nil
	}
	for _, e := range expenses {
		if err := check(e.GroupID, "expense "+e.ID); err != nil {
			return "", err
		}
	}
	for _, r := range records {
		if err := check(r.GroupID, "settlement "+r.ID); err != nil {
			return "", err
		}
	}
	return groupID, nil
}

func (b *BalanceMap) add(p Pair, amount money.Money) {
	if _, ok := b.owed[p]; !ok {
		b.pairs = append(b.pairs, p)
	}
	b.owed[p] = b.owed[p].Add(amount)
}

func (b *BalanceMap) checkMember(id string, d Diagnostic) {
	if _, ok := b.members[id]; ok {
		return
	}
	b.report(d)
}

func (b *BalanceMap) report(d Diagnostic) {
	if b.seen[d] {
		return
	}
	b.seen[d] = true
	b.Diagnostics = append(b.Diagnostics, d)
	slog.Warn("Balance aggregation diagnostic",
		"group_id", b.GroupID,
		"kind", d.Kind,
		"error", d.Error(),
	)
}

// Pairs returns every ordered pair in deterministic order: roster pairs
// first, then pairs involving unknown members in first-seen order.
func (b *BalanceMap) Pairs() []Pair {
	out := make([]Pair, len(b.pairs))
	copy(out, b.pairs)
	return out
}

// Owed returns what from still owes to. Unknown pairs owe zero.
func (b *BalanceMap) Owed(from, to string) money.Money {
	return b.owed[Pair{From: from, To: to}]
}

// Has reports whether the pair is represented in the map.
func (b *BalanceMap) Has(from, to string) bool {
	_, ok := b.owed[Pair{From: from, To: to}]
	return ok
}

// Balances returns all pairwise balances, including zero ones, in pair order.
func (b *BalanceMap) Balances() []PairwiseBalance {
	out := make([]PairwiseBalance, len(b.pairs))
	for i, p := range b.pairs {
		out[i] = PairwiseBalance{From: p.From, To: p.To, GrossOwed: b.owed[p]}
	}
	return out
}

// Outstanding returns only balances above money.Tolerance, in pair order.
func (b *BalanceMap) Outstanding() []PairwiseBalance {
	var out []PairwiseBalance
	for _, p := range b.pairs {
		if owed := b.owed[p]; !owed.Negligible() {
			out = append(out, PairwiseBalance{From: p.From, To: p.To, GrossOwed: owed})
		}
	}
	return out
}

// Total sums every pairwise balance.
func (b *BalanceMap) Total() money.Money {
	var total money.Money
	for _, p := range b.pairs {
		total = total.Add(b.owed[p])
	}
	return total
}

// Member resolves an ID against the roster. Unknown IDs and members without
// a name resolve to UnknownMemberName.
func (b *BalanceMap) Member(id string) models.Member {
	if m, ok := b.members[id]; ok && m.Name != "" {
		return m
	}
	return models.Member{ID: id, Name: UnknownMemberName}
}

// Applied reports whether a settled record was subtracted by the aggregator.
func (b *BalanceMap) Applied(recordID string) bool {
	return b.applied[recordID]
}

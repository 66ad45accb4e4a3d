package calculator

import (
	"sort"
	"strings"

	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
)

// SettlementInstruction is a computed recommendation that From pays To.
type SettlementInstruction struct {
	// ID is the mirrored record's ID when Persisted, otherwise a synthetic ID
	// built by SyntheticID.
	ID string `json:"id"`

	From   models.Member           `json:"from"`
	To     models.Member           `json:"to"`
	Amount money.Money             `json:"amount"`
	Status models.SettlementStatus `json:"status"`

	// Persisted is true when the instruction mirrors a stored
	// SettlementRecord. Acting on a non-persisted instruction must create a
	// new record.
	Persisted bool `json:"persisted"`
}

// SyntheticID returns the ID of an instruction that has no stored record.
// It is stable for the same group, pair and amount.
func SyntheticID(groupID, from, to string, amount money.Money) string {
	return strings.Join([]string{groupID, from, to, amount.String()}, ":")
}

type dedupKey struct {
	from, to string
	cents    int64
	status   models.SettlementStatus
}

// SimplifySettlements turns pairwise balances and the group's settlement
// history (Pending and Settled) into status-tagged instructions, one per
// ordered pair with an outstanding balance plus one per completed settlement.
//
// Debts are never netted across members: if A owes B and B owes C, both
// instructions are emitted.
//
// Algorithm:
//   - Owed above tolerance: Pending for the owed amount, unless a Settled
//     record the aggregator did not see covers exactly that amount, in which
//     case the pair is done and that record is shown as Settled
//   - Owed at or below tolerance with settled history above tolerance: one
//     Settled instruction per settled record
//   - Instructions mirroring a stored record reuse its ID; others get a
//     SyntheticID
//   - Deduplicate by (from, to, cents, status), first occurrence wins
//
// It never fails and returns an empty slice when nothing is owed or settled.
func SimplifySettlements(balances *BalanceMap, allRecords []models.SettlementRecord) []SettlementInstruction {
	out := []SettlementInstruction{}
	if balances == nil {
		return out
	}

	records := make([]models.SettlementRecord, 0, len(allRecords))
	for _, r := range allRecords {
		if balances.GroupID != "" && r.GroupID != "" && r.GroupID != balances.GroupID {
			continue
		}
		if r.From == r.To || !r.Status.Valid() {
			continue
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})

	byPair := make(map[Pair][]models.SettlementRecord)
	pairs := balances.Pairs()
	for _, r := range records {
		p := Pair{From: r.From, To: r.To}
		if _, ok := byPair[p]; !ok && !balances.Has(p.From, p.To) {
			pairs = append(pairs, p)
		}
		byPair[p] = append(byPair[p], r)
	}

	seen := make(map[dedupKey]bool)
	emit := func(in SettlementInstruction) {
		k := dedupKey{from: in.From.ID, to: in.To.ID, cents: in.Amount.RoundTo(money.Scale).Cents(), status: in.Status}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, in)
	}
	mirror := func(r models.SettlementRecord, amount money.Money) SettlementInstruction {
		return SettlementInstruction{
			ID:        r.ID,
			From:      balances.Member(r.From),
			To:        balances.Member(r.To),
			Amount:    amount,
			Status:    r.Status,
			Persisted: true,
		}
	}

	for _, p := range pairs {
		owed := balances.Owed(p.From, p.To)
		history := byPair[p]

		if !owed.Negligible() {
			if r, ok := coveringSettlement(balances, history, owed); ok {
				emit(mirror(r, r.Amount))
				continue
			}
			if r, ok := matchingPending(history, owed); ok {
				emit(mirror(r, owed))
				continue
			}
			emit(SettlementInstruction{
				ID:     SyntheticID(balances.GroupID, p.From, p.To, owed),
				From:   balances.Member(p.From),
				To:     balances.Member(p.To),
				Amount: owed,
				Status: models.StatusPending,
			})
			continue
		}

		var settled money.Money
		for _, r := range history {
			if r.IsSettled() {
				settled = settled.Add(r.Amount)
			}
		}
		if settled.Negligible() {
			continue
		}
		for _, r := range history {
			if r.IsSettled() && !r.Amount.Negligible() {
				emit(mirror(r, r.Amount))
			}
		}
	}

	return out
}

// coveringSettlement finds a Settled record that was not already subtracted
// by the aggregator and pays exactly the owed amount. This happens when a
// settle lands between reading expenses and reading settlement history.
func coveringSettlement(b *BalanceMap, history []models.SettlementRecord, owed money.Money) (models.SettlementRecord, bool) {
	for _, r := range history {
		if r.IsSettled() && !b.Applied(r.ID) && money.ApproxEqual(r.Amount, owed) {
			return r, true
		}
	}
	return models.SettlementRecord{}, false
}

// matchingPending returns the most recent Pending record for the owed amount.
func matchingPending(history []models.SettlementRecord, owed money.Money) (models.SettlementRecord, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		r := history[i]
		if r.Status == models.StatusPending && money.ApproxEqual(r.Amount, owed) {
			return r, true
		}
	}
	return models.SettlementRecord{}, false
}

package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
)

// SplitEqually divides amount among members in exact cents. Leftover cents go
// one each to the first members in the given order, so the splits always
// sum to amount.
func SplitEqually(amount money.Money, memberIDs []string) ([]models.Split, error) {
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: must have at least one member", ErrInvalidInput)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount cannot be negative", ErrInvalidInput)
	}

	n := int64(len(memberIDs))
	share := amount.Cents() / n
	remainder := amount.Cents() % n

	splits := make([]models.Split, len(memberIDs))
	for i, id := range memberIDs {
		cents := share
		if int64(i) < remainder {
			cents++
		}
		splits[i] = models.Split{MemberID: id, Amount: money.FromCents(cents)}
	}
	return splits, nil
}

// SplitProportional scales each member's base share (e.g. their pre-tax item
// subtotal) so the shares sum to total, which spreads tax, tip and fees in
// proportion to what each member consumed:
//
//	person_total = person_subtotal × (total / subtotal)
//
// Rounding uses the largest-remainder method so the result sums exactly to
// total. Ties go to the earlier member.
func SplitProportional(total money.Money, bases []models.Split) ([]models.Split, error) {
	if len(bases) == 0 {
		return nil, fmt.Errorf("%w: must have at least one member", ErrInvalidInput)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: total cannot be negative", ErrInvalidInput)
	}

	var subtotal money.Money
	for _, b := range bases {
		if b.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: share for %s cannot be negative", ErrInvalidInput, b.MemberID)
		}
		subtotal = subtotal.Add(b.Amount)
	}
	if subtotal.IsZero() {
		return nil, fmt.Errorf("%w: subtotal cannot be zero", ErrInvalidInput)
	}

	// share × total can exceed int64 cents, so the product is exact decimal.
	// The quotient is at most total and the remainder below subtotal.
	divisor := decimal.NewFromInt(subtotal.Cents())
	totalCents := decimal.NewFromInt(total.Cents())

	splits := make([]models.Split, len(bases))
	remainders := make([]int64, len(bases))
	assigned := int64(0)
	for i, b := range bases {
		q, r := decimal.NewFromInt(b.Amount.Cents()).Mul(totalCents).QuoRem(divisor, 0)
		cents := q.IntPart()
		remainders[i] = r.IntPart()
		splits[i] = models.Split{MemberID: b.MemberID, Amount: money.FromCents(cents)}
		assigned += cents
	}

	for left := total.Cents() - assigned; left > 0; left-- {
		best := 0
		for i := 1; i < len(remainders); i++ {
			if remainders[i] > remainders[best] {
				best = i
			}
		}
		splits[best].Amount = splits[best].Amount.Add(money.FromCents(1))
		remainders[best] = -1
	}

	return splits, nil
}

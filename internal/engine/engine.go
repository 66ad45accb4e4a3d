// Package engine runs the settlement pipeline against a storage.Store and
// implements the mark-settled protocol on top of its conditional writes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/settlewise/internal/calculator"
	"github.com/mmynk/settlewise/internal/metrics"
	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
	"github.com/mmynk/settlewise/internal/storage"
)

const (
	// DefaultMaxRetries is the number of MarkSettled attempts when none is
	// configured.
	DefaultMaxRetries = 3

	minRetries = 1
	maxRetries = 5
)

// ErrAlreadySettled is returned when a pair has nothing outstanding but does
// have settled history. It matches storage.ErrConflict.
var ErrAlreadySettled = fmt.Errorf("already settled: %w", storage.ErrConflict)

// View is the computed state of one group.
type View struct {
	GroupID     string                             `json:"group_id"`
	Members     []models.Member                    `json:"members"`
	Balances    []calculator.PairwiseBalance       `json:"balances"`
	Settlements []calculator.SettlementInstruction `json:"settlements"`
	Diagnostics []calculator.Diagnostic            `json:"diagnostics,omitempty"`
	TotalOwed   money.Money                        `json:"total_owed"`
	ComputedAt  int64                              `json:"computed_at"`
}

// Member resolves id against the view's roster, falling back to the unknown
// member placeholder.
func (v *View) Member(id string) models.Member {
	for _, m := range v.Members {
		if m.ID == id && m.Name != "" {
			return m
		}
	}
	return models.Member{ID: id, Name: calculator.UnknownMemberName}
}

// Engine reads groups from a Store and computes their balances and
// settlements.
type Engine struct {
	store      storage.Store
	maxRetries int
	metrics    *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRetries bounds MarkSettled attempts. Values are clamped to 1..5.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		e.maxRetries = clampRetries(n)
	}
}

// WithMetrics records engine activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine over store.
func New(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func clampRetries(n int) int {
	if n < minRetries {
		return minRetries
	}
	if n > maxRetries {
		return maxRetries
	}
	return n
}

// snapshot is one consistent-enough read of a group plus the pipeline output.
type snapshot struct {
	group        *models.Group
	records      []models.SettlementRecord
	balances     *calculator.BalanceMap
	instructions []calculator.SettlementInstruction
}

// load reads the roster, expenses and settlement history, then runs the
// pipeline. Expenses are read before settlement records.
func (e *Engine) load(ctx context.Context, groupID, trigger string) (*snapshot, error) {
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	expenses, err := e.store.GetExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	records, err := e.store.GetSettlementRecords(ctx, groupID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	settled := make([]models.SettlementRecord, 0, len(records))
	for _, r := range records {
		if r.IsSettled() {
			settled = append(settled, r)
		}
	}

	balances, err := calculator.AggregateBalances(group.Members, expenses, settled)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate balances for group %s: %w", groupID, err)
	}
	if balances.GroupID == "" {
		balances.GroupID = groupID
	}
	instructions := calculator.SimplifySettlements(balances, records)

	e.metrics.ObserveCompute(trigger, time.Since(start))
	for _, d := range balances.Diagnostics {
		e.metrics.ObserveDiagnostic(string(d.Kind))
	}

	return &snapshot{
		group:        group,
		records:      records,
		balances:     balances,
		instructions: instructions,
	}, nil
}

func (s *snapshot) view() *View {
	return &View{
		GroupID:     s.group.ID,
		Members:     s.group.Members,
		Balances:    s.balances.Balances(),
		Settlements: s.instructions,
		Diagnostics: s.balances.Diagnostics,
		TotalOwed:   s.balances.Total(),
		ComputedAt:  time.Now().Unix(),
	}
}

// pairRecords returns the records of the ordered pair, oldest first.
func (s *snapshot) pairRecords(from, to string) []models.SettlementRecord {
	var out []models.SettlementRecord
	for _, r := range s.records {
		if r.From == from && r.To == to {
			out = append(out, r)
		}
	}
	return out
}

// Settlements computes the current view of a group.
func (e *Engine) Settlements(ctx context.Context, groupID string) (*View, error) {
	snap, err := e.load(ctx, groupID, "request")
	if err != nil {
		return nil, err
	}
	return snap.view(), nil
}

// MarkSettled records that from paid to what it owes in groupID.
//
// An existing Pending record for the pair is transitioned to Settled;
// otherwise a new Settled record is created for the outstanding amount. Both
// writes are conditioned on the state just read. A lost race re-reads and
// re-evaluates, up to the configured number of attempts; a re-read that
// finds the pair already settled returns ErrAlreadySettled instead of
// writing again. Returns storage.ErrNotFound when nothing is owed and
// nothing was ever settled.
func (e *Engine) MarkSettled(ctx context.Context, groupID, from, to, settledBy string) (*models.SettlementRecord, error) {
	if err := validatePair(groupID, from, to); err != nil {
		return nil, err
	}

	record, err := e.retry(ctx, "MarkSettled", groupID, func() (*models.SettlementRecord, error) {
		return e.settleOnce(ctx, groupID, from, to, settledBy)
	})
	e.metrics.ObserveSettle(settleOutcome(err))
	if err != nil {
		return nil, err
	}

	slog.Info("Settlement recorded",
		"group_id", groupID,
		"record_id", record.ID,
		"from", from,
		"to", to,
		"amount", record.Amount.String(),
	)
	return record, nil
}

func (e *Engine) settleOnce(ctx context.Context, groupID, from, to, settledBy string) (*models.SettlementRecord, error) {
	snap, err := e.load(ctx, groupID, "settle")
	if err != nil {
		return nil, err
	}

	owed := snap.balances.Owed(from, to)
	history := snap.pairRecords(from, to)
	hasSettled := false
	for _, r := range history {
		if r.IsSettled() {
			hasSettled = true
		}
	}

	if pending, ok := pendingFor(history, owed); ok && (!owed.Negligible() || !hasSettled) {
		record := pending
		record.Status = models.StatusSettled
		record.SettledBy = settledBy
		record.SettledAt = 0
		if !owed.Negligible() {
			record.Amount = owed
		}
		if err := e.store.WriteSettlementRecord(ctx, &record, storage.Precondition{Status: models.StatusPending}); err != nil {
			return nil, err
		}
		return &record, nil
	}

	if !owed.Negligible() {
		record := &models.SettlementRecord{
			GroupID:   groupID,
			From:      from,
			To:        to,
			Amount:    owed,
			Status:    models.StatusSettled,
			SettledBy: settledBy,
		}
		if err := e.store.WriteSettlementRecord(ctx, record, storage.Precondition{PairRecords: len(history)}); err != nil {
			return nil, err
		}
		return record, nil
	}

	if hasSettled {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrAlreadySettled)
	}
	return nil, fmt.Errorf("nothing owed from %s to %s: %w", from, to, storage.ErrNotFound)
}

// RequestPayment persists a Pending record asking from to pay what it owes
// to. An existing Pending record for the same amount is returned unchanged.
func (e *Engine) RequestPayment(ctx context.Context, groupID, from, to string) (*models.SettlementRecord, error) {
	if err := validatePair(groupID, from, to); err != nil {
		return nil, err
	}

	return e.retry(ctx, "RequestPayment", groupID, func() (*models.SettlementRecord, error) {
		snap, err := e.load(ctx, groupID, "request_payment")
		if err != nil {
			return nil, err
		}

		owed := snap.balances.Owed(from, to)
		if owed.Negligible() {
			return nil, fmt.Errorf("nothing owed from %s to %s: %w", from, to, storage.ErrNotFound)
		}

		history := snap.pairRecords(from, to)
		for i := len(history) - 1; i >= 0; i-- {
			r := history[i]
			if r.Status == models.StatusPending && money.ApproxEqual(r.Amount, owed) {
				return &r, nil
			}
		}

		record := &models.SettlementRecord{
			GroupID: groupID,
			From:    from,
			To:      to,
			Amount:  owed,
			Status:  models.StatusPending,
		}
		if err := e.store.WriteSettlementRecord(ctx, record, storage.Precondition{PairRecords: len(history)}); err != nil {
			return nil, err
		}
		return record, nil
	})
}

// retry runs attempt until it succeeds, fails with something other than a
// write conflict, or the attempt budget is spent. ErrAlreadySettled is final.
func (e *Engine) retry(ctx context.Context, op, groupID string, attempt func() (*models.SettlementRecord, error)) (*models.SettlementRecord, error) {
	var lastErr error
	for i := 1; i <= e.maxRetries; i++ {
		record, err := attempt()
		if err == nil {
			return record, nil
		}
		lastErr = err
		if !errors.Is(err, storage.ErrConflict) || errors.Is(err, ErrAlreadySettled) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		slog.Warn("Settlement write conflict",
			"op", op,
			"group_id", groupID,
			"attempt", i,
			"max_attempts", e.maxRetries,
			"error", err,
		)
		if i < e.maxRetries {
			e.metrics.ObserveRetry()
		}
	}
	return nil, lastErr
}

// pendingFor picks the Pending record a settle acts on: the most recent one
// matching the owed amount, else the most recent one.
func pendingFor(history []models.SettlementRecord, owed money.Money) (models.SettlementRecord, bool) {
	var latest *models.SettlementRecord
	for i := len(history) - 1; i >= 0; i-- {
		r := history[i]
		if r.Status != models.StatusPending {
			continue
		}
		if money.ApproxEqual(r.Amount, owed) {
			return r, true
		}
		if latest == nil {
			latest = &history[i]
		}
	}
	if latest == nil {
		return models.SettlementRecord{}, false
	}
	return *latest, true
}

func validatePair(groupID, from, to string) error {
	if groupID == "" || from == "" || to == "" {
		return fmt.Errorf("%w: group, from and to are required", calculator.ErrInvalidInput)
	}
	if from == to {
		return fmt.Errorf("%w: cannot settle with yourself", calculator.ErrInvalidInput)
	}
	return nil
}

func settleOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSettled
	case errors.Is(err, storage.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, storage.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settlewise/internal/calculator"
	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/money"
	"github.com/mmynk/settlewise/internal/storage"
	"github.com/mmynk/settlewise/internal/storage/sqlite"
)

func setupTestStore(t *testing.T) (*sqlite.SQLiteStore, *models.Group) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	group := &models.Group{
		Name: "Trip",
		Members: []models.Member{
			{ID: "a", Name: "Alice"},
			{ID: "b", Name: "Bob"},
			{ID: "c", Name: "Charlie"},
		},
	}
	require.NoError(t, store.CreateGroup(context.Background(), group))
	return store, group
}

func addEqualExpense(t *testing.T, store storage.Store, groupID, payer, amount string, members ...string) *models.Expense {
	t.Helper()

	total := money.MustParse(amount)
	splits, err := calculator.SplitEqually(total, members)
	require.NoError(t, err)

	expense := &models.Expense{
		GroupID:     groupID,
		Description: "Dinner",
		Amount:      total,
		PaidBy:      payer,
		Splits:      splits,
	}
	require.NoError(t, store.CreateExpense(context.Background(), expense))
	return expense
}

func countStatus(instructions []calculator.SettlementInstruction, status models.SettlementStatus) int {
	n := 0
	for _, in := range instructions {
		if in.Status == status {
			n++
		}
	}
	return n
}

func findInstruction(instructions []calculator.SettlementInstruction, from, to string, status models.SettlementStatus) (calculator.SettlementInstruction, bool) {
	for _, in := range instructions {
		if in.From.ID == from && in.To.ID == to && in.Status == status {
			return in, true
		}
	}
	return calculator.SettlementInstruction{}, false
}

func TestEngine_Settlements(t *testing.T) {
	store, group := setupTestStore(t)
	ctx := context.Background()
	e := New(store)

	t.Run("empty group", func(t *testing.T) {
		view, err := e.Settlements(ctx, group.ID)
		require.NoError(t, err)
		assert.Empty(t, view.Settlements)
		assert.Len(t, view.Balances, 6, "every ordered pair is present")
	})

	addEqualExpense(t, store, group.ID, "a", "90.00", "a", "b", "c")

	t.Run("equal split paid by one member", func(t *testing.T) {
		view, err := e.Settlements(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, view.Settlements, 2)
		require.Equal(t, 2, countStatus(view.Settlements, models.StatusPending))

		for _, from := range []string{"b", "c"} {
			in, ok := findInstruction(view.Settlements, from, "a", models.StatusPending)
			require.True(t, ok, "missing pending %s->a", from)
			assert.Equal(t, money.MustParse("30.00"), in.Amount)
			assert.False(t, in.Persisted, "%s->a should be synthetic", from)
			assert.Equal(t, "Alice", in.To.Name)
		}
		assert.Equal(t, money.MustParse("60.00"), view.TotalOwed)
	})

	t.Run("missing group", func(t *testing.T) {
		_, err := e.Settlements(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestEngine_MarkSettled(t *testing.T) {
	store, group := setupTestStore(t)
	ctx := context.Background()
	e := New(store)
	addEqualExpense(t, store, group.ID, "a", "90.00", "a", "b", "c")

	t.Run("synthetic instruction creates settled record", func(t *testing.T) {
		record, err := e.MarkSettled(ctx, group.ID, "b", "a", "a")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSettled, record.Status)
		assert.Equal(t, money.MustParse("30.00"), record.Amount)
		assert.Equal(t, "a", record.SettledBy)
		assert.NotZero(t, record.SettledAt)
		assert.EqualValues(t, 1, record.Version)

		view, err := e.Settlements(ctx, group.ID)
		require.NoError(t, err)
		_, ok := findInstruction(view.Settlements, "c", "a", models.StatusPending)
		assert.True(t, ok, "expected pending c->a, got %+v", view.Settlements)

		in, ok := findInstruction(view.Settlements, "b", "a", models.StatusSettled)
		require.True(t, ok, "expected settled b->a, got %+v", view.Settlements)
		assert.True(t, in.Persisted)
		assert.Equal(t, record.ID, in.ID)
	})

	t.Run("second settle reports already settled", func(t *testing.T) {
		_, err := e.MarkSettled(ctx, group.ID, "b", "a", "b")
		assert.ErrorIs(t, err, ErrAlreadySettled)
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("pending request is transitioned in place", func(t *testing.T) {
		requested, err := e.RequestPayment(ctx, group.ID, "c", "a")
		require.NoError(t, err)

		view, err := e.Settlements(ctx, group.ID)
		require.NoError(t, err)
		in, ok := findInstruction(view.Settlements, "c", "a", models.StatusPending)
		require.True(t, ok)
		require.True(t, in.Persisted)
		require.Equal(t, requested.ID, in.ID)

		settled, err := e.MarkSettled(ctx, group.ID, "c", "a", "a")
		require.NoError(t, err)
		assert.Equal(t, requested.ID, settled.ID, "the pending record is updated")
		assert.EqualValues(t, 2, settled.Version)

		records, err := store.GetSettlementRecords(ctx, group.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("nothing owed", func(t *testing.T) {
		_, err := e.MarkSettled(ctx, group.ID, "a", "b", "a")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("invalid pair", func(t *testing.T) {
		_, err := e.MarkSettled(ctx, group.ID, "a", "a", "a")
		assert.ErrorIs(t, err, calculator.ErrInvalidInput)
	})
}

func TestEngine_SettleConvergence(t *testing.T) {
	store, group := setupTestStore(t)
	ctx := context.Background()
	e := New(store)

	addEqualExpense(t, store, group.ID, "a", "90.00", "a", "b", "c")
	addEqualExpense(t, store, group.ID, "b", "45.00", "a", "b", "c")
	addEqualExpense(t, store, group.ID, "c", "10.00", "a", "b")

	view, err := e.Settlements(ctx, group.ID)
	require.NoError(t, err)
	require.NotZero(t, countStatus(view.Settlements, models.StatusPending))

	for _, in := range view.Settlements {
		if in.Status != models.StatusPending {
			continue
		}
		_, err := e.MarkSettled(ctx, group.ID, in.From.ID, in.To.ID, in.To.ID)
		require.NoError(t, err, "MarkSettled %s->%s", in.From.ID, in.To.ID)
	}

	view, err = e.Settlements(ctx, group.ID)
	require.NoError(t, err)
	assert.Zero(t, countStatus(view.Settlements, models.StatusPending), "%+v", view.Settlements)
	assert.True(t, view.TotalOwed.IsZero(), "nothing should be owed, got %s", view.TotalOwed)
}

func TestEngine_ConcurrentMarkSettled(t *testing.T) {
	store, group := setupTestStore(t)
	ctx := context.Background()
	e := New(store)
	addEqualExpense(t, store, group.ID, "a", "90.00", "a", "b", "c")

	const callers = 8
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.MarkSettled(ctx, group.ID, "b", "a", "a")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, storage.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load(), "exactly one caller wins")
	assert.EqualValues(t, callers-1, conflicts.Load())

	records, err := store.GetSettlementRecords(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// conflictStore loses every settlement write.
type conflictStore struct {
	storage.Store
	writes atomic.Int32
}

func (s *conflictStore) WriteSettlementRecord(context.Context, *models.SettlementRecord, storage.Precondition) error {
	s.writes.Add(1)
	return storage.ErrConflict
}

func TestEngine_MarkSettledRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantWrites int32
	}{
		{"default", 0, DefaultMaxRetries},
		{"configured", 4, 4},
		{"clamped high", 10, 5},
		{"clamped low", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, group := setupTestStore(t)
			addEqualExpense(t, base, group.ID, "a", "90.00", "a", "b", "c")

			store := &conflictStore{Store: base}
			var opts []Option
			if tt.maxRetries != 0 {
				opts = append(opts, WithMaxRetries(tt.maxRetries))
			}
			e := New(store, opts...)

			_, err := e.MarkSettled(context.Background(), group.ID, "b", "a", "a")
			assert.ErrorIs(t, err, storage.ErrConflict)
			assert.NotErrorIs(t, err, ErrAlreadySettled, "lost races are not already settled")
			assert.Equal(t, tt.wantWrites, store.writes.Load())
		})
	}
}

func TestEngine_RequestPayment(t *testing.T) {
	store, group := setupTestStore(t)
	ctx := context.Background()
	e := New(store)
	addEqualExpense(t, store, group.ID, "a", "90.00", "a", "b", "c")

	first, err := e.RequestPayment(ctx, group.ID, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, money.MustParse("30.00"), first.Amount)

	second, err := e.RequestPayment(ctx, group.ID, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeated requests return the open record")

	_, err = e.RequestPayment(ctx, group.ID, "a", "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPendingFor(t *testing.T) {
	pending := func(id, amount string) models.SettlementRecord {
		return models.SettlementRecord{ID: id, Amount: money.MustParse(amount), Status: models.StatusPending}
	}
	history := []models.SettlementRecord{
		pending("p1", "30.00"),
		pending("p2", "10.00"),
		{ID: "s1", Amount: money.MustParse("5.00"), Status: models.StatusSettled},
	}

	tests := []struct {
		name   string
		owed   string
		wantID string
	}{
		{"matching amount", "30.01", "p1"},
		{"latest otherwise", "50.00", "p2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pendingFor(history, money.MustParse(tt.owed))
			require.True(t, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	_, ok := pendingFor(history[2:], 0)
	assert.False(t, ok)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/storage"
)

// GetSettlementRecords retrieves a group's settlement history, oldest first.
func (s *SQLiteStore) GetSettlementRecords(ctx context.Context, groupID string) ([]models.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, from_id, to_id, amount, status, created_at, settled_at, settled_by, version
		 FROM settlement_records WHERE group_id = ? ORDER BY created_at, rowid`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement records: %w", err)
	}
	defer rows.Close()

	var records []models.SettlementRecord
	for rows.Next() {
		var r models.SettlementRecord
		var status string
		var settledAt sql.NullInt64
		var settledBy sql.NullString

		if err := rows.Scan(&r.ID, &r.GroupID, &r.From, &r.To, &r.Amount, &status,
			&r.CreatedAt, &settledAt, &settledBy, &r.Version); err != nil {
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}

		r.Status, err = models.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("settlement record %s: %w", r.ID, err)
		}
		if settledAt.Valid {
			r.SettledAt = settledAt.Int64
		}
		if settledBy.Valid {
			r.SettledBy = settledBy.String
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlement records: %w", err)
	}

	return records, nil
}

// WriteSettlementRecord inserts or conditionally updates a settlement record.
//
// Inserts (record.Version == 0) succeed only if the (group, from, to) triple
// still holds cond.PairRecords records. Updates succeed only if the stored
// record still has record.Version and cond.Status. Either way a lost race
// returns storage.ErrConflict and leaves the table unchanged. Settled
// records are final and cannot be updated.
func (s *SQLiteStore) WriteSettlementRecord(ctx context.Context, record *models.SettlementRecord, cond storage.Precondition) error {
	if record.Status == models.StatusSettled && record.SettledAt == 0 {
		record.SettledAt = time.Now().Unix()
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if record.Version == 0 {
		if err := s.insertSettlement(ctx, record, cond); err != nil {
			return err
		}
	} else {
		if err := s.updateSettlement(ctx, record, cond); err != nil {
			return err
		}
	}

	s.publish(ctx, storage.Change{GroupID: record.GroupID, Kind: storage.ChangeSettlement, ID: record.ID})
	return nil
}

func (s *SQLiteStore) insertSettlement(ctx context.Context, record *models.SettlementRecord, cond storage.Precondition) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO settlement_records
		 (id, group_id, from_id, to_id, amount, status, created_at, settled_at, settled_by, version)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, 1
		 WHERE (SELECT COUNT(*) FROM settlement_records
		        WHERE group_id = ? AND from_id = ? AND to_id = ?) = ?`,
		record.ID, record.GroupID, record.From, record.To, record.Amount, string(record.Status),
		record.CreatedAt, nullInt(record.SettledAt), nullString(record.SettledBy),
		record.GroupID, record.From, record.To, cond.PairRecords,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("settlement %s->%s changed concurrently: %w", record.From, record.To, storage.ErrConflict)
	}

	record.Version = 1
	return nil
}

func (s *SQLiteStore) updateSettlement(ctx context.Context, record *models.SettlementRecord, cond storage.Precondition) error {
	if cond.Status != models.StatusPending {
		return fmt.Errorf("%w: only pending settlements can be updated", models.ErrInvalidRecord)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE settlement_records
		 SET amount = ?, status = ?, settled_at = ?, settled_by = ?, version = version + 1
		 WHERE id = ? AND group_id = ? AND from_id = ? AND to_id = ? AND version = ? AND status = ?`,
		record.Amount, string(record.Status), nullInt(record.SettledAt), nullString(record.SettledBy),
		record.ID, record.GroupID, record.From, record.To, record.Version, string(cond.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update settlement record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM settlement_records WHERE id = ?", record.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("settlement %s: %w", record.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check settlement existence: %w", err)
		}
		return fmt.Errorf("settlement %s changed concurrently: %w", record.ID, storage.ErrConflict)
	}

	record.Version++
	return nil
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

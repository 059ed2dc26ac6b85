package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

// Store persists ledger entries in income_expense_items.
// Amounts are stored as integer cents; a NULL amount reads back as zero.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Expected column order: id, user_id, description, amount, isActive, type, created_at, updated_at
const selectEntryColumns = `id, user_id, description, amount, isActive, type, created_at, updated_at`

func scanEntry(s scanner) (*ledger.Entry, error) {
	var (
		e       ledger.Entry
		cents   sql.NullInt64
		kind    string
		updated sql.NullTime
	)

	if err := s.Scan(&e.ID, &e.OwnerID, &e.Description, &cents, &e.Active, &kind, &e.CreatedAt, &updated); err != nil {
		return nil, err
	}

	e.Amount = fromCents(cents.Int64)
	e.Kind = ledger.Kind(kind)

	if updated.Valid {
		e.UpdatedAt = &updated.Time
	}

	return &e, nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(ledger.MaxAmountScale).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -ledger.MaxAmountScale)
}

func storageErr(op string, err error) error {
	return &ledger.StorageError{Op: op, Err: err}
}

func (s *Store) CreateEntry(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO income_expense_items (id, user_id, description, amount, isActive, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		id,
		e.OwnerID,
		e.Description,
		toCents(e.Amount),
		e.Active,
		string(e.Kind),
		now,
	)
	if err != nil {
		return storageErr("inserting entry", err)
	}

	e.ID = id
	e.CreatedAt = now

	return nil
}

func (s *Store) GetEntry(ctx context.Context, ownerID string, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + `
		FROM income_expense_items
		WHERE id = $1 AND user_id = $2`

	e, err := scanEntry(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, storageErr("getting entry", err)
	}

	return e, nil
}

// UpdateEntry replaces description, amount and active flag. Kind is immutable and never written.
func (s *Store) UpdateEntry(ctx context.Context, e *ledger.Entry) error {
	query := `
		UPDATE income_expense_items
		SET description = $1, amount = $2, isActive = $3, updated_at = $4
		WHERE id = $5 AND user_id = $6
	`

	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, query,
		e.Description,
		toCents(e.Amount),
		e.Active,
		now,
		e.ID,
		e.OwnerID,
	)
	if err != nil {
		return storageErr("updating entry", err)
	}

	if err := expectOneRow(res); err != nil {
		return err
	}

	e.UpdatedAt = &now

	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, ownerID string, id uuid.UUID) error {
	query := `DELETE FROM income_expense_items WHERE id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return storageErr("deleting entry", err)
	}

	return expectOneRow(res)
}

func (s *Store) ListByOwnerAndKind(ctx context.Context, ownerID string, kind ledger.Kind) ([]*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + `
		FROM income_expense_items
		WHERE user_id = $1 AND type = $2
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID, string(kind))
	if err != nil {
		return nil, storageErr("listing entries", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr("scanning entry", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating entries", err)
	}

	return entries, nil
}

func (s *Store) SumActiveAmount(ctx context.Context, ownerID string, kind ledger.Kind) (decimal.Decimal, error) {
	query := `
		SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT)
		FROM income_expense_items
		WHERE user_id = $1 AND type = $2 AND isActive = TRUE
	`

	var cents int64
	if err := s.db.QueryRowContext(ctx, query, ownerID, string(kind)).Scan(&cents); err != nil {
		return decimal.Zero, storageErr("summing entries", err)
	}

	return fromCents(cents), nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("reading affected rows", err)
	}

	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

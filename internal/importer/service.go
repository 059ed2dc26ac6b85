package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

// Ledger is the write side of ledger.Service used by imports.
type Ledger interface {
	Add(ctx context.Context, params ledger.AddParams) (*ledger.Entry, error)
	SetActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) (*ledger.Entry, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

const rollbackTimeout = 30 * time.Second

type Service struct {
	ledger Ledger
	log    *slog.Logger
}

func NewService(l Ledger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{ledger: l, log: log}
}

// Import parses r completely before writing, so a file with any bad row adds nothing.
// If a write fails midway the entries stored so far are removed again, including one
// that was stored by the failing call itself.
func (s *Service) Import(ctx context.Context, ownerID string, r io.Reader) ([]*ledger.Entry, error) {
	parsed, err := Parse(r)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "importing entries", "owner_id", ownerID, "rows", len(parsed.Rows), "charset", parsed.Charset)

	added := make([]*ledger.Entry, 0, len(parsed.Rows))

	for _, row := range parsed.Rows {
		e, err := s.add(ctx, ownerID, row)
		if e != nil {
			added = append(added, e)
		}

		if err != nil {
			s.rollback(ctx, ownerID, added)
			return nil, fmt.Errorf("importing line %d: %w", row.Line, err)
		}
	}

	return added, nil
}

// add stores one row. A non-nil entry means the row reached storage, even when err is set.
func (s *Service) add(ctx context.Context, ownerID string, row Row) (*ledger.Entry, error) {
	e, err := s.ledger.Add(ctx, ledger.AddParams{
		OwnerID:     ownerID,
		Kind:        row.Kind,
		Description: row.Description,
		Amount:      row.Amount,
	})
	if err != nil || row.Active {
		return e, err
	}

	updated, err := s.ledger.SetActive(ctx, ownerID, e.ID, false)
	if err != nil {
		return e, err
	}

	return updated, nil
}

// rollback deletes entries even when ctx is already cancelled.
func (s *Service) rollback(ctx context.Context, ownerID string, entries []*ledger.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	for _, e := range entries {
		if err := s.ledger.Delete(ctx, ownerID, e.ID); err != nil {
			s.log.ErrorContext(ctx, "failed to roll back imported entry", "owner_id", ownerID, "id", e.ID, "error", err)
		}
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	CreateEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error)
	UpdateEntry(ctx context.Context, e *Entry) error
	DeleteEntry(ctx context.Context, ownerID string, id uuid.UUID) error

	ListByOwnerAndKind(ctx context.Context, ownerID string, kind Kind) ([]*Entry, error)
	SumActiveAmount(ctx context.Context, ownerID string, kind Kind) (decimal.Decimal, error)
}

// ChangeListener is told about every committed mutation of an owner's ledger.
// It runs while the owner's ledger is still locked, so it observes writes in order.
type ChangeListener interface {
	LedgerChanged(ctx context.Context, ownerID string) error
}

// refreshTimeout bounds the listener call that follows a committed write.
const refreshTimeout = 10 * time.Second

type Service struct {
	repo     Repository
	listener ChangeListener

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetListener registers the component notified after each mutation.
func (s *Service) SetListener(l ChangeListener) {
	s.listener = l
}

type AddParams struct {
	OwnerID     string
	Kind        Kind
	Description string
	Amount      decimal.Decimal
}

// UpdateParams carries the editable fields; nil fields are left unchanged.
type UpdateParams struct {
	Description *string
	Amount      *decimal.Decimal
}

// Add stores a new active entry. Descriptions are kept exactly as given.
// If the entry was stored but the balance refresh failed, the entry is returned
// together with an error wrapping ErrBalanceRefresh.
func (s *Service) Add(ctx context.Context, params AddParams) (*Entry, error) {
	if err := requireOwner(params.OwnerID); err != nil {
		return nil, err
	}

	if !params.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, params.Kind)
	}

	if err := ValidateAmount(params.Amount); err != nil {
		return nil, err
	}

	e := &Entry{
		OwnerID:     params.OwnerID,
		Kind:        params.Kind,
		Description: params.Description,
		Amount:      params.Amount,
		Active:      true,
	}

	err := s.mutate(ctx, params.OwnerID, func() error {
		return s.repo.CreateEntry(ctx, e)
	})
	if errors.Is(err, ErrBalanceRefresh) {
		return e, err
	}

	if err != nil {
		return nil, err
	}

	return e, nil
}

func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	return s.repo.GetEntry(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID string, kind Kind) ([]*Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	return s.repo.ListByOwnerAndKind(ctx, ownerID, kind)
}

func (s *Service) Update(ctx context.Context, ownerID string, id uuid.UUID, params UpdateParams) (*Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	if params.Amount != nil {
		if err := ValidateAmount(*params.Amount); err != nil {
			return nil, err
		}
	}

	return s.modify(ctx, ownerID, id, func(e *Entry) {
		if params.Description != nil {
			e.Description = *params.Description
		}

		if params.Amount != nil {
			e.Amount = *params.Amount
		}
	})
}

func (s *Service) SetActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) (*Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	return s.modify(ctx, ownerID, id, func(e *Entry) {
		e.Active = active
	})
}

func (s *Service) Toggle(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	return s.modify(ctx, ownerID, id, func(e *Entry) {
		e.Active = !e.Active
	})
}

func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	return s.mutate(ctx, ownerID, func() error {
		return s.repo.DeleteEntry(ctx, ownerID, id)
	})
}

// Balance computes the net balance directly from storage.
func (s *Service) Balance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	if err := requireOwner(ownerID); err != nil {
		return decimal.Zero, err
	}

	income, err := s.repo.SumActiveAmount(ctx, ownerID, KindIncome)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing income: %w", err)
	}

	expense, err := s.repo.SumActiveAmount(ctx, ownerID, KindExpense)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing expense: %w", err)
	}

	return income.Sub(expense), nil
}

// modify reads the entry, applies fn and writes the full record back.
// The read happens under the owner lock so concurrent edits cannot interleave.
func (s *Service) modify(ctx context.Context, ownerID string, id uuid.UUID, fn func(e *Entry)) (*Entry, error) {
	var updated *Entry

	err := s.mutate(ctx, ownerID, func() error {
		e, err := s.repo.GetEntry(ctx, ownerID, id)
		if err != nil {
			return err
		}

		fn(e)

		if err := s.repo.UpdateEntry(ctx, e); err != nil {
			return err
		}

		updated = e

		return nil
	})
	if errors.Is(err, ErrBalanceRefresh) {
		return updated, err
	}

	if err != nil {
		return nil, err
	}

	return updated, nil
}

// RefreshBalance runs the listener for ownerID while holding the owner lock, so the
// snapshot it publishes never mixes rows from before and after a concurrent write.
func (s *Service) RefreshBalance(ctx context.Context, ownerID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if s.listener == nil {
		return nil
	}

	if err := s.listener.LedgerChanged(ctx, ownerID); err != nil {
		return fmt.Errorf("refreshing balance: %w", err)
	}

	return nil
}

// mutate runs write under the owner's lock and refreshes listeners once it commits.
// The refresh ignores cancellation of ctx: once the write is stored the snapshot must follow it.
func (s *Service) mutate(ctx context.Context, ownerID string, write func() error) error {
	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if err := write(); err != nil {
		return err
	}

	if s.listener == nil {
		return nil
	}

	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()

	if err := s.listener.LedgerChanged(refreshCtx, ownerID); err != nil {
		return fmt.Errorf("%w: %w", ErrBalanceRefresh, err)
	}

	return nil
}

func (s *Service) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ownerID] = l
	}

	return l
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrMissingOwner
	}

	return nil
}

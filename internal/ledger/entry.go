package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind partitions entries into income and expense.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindIncome, KindExpense}

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// ParseKind accepts the stored lowercase form only.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}

	return k, nil
}

// Entry is a single income or expense record owned by one user.
// Amount is an unsigned magnitude; the sign comes from Kind.
type Entry struct {
	ID          uuid.UUID
	OwnerID     string
	Description string
	Amount      decimal.Decimal
	Active      bool
	Kind        Kind
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

var (
	ErrNotFound      = errors.New("entry not found")
	ErrMissingOwner  = errors.New("no signed-in owner")
	ErrInvalidKind   = errors.New("invalid entry kind")
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrBalanceRefresh means a write was committed but the listener failed afterwards.
	ErrBalanceRefresh = errors.New("refreshing balance after commit")
)

// StorageError reports a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

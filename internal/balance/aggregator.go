// Package balance keeps each owner's net balance in step with the ledger.
//
// The aggregator never derives a balance from a previously fetched list: every
// refresh re-reads the entry lists and active sums from storage, and the
// resulting snapshot is what subscribers see.
package balance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

// Source is the read side of the ledger store.
type Source interface {
	ListByOwnerAndKind(ctx context.Context, ownerID string, kind ledger.Kind) ([]*ledger.Entry, error)
	SumActiveAmount(ctx context.Context, ownerID string, kind ledger.Kind) (decimal.Decimal, error)
}

// Publisher receives every refreshed snapshot, e.g. to forward it to a broker.
type Publisher interface {
	PublishBalance(ctx context.Context, snap *Snapshot) error
}

// Snapshot is the state of one owner's ledger at a point in time.
type Snapshot struct {
	OwnerID      string
	Income       []*ledger.Entry
	Expense      []*ledger.Entry
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Net          decimal.Decimal
	UpdatedAt    time.Time
}

// Negative reports whether the net balance is below zero.
func (s *Snapshot) Negative() bool {
	return s.Net.IsNegative()
}

type Aggregator struct {
	src       Source
	publisher Publisher
	log       *slog.Logger

	mu        sync.Mutex
	latest    map[string]*Snapshot
	subs      map[string]map[int]chan *Snapshot
	refreshMu map[string]*sync.Mutex
	nextID    int
}

type Option func(*Aggregator)

func WithPublisher(p Publisher) Option {
	return func(a *Aggregator) {
		a.publisher = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.log = l
	}
}

func New(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:       src,
		log:       slog.Default(),
		latest:    make(map[string]*Snapshot),
		subs:      make(map[string]map[int]chan *Snapshot),
		refreshMu: make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// LedgerChanged implements ledger.ChangeListener.
func (a *Aggregator) LedgerChanged(ctx context.Context, ownerID string) error {
	_, err := a.Refresh(ctx, ownerID)
	return err
}

// Refresh recomputes the owner's snapshot from storage and publishes it.
func (a *Aggregator) Refresh(ctx context.Context, ownerID string) (*Snapshot, error) {
	if ownerID == "" {
		return nil, ledger.ErrMissingOwner
	}

	// Refreshes of one owner are serialized so a slow read can never
	// publish over a snapshot computed after it.
	lock := a.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := a.compute(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.latest[ownerID] = snap

	for _, ch := range a.subs[ownerID] {
		offer(ch, snap)
	}
	a.mu.Unlock()

	if a.publisher != nil {
		if err := a.publisher.PublishBalance(ctx, snap); err != nil {
			a.log.WarnContext(ctx, "failed to publish balance", "owner_id", ownerID, "error", err)
		}
	}

	return snap, nil
}

// Latest returns the most recently published snapshot for the owner.
func (a *Aggregator) Latest(ownerID string) (*Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, ok := a.latest[ownerID]

	return snap, ok
}

// Subscribe returns a channel that receives the owner's snapshots as they are published.
// The channel buffers a single snapshot and a newer one replaces an undelivered older one,
// so a slow reader always sees the latest state. cancel closes the channel.
func (a *Aggregator) Subscribe(ownerID string) (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	a.mu.Lock()
	id := a.nextID
	a.nextID++

	if a.subs[ownerID] == nil {
		a.subs[ownerID] = make(map[int]chan *Snapshot)
	}

	a.subs[ownerID][id] = ch

	if snap, ok := a.latest[ownerID]; ok {
		ch <- snap
	}
	a.mu.Unlock()

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			delete(a.subs[ownerID], id)

			if len(a.subs[ownerID]) == 0 {
				delete(a.subs, ownerID)
			}

			close(ch)
		})
	}

	return ch, cancel
}

func (a *Aggregator) ownerLock(ownerID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.refreshMu[ownerID]
	if !ok {
		l = &sync.Mutex{}
		a.refreshMu[ownerID] = l
	}

	return l
}

func (a *Aggregator) compute(ctx context.Context, ownerID string) (*Snapshot, error) {
	income, err := a.src.ListByOwnerAndKind(ctx, ownerID, ledger.KindIncome)
	if err != nil {
		return nil, fmt.Errorf("listing income: %w", err)
	}

	expense, err := a.src.ListByOwnerAndKind(ctx, ownerID, ledger.KindExpense)
	if err != nil {
		return nil, fmt.Errorf("listing expense: %w", err)
	}

	totalIncome, err := a.src.SumActiveAmount(ctx, ownerID, ledger.KindIncome)
	if err != nil {
		return nil, fmt.Errorf("summing income: %w", err)
	}

	totalExpense, err := a.src.SumActiveAmount(ctx, ownerID, ledger.KindExpense)
	if err != nil {
		return nil, fmt.Errorf("summing expense: %w", err)
	}

	return &Snapshot{
		OwnerID:      ownerID,
		Income:       income,
		Expense:      expense,
		TotalIncome:  totalIncome,
		TotalExpense: totalExpense,
		Net:          totalIncome.Sub(totalExpense),
		UpdatedAt:    time.Now(),
	}, nil
}

// offer delivers snap without blocking, replacing any undelivered snapshot.
// Callers hold a.mu, which makes them the only senders on ch.
func offer(ch chan *Snapshot, snap *Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	ch <- snap
}

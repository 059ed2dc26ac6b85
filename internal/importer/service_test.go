package importer_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/importer"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger/store"
	"github.com/MrJamesThe3rd/pocketfin/internal/testutil"
)

func newService(t *testing.T) (*importer.Service, *ledger.Service, *balance.Aggregator) {
	t.Helper()

	repo := store.New(testutil.NewDB(t))
	ledgerSvc := ledger.NewService(repo)
	agg := balance.New(repo)
	ledgerSvc.SetListener(agg)

	return importer.NewService(ledgerSvc, nil), ledgerSvc, agg
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	svc, ledgerSvc, agg := newService(t)

	csv := "type;amount;description;active\nincome;1000;Salary;\nexpense;400;Rent;\nexpense;50;Gym;false\n"

	entries, err := svc.Import(ctx, "u1", strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[2].Active)

	expenses, err := ledgerSvc.List(ctx, "u1", ledger.KindExpense)
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	snap, ok := agg.Latest("u1")
	require.True(t, ok)
	assert.Equal(t, "600.00", ledger.FormatAmount(snap.Net))
}

func TestService_Import_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, ledgerSvc, _ := newService(t)

	csv := "type;amount;description\nincome;1000;Salary\nexpense;oops;Rent\n"

	_, err := svc.Import(ctx, "u1", strings.NewReader(csv))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	for _, kind := range ledger.Kinds {
		list, err := ledgerSvc.List(ctx, "u1", kind)
		require.NoError(t, err)
		assert.Empty(t, list, "nothing may be imported from a file with a bad row")
	}
}

type flakyLedger struct {
	*ledger.Service
	adds    int
	failOn  int
	deleted []uuid.UUID
}

func (f *flakyLedger) Add(ctx context.Context, params ledger.AddParams) (*ledger.Entry, error) {
	f.adds++
	if f.adds == f.failOn {
		return nil, &ledger.StorageError{Op: "inserting entry", Err: errors.New("disk full")}
	}

	return f.Service.Add(ctx, params)
}

func (f *flakyLedger) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return f.Service.Delete(ctx, ownerID, id)
}

func TestService_Import_RollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	ledgerSvc := ledger.NewService(store.New(testutil.NewDB(t)))
	flaky := &flakyLedger{Service: ledgerSvc, failOn: 3}

	csv := "type,amount\nincome,1\nincome,2\nexpense,3\n"

	_, err := importer.NewService(flaky, nil).Import(ctx, "u1", strings.NewReader(csv))

	var se *ledger.StorageError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "line 4")
	assert.Len(t, flaky.deleted, 2)

	income, err := ledgerSvc.List(ctx, "u1", ledger.KindIncome)
	require.NoError(t, err)
	assert.Empty(t, income)
}

// cancellingLedger cancels the import's context on the given Add, after the entry is stored.
type cancellingLedger struct {
	*ledger.Service
	cancel   context.CancelFunc
	adds     int
	cancelOn int
}

func (c *cancellingLedger) Add(ctx context.Context, params ledger.AddParams) (*ledger.Entry, error) {
	c.adds++

	e, err := c.Service.Add(ctx, params)
	if c.adds == c.cancelOn {
		c.cancel()
		return e, ctx.Err()
	}

	return e, err
}

func TestService_Import_RollsBackAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ledgerSvc, agg := newService(t)
	cancelling := &cancellingLedger{Service: ledgerSvc, cancel: cancel, cancelOn: 3}

	csv := "type,amount\nincome,1\nincome,2\nexpense,3\nexpense,4\n"

	_, err := importer.NewService(cancelling, nil).Import(ctx, "u1", strings.NewReader(csv))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, cancelling.adds)

	for _, kind := range ledger.Kinds {
		list, err := ledgerSvc.List(context.Background(), "u1", kind)
		require.NoError(t, err)
		assert.Empty(t, list, "a cancelled import must leave nothing behind")
	}

	snap, ok := agg.Latest("u1")
	require.True(t, ok)
	assert.True(t, snap.Net.IsZero())
}

// refreshFailingLedger stores the entry on the given Add and then reports a failed refresh.
type refreshFailingLedger struct {
	*ledger.Service
	adds   int
	failOn int
}

func (r *refreshFailingLedger) Add(ctx context.Context, params ledger.AddParams) (*ledger.Entry, error) {
	r.adds++

	e, err := r.Service.Add(ctx, params)
	if err == nil && r.adds == r.failOn {
		return e, fmt.Errorf("%w: %w", ledger.ErrBalanceRefresh, errors.New("query failed"))
	}

	return e, err
}

func TestService_Import_RollsBackEntryStoredByFailingAdd(t *testing.T) {
	ctx := context.Background()
	ledgerSvc := ledger.NewService(store.New(testutil.NewDB(t)))
	failing := &refreshFailingLedger{Service: ledgerSvc, failOn: 2}

	csv := "type,amount\nincome,1\nincome,2\nincome,3\n"

	_, err := importer.NewService(failing, nil).Import(ctx, "u1", strings.NewReader(csv))
	require.ErrorIs(t, err, ledger.ErrBalanceRefresh)
	assert.Contains(t, err.Error(), "line 3")

	income, err := ledgerSvc.List(ctx, "u1", ledger.KindIncome)
	require.NoError(t, err)
	assert.Empty(t, income)
}

package view

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger/store"
	"github.com/MrJamesThe3rd/pocketfin/internal/testutil"
)

func newHome(t *testing.T) (HomeModel, *ledger.Service) {
	t.Helper()

	repo := store.New(testutil.NewDB(t))
	svc := ledger.NewService(repo)
	agg := balance.New(repo)
	svc.SetListener(agg)

	m := NewHomeModel(svc, agg, "u1", "Countess")
	t.Cleanup(m.Close)

	return m, svc
}

// next runs the subscription command and applies the snapshot it yields.
func next(t *testing.T, m HomeModel) HomeModel {
	t.Helper()

	msg := m.waitForSnapshot()()
	require.IsType(t, snapshotMsg{}, msg)

	updated, _ := m.Update(msg)

	return updated.(HomeModel)
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}

	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestHomeModel_ShowsBalanceFromSubscription(t *testing.T) {
	m, svc := newHome(t)
	ctx := context.Background()

	assert.Nil(t, m.refreshCmd()())
	m = next(t, m)
	assert.Contains(t, m.View(), "0.00")

	_, err := svc.Add(ctx, ledger.AddParams{OwnerID: "u1", Kind: ledger.KindIncome, Description: "Salary", Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	_, err = svc.Add(ctx, ledger.AddParams{OwnerID: "u1", Kind: ledger.KindExpense, Description: "Rent", Amount: decimal.NewFromInt(400)})
	require.NoError(t, err)

	m = next(t, m)

	require.NotNil(t, m.snap)
	assert.Equal(t, "600.00", ledger.FormatAmount(m.snap.Net))

	out := m.View()
	assert.Contains(t, out, "Salary")
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "Countess")
}

func TestHomeModel_ToggleAndDeleteSelected(t *testing.T) {
	m, svc := newHome(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, ledger.AddParams{OwnerID: "u1", Kind: ledger.KindExpense, Description: "Rent", Amount: decimal.NewFromInt(400)})
	require.NoError(t, err)

	m = next(t, m)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(HomeModel)
	require.Equal(t, ledger.KindExpense, m.focus)

	updated, cmd := m.Update(key(" "))
	m = updated.(HomeModel)
	require.NotNil(t, cmd)

	res, ok := cmd().(mutationMsg)
	require.True(t, ok)
	require.NoError(t, res.err)
	assert.Equal(t, "Rent switched off", res.status)

	m = next(t, m)
	assert.Equal(t, "0.00", ledger.FormatAmount(m.snap.Net))
	assert.False(t, m.snap.Expense[0].Active)

	cmd = m.deleteCmd(m.selected())
	res, ok = cmd().(mutationMsg)
	require.True(t, ok)
	require.NoError(t, res.err)

	m = next(t, m)
	assert.Empty(t, m.snap.Expense)
	assert.Nil(t, m.selected())
}

func TestHomeModel_SaveCmd(t *testing.T) {
	m, _ := newHome(t)

	res := m.saveCmd(entryForm{kind: ledger.KindIncome, description: " Bonus ", amount: "250.5"})().(mutationMsg)
	require.NoError(t, res.err)
	assert.Equal(t, "Added income 250.50", res.status)

	m = next(t, m)
	require.Len(t, m.snap.Income, 1)
	assert.Equal(t, "Bonus", m.snap.Income[0].Description)

	edit := entryForm{kind: ledger.KindIncome, editing: m.snap.Income[0], description: "Bonus", amount: "300"}
	res = m.saveCmd(edit)().(mutationMsg)
	require.NoError(t, res.err)

	m = next(t, m)
	assert.Equal(t, "300.00", ledger.FormatAmount(m.snap.TotalIncome))

	res = m.saveCmd(entryForm{kind: ledger.KindIncome, amount: "abc"})().(mutationMsg)
	assert.ErrorIs(t, res.err, ledger.ErrInvalidAmount)
}

func TestHomeModel_NavigationKeys(t *testing.T) {
	m, _ := newHome(t)

	tests := []struct {
		key  string
		want tea.Msg
	}{
		{key: "a", want: OpenAdviceMsg{}},
		{key: "p", want: OpenProfileMsg{}},
		{key: "q", want: tea.QuitMsg{}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, cmd := m.Update(key(tt.key))
			require.NotNil(t, cmd)
			assert.Equal(t, tt.want, cmd())
		})
	}
}

func TestFormatEntryLine(t *testing.T) {
	e := &ledger.Entry{Description: "A very long description that will not fit", Amount: decimal.RequireFromString("12.5")}

	line := formatEntryLine(e, 30)

	assert.Equal(t, 30, len([]rune(line)))
	assert.Contains(t, line, "12.50")
	assert.Contains(t, line, "…")

	empty := formatEntryLine(&ledger.Entry{Amount: decimal.Zero}, 30)
	assert.Contains(t, empty, "(no description)")
}

func TestFormatNet(t *testing.T) {
	assert.Contains(t, FormatNet(decimal.RequireFromString("-50")), "-50.00")
	assert.Contains(t, FormatNet(decimal.NewFromInt(600)), "600.00")
}

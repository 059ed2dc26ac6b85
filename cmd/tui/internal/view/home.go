package view

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

type homeState int

const (
	homeStateBrowse homeState = iota
	homeStateForm
	homeStateConfirmDelete
)

// entryForm holds the values bound to the add/edit form. It lives behind a
// pointer so copies of HomeModel keep writing to the same fields.
type entryForm struct {
	kind        ledger.Kind
	editing     *ledger.Entry
	description string
	amount      string
	confirm     bool
}

type snapshotMsg struct {
	snap *balance.Snapshot
}

type snapshotErrMsg struct {
	err error
}

type mutationMsg struct {
	status string
	err    error
}

type HomeModel struct {
	CommonModel
	ledger  *ledger.Service
	ownerID string
	name    string

	updates <-chan *balance.Snapshot
	cancel  func()
	snap    *balance.Snapshot

	state  homeState
	focus  ledger.Kind
	cursor map[ledger.Kind]int
	form   *huh.Form
	fields *entryForm

	status string
	err    error
}

func NewHomeModel(svc *ledger.Service, agg *balance.Aggregator, ownerID, name string) HomeModel {
	updates, cancel := agg.Subscribe(ownerID)

	return HomeModel{
		ledger:  svc,
		ownerID: ownerID,
		name:    name,
		updates: updates,
		cancel:  cancel,
		focus:   ledger.KindIncome,
		cursor:  map[ledger.Kind]int{ledger.KindIncome: 0, ledger.KindExpense: 0},
		fields:  &entryForm{},
	}
}

func (m HomeModel) Title() string { return "PocketFin" }

func (m HomeModel) ShortHelp() string {
	switch m.state {
	case homeStateForm:
		return "Enter: save | Esc: cancel"
	case homeStateConfirmDelete:
		return "Esc: cancel"
	}

	return "i: add income | x: add expense | space: toggle | enter: edit | d: delete | tab: switch | a: advice | p: profile | q: quit"
}

// WithName returns a copy of the model greeting the user by name.
func (m HomeModel) WithName(name string) HomeModel {
	m.name = name
	return m
}

// OwnsMsg reports whether msg is addressed to the home screen regardless of
// which screen is showing. Snapshots keep arriving while other screens are open.
func OwnsMsg(msg tea.Msg) bool {
	switch msg.(type) {
	case snapshotMsg, snapshotErrMsg, mutationMsg:
		return true
	}

	return false
}

// Close stops the balance subscription.
func (m HomeModel) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m HomeModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.waitForSnapshot())
}

func (m HomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = msg.snap
		m.clampCursors()

		return m, m.waitForSnapshot()

	case snapshotErrMsg:
		m.err = msg.err
		return m, nil

	case mutationMsg:
		m.err = msg.err
		m.status = msg.status

		return m, nil
	}

	switch m.state {
	case homeStateForm:
		return m.updateForm(msg)
	case homeStateConfirmDelete:
		return m.updateConfirm(msg)
	}

	return m.updateBrowse(msg)
}

func (m HomeModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "up", "k":
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}
	case "down", "j":
		if m.cursor[m.focus] < len(m.entries(m.focus))-1 {
			m.cursor[m.focus]++
		}
	case "tab":
		if m.focus == ledger.KindIncome {
			m.focus = ledger.KindExpense
		} else {
			m.focus = ledger.KindIncome
		}
	case "i":
		return m.openForm(ledger.KindIncome, nil)
	case "x":
		return m.openForm(ledger.KindExpense, nil)
	case "enter":
		if e := m.selected(); e != nil {
			return m.openForm(e.Kind, e)
		}
	case " ":
		if e := m.selected(); e != nil {
			return m, m.toggleCmd(e)
		}
	case "d":
		if e := m.selected(); e != nil {
			return m.openConfirm(e)
		}
	case "a":
		return m, OpenAdvice
	case "p":
		return m, OpenProfile
	case "q":
		return m, tea.Quit
	}

	return m, nil
}

func (m HomeModel) openForm(kind ledger.Kind, e *ledger.Entry) (tea.Model, tea.Cmd) {
	m.fields = &entryForm{kind: kind, editing: e}

	title := "New " + string(kind)
	if e != nil {
		title = "Edit " + string(kind)
		m.fields.description = e.Description
		m.fields.amount = ledger.FormatAmount(e.Amount)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("description").
				Title(title).
				Placeholder("Description").
				Value(&m.fields.description),

			huh.NewInput().
				Key("amount").
				Title("Amount").
				Placeholder("0.00").
				Value(&m.fields.amount).
				Validate(func(s string) error {
					_, err := ledger.ParseAmount(s)
					return err
				}),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = homeStateForm

	return m, m.form.Init()
}

func (m HomeModel) openConfirm(e *ledger.Entry) (tea.Model, tea.Cmd) {
	m.fields = &entryForm{kind: e.Kind, editing: e}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q?", e.Description)).
				Affirmative("Delete").
				Negative("Keep").
				Value(&m.fields.confirm),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = homeStateConfirmDelete

	return m, m.form.Init()
}

func (m HomeModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	done, m, cmd := m.stepForm(msg)
	if !done {
		return m, cmd
	}

	return m, m.saveCmd(*m.fields)
}

func (m HomeModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	done, m, cmd := m.stepForm(msg)
	if !done {
		return m, cmd
	}

	if !m.fields.confirm {
		return m, nil
	}

	return m, m.deleteCmd(m.fields.editing)
}

// stepForm feeds msg to the open form and reports whether it finished.
// Esc aborts the form without saving.
func (m HomeModel) stepForm(msg tea.Msg) (bool, HomeModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = homeStateBrowse
		m.form = nil

		return false, m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.state = homeStateBrowse
		m.form = nil

		return true, m, nil
	case huh.StateAborted:
		m.state = homeStateBrowse
		m.form = nil

		return false, m, nil
	}

	return false, m, cmd
}

func (m HomeModel) View() string {
	header := m.headerView()

	switch m.state {
	case homeStateForm, homeStateConfirmDelete:
		return lipgloss.NewStyle().Padding(1).Render(header + "\n\n" + panelStyle.Render(m.form.View()))
	}

	lists := lipgloss.JoinHorizontal(lipgloss.Top,
		m.listView(ledger.KindIncome),
		"  ",
		m.listView(ledger.KindExpense),
	)

	var footer string

	switch {
	case m.err != nil:
		footer = errorStyle.Render("Error: " + m.err.Error())
	case m.status != "":
		footer = helpStyle.Render(m.status)
	}

	return lipgloss.NewStyle().Padding(1).Render(header + "\n\n" + lists + "\n" + footer)
}

func (m HomeModel) headerView() string {
	title := titleStyle.Render("PocketFin")
	if m.name != "" {
		title += helpStyle.Render("  " + m.name)
	}

	if m.snap == nil {
		return title + "\n" + helpStyle.Render("Loading balance...")
	}

	totals := fmt.Sprintf("Income %s   Expense %s   Balance %s",
		ledger.FormatAmount(m.snap.TotalIncome),
		ledger.FormatAmount(m.snap.TotalExpense),
		FormatNet(m.snap.Net),
	)

	return title + "\n" + totals
}

func (m HomeModel) listView(kind ledger.Kind) string {
	entries := m.entries(kind)
	width := m.listWidth()

	var sb strings.Builder

	heading := strings.ToUpper(string(kind))
	if kind == m.focus {
		heading = titleStyle.Render(heading)
	}

	sb.WriteString(heading + "\n")

	if len(entries) == 0 {
		sb.WriteString(helpStyle.Render("No entries"))
	}

	start, end := m.window(kind, len(entries))

	for i := start; i < end; i++ {
		e := entries[i]
		line := formatEntryLine(e, width)

		switch {
		case kind == m.focus && i == m.cursor[kind]:
			line = selectedStyle.Render(line)
		case !e.Active:
			line = inactiveStyle.Render(line)
		}

		sb.WriteString(line)

		if i < end-1 {
			sb.WriteString("\n")
		}
	}

	return panelStyle.Width(width + 4).Render(sb.String())
}

// window returns the slice of entries that fits the terminal height, keeping
// the cursor visible.
func (m HomeModel) window(kind ledger.Kind, n int) (int, int) {
	rows := m.Height - 14
	if rows < 5 || m.Height == 0 {
		rows = 15
	}

	if n <= rows {
		return 0, n
	}

	start := m.cursor[kind] - rows + 1
	if start < 0 {
		start = 0
	}

	return start, start + rows
}

func (m HomeModel) listWidth() int {
	w := (m.Width - 16) / 2
	if w < 30 {
		return 30
	}

	if w > 60 {
		return 60
	}

	return w
}

func formatEntryLine(e *ledger.Entry, width int) string {
	amount := ledger.FormatAmount(e.Amount)
	descWidth := width - len(amount) - 1

	desc := e.Description
	if desc == "" {
		desc = "(no description)"
	}

	if r := []rune(desc); len(r) > descWidth {
		desc = string(r[:descWidth-1]) + "…"
	}

	return fmt.Sprintf("%-*s %s", descWidth, desc, amount)
}

func (m HomeModel) entries(kind ledger.Kind) []*ledger.Entry {
	if m.snap == nil {
		return nil
	}

	if kind == ledger.KindIncome {
		return m.snap.Income
	}

	return m.snap.Expense
}

func (m HomeModel) selected() *ledger.Entry {
	entries := m.entries(m.focus)

	i := m.cursor[m.focus]
	if i < 0 || i >= len(entries) {
		return nil
	}

	return entries[i]
}

func (m HomeModel) clampCursors() {
	for _, kind := range ledger.Kinds {
		n := len(m.entries(kind))

		switch {
		case n == 0:
			m.cursor[kind] = 0
		case m.cursor[kind] >= n:
			m.cursor[kind] = n - 1
		}
	}
}

// waitForSnapshot blocks on the subscription and hands the next snapshot to Update.
func (m HomeModel) waitForSnapshot() tea.Cmd {
	updates := m.updates

	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}

		return snapshotMsg{snap: snap}
	}
}

func (m HomeModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.ledger.RefreshBalance(ctx, m.ownerID); err != nil {
			return snapshotErrMsg{err: err}
		}

		return nil
	}
}

func (m HomeModel) saveCmd(f entryForm) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		amount, err := ledger.ParseAmount(f.amount)
		if err != nil {
			return mutationMsg{err: err}
		}

		desc := strings.TrimSpace(f.description)

		if f.editing == nil {
			_, err = m.ledger.Add(ctx, ledger.AddParams{
				OwnerID:     m.ownerID,
				Kind:        f.kind,
				Description: desc,
				Amount:      amount,
			})
			if err != nil {
				return mutationMsg{err: err}
			}

			return mutationMsg{status: fmt.Sprintf("Added %s %s", f.kind, ledger.FormatAmount(amount))}
		}

		_, err = m.ledger.Update(ctx, m.ownerID, f.editing.ID, ledger.UpdateParams{
			Description: &desc,
			Amount:      &amount,
		})
		if err != nil {
			return mutationMsg{err: err}
		}

		return mutationMsg{status: "Saved " + desc}
	}
}

func (m HomeModel) toggleCmd(e *ledger.Entry) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		updated, err := m.ledger.Toggle(ctx, m.ownerID, e.ID)
		if err != nil {
			return mutationMsg{err: err}
		}

		state := "off"
		if updated.Active {
			state = "on"
		}

		return mutationMsg{status: fmt.Sprintf("%s switched %s", updated.Description, state)}
	}
}

func (m HomeModel) deleteCmd(e *ledger.Entry) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.ledger.Delete(ctx, m.ownerID, e.ID); err != nil {
			return mutationMsg{err: err}
		}

		return mutationMsg{status: "Deleted " + e.Description}
	}
}

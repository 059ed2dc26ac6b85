package view

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/pocketfin/internal/advice"
)

type adviceState int

const (
	adviceStateWaiting adviceState = iota
	adviceStateResult
)

// adviceRequests numbers advice requests across models so a late answer can be matched to its asker.
var adviceRequests atomic.Uint64

type adviceResultMsg struct {
	request uint64
	result  *advice.Result
	err     error
}

type AdviceModel struct {
	CommonModel
	summarizer *advice.Summarizer
	ownerID    string
	name       string

	state    adviceState
	spinner  spinner.Model
	viewport viewport.Model
	result   *advice.Result
	err      error

	request uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewAdviceModel(s *advice.Summarizer, ownerID, name string) AdviceModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := AdviceModel{
		summarizer: s,
		ownerID:    ownerID,
		name:       name,
		spinner:    sp,
		viewport:   viewport.New(70, 15),
	}

	return m.newRequest()
}

// newRequest cancels any pending request and prepares a fresh one.
func (m AdviceModel) newRequest() AdviceModel {
	if m.cancel != nil {
		m.cancel()
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.request = adviceRequests.Add(1)

	return m
}

func (m AdviceModel) Title() string { return "Advice" }

func (m AdviceModel) ShortHelp() string {
	if m.state == adviceStateWaiting {
		return "Esc: back"
	}

	return "↑/↓: scroll | r: ask again | Esc: back"
}

func (m AdviceModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.askCmd())
}

func (m AdviceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize()
		return m, nil

	case adviceResultMsg:
		if msg.request != m.request {
			return m, nil
		}

		m.state = adviceStateResult
		m.result = msg.result
		m.err = msg.err
		m.resize()
		m.viewport.SetContent(m.body())
		m.viewport.GotoTop()

		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.cancel()
			return m, Back
		case "r":
			if m.state == adviceStateResult {
				m = m.newRequest()
				m.state = adviceStateWaiting
				m.result = nil
				m.err = nil

				return m, tea.Batch(m.spinner.Tick, m.askCmd())
			}
		}
	}

	var cmd tea.Cmd

	if m.state == adviceStateWaiting {
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.viewport, cmd = m.viewport.Update(msg)

	return m, cmd
}

func (m AdviceModel) View() string {
	if m.state == adviceStateWaiting {
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("%s Asking for advice on your budget...", m.spinner.View()),
		)
	}

	return lipgloss.NewStyle().Padding(1).Render(
		titleStyle.Render("Advice") + "\n\n" + panelStyle.Render(m.viewport.View()),
	)
}

func (m *AdviceModel) resize() {
	if m.Width == 0 || m.Height == 0 {
		return
	}

	m.viewport.Width = max(m.Width-10, 20)
	m.viewport.Height = max(m.Height-12, 5)
}

func (m AdviceModel) body() string {
	style := lipgloss.NewStyle().Width(m.viewport.Width)

	if m.err != nil {
		return errorStyle.Width(m.viewport.Width).Render("Error: " + m.err.Error())
	}

	switch m.result.Outcome {
	case advice.OutcomeTimedOut:
		return errorStyle.Width(m.viewport.Width).Render("The advice service took too long to answer. Press r to try again.")
	case advice.OutcomeFailed:
		return errorStyle.Width(m.viewport.Width).Render("The advice service failed: " + m.result.Err.Error())
	}

	return style.Render(advice.Sanitize(m.result.Text))
}

func (m AdviceModel) askCmd() tea.Cmd {
	ctx, request := m.ctx, m.request

	return func() tea.Msg {
		// The summarizer applies its own deadline to the model call.
		res, err := m.summarizer.Summarize(ctx, m.ownerID, m.name)
		return adviceResultMsg{request: request, result: res, err: err}
	}
}

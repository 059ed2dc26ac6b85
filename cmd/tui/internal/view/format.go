package view

import (
	"context"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

const dbTimeout = 5 * time.Second

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	positiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	negativeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	inactiveStyle = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	panelStyle    = lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63"))
)

// FormatNet renders the net balance green when non-negative and red when negative.
func FormatNet(net decimal.Decimal) string {
	s := ledger.FormatAmount(net)
	if net.IsNegative() {
		return negativeStyle.Render(s)
	}

	return positiveStyle.Render(s)
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

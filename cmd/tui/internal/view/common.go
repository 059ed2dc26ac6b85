package view

import (
	tea "github.com/charmbracelet/bubbletea"
)

type CommonModel struct {
	Width  int
	Height int
}

// BackMsg returns to the home screen.
type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

type OpenAdviceMsg struct{}

func OpenAdvice() tea.Msg {
	return OpenAdviceMsg{}
}

type OpenProfileMsg struct{}

func OpenProfile() tea.Msg {
	return OpenProfileMsg{}
}

// SignedOutMsg is sent once the local profile has been dropped.
type SignedOutMsg struct{}

package view

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
)

type profileState int

const (
	profileStateView profileState = iota
	profileStateEdit
	profileStateConfirmSignOut
)

type profileFields struct {
	displayName string
	signOut     bool
}

type profileSavedMsg struct {
	profile *profile.Profile
	err     error
}

type ProfileModel struct {
	CommonModel
	profiles *profile.Service
	profile  *profile.Profile

	state  profileState
	form   *huh.Form
	fields *profileFields
	err    error
}

func NewProfileModel(svc *profile.Service, p *profile.Profile) ProfileModel {
	return ProfileModel{
		profiles: svc,
		profile:  p,
		fields:   &profileFields{},
	}
}

func (m ProfileModel) Title() string { return "Profile" }

func (m ProfileModel) ShortHelp() string {
	if m.state != profileStateView {
		return "Esc: cancel"
	}

	return "e: edit name | o: sign out | Esc: back"
}

// Profile returns the profile as last saved.
func (m ProfileModel) Profile() *profile.Profile {
	return m.profile
}

func (m ProfileModel) Init() tea.Cmd {
	return nil
}

func (m ProfileModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if saved, ok := msg.(profileSavedMsg); ok {
		m.err = saved.err
		if saved.profile != nil {
			m.profile = saved.profile
		}

		return m, nil
	}

	if m.state != profileStateView {
		return m.updateForm(msg)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "esc":
		return m, Back
	case "e":
		m.fields = &profileFields{displayName: m.profile.DisplayName}
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Display name").
					Value(&m.fields.displayName).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("display name cannot be empty")
						}
						return nil
					}),
			),
		).WithWidth(45).WithShowHelp(false)
		m.state = profileStateEdit

		return m, m.form.Init()
	case "o":
		m.fields = &profileFields{}
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Sign out and remove the local profile?").
					Affirmative("Sign out").
					Negative("Stay").
					Value(&m.fields.signOut),
			),
		).WithWidth(45).WithShowHelp(false)
		m.state = profileStateConfirmSignOut

		return m, m.form.Init()
	}

	return m, nil
}

func (m ProfileModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = profileStateView
		m.form = nil

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateNormal {
		return m, cmd
	}

	completed := m.form.State == huh.StateCompleted
	state := m.state
	m.state = profileStateView
	m.form = nil

	if !completed {
		return m, nil
	}

	if state == profileStateEdit {
		return m, m.saveCmd(m.fields.displayName)
	}

	if m.fields.signOut {
		return m, m.signOutCmd()
	}

	return m, nil
}

func (m ProfileModel) View() string {
	if m.form != nil {
		return lipgloss.NewStyle().Padding(1).Render(panelStyle.Render(m.form.View()))
	}

	p := m.profile
	labelStyle := lipgloss.NewStyle().Bold(true).Width(14)

	rows := []string{
		titleStyle.Render("Profile"),
		"",
		labelStyle.Render("Name") + p.DisplayName,
		labelStyle.Render("User name") + p.UserName,
		labelStyle.Render("Email") + p.Email,
	}

	if p.ProfileImageURL != "" {
		rows = append(rows, labelStyle.Render("Picture")+p.ProfileImageURL)
	}

	rows = append(rows, labelStyle.Render("Member since")+p.CreatedAt.Format("2006-01-02"))

	if m.err != nil {
		rows = append(rows, "", errorStyle.Render("Error: "+m.err.Error()))
	}

	return lipgloss.NewStyle().Padding(1).Render(panelStyle.Render(strings.Join(rows, "\n")))
}

func (m ProfileModel) saveCmd(name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		p, err := m.profiles.Update(ctx, m.profile.ID, profile.UpdateParams{DisplayName: &name})

		return profileSavedMsg{profile: p, err: err}
	}
}

func (m ProfileModel) signOutCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if err := m.profiles.Delete(ctx, m.profile.ID); err != nil {
			return profileSavedMsg{err: err}
		}

		return SignedOutMsg{}
	}
}

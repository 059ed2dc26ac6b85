package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/pocketfin/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/pocketfin/internal/advice"
	"github.com/MrJamesThe3rd/pocketfin/internal/advice/gemini"
	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/config"
	"github.com/MrJamesThe3rd/pocketfin/internal/database"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	ledgerStore "github.com/MrJamesThe3rd/pocketfin/internal/ledger/store"
	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
	profileStore "github.com/MrJamesThe3rd/pocketfin/internal/profile/store"
)

// tokenEnv holds the identity token issued by the sign-in provider.
const tokenEnv = "POCKETFIN_TOKEN"

type model struct {
	summarizer *advice.Summarizer
	profiles   *profile.Service
	profile    *profile.Profile

	width, height int
	currentView   View
	signedOut     bool

	homeView    view.HomeModel
	adviceView  view.AdviceModel
	profileView view.ProfileModel
}

type View int

const (
	ViewHome    View = 0
	ViewAdvice  View = 1
	ViewProfile View = 2
)

func initialModel() (model, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return model{}, nil, fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	identity, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer).Verify(os.Getenv(tokenEnv))
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return model{}, nil, fmt.Errorf("not signed in: set %s", tokenEnv)
		}

		return model{}, nil, fmt.Errorf("not signed in: %w", err)
	}

	db, err := database.New(cfg.DataSource())
	if err != nil {
		return model{}, nil, fmt.Errorf("connecting to database: %w", err)
	}

	generator, err := gemini.New(ctx, gemini.Config{
		APIKey:      cfg.Advice.APIKey,
		TextModel:   cfg.Advice.TextModel,
		VisionModel: cfg.Advice.VisionModel,
		Endpoint:    cfg.Advice.Endpoint,
	})
	if err != nil {
		db.Close()
		return model{}, nil, fmt.Errorf("creating advice client: %w", err)
	}

	entries := ledgerStore.New(db)

	var (
		ledgerService  = ledger.NewService(entries)
		aggregator     = balance.New(entries)
		profileService = profile.NewService(profileStore.New(db))
		summarizer     = advice.NewSummarizer(ledgerService, generator, advice.WithTimeout(cfg.Advice.Timeout))
	)

	ledgerService.SetListener(aggregator)

	p, err := profileService.Mirror(ctx, identity)
	if err != nil {
		db.Close()
		return model{}, nil, fmt.Errorf("loading profile: %w", err)
	}

	m := model{
		summarizer:  summarizer,
		profiles:    profileService,
		profile:     p,
		currentView: ViewHome,
		homeView:    view.NewHomeModel(ledgerService, aggregator, p.ID, p.DisplayName),
	}

	cleanup := func() {
		m.homeView.Close()
		db.Close()
	}

	return m, cleanup, nil
}

func (m model) Init() tea.Cmd {
	return m.homeView.Init()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.homeView.Width, m.homeView.Height = msg.Width, msg.Height
		m.adviceView.Width, m.adviceView.Height = msg.Width, msg.Height
		m.profileView.Width, m.profileView.Height = msg.Width, msg.Height
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case view.OpenAdviceMsg:
		name := m.profile.DisplayName
		m.adviceView = view.NewAdviceModel(m.summarizer, m.profile.ID, name)
		m.adviceView.Width, m.adviceView.Height = m.width, m.height
		m.currentView = ViewAdvice

		return m, m.adviceView.Init()
	case view.OpenProfileMsg:
		m.profileView = view.NewProfileModel(m.profiles, m.profile)
		m.profileView.Width, m.profileView.Height = m.width, m.height
		m.currentView = ViewProfile

		return m, m.profileView.Init()
	case view.BackMsg:
		if m.currentView == ViewProfile {
			m.profile = m.profileView.Profile()
			m.homeView = m.homeView.WithName(m.profile.DisplayName)
		}

		m.currentView = ViewHome

		return m, nil
	case view.SignedOutMsg:
		m.signedOut = true
		return m, tea.Quit
	}

	if view.OwnsMsg(msg) {
		newModel, cmd := m.homeView.Update(msg)
		m.homeView = newModel.(view.HomeModel)

		return m, cmd
	}

	switch m.currentView {
	case ViewHome:
		var newModel tea.Model
		newModel, cmd = m.homeView.Update(msg)
		m.homeView = newModel.(view.HomeModel)
	case ViewAdvice:
		var newModel tea.Model
		newModel, cmd = m.adviceView.Update(msg)
		m.adviceView = newModel.(view.AdviceModel)
	case ViewProfile:
		var newModel tea.Model
		newModel, cmd = m.profileView.Update(msg)
		m.profileView = newModel.(view.ProfileModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewHome:
		return m.homeView.View() + "\n" + helpLine(m.homeView)
	case ViewAdvice:
		return m.adviceView.View() + "\n" + helpLine(m.adviceView)
	case ViewProfile:
		return m.profileView.View() + "\n" + helpLine(m.profileView)
	}

	return "Unknown View"
}

func helpLine(v view.View) string {
	return "  " + v.ShortHelp()
}

func main() {
	logFile, err := tea.LogToFile("pocketfin-tui.log", "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()

	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	m, cleanup, err := initialModel()
	if err != nil {
		slog.Error("failed to start TUI", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()

	cleanup()

	if err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}

	if fm, ok := final.(model); ok && fm.signedOut {
		fmt.Println("Signed out.")
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/pocketfin/internal/advice"
	"github.com/MrJamesThe3rd/pocketfin/internal/advice/gemini"
	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/config"
	"github.com/MrJamesThe3rd/pocketfin/internal/database"
	"github.com/MrJamesThe3rd/pocketfin/internal/events"
	"github.com/MrJamesThe3rd/pocketfin/internal/export"
	pfHttp "github.com/MrJamesThe3rd/pocketfin/internal/http"
	adviceHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/advice"
	exportHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/export"
	importHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/importcsv"
	ledgerHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/ledger"
	profileHandler "github.com/MrJamesThe3rd/pocketfin/internal/http/profile"
	"github.com/MrJamesThe3rd/pocketfin/internal/importer"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	ledgerStore "github.com/MrJamesThe3rd/pocketfin/internal/ledger/store"
	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
	profileStore "github.com/MrJamesThe3rd/pocketfin/internal/profile/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DataSource())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	var aggOpts []balance.Option

	if cfg.Events.AMQPURL != "" {
		pub, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			slog.Error("failed to connect to message broker", "error", err)
			os.Exit(1)
		}
		defer pub.Close()

		aggOpts = append(aggOpts, balance.WithPublisher(pub))
		slog.Info("publishing balance events", "exchange", cfg.Events.Exchange)
	}

	generator, err := gemini.New(ctx, gemini.Config{
		APIKey:      cfg.Advice.APIKey,
		TextModel:   cfg.Advice.TextModel,
		VisionModel: cfg.Advice.VisionModel,
		Endpoint:    cfg.Advice.Endpoint,
	})
	if err != nil {
		slog.Error("failed to create advice client", "error", err)
		os.Exit(1)
	}

	entries := ledgerStore.New(db)

	var (
		ledgerService  = ledger.NewService(entries)
		aggregator     = balance.New(entries, aggOpts...)
		profileService = profile.NewService(profileStore.New(db))
		summarizer     = advice.NewSummarizer(ledgerService, generator, advice.WithTimeout(cfg.Advice.Timeout))
		importService  = importer.NewService(ledgerService, slog.Default())
		exportService  = export.NewService(ledgerService)
	)

	ledgerService.SetListener(aggregator)

	router := pfHttp.New(auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer), cfg.Server.Timeout, pfHttp.Handlers{
		Ledger:  ledgerHandler.NewHandler(ledgerService, aggregator),
		Advice:  adviceHandler.NewHandler(summarizer, profileService),
		Profile: profileHandler.NewHandler(profileService),
		Import:  importHandler.NewHandler(importService),
		Export:  exportHandler.NewHandler(exportService),
	})

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "app", cfg.App.Name, "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/advice"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/export"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/importcsv"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/ledger"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/profile"
)

type Handlers struct {
	Ledger  *ledger.Handler
	Advice  *advice.Handler
	Profile *profile.Handler
	Import  *importcsv.Handler
	Export  *export.Handler
}

func New(verifier *auth.Verifier, timeout time.Duration, h Handlers) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(verifier.Middleware)

		h.Ledger.StreamRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Route("/entries", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				h.Ledger.Routes(r)
			})

			h.Ledger.BalanceRoutes(r)

			r.Route("/advice", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				h.Advice.Routes(r)
			})

			r.Route("/profile", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				h.Profile.Routes(r)
			})

			r.Route("/import", h.Import.Routes)
			r.Route("/export", h.Export.Routes)
		})
	})

	return router
}

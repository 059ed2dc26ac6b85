package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/export"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/render"
)

type Handler struct {
	svc *export.Service
}

func NewHandler(svc *export.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.csv)
	r.Get("/download", h.download)
	r.Get("/xlsx", h.xlsx)
}

func (h *Handler) csv(w http.ResponseWriter, r *http.Request) {
	// Buffer so a storage failure can still be reported with a proper status.
	var buf bytes.Buffer

	if _, err := h.svc.WriteCSV(r.Context(), auth.OwnerID(r.Context()), &buf); err != nil {
		render.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"pocketfin_%s.csv\"", time.Now().Format("20060102")))

	if _, err := buf.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export", "error", err)
	}
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer

	if err := h.svc.WriteArchive(r.Context(), auth.OwnerID(r.Context()), &buf); err != nil {
		render.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"pocketfin_%s.zip\"", time.Now().Format("20060102")))

	if _, err := buf.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export archive", "error", err)
	}
}

func (h *Handler) xlsx(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer

	if err := h.svc.WriteXLSX(r.Context(), auth.OwnerID(r.Context()), &buf); err != nil {
		render.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"pocketfin_%s.xlsx\"", time.Now().Format("20060102")))

	if _, err := buf.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to write spreadsheet", "error", err)
	}
}

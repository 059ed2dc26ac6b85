package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/render"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

type Handler struct {
	svc *ledger.Service
	agg *balance.Aggregator
}

func NewHandler(svc *ledger.Service, agg *balance.Aggregator) *Handler {
	return &Handler{svc: svc, agg: agg}
}

// Routes mounts the entry endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Put("/{id}/active", h.setActive)
	r.Post("/{id}/toggle", h.toggle)
	r.Delete("/{id}", h.delete)
}

// BalanceRoutes mounts the balance snapshot endpoint.
func (h *Handler) BalanceRoutes(r chi.Router) {
	r.Get("/balance", h.balance)
}

// StreamRoutes mounts the long-lived balance stream. It must not sit behind a request timeout.
func (h *Handler) StreamRoutes(r chi.Router) {
	r.Get("/balance/stream", h.stream)
}

type createEntryRequest struct {
	Kind        string `json:"kind" validate:"required,entry_kind"`
	Description string `json:"description" validate:"max=500"`
	Amount      string `json:"amount" validate:"required,amount"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	e, err := h.svc.Add(r.Context(), ledger.AddParams{
		OwnerID:     auth.OwnerID(r.Context()),
		Kind:        ledger.Kind(req.Kind),
		Description: req.Description,
		Amount:      amount,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toResponse(e))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerID(r.Context())

	kinds := ledger.Kinds
	if s := r.URL.Query().Get("kind"); s != "" {
		k, err := ledger.ParseKind(s)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		kinds = []ledger.Kind{k}
	}

	var entries []*ledger.Entry

	for _, k := range kinds {
		list, err := h.svc.List(r.Context(), owner, k)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		entries = append(entries, list...)
	}

	render.JSON(w, http.StatusOK, toResponseList(entries))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	e, err := h.svc.Get(r.Context(), auth.OwnerID(r.Context()), id)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(e))
}

type updateEntryRequest struct {
	Description *string `json:"description" validate:"omitempty,max=500"`
	Amount      *string `json:"amount" validate:"omitempty,amount"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req updateEntryRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	params := ledger.UpdateParams{Description: req.Description}

	if req.Amount != nil {
		amount, err := ledger.ParseAmount(*req.Amount)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		params.Amount = &amount
	}

	e, err := h.svc.Update(r.Context(), auth.OwnerID(r.Context()), id, params)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(e))
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req setActiveRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	e, err := h.svc.SetActive(r.Context(), auth.OwnerID(r.Context()), id, *req.Active)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(e))
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	e, err := h.svc.Toggle(r.Context(), auth.OwnerID(r.Context()), id)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(e))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), auth.OwnerID(r.Context()), id); err != nil {
		render.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot(r.Context(), auth.OwnerID(r.Context()))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toBalanceResponse(snap))
}

// snapshot recomputes the owner's balance under the ledger lock and returns what was published.
func (h *Handler) snapshot(ctx context.Context, owner string) (*balance.Snapshot, error) {
	if err := h.svc.RefreshBalance(ctx, owner); err != nil {
		return nil, err
	}

	if snap, ok := h.agg.Latest(owner); ok {
		return snap, nil
	}

	// The aggregator is not the ledger's listener.
	return h.agg.Refresh(ctx, owner)
}

// stream sends a "balance" server-sent event for the current snapshot and for every later one.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := auth.OwnerID(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := h.agg.Subscribe(owner)
	defer cancel()

	// Make sure a first snapshot exists; it reaches ch through the fan-out.
	if _, ok := h.agg.Latest(owner); !ok {
		if _, err := h.snapshot(ctx, owner); err != nil {
			render.Error(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(toBalanceResponse(snap))
			if err != nil {
				slog.ErrorContext(ctx, "failed to encode balance event", "error", err)
				return
			}

			if _, err := fmt.Fprintf(w, "event: balance\ndata: %s\n\n", data); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Error(w, r, &render.BadRequestError{Msg: "invalid id"})
		return uuid.Nil, false
	}

	return id, true
}

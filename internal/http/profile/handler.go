package profile

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/render"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
)

type Handler struct {
	svc *profile.Service
}

func NewHandler(svc *profile.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Patch("/", h.update)
	r.Delete("/", h.delete)
}

type profileResponse struct {
	ID              string    `json:"id"`
	UserName        string    `json:"user_name"`
	DisplayName     string    `json:"display_name"`
	Email           string    `json:"email"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toResponse(p *profile.Profile) profileResponse {
	return profileResponse{
		ID:              p.ID,
		UserName:        p.UserName,
		DisplayName:     p.DisplayName,
		Email:           p.Email,
		ProfileImageURL: p.ProfileImageURL,
		UpdatedAt:       p.UpdatedAt,
	}
}

// get mirrors the caller's token into the local profile and returns it.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		render.Error(w, r, ledger.ErrMissingOwner)
		return
	}

	p, err := h.svc.Mirror(r.Context(), id)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(p))
}

type updateProfileRequest struct {
	DisplayName     *string `json:"display_name" validate:"omitempty,min=1,max=100"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	p, err := h.svc.Update(r.Context(), auth.OwnerID(r.Context()), profile.UpdateParams{
		DisplayName:     req.DisplayName,
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.OwnerID(r.Context())); err != nil {
		render.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package advice

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/pocketfin/internal/advice"
	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/render"
	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
)

type Handler struct {
	summarizer *advice.Summarizer
	profiles   *profile.Service
}

// NewHandler builds the advice endpoints. profiles may be nil, in which case
// the display name always comes from the identity token.
func NewHandler(summarizer *advice.Summarizer, profiles *profile.Service) *Handler {
	return &Handler{summarizer: summarizer, profiles: profiles}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.summarize)
	r.Post("/chat", h.chat)
}

type adviceResponse struct {
	Outcome     advice.Outcome `json:"outcome"`
	Text        string         `json:"text,omitempty"`
	DisplayText string         `json:"display_text,omitempty"`
	Error       string         `json:"error,omitempty"`
}

func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	res, err := h.summarizer.Summarize(r.Context(), auth.OwnerID(r.Context()), h.displayName(r, id))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	writeResult(w, res)
}

type imagePayload struct {
	MIMEType string `json:"mime_type" validate:"required"`
	Data     string `json:"data" validate:"required,base64"`
}

type chatRequest struct {
	Prompt string        `json:"prompt" validate:"required_without=Image,max=8000"`
	Image  *imagePayload `json:"image" validate:"omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := render.Decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	in := advice.Request{Prompt: req.Prompt}

	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			render.Error(w, r, &render.BadRequestError{Msg: "image data is not valid base64"})
			return
		}

		in.Image = &advice.Image{MIMEType: req.Image.MIMEType, Data: data}
	}

	res, err := h.summarizer.Ask(r.Context(), in)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	writeResult(w, res)
}

// displayName prefers the locally edited profile name over the token claim.
func (h *Handler) displayName(r *http.Request, id *auth.Identity) string {
	if id == nil {
		return ""
	}

	if h.profiles != nil {
		if p, err := h.profiles.Get(r.Context(), id.ID); err == nil && p.DisplayName != "" {
			return p.DisplayName
		}
	}

	return id.DisplayName
}

// writeResult maps the outcome tag onto a status: failures surface as gateway errors.
func writeResult(w http.ResponseWriter, res *advice.Result) {
	resp := adviceResponse{Outcome: res.Outcome}
	status := http.StatusOK

	switch res.Outcome {
	case advice.OutcomeAdvice:
		resp.Text = res.Text
		resp.DisplayText = advice.Sanitize(res.Text)
	case advice.OutcomeTimedOut:
		status = http.StatusGatewayTimeout
		resp.Error = res.Err.Error()
	default:
		status = http.StatusBadGateway
		resp.Error = "advice service failed"
	}

	render.JSON(w, status, resp)
}

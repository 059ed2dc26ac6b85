package importcsv

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
	"github.com/MrJamesThe3rd/pocketfin/internal/http/render"
	"github.com/MrJamesThe3rd/pocketfin/internal/importer"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

const maxUploadSize = 10 << 20

type Handler struct {
	importSvc *importer.Service
}

func NewHandler(importSvc *importer.Service) *Handler {
	return &Handler{importSvc: importSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importCSV)
}

type importedEntry struct {
	ID          string      `json:"id"`
	Kind        ledger.Kind `json:"kind"`
	Description string      `json:"description"`
	Amount      string      `json:"amount"`
	Active      bool        `json:"active"`
}

type importSuccessResponse struct {
	Imported int             `json:"imported"`
	Entries  []importedEntry `json:"entries"`
}

type lineErrorDTO struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type importErrorResponse struct {
	Error string         `json:"error"`
	Lines []lineErrorDTO `json:"lines"`
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		render.Error(w, r, &render.BadRequestError{Msg: "failed to parse form: " + err.Error()})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		render.Error(w, r, &render.BadRequestError{Msg: "file field is required"})
		return
	}
	defer file.Close()

	entries, err := h.importSvc.Import(r.Context(), auth.OwnerID(r.Context()), file)
	if err != nil {
		var perr *importer.ParseError

		switch {
		case errors.As(err, &perr):
			resp := importErrorResponse{Error: "no entries imported", Lines: make([]lineErrorDTO, len(perr.Lines))}
			for i, l := range perr.Lines {
				resp.Lines[i] = lineErrorDTO{Line: l.Line, Error: l.Err.Error()}
			}

			render.JSON(w, http.StatusBadRequest, resp)
		case errors.Is(err, importer.ErrNoHeader):
			render.Error(w, r, &render.BadRequestError{Msg: err.Error()})
		default:
			render.Error(w, r, err)
		}

		return
	}

	resp := importSuccessResponse{Imported: len(entries), Entries: make([]importedEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = importedEntry{
			ID:          e.ID.String(),
			Kind:        e.Kind,
			Description: e.Description,
			Amount:      ledger.FormatAmount(e.Amount),
			Active:      e.Active,
		}
	}

	render.JSON(w, http.StatusCreated, resp)
}

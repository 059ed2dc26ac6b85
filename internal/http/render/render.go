// Package render holds the request decoding and response helpers shared by the API handlers.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	_ = v.RegisterValidation("entry_kind", func(fl validator.FieldLevel) bool {
		return ledger.Kind(fl.Field().String()).Valid()
	})

	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := ledger.ParseAmount(fl.Field().String())
		return err == nil
	})

	return v
}

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// Decode reads a JSON body into v and validates it.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &BadRequestError{Msg: "invalid request body: " + err.Error()}
	}

	return Validate(v)
}

func Validate(v any) error {
	return validate.Struct(v)
}

// BadRequestError is a client error that carries its own message.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string {
	return e.Msg
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error maps err onto a status code and writes it as JSON. Unexpected errors
// are logged and answered with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	JSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	var (
		verrs   validator.ValidationErrors
		badReq  *BadRequestError
		storage *ledger.StorageError
	)

	switch {
	case errors.As(err, &verrs):
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag())
		}

		return http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields}
	case errors.As(err, &badReq):
		return http.StatusBadRequest, ErrorResponse{Error: badReq.Msg}
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidKind):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, ledger.ErrMissingOwner):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error()}
	case errors.As(err, &storage):
		return http.StatusInternalServerError, ErrorResponse{Error: "storage unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}

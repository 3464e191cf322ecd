package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shaonote/starbot/internal/models"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errorBody is the shape of every error response.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to status codes. Anything unrecognised is a
// 500 carrying the raw message.
func writeError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: ve.Error(), Code: "VALIDATION", Field: ve.Field})
	case errors.Is(err, models.ErrPasswordRequired):
		writeJSON(w, http.StatusForbidden, errorBody{Message: "password required", Code: "PASSWORD_REQUIRED"})
	case errors.Is(err, models.ErrSystemFolder):
		writeJSON(w, http.StatusForbidden, errorBody{Message: err.Error(), Code: "SYSTEM_FOLDER"})
	case errors.Is(err, models.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Message: "this link does not allow editing", Code: "FORBIDDEN"})
	case errors.Is(err, models.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "invalid credentials", Code: "INVALID_CREDENTIALS"})
	case errors.Is(err, models.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "unauthorized", Code: "UNAUTHORIZED"})
	case errors.Is(err, models.ErrTwoFactorNotSetup):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: err.Error(), Code: "2FA_NOT_SETUP"})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: "not found", Code: "NOT_FOUND"})
	case errors.Is(err, models.ErrGone):
		writeJSON(w, http.StatusGone, errorBody{Message: err.Error(), Code: "GONE"})
	case errors.Is(err, models.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Message: err.Error(), Code: "CONFLICT"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: err.Error(), Code: "INTERNAL"})
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
// A value of the wrong type is reported against its field.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return models.Invalid(te.Field, "must be "+jsonKind(te.Type))
	}
	return models.Invalid("body", "invalid JSON")
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "valid"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Map, reflect.Struct:
		return "an object"
	}
	return "valid"
}

// idParam reads a positive integer path parameter.
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

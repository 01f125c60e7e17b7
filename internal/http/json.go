// Package httpx provides the HTTP surface for jobs and runs.
package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/target/runplane/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			WriteAppError(w, appErr)
			return false
		}
		WriteDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// WriteDetail writes the error body shape {"detail": "<message>"}.
func WriteDetail(w http.ResponseWriter, code int, detail string) {
	WriteJSON(w, code, map[string]string{"detail": detail})
}

// WriteError maps an application error to its HTTP status and writes
// the detail body. Unclassified errors become 500 with a generic
// message so internals never leak.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		WriteAppError(w, appErr)
		return
	}
	WriteDetail(w, http.StatusInternalServerError, "internal server error")
}

// WriteAppError writes an AppError using the taxonomy's status mapping.
func WriteAppError(w http.ResponseWriter, appErr *apperrors.AppError) {
	WriteDetail(w, statusForCode(appErr.Code), appErr.Message)
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidCron, apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeAssignmentFailed, apperrors.ErrCodeCompletionFailed:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeForeignKey:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

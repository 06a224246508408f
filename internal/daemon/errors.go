package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

const (
	codeBadRequest   = "bad_request"
	codeNotFound     = "not_found"
	codeInvalidShape = "invalid_answer_shape"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeConflict     = "conflict"
	codeRateLimited  = "rate_limited"
	codeUnavailable  = "unavailable"
	codeInternal     = "internal"
)

// messages are the only texts a caller ever sees.
var messages = map[string]string{
	codeBadRequest:   "The request could not be understood.",
	codeNotFound:     "The requested content does not exist.",
	codeInvalidShape: "The answer does not match the challenge.",
	codeUnauthorized: "Sign in to continue.",
	codeForbidden:    "This content is not available yet.",
	codeConflict:     "Another operation is in progress. Try again shortly.",
	codeRateLimited:  "Too many requests. Try again shortly.",
	codeUnavailable:  "The service is temporarily unavailable. Try again shortly.",
	codeInternal:     "Something went wrong.",
}

type errorDetail struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
	Fields    []string `json:"fields,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// statusForError maps an error category to an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrLocked):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrInvalidAnswerShape):
		return http.StatusUnprocessableEntity, codeInvalidShape
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeError logs err and writes the generic body for its category. Admin
// routes never receive field-level detail.
func writeError(w http.ResponseWriter, r *http.Request, err error, admin bool) {
	status, code := statusForError(err)
	detail := errorDetail{
		Code:      code,
		Message:   messages[code],
		Retryable: code == codeUnavailable || code == codeConflict,
	}

	var verr *validationError
	if !admin && errors.As(err, &verr) {
		detail.Fields = verr.fields
	}
	if code == codeUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	level := slog.LevelWarn
	if status >= 500 && code != codeUnavailable {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "rpc failed",
		"correlation_id", GetCorrelationID(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)

	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

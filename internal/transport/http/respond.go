package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"quiz-ledger/internal/domain"
	"quiz-ledger/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.HTTP.Error().Err(err).Msg("unable to encode response")
	}
}

// writeError maps an error to its status. Internal errors are not echoed.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.HTTP.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func statusOf(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.As(err, &verrs):
		return http.StatusBadRequest, domain.KindValidation.String()
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindConflict:
		return http.StatusConflict, kind.String()
	case domain.KindNotFound:
		return http.StatusNotFound, kind.String()
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed, kind.String()
	case domain.KindValidation:
		return http.StatusBadRequest, kind.String()
	case domain.KindForbidden:
		return http.StatusForbidden, kind.String()
	default:
		return http.StatusInternalServerError, kind.String()
	}
}

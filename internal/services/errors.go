package services

import (
	"errors"
	"net/http"

	"github.com/Lllllllleong/financialentityflow/internal/evaluation"
	"github.com/Lllllllleong/financialentityflow/internal/store"
)

// ErrInvalidRequest marks malformed caller input.
var ErrInvalidRequest = errors.New("invalid request")

// HTTPStatus maps a service error onto the status code handlers return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, store.ErrResultNotFound),
		errors.Is(err, store.ErrGoldNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyProcessing),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrRunInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, evaluation.ErrInputMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

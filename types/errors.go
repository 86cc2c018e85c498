package types

import (
	"errors"
	"net/http"
)

var (
	ErrBusy              = errors.New("blocked by another session")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrWrongState        = errors.New("wrong state")
	ErrWrongIP           = errors.New("invalid ip address")
	ErrInvalidToken      = errors.New("invalid token")
	ErrMissingParameters = errors.New("missing parameters")
	ErrIOFailure         = errors.New("io failure")
	ErrTransportFailure  = errors.New("transport failure")

	ErrDeclined        = errors.New("declined")
	ErrInvalidState    = errors.New("session invalidated")
	ErrNoSession       = errors.New("no session")
	ErrNothingAccepted = errors.New("no file accepted")
	ErrCanceled        = errors.New("session canceled")
	ErrSelfDiscovered  = errors.New("self discovered")
	ErrTooManyRequests = errors.New("too many requests")
)

// StatusCode maps an error of the taxonomy to the HTTP status of the peer API.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingParameters), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrWrongIP), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrDeclined):
		return http.StatusForbidden
	case errors.Is(err, ErrBusy), errors.Is(err, ErrWrongState):
		return http.StatusConflict
	case errors.Is(err, ErrSelfDiscovered):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

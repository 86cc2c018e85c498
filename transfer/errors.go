package transfer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/localsend-session/types"
)

// HTTPError is a non-2xx answer from the receiver.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match the sentinel that the receiver's status stands for.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden:
		return types.ErrDeclined
	case http.StatusConflict:
		return types.ErrBusy
	case http.StatusPreconditionFailed:
		return types.ErrSelfDiscovered
	case http.StatusTooManyRequests:
		return types.ErrTooManyRequests
	default:
		return types.ErrTransportFailure
	}
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status}
	if len(body) == 0 {
		return e
	}
	var msg types.MessageResponse
	if err := sonic.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		e.Message = msg.Message
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if len(e.Message) > 200 {
		e.Message = e.Message[:200]
	}
	return e
}

// StatusOf returns the receiver's HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// DescribeError renders err for a user: "status N: message" for receiver answers, the raw error otherwise.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Error()
	}
	return err.Error()
}

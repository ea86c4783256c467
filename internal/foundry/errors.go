package foundry

import (
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/tidwall/gjson"
)

// APIError is a non-2xx response from the agent service. It unwraps to an
// errdefs category so callers can use errdefs.IsNotFound and friends.
type APIError struct {
	Status  int
	Code    string
	Message string
	Op      string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("foundry %s: HTTP %d [%s]: %s", e.Op, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("foundry %s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// Unwrap maps the HTTP status onto an errdefs category.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return errdefs.ErrNotFound
	case e.Status == http.StatusUnauthorized:
		return errdefs.ErrUnauthenticated
	case e.Status == http.StatusForbidden:
		return errdefs.ErrPermissionDenied
	case e.Status == http.StatusTooManyRequests:
		return errdefs.ErrResourceExhausted
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return errdefs.ErrInvalidArgument
	case e.Status == http.StatusConflict:
		return errdefs.ErrConflict
	case e.Status >= 500:
		return errdefs.ErrUnavailable
	default:
		return errdefs.ErrUnknown
	}
}

// newAPIError builds an APIError from a response body. The service usually
// replies with {"error":{"code":..,"message":..}} but plain text happens too.
func newAPIError(op string, status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Op: op}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		apiErr.Code = res.Get("error.code").String()
		apiErr.Message = res.Get("error.message").String()
		if apiErr.Message == "" {
			apiErr.Message = res.Get("message").String()
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = truncate(string(body), 256)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package rest

import (
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/ajitpratap0/deltashare/pkg/clients"
	"github.com/ajitpratap0/deltashare/pkg/errors"
)

// responseError maps a non-2xx response to a typed error. The server's
// {"errorCode": ..., "message": ...} body is attached when present.
func responseError(name string, resp *clients.Response) error {
	var errType errors.ErrorType
	switch resp.StatusCode {
	case http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	default:
		errType = errors.ErrorTypeHTTPStatus
	}

	message := http.StatusText(resp.StatusCode)
	var errorCode string
	if gjson.ValidBytes(resp.Body) {
		parsed := gjson.ParseBytes(resp.Body)
		errorCode = parsed.Get("errorCode").String()
		if m := parsed.Get("message").String(); m != "" {
			message = m
		}
	}

	err := errors.Newf(errType, "%s failed with status %d: %s", name, resp.StatusCode, message).
		WithDetail(errors.DetailStatusCode, resp.StatusCode)
	if errorCode != "" {
		err = err.WithDetail(errors.DetailErrorCode, errorCode)
	}
	return err
}

// Package clients provides the HTTP transport used to talk to a sharing
// server and to download pre-signed data files.
package clients

import (
	"context"
	"net/http"
	"net/url"
)

// Version is the client release, overridable at build time with
// -ldflags "-X github.com/ajitpratap0/deltashare/pkg/clients.Version=..."
var Version = "0.1.0"

// UserAgent returns the User-Agent sent on every sharing server request
func UserAgent() string {
	return "Delta-Sharing-Go/" + Version
}

// Request is one call against the sharing server. Path is relative to the
// profile endpoint.
type Request struct {
	// Name labels the call in logs and metrics (e.g. "list_shares")
	Name   string
	Method string
	Path   string
	Query  url.Values
	// Body is JSON encoded when non-nil
	Body interface{}
}

// Response is a fully read response. Non-2xx statuses are returned as a
// Response, not an error.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport executes requests against a sharing server. Implementations own
// pooling, TLS, authentication and retries.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

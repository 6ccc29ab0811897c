package columnar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/metrics"
)

// URL schemes understood by Router
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeS3    = "s3"
	SchemeGS    = "gs"
	SchemeFile  = "file"
)

// Opener fetches the full contents of a data file
type Opener interface {
	Open(ctx context.Context, rawURL string) ([]byte, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, rawURL string) ([]byte, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// Router dispatches to an Opener by URL scheme. Schemes without a
// registered opener are refused.
type Router struct {
	logger *zap.Logger

	mu      sync.RWMutex
	openers map[string]Opener
}

// NewRouter creates a router with no openers registered
func NewRouter(log *zap.Logger) *Router {
	return &Router{
		logger:  logger.OrNop(log).With(zap.String("component", "file_router")),
		openers: make(map[string]Opener),
	}
}

// NewStorageRouter creates a router for the schemes cfg enables. http and
// https are always served by httpClient, which must not carry the sharing
// bearer token. File URLs come from the sharing server, so local files and
// the ambient S3 and GCS credentials are only reachable when cfg opts in.
func NewStorageRouter(cfg config.StorageConfig, httpClient *http.Client, log *zap.Logger) *Router {
	r := NewRouter(log)
	httpOpener := HTTPOpener{Client: httpClient}
	r.Register(SchemeHTTP, httpOpener)
	r.Register(SchemeHTTPS, httpOpener)
	if cfg.AllowLocalFiles {
		r.Register(SchemeFile, FileOpener{})
	}
	if cfg.S3.Enabled {
		r.Register(SchemeS3, NewS3Opener(cfg.S3, log))
	}
	if cfg.GCS.Enabled {
		r.Register(SchemeGS, NewGCSOpener(cfg.GCS, log))
	}
	return r
}

// Register installs o for scheme, replacing any earlier opener
func (r *Router) Register(scheme string, o Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[strings.ToLower(scheme)] = o
}

// Close closes every registered opener that holds resources
func (r *Router) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, o := range r.openers {
		if c, ok := o.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Open fetches rawURL with the opener registered for its scheme
func (r *Router) Open(ctx context.Context, rawURL string) ([]byte, error) {
	scheme := Scheme(rawURL)

	r.mu.RLock()
	o, ok := r.openers[scheme]
	r.mu.RUnlock()
	if !ok {
		msg := fmt.Sprintf("no opener registered for %q URLs", scheme)
		if scheme == "" {
			msg = "file URL has no scheme"
		}
		return nil, errors.New(errors.ErrorTypeCapability, msg).
			WithDetail(errors.DetailURL, redact(rawURL))
	}

	data, err := o.Open(ctx, rawURL)
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.IsType(err, errors.ErrorTypeCancelled) {
			outcome = metrics.OutcomeCancelled
		}
		metrics.FileFetches.WithLabelValues(scheme, outcome).Inc()
		r.logger.Debug("file fetch failed",
			zap.String("scheme", scheme),
			zap.String("url", redact(rawURL)),
			zap.Error(err))
		return nil, err
	}

	metrics.FileFetches.WithLabelValues(scheme, metrics.OutcomeSuccess).Inc()
	metrics.FileBytes.WithLabelValues(scheme).Add(float64(len(data)))
	return data, nil
}

// Scheme returns the lower-cased scheme of rawURL. It is empty for bare
// paths and for URLs that do not parse.
func Scheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || filepath.VolumeName(rawURL) != "" {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// HTTPOpener fetches pre-signed URLs. The client must not carry the sharing
// bearer token.
type HTTPOpener struct {
	Client *http.Client
}

// Open issues a GET for rawURL; any non-2xx status is an error
func (o HTTPOpener) Open(ctx context.Context, rawURL string) ([]byte, error) {
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid file URL").
			WithDetail(errors.DetailURL, redact(rawURL))
	}

	resp, err := client.Do(req)
	if err != nil {
		if e := errors.FromContext(ctx); e != nil {
			return nil, e.WithDetail(errors.DetailURL, redact(rawURL))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "file request failed").
			WithDetail(errors.DetailURL, redact(rawURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.Newf(errors.ErrorTypeHTTPStatus, "file request failed with status %d", resp.StatusCode).
			WithDetail(errors.DetailStatusCode, resp.StatusCode).
			WithDetail(errors.DetailURL, redact(rawURL))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if e := errors.FromContext(ctx); e != nil {
			return nil, e.WithDetail(errors.DetailURL, redact(rawURL))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "failed to read file body").
			WithDetail(errors.DetailURL, redact(rawURL))
	}
	return data, nil
}

// FileOpener reads local files
type FileOpener struct{}

// Open reads a file:// URL or a bare path
func (FileOpener) Open(ctx context.Context, rawURL string) ([]byte, error) {
	if e := errors.FromContext(ctx); e != nil {
		return nil, e
	}

	path := rawURL
	if strings.HasPrefix(strings.ToLower(rawURL), SchemeFile+"://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid file URL").
				WithDetail(errors.DetailURL, rawURL)
		}
		path = filepath.FromSlash(u.Path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		errType := errors.ErrorTypeTransport
		if os.IsNotExist(err) {
			errType = errors.ErrorTypeNotFound
		}
		return nil, errors.Wrap(err, errType, "failed to read local file").
			WithDetail(errors.DetailURL, rawURL)
	}
	return data, nil
}

// redact drops the query string, which carries the signature of a
// pre-signed URL
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

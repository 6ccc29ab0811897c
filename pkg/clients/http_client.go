package clients

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/json"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/metrics"
	"github.com/ajitpratap0/deltashare/pkg/observability"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
)

// HTTPTransport is the Transport for a single sharing server profile. It is
// immutable after construction and safe for concurrent use.
type HTTPTransport struct {
	endpoint    string
	userAgent   string
	timeout     time.Duration
	client      *retryablehttp.Client
	base        *http.Transport
	rateLimiter RateLimiter
	logger      *zap.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for profile. A nil logger disables
// logging.
func NewHTTPTransport(profile *protocol.Profile, cfg config.HTTPConfig, log *zap.Logger) (*HTTPTransport, error) {
	if profile == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "profile is required")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log).With(zap.String("component", "http_transport"))

	if _, _, err := profile.Expiration(); err != nil {
		log.Warn("profile expiration time is not parseable, ignoring it",
			zap.String("expiration_time", profile.ExpirationTime), zap.Error(err))
	} else if profile.IsExpired(time.Now()) {
		log.Warn("profile bearer token has expired", zap.String("expiration_time", profile.ExpirationTime))
	}

	base := newBaseTransport(cfg, log)

	client := newRetryableClient(cfg, &http.Client{
		Transport: newBearerTransport(profile.BearerToken, base),
	}, log)

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = UserAgent()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.Default().HTTP.Timeout
	}

	return &HTTPTransport{
		endpoint:    protocol.NormalizeEndpoint(profile.Endpoint),
		userAgent:   userAgent,
		timeout:     timeout,
		client:      client,
		base:        base,
		rateLimiter: NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		logger:      log,
	}, nil
}

// NewFileClient returns an HTTP client for pre-signed file URLs. It shares
// the retry policy of the sharing transport but never sends the bearer token.
func NewFileClient(cfg config.HTTPConfig, log *zap.Logger) *http.Client {
	log = logger.OrNop(log).With(zap.String("component", "file_client"))
	client := newRetryableClient(cfg, &http.Client{Transport: newBaseTransport(cfg, log)}, log)
	return client.StandardClient()
}

func newBaseTransport(cfg config.HTTPConfig, log *zap.Logger) *http.Transport {
	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = config.Default().HTTP.MaxIdleConnsPerHost
	}

	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdle * 4,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			log.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}
	return t
}

func newRetryableClient(cfg config.HTTPConfig, httpClient *http.Client, log *zap.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.Logger = newRetryLogger(log)
	client.RetryMax = cfg.NumRetries
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	// hand the last response back so callers can read the error body
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

// Endpoint returns the normalized sharing server endpoint
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

// Do executes req, retrying transient failures. The whole call, retries
// included, is bounded by the configured timeout.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}

	target := t.endpoint + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	name := req.Name
	if name == "" {
		name = strings.ToLower(req.Method)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.rateLimiter.Wait(callCtx); err != nil {
		return nil, t.contextError(ctx, err, target)
	}

	var body interface{}
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode request body")
		}
		body = data
	}

	httpReq, err := retryablehttp.NewRequestWithContext(callCtx, req.Method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request").
			WithDetail(errors.DetailURL, target)
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("Accept-Encoding", "gzip")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	observability.InjectHeaders(ctx, httpReq.Header)

	log := logger.FromContext(ctx, t.logger)
	timer := metrics.NewTimer(name)
	resp, err := t.client.Do(httpReq)
	if err != nil {
		metrics.ObserveRequest(timer.Name(), 0, timer.Stop())
		return nil, t.contextError(ctx, err, target)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	elapsed := timer.Stop()
	metrics.ObserveRequest(timer.Name(), resp.StatusCode, elapsed)
	if err != nil {
		return nil, t.contextError(ctx, err, target)
	}

	log.Debug("request completed",
		zap.String("request", name),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", elapsed))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// contextError distinguishes caller cancellation from a transport failure,
// including our own per-call timeout.
func (t *HTTPTransport) contextError(ctx context.Context, err error, target string) error {
	if cerr := errors.FromContext(ctx); cerr != nil {
		return cerr
	}
	return errors.Wrap(err, errors.ErrorTypeTransport, "request to sharing server failed").
		WithDetail(errors.DetailURL, target)
}

// Close releases idle connections
func (t *HTTPTransport) Close() error {
	t.base.CloseIdleConnections()
	return nil
}

// readBody reads the full body, decoding gzip when the server compressed it
func readBody(resp *http.Response) ([]byte, error) {
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return nil, nil
	}

	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

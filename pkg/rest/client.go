// Package rest implements the sharing server REST endpoints on top of a
// clients.Transport: paginated listings of shares, schemas and tables, and
// the newline-delimited metadata and query responses.
package rest

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/clients"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/metrics"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
)

// Request names used in logs and metrics
const (
	OpListShares       = "list_shares"
	OpListSchemas      = "list_schemas"
	OpListTables       = "list_tables"
	OpListAllTables    = "list_all_tables"
	OpQueryMetadata    = "query_table_metadata"
	OpQueryVersion     = "query_table_version"
	OpListFilesInTable = "list_files_in_table"
)

// TableVersionHeader carries the table version on HEAD responses
const TableVersionHeader = "Delta-Table-Version"

// Client calls the sharing server endpoints. It holds no mutable state and is
// safe for concurrent use.
type Client struct {
	transport  clients.Transport
	logger     *zap.Logger
	maxResults int
	maxPages   int
}

// Option configures a Client
type Option func(*Client)

// WithMaxResults sends maxResults on every listing page request
func WithMaxResults(n int) Option {
	return func(c *Client) {
		c.maxResults = n
	}
}

// WithPageLimit caps every listing at n pages (0 = unlimited)
func WithPageLimit(n int) Option {
	return func(c *Client) {
		c.maxPages = n
	}
}

// NewClient creates a REST client over transport
func NewClient(transport clients.Transport, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    logger.OrNop(log).With(zap.String("component", "rest_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TableMetadata is the response of the metadata endpoint
type TableMetadata struct {
	Protocol protocol.Protocol
	Metadata protocol.Metadata
}

// ListFilesResponse is the response of the query endpoint
type ListFilesResponse struct {
	Protocol *protocol.Protocol
	Metadata *protocol.Metadata
	Files    []protocol.AddFile
}

// QueryRequest is the body of the query endpoint. Both fields are optional.
type QueryRequest struct {
	PredicateHints []string `json:"predicateHints,omitempty"`
	LimitHint      *int     `json:"limitHint,omitempty"`
}

// ListSharesPage fetches one page of shares
func (c *Client) ListSharesPage(ctx context.Context, token string) (Page[protocol.Share], error) {
	return listPage(ctx, c, OpListShares, "/shares", token, protocol.DecodeShare)
}

// ListSchemasPage fetches one page of schemas in share
func (c *Client) ListSchemasPage(ctx context.Context, share protocol.Share, token string) (Page[protocol.Schema], error) {
	return listPage(ctx, c, OpListSchemas, "/shares/"+seg(share.Name)+"/schemas", token, protocol.DecodeSchema)
}

// ListTablesPage fetches one page of tables in schema
func (c *Client) ListTablesPage(ctx context.Context, schema protocol.Schema, token string) (Page[protocol.Table], error) {
	path := "/shares/" + seg(schema.Share) + "/schemas/" + seg(schema.Name) + "/tables"
	return listPage(ctx, c, OpListTables, path, token, protocol.DecodeTable)
}

// ListAllTablesPage fetches one page of the tables in share across all schemas
func (c *Client) ListAllTablesPage(ctx context.Context, share protocol.Share, token string) (Page[protocol.Table], error) {
	return listPage(ctx, c, OpListAllTables, "/shares/"+seg(share.Name)+"/all-tables", token, protocol.DecodeTable)
}

// ListShares returns every share visible to the profile
func (c *Client) ListShares(ctx context.Context) ([]protocol.Share, error) {
	return Collect(ctx, c.ListSharesPage, c.pageOptions(OpListShares)...)
}

// ListSchemas returns every schema in share
func (c *Client) ListSchemas(ctx context.Context, share protocol.Share) ([]protocol.Schema, error) {
	return Collect(ctx, func(ctx context.Context, token string) (Page[protocol.Schema], error) {
		return c.ListSchemasPage(ctx, share, token)
	}, c.pageOptions(OpListSchemas)...)
}

// ListTables returns every table in schema
func (c *Client) ListTables(ctx context.Context, schema protocol.Schema) ([]protocol.Table, error) {
	return Collect(ctx, func(ctx context.Context, token string) (Page[protocol.Table], error) {
		return c.ListTablesPage(ctx, schema, token)
	}, c.pageOptions(OpListTables)...)
}

// ListAllTablesInShare returns every table in share using the all-tables
// endpoint. Servers without that endpoint answer with a not_found error.
func (c *Client) ListAllTablesInShare(ctx context.Context, share protocol.Share) ([]protocol.Table, error) {
	return Collect(ctx, func(ctx context.Context, token string) (Page[protocol.Table], error) {
		return c.ListAllTablesPage(ctx, share, token)
	}, c.pageOptions(OpListAllTables)...)
}

// QueryTableMetadata returns the protocol and metadata of table
func (c *Client) QueryTableMetadata(ctx context.Context, table protocol.Table) (*TableMetadata, error) {
	resp, err := c.call(ctx, &clients.Request{
		Name:   OpQueryMetadata,
		Method: http.MethodGet,
		Path:   tablePath(table) + "/metadata",
	})
	if err != nil {
		return nil, err
	}

	result, err := protocol.ParseStream(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}
	if result.Protocol == nil || result.Metadata == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRecord, "metadata response is missing the protocol or metaData line").
			WithDetail("table", table.FullName())
	}
	return &TableMetadata{Protocol: *result.Protocol, Metadata: *result.Metadata}, nil
}

// QueryTableVersion returns the current version of table from the
// Delta-Table-Version header
func (c *Client) QueryTableVersion(ctx context.Context, table protocol.Table) (int64, error) {
	resp, err := c.call(ctx, &clients.Request{
		Name:   OpQueryVersion,
		Method: http.MethodHead,
		Path:   tablePath(table),
	})
	if err != nil {
		return 0, err
	}

	raw := resp.Header.Get(TableVersionHeader)
	if raw == "" {
		return 0, errors.New(errors.ErrorTypeMalformedRecord, "response is missing the "+TableVersionHeader+" header").
			WithDetail("table", table.FullName())
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid "+TableVersionHeader+" header").
			WithDetail(errors.DetailRecord, raw)
	}
	return version, nil
}

// ListFilesInTable posts a query for table and parses the newline-delimited
// response. A missing protocol or metaData line is left nil for the caller
// to judge.
func (c *Client) ListFilesInTable(ctx context.Context, table protocol.Table, predicateHints []string, limitHint *int) (*ListFilesResponse, error) {
	resp, err := c.call(ctx, &clients.Request{
		Name:   OpListFilesInTable,
		Method: http.MethodPost,
		Path:   tablePath(table) + "/query",
		Body:   QueryRequest{PredicateHints: predicateHints, LimitHint: limitHint},
	})
	if err != nil {
		return nil, err
	}

	result, err := protocol.ParseStream(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("listed table files",
		zap.String("table", table.FullName()),
		zap.Int("files", len(result.Files)))

	return &ListFilesResponse{
		Protocol: result.Protocol,
		Metadata: result.Metadata,
		Files:    result.Files,
	}, nil
}

func (c *Client) call(ctx context.Context, req *clients.Request) (*clients.Response, error) {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		err := responseError(req.Name, resp)
		logger.FromContext(ctx, c.logger).Debug("sharing server returned an error",
			zap.String("request", req.Name),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (c *Client) pageOptions(name string) []PageOption {
	return []PageOption{
		WithMaxPages(c.maxPages),
		WithPageHook(func(int) { metrics.PagesFetched.WithLabelValues(name).Inc() }),
	}
}

// listPage fetches one listing page and decodes its items in order
func listPage[T any](ctx context.Context, c *Client, name, path, token string, decode func([]byte) (T, error)) (Page[T], error) {
	query := url.Values{}
	if c.maxResults > 0 {
		query.Set("maxResults", strconv.Itoa(c.maxResults))
	}
	if token != "" {
		query.Set("pageToken", token)
	}

	resp, err := c.call(ctx, &clients.Request{
		Name:   name,
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
	})
	if err != nil {
		return Page[T]{}, err
	}
	return decodePage(resp.Body, decode)
}

// decodePage splits {"items": [...], "nextPageToken": "..."}. Missing items
// mean an empty page.
func decodePage[T any](body []byte, decode func([]byte) (T, error)) (Page[T], error) {
	if !gjson.ValidBytes(body) {
		return Page[T]{}, errors.New(errors.ErrorTypeMalformedRecord, "listing response is not valid JSON").
			WithDetail(errors.DetailRecord, string(body))
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return Page[T]{}, errors.New(errors.ErrorTypeMalformedRecord, "listing response is not a JSON object").
			WithDetail(errors.DetailRecord, string(body))
	}

	page := Page[T]{Items: make([]T, 0)}

	items := parsed.Get("items")
	if items.Exists() && items.Type != gjson.Null {
		if !items.IsArray() {
			return Page[T]{}, errors.New(errors.ErrorTypeMalformedRecord, "listing 'items' is not an array").
				WithDetail(errors.DetailRecord, string(body))
		}
		var decodeErr error
		items.ForEach(func(_, item gjson.Result) bool {
			v, err := decode([]byte(item.Raw))
			if err != nil {
				decodeErr = err
				return false
			}
			page.Items = append(page.Items, v)
			return true
		})
		if decodeErr != nil {
			return Page[T]{}, decodeErr
		}
	}

	if next := parsed.Get("nextPageToken"); next.Type == gjson.String {
		token := next.String()
		page.NextPageToken = &token
	}
	return page, nil
}

func tablePath(t protocol.Table) string {
	return "/shares/" + seg(t.Share) + "/schemas/" + seg(t.Schema) + "/tables/" + seg(t.Name)
}

func seg(s string) string {
	return url.PathEscape(s)
}

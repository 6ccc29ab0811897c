// Package sharing is the entry point of the Delta Sharing client. A Client
// lists the shares, schemas and tables a profile can see, queries table
// metadata and versions, and builds readers that materialize tables.
package sharing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/clients"
	"github.com/ajitpratap0/deltashare/pkg/columnar"
	"github.com/ajitpratap0/deltashare/pkg/config"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/metrics"
	"github.com/ajitpratap0/deltashare/pkg/observability"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
	"github.com/ajitpratap0/deltashare/pkg/reader"
	"github.com/ajitpratap0/deltashare/pkg/rest"
)

// Client talks to one sharing server. It is safe for concurrent use.
type Client struct {
	profile   *protocol.Profile
	rest      *rest.Client
	files     columnar.FileReader
	transport *clients.HTTPTransport
	router    *columnar.Router
	readerCfg config.ReaderConfig
	logger    *zap.Logger
}

// NewClient creates a client for profile. A nil cfg uses config.Default().
func NewClient(profile *protocol.Profile, cfg *config.ClientConfig, log *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	transport, err := clients.NewHTTPTransport(profile, cfg.HTTP, log)
	if err != nil {
		return nil, err
	}

	restClient := rest.NewClient(transport, log,
		rest.WithMaxResults(cfg.HTTP.MaxResults),
		rest.WithPageLimit(cfg.HTTP.MaxPages))

	router := columnar.NewStorageRouter(cfg.Storage, clients.NewFileClient(cfg.HTTP, log), log)
	files := columnar.NewParquetReader(router, log, columnar.WithBatchSize(cfg.Reader.BatchSize))

	c := newClient(restClient, files, cfg.Reader, log)
	c.profile = profile
	c.transport = transport
	c.router = router
	return c, nil
}

// NewClientFromFile reads the profile at path and creates a client for it
func NewClientFromFile(path string, cfg *config.ClientConfig, log *zap.Logger) (*Client, error) {
	profile, err := protocol.ReadProfile(path)
	if err != nil {
		return nil, err
	}
	return NewClient(profile, cfg, log)
}

// NewClientFromConfig creates a client for the profile named by cfg.Profile
func NewClientFromConfig(cfg *config.ClientConfig, log *zap.Logger) (*Client, error) {
	if cfg == nil || cfg.Profile == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "profile path is required")
	}
	return NewClientFromFile(cfg.Profile, cfg, log)
}

// NewClientWith assembles a client from existing parts
func NewClientWith(restClient *rest.Client, files columnar.FileReader, readerCfg config.ReaderConfig, log *zap.Logger) *Client {
	return newClient(restClient, files, readerCfg, logger.OrNop(log))
}

func newClient(restClient *rest.Client, files columnar.FileReader, readerCfg config.ReaderConfig, log *zap.Logger) *Client {
	return &Client{
		rest:      restClient,
		files:     files,
		readerCfg: readerCfg,
		logger:    log.With(zap.String("component", "sharing_client")),
	}
}

// Profile returns the profile the client was created from, if any
func (c *Client) Profile() *protocol.Profile {
	return c.profile
}

// Close releases idle connections and object store clients
func (c *Client) Close() error {
	var err error
	if c.transport != nil {
		err = c.transport.Close()
	}
	if c.router != nil {
		if rerr := c.router.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// ListShares returns every share visible to the profile
func (c *Client) ListShares(ctx context.Context) ([]protocol.Share, error) {
	var shares []protocol.Share
	err := observability.Trace(ctx, "sharing.list_shares", func(ctx context.Context) error {
		var err error
		shares, err = c.rest.ListShares(ctx)
		return err
	})
	return shares, err
}

// ListSchemas returns every schema in share
func (c *Client) ListSchemas(ctx context.Context, share protocol.Share) ([]protocol.Schema, error) {
	var schemas []protocol.Schema
	err := observability.Trace(ctx, "sharing.list_schemas", func(ctx context.Context) error {
		var err error
		schemas, err = c.rest.ListSchemas(logger.WithShare(ctx, share.Name), share)
		return err
	}, attribute.String(observability.AttrShare, share.Name))
	return schemas, err
}

// ListTables returns every table in schema
func (c *Client) ListTables(ctx context.Context, schema protocol.Schema) ([]protocol.Table, error) {
	var tables []protocol.Table
	err := observability.Trace(ctx, "sharing.list_tables", func(ctx context.Context) error {
		var err error
		tables, err = c.rest.ListTables(logger.WithShare(ctx, schema.Share), schema)
		return err
	}, attribute.String(observability.AttrShare, schema.Share), attribute.String(observability.AttrSchema, schema.Name))
	return tables, err
}

// ListAllTablesInShare returns every table in share through the all-tables
// endpoint
func (c *Client) ListAllTablesInShare(ctx context.Context, share protocol.Share) ([]protocol.Table, error) {
	var tables []protocol.Table
	err := observability.Trace(ctx, "sharing.list_all_tables_in_share", func(ctx context.Context) error {
		var err error
		tables, err = c.rest.ListAllTablesInShare(logger.WithShare(ctx, share.Name), share)
		return err
	}, attribute.String(observability.AttrShare, share.Name))
	return tables, err
}

// ListAllTables returns every table in every share. It uses the all-tables
// endpoint of each share; the first not-found answer from that endpoint
// discards what was gathered and restarts the listing through schemas and
// tables for all shares, without calling all-tables again. Every other
// error is returned as is.
func (c *Client) ListAllTables(ctx context.Context) ([]protocol.Table, error) {
	ctx, span := observability.StartSpan(ctx, "sharing.list_all_tables")
	tables, err := c.listAllTables(ctx, span)
	span.Finish(err)
	return tables, err
}

func (c *Client) listAllTables(ctx context.Context, span *observability.Span) ([]protocol.Table, error) {
	shares, err := c.rest.ListShares(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]protocol.Table, 0)
	for _, share := range shares {
		shareTables, err := c.rest.ListAllTablesInShare(logger.WithShare(ctx, share.Name), share)
		if err != nil {
			if !errors.IsNotFound(err) {
				return nil, err
			}
			metrics.AllTablesFallbacks.Inc()
			span.AddEvent("all_tables_fallback",
				attribute.String(observability.AttrShare, share.Name),
				attribute.Int("discarded_tables", len(tables)))
			logger.FromContext(ctx, c.logger).Warn("all-tables endpoint not supported, listing schemas and tables instead",
				zap.String("share", share.Name),
				zap.Int("discarded_tables", len(tables)),
				zap.Error(err))
			return c.listTablesBySchema(ctx, shares)
		}
		tables = append(tables, shareTables...)
	}
	return tables, nil
}

// listTablesBySchema enumerates share -> schema -> table in listing order
func (c *Client) listTablesBySchema(ctx context.Context, shares []protocol.Share) ([]protocol.Table, error) {
	tables := make([]protocol.Table, 0)
	for _, share := range shares {
		shareCtx := logger.WithShare(ctx, share.Name)
		schemas, err := c.rest.ListSchemas(shareCtx, share)
		if err != nil {
			return nil, err
		}
		for _, schema := range schemas {
			schemaTables, err := c.rest.ListTables(shareCtx, schema)
			if err != nil {
				return nil, err
			}
			tables = append(tables, schemaTables...)
		}
	}
	return tables, nil
}

// QueryTableMetadata returns the protocol and metadata of table
func (c *Client) QueryTableMetadata(ctx context.Context, table protocol.Table) (*rest.TableMetadata, error) {
	var md *rest.TableMetadata
	err := observability.Trace(ctx, "sharing.query_table_metadata", func(ctx context.Context) error {
		var err error
		md, err = c.rest.QueryTableMetadata(logger.WithTable(ctx, table.FullName()), table)
		return err
	}, tableAttrs(table)...)
	return md, err
}

// QueryTableVersion returns the current version of table
func (c *Client) QueryTableVersion(ctx context.Context, table protocol.Table) (int64, error) {
	var version int64
	err := observability.Trace(ctx, "sharing.query_table_version", func(ctx context.Context) error {
		var err error
		version, err = c.rest.QueryTableVersion(logger.WithTable(ctx, table.FullName()), table)
		return err
	}, tableAttrs(table)...)
	return version, err
}

// Reader returns a reader for table using the client's reader settings
func (c *Client) Reader(table protocol.Table) *reader.Reader {
	return reader.New(table, c.rest, c.files,
		reader.WithMaxConcurrency(c.readerCfg.MaxConcurrency),
		reader.WithFileTimeout(c.readerCfg.FileTimeout),
		reader.WithLogger(c.logger))
}

func tableAttrs(t protocol.Table) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(observability.AttrShare, t.Share),
		attribute.String(observability.AttrSchema, t.Schema),
		attribute.String(observability.AttrTable, t.Name),
	}
}

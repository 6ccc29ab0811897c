// Package reader materializes a shared table: it queries the file list,
// reads every data file concurrently and merges the rows in file order.
package reader

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/internal/pipeline"
	"github.com/ajitpratap0/deltashare/pkg/columnar"
	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/metrics"
	"github.com/ajitpratap0/deltashare/pkg/models"
	"github.com/ajitpratap0/deltashare/pkg/observability"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
	"github.com/ajitpratap0/deltashare/pkg/rest"
)

// FileLister returns the files backing a table. *rest.Client implements it.
type FileLister interface {
	ListFilesInTable(ctx context.Context, table protocol.Table, predicateHints []string, limitHint *int) (*rest.ListFilesResponse, error)
}

// Reader is an immutable description of one table read. The With methods
// return modified copies.
type Reader struct {
	table          protocol.Table
	lister         FileLister
	files          columnar.FileReader
	predicateHints []string
	limit          *int
	maxConcurrency int
	fileTimeout    time.Duration
	logger         *zap.Logger
}

// Option configures a Reader
type Option func(*Reader)

// WithMaxConcurrency bounds concurrent file reads (<= 0 means the default)
func WithMaxConcurrency(n int) Option {
	return func(r *Reader) {
		r.maxConcurrency = n
	}
}

// WithFileTimeout bounds each file read (0 = none)
func WithFileTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.fileTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// New creates a reader for table
func New(table protocol.Table, lister FileLister, files columnar.FileReader, opts ...Option) *Reader {
	r := &Reader{
		table:          table,
		lister:         lister,
		files:          files,
		maxConcurrency: pipeline.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrNop(r.logger).With(zap.String("component", "table_reader"))
	return r
}

// Table returns the table being read
func (r *Reader) Table() protocol.Table {
	return r.table
}

// PredicateHints returns the hints sent with the query
func (r *Reader) PredicateHints() []string {
	return append([]string(nil), r.predicateHints...)
}

// Limit returns the row limit and whether one is set
func (r *Reader) Limit() (int, bool) {
	if r.limit == nil {
		return 0, false
	}
	return *r.limit, true
}

// WithPredicateHints returns a copy that sends hints with the query. The
// server may ignore them.
func (r *Reader) WithPredicateHints(hints []string) *Reader {
	c := *r
	c.predicateHints = append([]string(nil), hints...)
	return &c
}

// WithLimit returns a copy that keeps at most n rows
func (r *Reader) WithLimit(n int) *Reader {
	c := *r
	c.limit = &n
	return &c
}

// WithoutLimit returns a copy that keeps every row
func (r *Reader) WithoutLimit() *Reader {
	c := *r
	c.limit = nil
	return &c
}

// Materialize queries the table's files, reads them and returns the rows in
// file order, truncated to the limit. An empty file list or a zero limit
// yields an empty row set without reading any file. If any file fails the
// whole call fails with a partial_fetch error naming that file.
func (r *Reader) Materialize(ctx context.Context) (*models.RowSet, error) {
	if r.limit != nil && *r.limit < 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "limit must be non-negative, got %d", *r.limit).
			WithDetail("limit", *r.limit)
	}

	ctx = logger.WithTable(ctx, r.table.FullName())
	ctx, span := observability.StartSpan(ctx, "reader.materialize",
		attribute.String(observability.AttrShare, r.table.Share),
		attribute.String(observability.AttrSchema, r.table.Schema),
		attribute.String(observability.AttrTable, r.table.Name))

	rs, err := r.materialize(ctx, span)
	span.Finish(err)
	return rs, err
}

func (r *Reader) materialize(ctx context.Context, span *observability.Span) (*models.RowSet, error) {
	log := logger.FromContext(ctx, r.logger)

	resp, err := r.lister.ListFilesInTable(ctx, r.table, r.predicateHints, r.limit)
	if err != nil {
		return nil, err
	}
	if resp.Protocol == nil || resp.Metadata == nil {
		return nil, errors.New(errors.ErrorTypeMalformedRecord, "query response is missing the protocol or metaData line").
			WithDetail("table", r.table.FullName())
	}
	if provider := resp.Metadata.Format.Provider; !strings.EqualFold(provider, protocol.DefaultFormatProvider) {
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported file format %q", provider).
			WithDetail("table", r.table.FullName())
	}

	rs := models.NewRowSet(resp.Metadata.SchemaString, resp.Metadata.PartitionColumns)
	span.SetAttribute(observability.AttrFiles, len(resp.Files))
	if len(resp.Files) == 0 || (r.limit != nil && *r.limit == 0) {
		log.Debug("nothing to read", zap.Int("files", len(resp.Files)))
		return rs, nil
	}

	filler := newPartitionFiller(resp.Metadata)
	perFile, stats, err := pipeline.Ordered(ctx, pipeline.Config{
		Name:           r.table.FullName(),
		MaxConcurrency: r.maxConcurrency,
		Logger:         r.logger,
	}, len(resp.Files), func(ctx context.Context, i int) ([]models.Row, error) {
		return r.readFile(ctx, resp.Files[i], filler)
	})
	if err != nil {
		// caller cancellation wins over the per-file error it caused
		if e := errors.FromContext(ctx); e != nil {
			return nil, e
		}
		return nil, err
	}

	rs.Rows = lo.Flatten(perFile)
	if r.limit != nil {
		rs.Truncate(*r.limit)
	}

	metrics.RowsMaterialized.Add(float64(rs.Len()))
	span.SetAttribute(observability.AttrRows, rs.Len())
	log.Info("materialized table",
		zap.Int("files", len(resp.Files)),
		zap.Int("rows", rs.Len()),
		zap.Duration("duration", stats.Duration))
	return rs, nil
}

func (r *Reader) readFile(ctx context.Context, f protocol.AddFile, filler partitionFiller) ([]models.Row, error) {
	metrics.InflightFetches.Inc()
	defer metrics.InflightFetches.Dec()

	if r.fileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fileTimeout)
		defer cancel()
	}

	rows, err := r.files.ReadFile(ctx, f)
	if err == nil {
		err = filler.fill(rows, f)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePartialFetch, "failed to read data file").
			WithDetail(errors.DetailURL, redact(f.URL)).
			WithDetail("file_id", f.ID)
	}
	return rows, nil
}

func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

package columnar

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/logger"
	"github.com/ajitpratap0/deltashare/pkg/models"
	"github.com/ajitpratap0/deltashare/pkg/observability"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
)

// DefaultBatchSize is the number of rows decoded per arrow record batch
const DefaultBatchSize = 4096

// FileReader decodes one data file into rows
type FileReader interface {
	ReadFile(ctx context.Context, file protocol.AddFile) ([]models.Row, error)
}

// FileReaderFunc adapts a function to FileReader
type FileReaderFunc func(ctx context.Context, file protocol.AddFile) ([]models.Row, error)

// ReadFile calls f
func (f FileReaderFunc) ReadFile(ctx context.Context, file protocol.AddFile) ([]models.Row, error) {
	return f(ctx, file)
}

// ParquetReader reads parquet data files fetched through an Opener
type ParquetReader struct {
	opener    Opener
	batchSize int64
	mem       memory.Allocator
	logger    *zap.Logger
}

// ParquetOption configures a ParquetReader
type ParquetOption func(*ParquetReader)

// WithBatchSize sets the rows decoded per record batch
func WithBatchSize(n int64) ParquetOption {
	return func(r *ParquetReader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithAllocator sets the arrow allocator
func WithAllocator(mem memory.Allocator) ParquetOption {
	return func(r *ParquetReader) {
		r.mem = mem
	}
}

// NewParquetReader creates a reader over opener
func NewParquetReader(opener Opener, log *zap.Logger, opts ...ParquetOption) *ParquetReader {
	r := &ParquetReader{
		opener:    opener,
		batchSize: DefaultBatchSize,
		mem:       memory.DefaultAllocator,
		logger:    logger.OrNop(log).With(zap.String("component", "parquet_reader")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadFile fetches file and decodes every row in file order
func (r *ParquetReader) ReadFile(ctx context.Context, f protocol.AddFile) ([]models.Row, error) {
	ctx, span := observability.StartSpan(ctx, "columnar.read_file",
		attribute.String(observability.AttrURL, redact(f.URL)))

	data, err := r.opener.Open(ctx, f.URL)
	if err != nil {
		span.Finish(err)
		return nil, err
	}

	rows, err := r.Decode(ctx, data)
	if err != nil {
		if e := errors.FromContext(ctx); e == nil {
			var se *errors.Error
			if errors.As(err, &se) {
				err = se.WithDetail(errors.DetailURL, redact(f.URL))
			}
		}
		span.Finish(err)
		return nil, err
	}

	span.SetAttribute(observability.AttrRows, len(rows))
	span.Finish(nil)

	logger.FromContext(ctx, r.logger).Debug("read data file",
		zap.String("file_id", f.ID),
		zap.Int("bytes", len(data)),
		zap.Int("rows", len(rows)))
	return rows, nil
}

// Decode parses an in-memory parquet file into rows
func (r *ParquetReader) Decode(ctx context.Context, data []byte) ([]models.Row, error) {
	if e := errors.FromContext(ctx); e != nil {
		return nil, e
	}

	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to open parquet file")
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: r.batchSize}, r.mem)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to read parquet schema")
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to create parquet record reader")
	}
	defer rr.Release()

	rows := make([]models.Row, 0, pf.NumRows())
	for rr.Next() {
		if e := errors.FromContext(ctx); e != nil {
			return nil, e
		}
		rows, err = appendRecord(rows, rr.Record())
		if err != nil {
			return nil, err
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		if e := errors.FromContext(ctx); e != nil {
			return nil, e
		}
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedRecord, "failed to decode parquet data")
	}
	return rows, nil
}

// appendRecord converts a record batch row by row; the batch stays owned by
// the record reader
func appendRecord(rows []models.Row, rec arrow.Record) ([]models.Row, error) {
	fields := rec.Schema().Fields()
	columns := rec.Columns()

	for rowIdx := 0; rowIdx < int(rec.NumRows()); rowIdx++ {
		row := make(models.Row, len(fields))
		for colIdx, field := range fields {
			v, err := ValueAt(columns[colIdx], rowIdx)
			if err != nil {
				return nil, err
			}
			row[field.Name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/require"
)

// ParquetBytes encodes rows as a parquet file with the given schema. Each row
// holds one value per schema field, nil for null.
func ParquetBytes(t *testing.T, schema *arrow.Schema, rows [][]interface{}) []byte {
	t.Helper()

	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	for _, row := range rows {
		require.Len(t, row, len(schema.Fields()), "row width must match schema")
		for i, v := range row {
			appendValue(t, builder.Field(i), v)
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	fw, err := pqarrow.NewFileWriter(schema, &buf,
		parquet.NewWriterProperties(),
		pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool)))
	require.NoError(t, err)
	require.NoError(t, fw.Write(record))
	require.NoError(t, fw.Close())

	return buf.Bytes()
}

// WriteParquet writes ParquetBytes to dir/name and returns the path
func WriteParquet(t *testing.T, dir, name string, schema *arrow.Schema, rows [][]interface{}) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, ParquetBytes(t, schema, rows), 0o600))
	return path
}

func appendValue(t *testing.T, b array.Builder, value interface{}) {
	t.Helper()

	if value == nil {
		b.AppendNull()
		return
	}

	switch b := b.(type) {
	case *array.BooleanBuilder:
		b.Append(value.(bool))
	case *array.Int32Builder:
		b.Append(value.(int32))
	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		default:
			t.Fatalf("unsupported int64 value %T", value)
		}
	case *array.Float64Builder:
		b.Append(value.(float64))
	case *array.StringBuilder:
		b.Append(value.(string))
	case *array.BinaryBuilder:
		b.Append(value.([]byte))
	case *array.Date32Builder:
		b.Append(arrow.Date32FromTime(value.(time.Time)))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(value.(time.Time).UnixMicro()))
	default:
		t.Fatalf("unsupported builder type %T", b)
	}
}

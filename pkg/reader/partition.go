package reader

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ajitpratap0/deltashare/pkg/errors"
	"github.com/ajitpratap0/deltashare/pkg/models"
	"github.com/ajitpratap0/deltashare/pkg/protocol"
)

// Partition value layouts of the Delta protocol
const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// partitionFiller adds partition columns that data files do not store.
// Values arrive as strings and are converted using the column type from the
// table schema; unknown types stay strings.
type partitionFiller struct {
	columns []string
	types   map[string]string
}

func newPartitionFiller(md *protocol.Metadata) partitionFiller {
	f := partitionFiller{columns: md.PartitionColumns}
	if len(f.columns) == 0 {
		return f
	}

	f.types = make(map[string]string, len(f.columns))
	gjson.Get(md.SchemaString, "fields").ForEach(func(_, field gjson.Result) bool {
		if t := field.Get("type"); t.Type == gjson.String {
			f.types[field.Get("name").String()] = t.String()
		}
		return true
	})
	return f
}

// fill sets every partition column missing from rows
func (f partitionFiller) fill(rows []models.Row, file protocol.AddFile) error {
	if len(f.columns) == 0 || len(rows) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(f.columns))
	for _, col := range f.columns {
		raw, ok := file.PartitionValues[col]
		if !ok {
			values[col] = nil
			continue
		}
		v, err := convertPartitionValue(f.types[col], raw)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeMalformedRecord, "invalid partition value").
				WithDetail("column", col).
				WithDetail(errors.DetailRecord, raw)
		}
		values[col] = v
	}

	for _, row := range rows {
		for col, v := range values {
			if _, ok := row[col]; !ok {
				row[col] = v
			}
		}
	}
	return nil
}

// convertPartitionValue parses raw as the Delta primitive type typ. An empty
// value is null for every type except string.
func convertPartitionValue(typ, raw string) (interface{}, error) {
	if raw == "" && typ != "string" {
		return nil, nil
	}

	switch typ {
	case "byte":
		v, err := strconv.ParseInt(raw, 10, 8)
		return int8(v), err
	case "short":
		v, err := strconv.ParseInt(raw, 10, 16)
		return int16(v), err
	case "integer":
		v, err := strconv.ParseInt(raw, 10, 32)
		return int32(v), err
	case "long":
		return strconv.ParseInt(raw, 10, 64)
	case "float":
		v, err := strconv.ParseFloat(raw, 32)
		return float32(v), err
	case "double":
		return strconv.ParseFloat(raw, 64)
	case "boolean":
		return strconv.ParseBool(raw)
	case "date":
		return time.ParseInLocation(dateLayout, raw, time.UTC)
	case "timestamp":
		return time.ParseInLocation(timestampLayout, raw, time.UTC)
	default:
		return raw, nil
	}
}

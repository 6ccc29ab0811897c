package columnar

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/deltashare/pkg/errors"
)

// ValueAt converts the value at index of arr into a plain Go value
func ValueAt(arr arrow.Array, index int) (interface{}, error) {
	if arr.IsNull(index) {
		return nil, nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(index), nil
	case *array.Int8:
		return a.Value(index), nil
	case *array.Int16:
		return a.Value(index), nil
	case *array.Int32:
		return a.Value(index), nil
	case *array.Int64:
		return a.Value(index), nil
	case *array.Uint8:
		return a.Value(index), nil
	case *array.Uint16:
		return a.Value(index), nil
	case *array.Uint32:
		return a.Value(index), nil
	case *array.Uint64:
		return a.Value(index), nil
	case *array.Float32:
		return a.Value(index), nil
	case *array.Float64:
		return a.Value(index), nil
	case *array.String:
		return a.Value(index), nil
	case *array.LargeString:
		return a.Value(index), nil
	case *array.Binary:
		// the array owns its buffer
		return append([]byte(nil), a.Value(index)...), nil
	case *array.LargeBinary:
		return append([]byte(nil), a.Value(index)...), nil
	case *array.FixedSizeBinary:
		return append([]byte(nil), a.Value(index)...), nil
	case *array.Date32:
		return a.Value(index).ToTime(), nil
	case *array.Date64:
		return a.Value(index).ToTime(), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(index).ToTime(unit).UTC(), nil
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return a.Value(index).ToString(scale), nil
	case *array.List:
		start, end := a.ValueOffsets(index)
		return listValues(a.ListValues(), start, end)
	case *array.LargeList:
		start, end := a.ValueOffsets(index)
		return listValues(a.ListValues(), start, end)
	case *array.Map:
		start, end := a.ValueOffsets(index)
		keys, items := a.Keys(), a.Items()
		result := make(map[string]interface{}, end-start)
		for i := start; i < end; i++ {
			k, err := ValueAt(keys, int(i))
			if err != nil {
				return nil, err
			}
			v, err := ValueAt(items, int(i))
			if err != nil {
				return nil, err
			}
			result[keyString(k)] = v
		}
		return result, nil
	case *array.Struct:
		structType := a.DataType().(*arrow.StructType)
		result := make(map[string]interface{}, structType.NumFields())
		for i, field := range structType.Fields() {
			v, err := ValueAt(a.Field(i), index)
			if err != nil {
				return nil, err
			}
			result[field.Name] = v
		}
		return result, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported column type %s", arr.DataType()).
			WithDetail("type", arr.DataType().String())
	}
}

func listValues(values arrow.Array, start, end int64) ([]interface{}, error) {
	result := make([]interface{}, 0, end-start)
	for i := start; i < end; i++ {
		v, err := ValueAt(values, int(i))
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func keyString(k interface{}) string {
	switch v := k.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

package table

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowType picks the Arrow type for one column from its non-NULL values:
// all integers -> int64, integers and floats -> float64, all bools -> bool,
// all times -> timestamp[us, UTC]; anything else, or an all-NULL column,
// falls back to utf8.
func ArrowType(values []any) arrow.DataType {
	var ints, floats, bools, times, others int
	for _, v := range values {
		switch v.(type) {
		case nil:
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			ints++
		case uint, uint64:
			if u, _ := asUint64(v); u > math.MaxInt64 {
				others++
			} else {
				ints++
			}
		case float32, float64:
			floats++
		case bool:
			bools++
		case time.Time:
			times++
		default:
			others++
		}
	}
	switch {
	case others > 0:
		return arrow.BinaryTypes.String
	case ints > 0 && floats == 0 && bools == 0 && times == 0:
		return arrow.PrimitiveTypes.Int64
	case floats > 0 && bools == 0 && times == 0:
		return arrow.PrimitiveTypes.Float64
	case bools > 0 && ints == 0 && floats == 0 && times == 0:
		return arrow.FixedWidthTypes.Boolean
	case times > 0 && ints == 0 && floats == 0 && bools == 0:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// Schema derives the Arrow schema of the table. Every field is nullable.
func (t *ColumnTable) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.columns))
	for i, name := range t.columns {
		fields[i] = arrow.Field{Name: name, Type: ArrowType(t.data[name]), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// ToArrow copies the table into one Arrow record. The caller must Release it.
func (t *ColumnTable) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := t.Schema()

	cols := make([]arrow.Array, 0, len(t.columns))
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}

	for i, name := range t.columns {
		arr, err := buildArray(mem, schema.Field(i).Type, t.data[name])
		if err != nil {
			release()
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		cols = append(cols, arr)
	}

	record := array.NewRecord(schema, cols, int64(t.rows))
	release()
	return record, nil
}

// WriteArrowIPC writes the table to w in the Arrow IPC stream format.
func (t *ColumnTable) WriteArrowIPC(w io.Writer) error {
	mem := memory.DefaultAllocator
	record, err := t.ToArrow(mem)
	if err != nil {
		return err
	}
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(record.Schema()), ipc.WithAllocator(mem))
	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func buildArray(mem memory.Allocator, dt arrow.DataType, values []any) (arrow.Array, error) {
	b := array.NewBuilder(mem, dt)
	defer b.Release()

	for _, v := range values {
		if v == nil {
			b.AppendNull()
			continue
		}
		switch bb := b.(type) {
		case *array.Int64Builder:
			n, ok := asInt64(v)
			if !ok {
				return nil, fmt.Errorf("cannot store %T as int64", v)
			}
			bb.Append(n)
		case *array.Float64Builder:
			f, ok := asFloat64(v)
			if !ok {
				return nil, fmt.Errorf("cannot store %T as float64", v)
			}
			bb.Append(f)
		case *array.BooleanBuilder:
			bb.Append(v.(bool))
		case *array.TimestampBuilder:
			bb.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
		case *array.StringBuilder:
			bb.Append(fmt.Sprintf("%v", v))
		default:
			return nil, fmt.Errorf("unsupported arrow type %s", dt)
		}
	}
	return b.NewArray(), nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint, uint64:
		u, _ := asUint64(n)
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint64:
		return n, true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

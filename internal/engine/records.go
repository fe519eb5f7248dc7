package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/duckdb/duckdb-go/v2"
)

// appendValue appends one scanned database/sql value to the builder of its
// column. Values of an unexpected Go type are rejected rather than nulled.
func appendValue(builder array.Builder, val interface{}) error {
	if val == nil {
		builder.AppendNull()
		return nil
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := val.(bool)
		if !ok {
			return unexpected(val, "BOOLEAN")
		}
		b.Append(v)
	case *array.Int8Builder:
		v, ok := toInt64(val)
		if !ok {
			return unexpected(val, "TINYINT")
		}
		b.Append(int8(v))
	case *array.Int16Builder:
		v, ok := toInt64(val)
		if !ok {
			return unexpected(val, "SMALLINT")
		}
		b.Append(int16(v))
	case *array.Int32Builder:
		v, ok := toInt64(val)
		if !ok {
			return unexpected(val, "INTEGER")
		}
		b.Append(int32(v))
	case *array.Int64Builder:
		v, ok := toInt64(val)
		if !ok {
			return unexpected(val, "BIGINT")
		}
		b.Append(v)
	case *array.Uint8Builder:
		v, ok := toUint64(val)
		if !ok {
			return unexpected(val, "UTINYINT")
		}
		b.Append(uint8(v))
	case *array.Uint16Builder:
		v, ok := toUint64(val)
		if !ok {
			return unexpected(val, "USMALLINT")
		}
		b.Append(uint16(v))
	case *array.Uint32Builder:
		v, ok := toUint64(val)
		if !ok {
			return unexpected(val, "UINTEGER")
		}
		b.Append(uint32(v))
	case *array.Uint64Builder:
		v, ok := toUint64(val)
		if !ok {
			return unexpected(val, "UBIGINT")
		}
		b.Append(v)
	case *array.Float32Builder:
		switch v := val.(type) {
		case float32:
			b.Append(v)
		case float64:
			b.Append(float32(v))
		default:
			return unexpected(val, "FLOAT")
		}
	case *array.Float64Builder:
		switch v := val.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		default:
			return unexpected(val, "DOUBLE")
		}
	case *array.Decimal128Builder:
		num, err := toDecimal128(val, b.Type().(*arrow.Decimal128Type))
		if err != nil {
			return err
		}
		b.Append(num)
	case *array.Date32Builder:
		v, ok := val.(time.Time)
		if !ok {
			return unexpected(val, "DATE")
		}
		b.Append(arrow.Date32FromTime(v))
	case *array.Time32Builder:
		v, ok := val.(time.Time)
		if !ok {
			return unexpected(val, "TIME")
		}
		b.Append(arrow.Time32(v.Hour()*3600 + v.Minute()*60 + v.Second()))
	case *array.TimestampBuilder:
		v, ok := val.(time.Time)
		if !ok {
			return unexpected(val, "TIMESTAMP")
		}
		b.Append(arrow.Timestamp(v.UnixNano()))
	case *array.StringBuilder:
		switch v := val.(type) {
		case string:
			b.Append(v)
		case []byte:
			b.Append(string(v))
		default:
			b.Append(fmt.Sprintf("%v", v))
		}
	case *array.BinaryBuilder:
		switch v := val.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			return unexpected(val, "BLOB")
		}
	default:
		return fmt.Errorf("no builder for %s", builder.Type())
	}
	return nil
}

func unexpected(val interface{}, column string) error {
	return fmt.Errorf("unexpected %T for %s column", val, column)
}

func toInt64(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func toUint64(val interface{}) (uint64, bool) {
	switch v := val.(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	}
	return 0, false
}

// toDecimal128 rescales a DuckDB decimal to the column's fixed scale.
func toDecimal128(val interface{}, typ *arrow.Decimal128Type) (decimal128.Num, error) {
	var (
		unscaled *big.Int
		scale    int32
	)
	switch v := val.(type) {
	case duckdb.Decimal:
		unscaled, scale = v.Value, int32(v.Scale)
	case *big.Int:
		unscaled = v
	default:
		return decimal128.Num{}, unexpected(val, "DECIMAL")
	}
	if unscaled == nil {
		return decimal128.Num{}, unexpected(val, "DECIMAL")
	}
	num, err := decimal128.FromBigInt(unscaled).Rescale(scale, typ.Scale)
	if err != nil {
		return decimal128.Num{}, fmt.Errorf("rescale decimal: %w", err)
	}
	if !num.FitsInPrecision(typ.Precision) {
		return decimal128.Num{}, fmt.Errorf("decimal %s overflows precision %d", num.ToString(typ.Scale), typ.Precision)
	}
	return num, nil
}

package catalog

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

var arrowTypes = map[string]arrow.DataType{
	"BOOLEAN":   arrow.FixedWidthTypes.Boolean,
	"TINYINT":   arrow.PrimitiveTypes.Int8,
	"SMALLINT":  arrow.PrimitiveTypes.Int16,
	"INTEGER":   arrow.PrimitiveTypes.Int32,
	"BIGINT":    arrow.PrimitiveTypes.Int64,
	"UTINYINT":  arrow.PrimitiveTypes.Uint8,
	"USMALLINT": arrow.PrimitiveTypes.Uint16,
	"UINTEGER":  arrow.PrimitiveTypes.Uint32,
	"UBIGINT":   arrow.PrimitiveTypes.Uint64,
	"FLOAT":     arrow.PrimitiveTypes.Float32,
	"DOUBLE":    arrow.PrimitiveTypes.Float64,
	"DECIMAL":   &arrow.Decimal128Type{Precision: 38, Scale: 18},
	"DATE":      arrow.FixedWidthTypes.Date32,
	"TIME":      arrow.FixedWidthTypes.Time32s,
	"TIMESTAMP": arrow.FixedWidthTypes.Timestamp_ns,
	"VARCHAR":   arrow.BinaryTypes.String,
	"BLOB":      arrow.BinaryTypes.Binary,
}

// ArrowType maps a DuckDB type name to its Arrow type. Parameters such as
// DECIMAL(18,3) are ignored; unknown names map to string.
func ArrowType(typeName string) arrow.DataType {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if t, ok := arrowTypes[name]; ok {
		return t
	}
	return arrow.BinaryTypes.String
}

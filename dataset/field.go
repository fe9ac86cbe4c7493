package dataset

import (
	"fmt"
	"strings"
)

// SqlType is the engine's view of a column type, used to decide binding and LOB staging.
type SqlType uint32

const (
	TypeUnknown SqlType = iota
	TypeString
	TypeNumber
	TypeDate
	TypeBool
	TypeClob
	TypeBlob
)

func (t SqlType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeDate:
		return "date"
	case TypeBool:
		return "bool"
	case TypeClob:
		return "clob"
	case TypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// IsLob returns true for CLOB and BLOB types.
func (t SqlType) IsLob() bool {
	return t == TypeClob || t == TypeBlob
}

// ParseSqlType converts the type names used in scenario definitions into a SqlType.
func ParseSqlType(s string) (SqlType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return TypeUnknown, nil
	case "string", "varchar", "char", "text":
		return TypeString, nil
	case "number", "numeric", "int", "integer", "decimal", "float":
		return TypeNumber, nil
	case "date", "datetime", "timestamp":
		return TypeDate, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "clob":
		return TypeClob, nil
	case "blob":
		return TypeBlob, nil
	}
	return TypeUnknown, fmt.Errorf("unsupported field type %q", s)
}

// Field holds metadata about a single column in a DataSet.
type Field struct {
	Name             string  `json:"name"`
	Type             SqlType `json:"type"`
	DatabaseTypeName string  `json:"databaseTypeName,omitempty"`
	Length           int64   `json:"length,omitempty"`
	Precision        int64   `json:"precision,omitempty"`
	Scale            int64   `json:"scale,omitempty"`
	Nullable         bool    `json:"nullable"`
	Key              bool    `json:"key"`
}

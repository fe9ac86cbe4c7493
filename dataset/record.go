package dataset

import (
	"encoding/json"
	"fmt"

	h "github.com/relloyd/etl-engine/helper"
)

// Record is a single row of a DataSet keyed by field name.
// Values may be nil to represent database nulls.
type Record struct {
	data map[string]interface{}
}

// NewRecord creates a new empty Record.
func NewRecord() Record {
	return Record{data: make(map[string]interface{})}
}

// NewRecordFromValues builds a Record by zipping field names with values.
func NewRecordFromValues(fieldNames []string, values []interface{}) (Record, error) {
	if len(fieldNames) != len(values) {
		return Record{}, fmt.Errorf("record has %v values for %v fields", len(values), len(fieldNames))
	}
	r := NewRecord()
	for idx, n := range fieldNames {
		r.data[n] = values[idx]
	}
	return r, nil
}

func (r Record) IsNil() bool {
	return r.data == nil
}

func (r Record) SetData(name string, value interface{}) {
	r.data[name] = value
}

// GetData returns the value of name and whether the field exists in the record.
func (r Record) GetData(name string) (interface{}, bool) {
	v, ok := r.data[name]
	return v, ok
}

func (r Record) GetDataMap() map[string]interface{} {
	return r.data
}

// GetDataAsString renders the value of name as a string, times in UTC.
func (r Record) GetDataAsString(name string) string {
	return h.GetStringFromInterface(r.data[name], true)
}

// GetValues returns values in the order of the supplied field names.
func (r Record) GetValues(fieldNames []string) []interface{} {
	retval := make([]interface{}, len(fieldNames))
	for idx, n := range fieldNames {
		retval[idx] = r.data[n]
	}
	return retval
}

// Copy returns a shallow copy of r.
func (r Record) Copy() Record {
	retval := NewRecord()
	for k, v := range r.data {
		retval.data[k] = v
	}
	return retval
}

// GetJson returns the JSON representation of the record, used as input data for script evaluation.
func (r Record) GetJson() ([]byte, error) {
	out := make(map[string]interface{}, len(r.data))
	for k, v := range r.data {
		switch x := v.(type) {
		case []byte:
			out[k] = string(x)
		default:
			out[k] = x
		}
	}
	return json.Marshal(out)
}

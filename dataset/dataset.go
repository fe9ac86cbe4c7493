package dataset

import (
	"fmt"
	"sync"
)

// DataSet is an in-memory table of fields and records shared between the
// extract and load phases of a scenario.
type DataSet struct {
	mu          sync.RWMutex
	name        string
	fields      []Field
	fieldIdx    map[string]int
	records     []Record
	encoded     bool
	maxBuffered int // high-water mark of len(records).
}

func New(name string) *DataSet {
	return &DataSet{name: name, fieldIdx: make(map[string]int)}
}

func (d *DataSet) Name() string {
	return d.name
}

// AddField appends f or replaces an existing field of the same name.
func (d *DataSet) AddField(f Field) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if idx, ok := d.fieldIdx[f.Name]; ok {
		d.fields[idx] = f
		return
	}
	d.fieldIdx[f.Name] = len(d.fields)
	d.fields = append(d.fields, f)
}

// SetFields replaces all field definitions.
func (d *DataSet) SetFields(fields []Field) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields = make([]Field, len(fields))
	copy(d.fields, fields)
	d.fieldIdx = make(map[string]int, len(fields))
	for idx, f := range fields {
		d.fieldIdx[f.Name] = idx
	}
}

func (d *DataSet) Fields() []Field {
	d.mu.RLock()
	defer d.mu.RUnlock()
	retval := make([]Field, len(d.fields))
	copy(retval, d.fields)
	return retval
}

func (d *DataSet) FieldNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	retval := make([]string, len(d.fields))
	for idx, f := range d.fields {
		retval[idx] = f.Name
	}
	return retval
}

func (d *DataSet) Field(name string) (Field, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.fieldIdx[name]
	if !ok {
		return Field{}, false
	}
	return d.fields[idx], true
}

// AddRecord appends r and returns its index.
func (d *DataSet) AddRecord(r Record) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, r)
	if len(d.records) > d.maxBuffered {
		d.maxBuffered = len(d.records)
	}
	return len(d.records) - 1
}

// DeleteRecord removes the record at index i.
func (d *DataSet) DeleteRecord(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.records) {
		return fmt.Errorf("record index %v out of range in dataset %q with %v records", i, d.name, len(d.records))
	}
	d.records = append(d.records[:i], d.records[i+1:]...)
	return nil
}

// DeleteLastRecord undoes the most recent AddRecord.
func (d *DataSet) DeleteLastRecord() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.records) > 0 {
		d.records = d.records[:len(d.records)-1]
	}
}

// Records returns a copy of the slice of records; the records themselves are shared.
func (d *DataSet) Records() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	retval := make([]Record, len(d.records))
	copy(retval, d.records)
	return retval
}

func (d *DataSet) Record(i int) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.records) {
		return Record{}, false
	}
	return d.records[i], true
}

func (d *DataSet) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

func (d *DataSet) IsEmpty() bool {
	return d.Len() == 0
}

// ClearData drops all records but keeps the field definitions.
func (d *DataSet) ClearData() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = nil
}

// CopyFrom replaces the fields and records of d with those of other.
func (d *DataSet) CopyFrom(other *DataSet) {
	if other == nil || other == d {
		return
	}
	fields := other.Fields()
	records := other.Records()
	d.SetFields(fields)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = make([]Record, len(records))
	for idx, r := range records {
		d.records[idx] = r.Copy()
	}
	d.encoded = other.IsEncoded()
	if len(d.records) > d.maxBuffered {
		d.maxBuffered = len(d.records)
	}
}

// HasLobs returns true if any field is a CLOB or BLOB.
func (d *DataSet) HasLobs() bool {
	return len(d.LobFields()) > 0
}

func (d *DataSet) LobFields() []Field {
	d.mu.RLock()
	defer d.mu.RUnlock()
	retval := make([]Field, 0)
	for _, f := range d.fields {
		if f.Type.IsLob() {
			retval = append(retval, f)
		}
	}
	return retval
}

func (d *DataSet) SetEncoded(v bool) {
	d.mu.Lock()
	d.encoded = v
	d.mu.Unlock()
}

func (d *DataSet) IsEncoded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.encoded
}

// MaxBuffered returns the largest number of records held at any one time.
func (d *DataSet) MaxBuffered() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxBuffered
}

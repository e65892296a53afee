// Package record defines the unit of data routed to shards: an opaque ID and
// an ordered list of named field values.
package record

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
)

// Field is one named value of a record.
type Field struct {
	Name  string      `json:"name"`
	Value value.Value `json:"value"`
}

// Record is immutable once handed to a shard.
type Record struct {
	ID     string  `json:"id"`
	Fields []Field `json:"fields"`
}

// New builds a Record from a field map. Fields are ordered by name so that a
// map input always produces the same record.
func New(id string, fields map[string]value.Value) Record {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	rec := Record{ID: id, Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		rec.Fields = append(rec.Fields, Field{Name: name, Value: fields[name]})
	}
	return rec
}

// FromText builds a Record whose fields are all strings.
func FromText(id string, fields map[string]string) Record {
	vals := make(map[string]value.Value, len(fields))
	for name, text := range fields {
		vals[name] = value.String(text)
	}
	return New(id, vals)
}

// Get returns the value of the named field.
func (r Record) Get(name string) (value.Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return value.Null(), false
}

// Map returns the fields as a map.
func (r Record) Map() map[string]value.Value {
	m := make(map[string]value.Value, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// Clone returns a copy that shares no field slice with r.
func (r Record) Clone() Record {
	fields := make([]Field, len(r.Fields))
	copy(fields, r.Fields)
	return Record{ID: r.ID, Fields: fields}
}

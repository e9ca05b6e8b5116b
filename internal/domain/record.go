package domain

import (
	"math"
	"time"
)

// Record is one timestamped acquisition on a channel. The zero value is not a
// valid record; build one with NewRecord. Values never change after construction.
type Record struct {
	schema    *Schema
	seq       uint64
	timestamp time.Time
	values    []float64
}

// NewRecord takes ownership of values. Callers must not keep or reuse the slice.
func NewRecord(schema *Schema, seq uint64, ts time.Time, values []float64) (Record, error) {
	if schema == nil {
		return Record{}, ErrNotInitialized
	}
	if len(values) != schema.Arity() {
		return Record{}, errArity(schema, len(values))
	}
	return Record{schema: schema, seq: seq, timestamp: ts, values: values}, nil
}

func (r Record) Schema() *Schema      { return r.schema }
func (r Record) Seq() uint64          { return r.seq }
func (r Record) Timestamp() time.Time { return r.timestamp }
func (r Record) Len() int             { return len(r.values) }
func (r Record) IsZero() bool         { return r.schema == nil }

// Value returns the i-th value. NaN means the sensor did not report it.
func (r Record) Value(i int) float64 { return r.values[i] }

// Available reports whether the i-th value was reported by the sensor.
func (r Record) Available(i int) bool { return !math.IsNaN(r.values[i]) }

// ValueOf looks a value up by field name.
func (r Record) ValueOf(name string) (float64, bool) {
	if r.schema == nil {
		return math.NaN(), false
	}
	i := r.schema.IndexOf(name)
	if i < 0 {
		return math.NaN(), false
	}
	return r.values[i], true
}

// Values returns a copy of the record values.
func (r Record) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

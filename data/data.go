package data

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Field declares one recorded quantity and its vector width
type Field struct {
	// Name is the quantity name
	Name string
	// Size is the record width; zero-width fields count records
	// without storing components
	Size int
}

// Data is an append-only store of per-step estimator trajectories,
// keyed by quantity name, plus a meta data map describing the
// estimator configuration. It implements mhe.History.
type Data struct {
	fields []Field
	widths map[string]int
	meta   map[string]interface{}
	rows   map[string][][]float64
}

// New creates a new Data store for the given fields and returns it.
// It returns error if a field name is empty or duplicate or a size is
// negative.
func New(fields ...Field) (*Data, error) {
	d := &Data{
		fields: append([]Field(nil), fields...),
		widths: make(map[string]int, len(fields)),
		meta:   make(map[string]interface{}),
		rows:   make(map[string][][]float64, len(fields)),
	}

	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("empty field name")
		}
		if _, ok := d.widths[f.Name]; ok {
			return nil, fmt.Errorf("duplicate field: %s", f.Name)
		}
		if f.Size < 0 {
			return nil, fmt.Errorf("field %s has negative size: %d", f.Name, f.Size)
		}
		d.widths[f.Name] = f.Size
	}

	return d, nil
}

// InitStorage clears all recorded trajectories.
// Meta data is preserved.
func (d *Data) InitStorage() {
	for name := range d.rows {
		delete(d.rows, name)
	}
}

// SetMeta merges the given fields into the stored meta data
func (d *Data) SetMeta(meta map[string]interface{}) {
	for k, v := range meta {
		d.meta[k] = v
	}
}

// Meta returns a copy of the stored meta data
func (d *Data) Meta() map[string]interface{} {
	meta := make(map[string]interface{}, len(d.meta))
	for k, v := range d.meta {
		meta[k] = v
	}
	return meta
}

// Fields returns the declared fields in declaration order
func (d *Data) Fields() []Field {
	return append([]Field(nil), d.fields...)
}

// Update appends one record for the named quantity.
// A nil value is accepted for zero-width fields.
func (d *Data) Update(name string, val mat.Vector) error {
	width, ok := d.widths[name]
	if !ok {
		return fmt.Errorf("unknown field: %s", name)
	}

	got := 0
	// a nil *mat.VecDense behind the interface counts as empty too
	if vd, ok := val.(*mat.VecDense); val != nil && (!ok || vd != nil) {
		got = val.Len()
	}
	if got != width {
		return fmt.Errorf("field %s expects %d components, got %d", name, width, got)
	}

	row := make([]float64, width)
	for i := 0; i < width; i++ {
		row[i] = val.AtVec(i)
	}
	d.rows[name] = append(d.rows[name], row)

	return nil
}

// Count returns the number of records of the named quantity
func (d *Data) Count(name string) int {
	return len(d.rows[name])
}

// Get returns the recorded trajectory of the named quantity as a
// records-by-width matrix. It returns nil if nothing was recorded or
// the field has zero width.
func (d *Data) Get(name string) *mat.Dense {
	rows := d.rows[name]
	width := d.widths[name]
	if len(rows) == 0 || width == 0 {
		return nil
	}

	out := mat.NewDense(len(rows), width, nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}
	return out
}

// Recent returns copies of the most recent n records of the named
// quantity, oldest first. Fewer rows are returned if fewer were
// recorded.
func (d *Data) Recent(name string, n int) [][]float64 {
	rows := d.rows[name]
	if n > len(rows) {
		n = len(rows)
	}
	if n <= 0 {
		return nil
	}

	out := make([][]float64, n)
	for i, row := range rows[len(rows)-n:] {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

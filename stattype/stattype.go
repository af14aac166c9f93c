// Package stattype maps classified variables to typed variables that
// know how to render themselves into table columns.
//
// The registry is a closed mapping from the four statistic kinds to
// concrete variable types. Adding a kind means adding a case to Map;
// there is no string-tag or reflection dispatch, so an unhandled kind
// is a compile-visible gap rather than a runtime lookup failure.
package stattype

import (
	"fmt"
	"strconv"

	"github.com/aclements/go-moremath/stats"

	"ring5/statfmt"
	"ring5/stattab"
)

// DefaultOnEmpty is the placeholder recorded for a configuration
// variable whose value token is empty.
const DefaultOnEmpty = "None"

// A MappingError reports that a classification cannot be mapped to a
// typed variable. It is fatal for the affected variable.
type MappingError struct {
	Name string
	Kind statfmt.Kind
	Msg  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %q (%s): %s", e.Name, e.Kind, e.Msg)
}

// A Variable renders the values scanned for one source file into the
// column cells that file contributes to the combined table.
//
// Scalar variables emit one numeric column named after the variable.
// Vector and Distribution variables emit one numeric column per entry,
// named "name.entry". Configuration variables emit one categorical
// column. Numeric variables observed in several dump blocks emit the
// mean of their per-block samples.
type Variable interface {
	Kind() statfmt.Kind

	// ColumnNames returns the columns this variable contributes,
	// in order.
	ColumnNames(name string) []string

	// Columns renders d's samples into cells. Entries with no
	// observed sample render as the missing marker.
	Columns(d *statfmt.VariableDescriptor) map[string]stattab.Value
}

// Map builds the typed variable for a classification. A Vector or
// Distribution with no discovered entries is a caller error, as is an
// unknown kind; both return a *MappingError.
func Map(name string, kind statfmt.Kind, repeat int, entries []string) (Variable, error) {
	if repeat < 1 {
		repeat = 1
	}
	switch kind {
	case statfmt.KindScalar:
		return &Scalar{repeat: repeat}, nil
	case statfmt.KindVector:
		if len(entries) == 0 {
			return nil, &MappingError{name, kind, "no entries discovered"}
		}
		return &Vector{kind: kind, repeat: repeat, entries: entries}, nil
	case statfmt.KindDistribution:
		if len(entries) == 0 {
			return nil, &MappingError{name, kind, "no entries discovered"}
		}
		return &Vector{kind: kind, repeat: repeat, entries: entries}, nil
	case statfmt.KindConfiguration:
		return &Configuration{onEmpty: DefaultOnEmpty}, nil
	}
	return nil, &MappingError{name, kind, "unknown kind"}
}

// FromDescriptor maps a scanned descriptor directly.
func FromDescriptor(d *statfmt.VariableDescriptor) (Variable, error) {
	return Map(d.Name, d.Kind, d.Repeat, d.Entries)
}

// Scalar is a single numeric statistic.
type Scalar struct {
	repeat int
}

func (*Scalar) Kind() statfmt.Kind { return statfmt.KindScalar }

func (*Scalar) ColumnNames(name string) []string { return []string{name} }

func (s *Scalar) Columns(d *statfmt.VariableDescriptor) map[string]stattab.Value {
	var xs []float64
	for _, smp := range d.Samples() {
		if f, err := strconv.ParseFloat(smp.Raw, 64); err == nil {
			xs = append(xs, f)
		}
	}
	return map[string]stattab.Value{d.Name: reduce(xs)}
}

// Vector is a statistic with one numeric column per named entry. It
// also backs Distribution, whose entries are summary fields rather
// than sub-components; the rendering is identical.
type Vector struct {
	kind    statfmt.Kind
	repeat  int
	entries []string
}

func (v *Vector) Kind() statfmt.Kind { return v.kind }

// Entries returns the entry names in column order.
func (v *Vector) Entries() []string { return v.entries }

func (v *Vector) ColumnNames(name string) []string {
	cols := make([]string, len(v.entries))
	for i, e := range v.entries {
		cols[i] = name + "." + e
	}
	return cols
}

func (v *Vector) Columns(d *statfmt.VariableDescriptor) map[string]stattab.Value {
	byEntry := make(map[string][]float64)
	for _, smp := range d.Samples() {
		if f, err := strconv.ParseFloat(smp.Raw, 64); err == nil {
			byEntry[smp.Entry] = append(byEntry[smp.Entry], f)
		}
	}
	cells := make(map[string]stattab.Value, len(v.entries))
	for _, e := range v.entries {
		cells[d.Name+"."+e] = reduce(byEntry[e])
	}
	return cells
}

// Configuration is a categorical setting.
type Configuration struct {
	onEmpty string
}

func (*Configuration) Kind() statfmt.Kind { return statfmt.KindConfiguration }

func (*Configuration) ColumnNames(name string) []string { return []string{name} }

func (c *Configuration) Columns(d *statfmt.VariableDescriptor) map[string]stattab.Value {
	// First occurrence wins; later blocks may not repeat it.
	val := d.RawValue
	if val == "" && len(d.Samples()) > 0 {
		val = d.Samples()[0].Raw
	}
	if val == "" {
		val = c.onEmpty
	}
	return map[string]stattab.Value{d.Name: stattab.Str(val)}
}

// reduce collapses the per-block samples of one numeric cell into a
// single value: the mean across blocks, or the missing marker when no
// block provided a parseable value.
func reduce(xs []float64) stattab.Value {
	switch len(xs) {
	case 0:
		return stattab.Missing()
	case 1:
		return stattab.Num(xs[0])
	}
	return stattab.Num(stats.Sample{Xs: xs}.Mean())
}

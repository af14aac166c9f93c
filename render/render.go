// Package render is the boundary between shaped tables and their
// presentation. A Sink consumes a finished table; the concrete sinks
// write CSV interchange files or chart images. Rendering never
// modifies the table.
package render

import (
	"fmt"

	"ring5/stattab"
)

// A Sink consumes one finished table.
type Sink interface {
	// Render writes the table to the sink's destination.
	Render(t *stattab.Table) error
}

// A CSVSink writes the table as a CSV file.
type CSVSink struct {
	// Path is the destination file.
	Path string
}

func (s *CSVSink) Render(t *stattab.Table) error {
	if s.Path == "" {
		return fmt.Errorf("render: csv sink has no path")
	}
	return t.WriteCSVFile(s.Path)
}

// Multi fans one table out to several sinks, stopping at the first
// failure.
type Multi []Sink

func (m Multi) Render(t *stattab.Table) error {
	for _, s := range m {
		if err := s.Render(t); err != nil {
			return err
		}
	}
	return nil
}

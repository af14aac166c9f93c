package stattab

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// missingMarker is the CSV form of the missing Value. The marker
// still parses as a float, so readers check it before number parsing.
const missingMarker = "NaN"

// WriteCSV writes the table to w: one header row of column names
// followed by one record per row. Numeric cells use the shortest
// float representation that round-trips; missing cells write the
// explicit marker.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.cols); err != nil {
		return err
	}
	rec := make([]string, len(t.cols))
	for _, row := range t.rows {
		for i, v := range row {
			rec[i] = v.Text()
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table written by WriteCSV. Cells that parse as
// floats become numeric, the missing marker becomes the missing
// Value, everything else stays categorical. The CSV carries no type
// information, so a numeric-looking categorical value comes back
// numeric; Equals accounts for that.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stattab: reading CSV header: %w", err)
	}
	t := New(header...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stattab: reading CSV row %d: %w", t.NumRows()+1, err)
		}
		row := make([]Value, len(header))
		for i, cell := range rec {
			row[i] = parseCell(cell)
		}
		t.appendAligned(row)
	}
	return t, nil
}

func parseCell(cell string) Value {
	if cell == missingMarker {
		return Missing()
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return Num(f)
	}
	return Str(cell)
}

// WriteCSVFile writes the table to path, creating or truncating it.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSVFile reads a table from path.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

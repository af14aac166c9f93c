package statfmt

import (
	"encoding/json"
	"fmt"
	"io"
)

// ScanRecord is the JSON wire form of one discovered variable, used at
// the boundary between the scanner and external tooling (including an
// out-of-process classifier).
type ScanRecord struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Entries []string `json:"entries,omitempty"`
	Repeat  int      `json:"repeat,omitempty"`
}

// EncodeScan writes descriptors to w as an ordered JSON array of scan
// records.
func EncodeScan(w io.Writer, ds []*VariableDescriptor) error {
	recs := make([]ScanRecord, len(ds))
	for i, d := range ds {
		recs[i] = ScanRecord{
			Name:    d.Name,
			Type:    d.Kind.String(),
			Entries: d.Entries,
			Repeat:  d.Repeat,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// DecodeScan reads an ordered JSON array of scan records and
// reconstructs descriptors. Records with an unrecognized type are
// rejected: the record set is a machine boundary, not user input, so a
// bad type indicates a version mismatch worth surfacing.
func DecodeScan(r io.Reader) ([]*VariableDescriptor, error) {
	var recs []ScanRecord
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decoding scan records: %w", err)
	}
	ds := make([]*VariableDescriptor, 0, len(recs))
	for _, rec := range recs {
		kind := KindOf(rec.Type)
		if kind == KindUnknown {
			return nil, fmt.Errorf("scan record %q: unknown type %q", rec.Name, rec.Type)
		}
		repeat := rec.Repeat
		if repeat < 1 {
			repeat = 1
		}
		ds = append(ds, &VariableDescriptor{
			Name:    rec.Name,
			Kind:    kind,
			Repeat:  repeat,
			Entries: rec.Entries,
		})
	}
	return ds, nil
}

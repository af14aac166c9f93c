// Package statfmt provides a reader and classifier for simulator
// statistics dumps.
//
// A statistics dump is a flat text file of "name value # comment"
// records, optionally split into blocks bounded by "Begin Simulation
// Statistics" / "End Simulation Statistics" markers. One file commonly
// repeats the same statistic across several blocks (multi-dump runs).
//
// The reader is structured as a streaming operation modeled on
// bufio.Scanner to allow incremental processing of large dumps. It
// performs classification and per-name merging as it goes, so that a
// single pass over the input yields the final ordered list of variable
// descriptors.
//
// This package is designed to be used with the higher-level packages
// stattype, stattab and statparse.
package statfmt

// A Kind is the semantic type of a classified statistic.
type Kind int

const (
	// KindUnknown is the zero Kind. It is never produced by a
	// classifier; it exists so that an uninitialized Kind is
	// distinguishable from a real classification.
	KindUnknown Kind = iota

	// KindScalar is a single numeric statistic.
	KindScalar

	// KindVector is a statistic with multiple named sub-values
	// sharing a common base name ("base::subkey").
	KindVector

	// KindConfiguration is a categorical, non-numeric setting
	// (or a numeric one explicitly hinted as configuration).
	KindConfiguration

	// KindDistribution is a sampled distribution reporting named
	// summary fields (mean, total, percentile buckets).
	KindDistribution
)

var kindNames = [...]string{
	KindUnknown:       "unknown",
	KindScalar:        "scalar",
	KindVector:        "vector",
	KindConfiguration: "configuration",
	KindDistribution:  "distribution",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// KindOf maps the wire name of a kind back to its Kind value.
// Unrecognized names map to KindUnknown.
func KindOf(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return Kind(k)
		}
	}
	return KindUnknown
}

// A VariableDescriptor describes one named statistic discovered in a
// dump.
//
// Descriptors returned by a Reader are owned by the Reader until
// Scan returns false: a Vector or Distribution descriptor may gain
// additional Entries as later lines of the same base name are read,
// and Repeat grows as the variable reappears in later blocks. Callers
// that need a stable snapshot mid-scan should Clone.
type VariableDescriptor struct {
	// Name is the dot-segmented hierarchical identifier, without
	// any "::subkey" suffix.
	Name string

	// Kind is the semantic type assigned by classification.
	Kind Kind

	// Repeat is the number of dump blocks in which this variable
	// appeared. It is at least 1.
	Repeat int

	// Entries is the ordered set of sub-keys for Vector and
	// Distribution variables. It is empty for Scalar and
	// Configuration variables.
	Entries []string

	// RawValue is the unparsed value token of the first line that
	// produced this descriptor.
	RawValue string

	// samples holds every value token read for this variable, one
	// per contributing line, in input order. Downstream typed
	// variables reduce these into row cells.
	samples []EntrySample
}

// An EntrySample is one raw value observed for a variable. Entry is
// the sub-key for Vector and Distribution variables and "" otherwise.
type EntrySample struct {
	Entry string
	Raw   string
}

// Clone returns a copy of d that shares no state with d.
func (d *VariableDescriptor) Clone() *VariableDescriptor {
	d2 := *d
	d2.Entries = append([]string(nil), d.Entries...)
	d2.samples = append([]EntrySample(nil), d.samples...)
	return &d2
}

// Samples returns every value observed for this variable, in input
// order. The caller must not modify the returned slice.
func (d *VariableDescriptor) Samples() []EntrySample {
	return d.samples
}

// AddSample appends one observed value. The Reader calls this for
// every contributing line; it is exported for tests and for decoders
// that reconstruct descriptors from external scan output.
func (d *VariableDescriptor) AddSample(entry, raw string) {
	d.samples = append(d.samples, EntrySample{Entry: entry, Raw: raw})
}

// HasEntry reports whether e is already one of d's entries.
func (d *VariableDescriptor) HasEntry(e string) bool {
	for _, have := range d.Entries {
		if have == e {
			return true
		}
	}
	return false
}

// addEntry appends e to d's entries if it is not already present.
func (d *VariableDescriptor) addEntry(e string) {
	if !d.HasEntry(e) {
		d.Entries = append(d.Entries, e)
	}
}

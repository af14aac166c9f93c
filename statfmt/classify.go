package statfmt

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Hints biases classification: a name present in the set is classified
// as Configuration even when its value is numeric.
type Hints map[string]bool

// NewHints builds a hint set from a list of names.
func NewHints(names ...string) Hints {
	h := make(Hints, len(names))
	for _, n := range names {
		h[n] = true
	}
	return h
}

// A Classifier assigns a semantic kind to one raw statistic line.
//
// Classify returns the descriptor for the line and true, or nil and
// false for lines that carry no data (blank lines, comments, section
// markers, malformed records). Classification never fails: a line that
// cannot be understood is dropped, because dumps routinely contain a
// handful of noise lines and a batch parse must not abort on them.
//
// The in-process RuleClassifier is the default implementation. The
// interface exists so that an external classification process can be
// substituted without touching the Reader.
type Classifier interface {
	Classify(line []byte, hints Hints) (*VariableDescriptor, bool)
}

// distSummaryFields are the per-distribution summary sub-keys emitted
// by the simulator. A "base::subkey" line whose subkey is one of these
// belongs to a distribution, not a plain vector.
var distSummaryFields = map[string]bool{
	"samples":    true,
	"mean":       true,
	"gmean":      true,
	"stdev":      true,
	"total":      true,
	"min_value":  true,
	"max_value":  true,
	"underflows": true,
	"overflows":  true,
}

// RuleClassifier classifies lines with a fixed, ordered rule list:
//
//  1. "base::subkey" where subkey is a distribution summary field, or
//     any "base::subkey" line trailed by percentage tokens
//     (distribution buckets) -> Distribution.
//  2. any other "base::subkey" -> Vector.
//  3. non-numeric value -> Configuration.
//  4. name present in the hint set -> Configuration, even if numeric.
//  5. remaining numeric lines -> Scalar.
//
// The ordering resolves ambiguity between overlapping patterns; in
// particular a vector entry named "mean" is classified as a
// distribution field, which matches how the simulator names its
// output. First match wins.
type RuleClassifier struct{}

var _ Classifier = RuleClassifier{}

// Classify implements Classifier.
func (RuleClassifier) Classify(line []byte, hints Hints) (*VariableDescriptor, bool) {
	name, value, rest, ok := splitStatLine(line)
	if !ok {
		return nil, false
	}

	base, subkey, isVec := splitSubkey(name)
	if isVec {
		kind := KindVector
		if distSummaryFields[subkey] || hasPercentTokens(rest) {
			kind = KindDistribution
		}
		return &VariableDescriptor{
			Name:     base,
			Kind:     kind,
			Repeat:   1,
			Entries:  []string{subkey},
			RawValue: value,
		}, true
	}

	kind := KindScalar
	if hints[name] || !isNumeric(value) {
		kind = KindConfiguration
	}
	return &VariableDescriptor{
		Name:     name,
		Kind:     kind,
		Repeat:   1,
		RawValue: value,
	}, true
}

// splitStatLine splits a raw line into its name token, value token and
// the remaining tokens before any "#" comment. ok is false for blank
// lines, comment-only lines, section markers and lines without a value.
func splitStatLine(line []byte) (name, value string, rest []byte, ok bool) {
	var f []byte
	f, line = splitField(line)
	if len(f) == 0 || f[0] == '#' {
		return
	}
	// Section markers and other decorations start with punctuation
	// that never begins a statistic name.
	r, _ := utf8.DecodeRune(f)
	if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
		return
	}
	name = string(f)

	f, line = splitField(line)
	if len(f) == 0 || f[0] == '#' {
		return
	}
	value = string(f)

	// Everything up to the comment is available to the caller for
	// percentage-token detection.
	if i := bytes.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return name, value, line, true
}

// splitSubkey splits "base::subkey" names. Names without "::" (or with
// an empty base or subkey) are returned unchanged with ok false.
func splitSubkey(name string) (base, subkey string, ok bool) {
	i := strings.Index(name, "::")
	if i <= 0 || i+2 >= len(name) {
		return name, "", false
	}
	return name[:i], name[i+2:], true
}

// hasPercentTokens reports whether the uncommented remainder of a line
// contains percentage tokens such as "64.71%" or "(64.71%)". The
// simulator prints these after distribution bucket counts.
func hasPercentTokens(rest []byte) bool {
	for len(rest) > 0 {
		var f []byte
		f, rest = splitField(rest)
		if len(f) == 0 {
			break
		}
		tok := strings.Trim(string(f), "()")
		if strings.HasSuffix(tok, "%") {
			return true
		}
	}
	return false
}

// isNumeric reports whether tok parses as a float. The simulator
// writes "nan" and "inf" for degenerate statistics; those still count
// as numeric.
func isNumeric(tok string) bool {
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}

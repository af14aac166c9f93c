package statfmt

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode"
	"unicode/utf8"
)

// Block markers. One file may contain several Begin/End blocks; each
// bounds one dump of the full statistic set.
var (
	beginMarker = []byte("Begin Simulation Statistics")
	endMarker   = []byte("End Simulation Statistics")
)

// A ScanSummary aggregates the non-fatal noise absorbed during one
// scan pass. Per-line problems are counted here rather than surfaced
// as errors so that batch processing of hundreds of files is resilient
// to a few bad inputs.
type ScanSummary struct {
	// Lines is the total number of input lines consumed.
	Lines int

	// Records is the number of lines that classified as data.
	Records int

	// Skipped is the number of non-data lines (blank lines,
	// comments, markers, malformed records).
	Skipped int

	// Blocks is the number of Begin markers seen. A file without
	// explicit markers counts as a single block.
	Blocks int
}

// A Reader reads a statistics dump and produces one VariableDescriptor
// per distinct statistic name.
//
// Its API is modeled on bufio.Scanner: call Scan until it returns
// false, reading each newly discovered descriptor with Result. The
// Reader retains ownership of the descriptors it returns until the
// scan completes; Vector and Distribution descriptors may gain entries
// and all descriptors may gain repeats as later lines are read.
//
// To construct a new Reader, either call NewReader, or call Reset on a
// zeroed Reader.
type Reader struct {
	s        *bufio.Scanner
	c        Classifier
	hints    Hints
	err      error
	fileName string
	line     int

	block     int // 1-based ordinal of the current block
	blockSeen map[string]int

	byName  map[string]*VariableDescriptor
	ordered []*VariableDescriptor
	cur     *VariableDescriptor
	summary ScanSummary
}

// NewReader constructs a reader that classifies r with c, biased by
// hints. A nil c selects RuleClassifier. fileName is used in error
// messages; it is purely diagnostic.
func NewReader(r io.Reader, fileName string, c Classifier, hints Hints) *Reader {
	rd := new(Reader)
	rd.Reset(r, fileName, c, hints)
	return rd
}

// Reset resets the reader to begin reading from a new input,
// discarding all accumulated descriptors and summary counts.
func (r *Reader) Reset(ior io.Reader, fileName string, c Classifier, hints Hints) {
	if c == nil {
		c = RuleClassifier{}
	}
	if fileName == "" {
		fileName = "<unknown>"
	}
	r.s = bufio.NewScanner(ior)
	r.c = c
	r.hints = hints
	r.err = nil
	r.fileName = fileName
	r.line = 0
	r.block = 1
	r.blockSeen = make(map[string]int)
	r.byName = make(map[string]*VariableDescriptor)
	r.ordered = r.ordered[:0]
	r.cur = nil
	r.summary = ScanSummary{Blocks: 1}
}

// Scan advances the reader to the next newly discovered variable and
// reports whether one was found. Lines that merge into an already
// discovered variable are consumed without producing a result. When
// Scan returns false the caller should check Err.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for r.s.Scan() {
		r.line++
		r.summary.Lines++
		line := r.s.Bytes()

		if bytes.Contains(line, beginMarker) {
			if r.summary.Records > 0 {
				r.block++
				r.summary.Blocks++
			}
			r.summary.Skipped++
			continue
		}
		if bytes.Contains(line, endMarker) {
			r.summary.Skipped++
			continue
		}

		d, ok := r.c.Classify(line, r.hints)
		if !ok {
			r.summary.Skipped++
			continue
		}
		r.summary.Records++
		if r.merge(d) {
			return true
		}
	}
	if err := r.s.Err(); err != nil {
		r.err = fmt.Errorf("%s:%d: %w", r.fileName, r.line, err)
	}
	return false
}

// merge folds a per-line descriptor into the accumulated set and
// reports whether it introduced a new variable.
func (r *Reader) merge(d *VariableDescriptor) bool {
	entry := ""
	if len(d.Entries) > 0 {
		entry = d.Entries[0]
	}
	have, ok := r.byName[d.Name]
	if !ok {
		d.Repeat = 1
		d.AddSample(entry, d.RawValue)
		r.blockSeen[d.Name] = r.block
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
		r.cur = d
		return true
	}
	have.AddSample(entry, d.RawValue)

	// Repeat counts the number of blocks the variable appeared in.
	if r.blockSeen[d.Name] != r.block {
		r.blockSeen[d.Name] = r.block
		have.Repeat++
	}

	switch have.Kind {
	case KindVector, KindDistribution:
		// A vector line seen while a distribution descriptor
		// exists (or vice versa) still merges by base name; the
		// stronger classification wins.
		if d.Kind == KindDistribution {
			have.Kind = KindDistribution
		}
		for _, e := range d.Entries {
			have.addEntry(e)
		}
	default:
		// First occurrence wins for scalars and configurations;
		// later values are ignored.
	}
	return false
}

// Result returns the descriptor discovered by the last call to Scan.
// The descriptor may continue to accumulate entries and repeats until
// Scan returns false.
func (r *Reader) Result() *VariableDescriptor {
	return r.cur
}

// Descriptors returns all descriptors discovered so far, in first
// appearance order.
func (r *Reader) Descriptors() []*VariableDescriptor {
	return r.ordered
}

// Summary returns the scan summary accumulated so far.
func (r *Reader) Summary() ScanSummary {
	return r.summary
}

// Err returns the first I/O error encountered by the Reader.
// Classification problems are never errors; they are counted in the
// Summary.
func (r *Reader) Err() error {
	return r.err
}

// ScanFile scans one dump file to completion and returns its
// descriptors in discovery order. A nil c selects RuleClassifier.
// An unreadable or corrupt file returns a nil slice and the error;
// callers aggregating many files should record it and move on.
func ScanFile(path string, c Classifier, hints Hints) ([]*VariableDescriptor, ScanSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ScanSummary{}, err
	}
	defer f.Close()

	r := NewReader(f, path, c, hints)
	for r.Scan() {
	}
	if err := r.Err(); err != nil {
		return nil, r.Summary(), err
	}
	return r.Descriptors(), r.Summary(), nil
}

const isSpace uint64 = 1<<'\t' | 1<<'\n' | 1<<'\v' | 1<<'\f' | 1<<'\r' | 1<<' '

// splitField consumes and returns non-whitespace in x as field,
// consumes whitespace following the field, and then returns the
// remaining bytes of x.
func splitField(x []byte) (field, rest []byte) {
	var i int
	for i = 0; i < len(x); {
		if x[i] < utf8.RuneSelf {
			// Fast path for ASCII
			if (isSpace>>x[i])&1 != 0 {
				rest = x[i+1:]
				break
			}
			i++
		} else {
			r, n := utf8.DecodeRune(x[i:])
			if unicode.IsSpace(r) {
				rest = x[i+n:]
				break
			}
			i += n
		}
	}
	field = x[:i]

	for len(rest) > 0 {
		if rest[0] < utf8.RuneSelf {
			if (isSpace>>rest[0])&1 == 0 {
				break
			}
			rest = rest[1:]
		} else {
			r, n := utf8.DecodeRune(rest)
			if !unicode.IsSpace(r) {
				break
			}
			rest = rest[n:]
		}
	}
	return
}

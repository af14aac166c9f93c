// Package statparse walks a benchmark/configuration/seed directory
// tree of statistics dumps and assembles the combined table.
//
// Each leaf file is scanned by one worker of a bounded pool and
// contributes one row; the assembling goroutine is the sole writer of
// the table, and the result is sorted by the stable row key so that
// output is deterministic regardless of worker completion order.
// Unreadable or corrupt files are recorded in the run summary and
// skipped, never fatal: a batch over hundreds of files is expected to
// contain a few bad ones.
package statparse

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ring5/statfmt"
	"ring5/stattab"
	"ring5/stattype"
)

// Categorical columns recorded from the directory layout.
const (
	BenchmarkCol     = "benchmark"
	ConfigurationCol = "configuration"
	SeedCol          = "seed"
)

// DefaultTimeout bounds one file scan. A hung scan is treated as a
// failed scan for that file, not a pipeline-wide fault.
const DefaultTimeout = 60 * time.Second

// A Summary aggregates the non-fatal problems of one parse run.
type Summary struct {
	// Files is the number of candidate files discovered.
	Files int

	// Rows is the number of rows contributed to the table.
	Rows int

	// SkippedFiles counts files that failed to scan.
	SkippedFiles int

	// SkippedLines totals the non-data lines absorbed across all
	// scanned files.
	SkippedLines int

	// MappingErrors counts variables dropped because they could
	// not be mapped to a typed variable.
	MappingErrors int

	// CacheHits counts files served from the scan cache.
	CacheHits int

	// Causes records why each skipped file was skipped.
	Causes []error
}

// A Parser builds the combined table for one statistics tree.
//
// A Parser is an explicitly constructed service: it holds no global
// state and may be used concurrently for distinct Parse calls.
type Parser struct {
	// Root is the base directory containing the
	// benchmark/configuration/seed hierarchy.
	Root string

	// Pattern is the leaf file name to match, e.g. "stats.txt".
	Pattern string

	// Stats names the statistics of interest. Vector and
	// distribution statistics are named by their base name and
	// expand to one column per entry.
	Stats []string

	// ConfigVars names configuration variables. They are both
	// classification hints and projected columns.
	ConfigVars []string

	// Classifier classifies raw lines. Nil selects the in-process
	// rule classifier.
	Classifier statfmt.Classifier

	// Workers bounds the scan pool. Zero or negative means one
	// worker per file.
	Workers int

	// Timeout bounds one file scan. Zero means DefaultTimeout.
	Timeout time.Duration

	// Cache, when non-nil, serves unchanged files from their
	// previous scan.
	Cache *Cache

	// Logger receives per-file progress. Nil means no logging.
	Logger *zap.Logger
}

type fileRow struct {
	path  string
	cells map[string]stattab.Value
	scan  statfmt.ScanSummary
	hit   bool
	maps  int
	err   error
}

func (p *Parser) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.Named("parser")
}

func (p *Parser) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// Parse scans the tree and returns the combined table and the run
// summary. The returned error covers structural problems only (bad
// root, cancellation); per-file failures live in the summary.
func (p *Parser) Parse(ctx context.Context) (*stattab.Table, *Summary, error) {
	log := p.logger()
	files, err := p.findFiles()
	if err != nil {
		return nil, nil, err
	}
	log.Info("discovered stats files", zap.Int("files", len(files)))

	sum := &Summary{Files: len(files)}
	rows := make([]*fileRow, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if p.Workers > 0 {
		g.SetLimit(p.Workers)
	}
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = p.scanOne(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, sum, err
	}

	// The assembling goroutine is the sole writer of the table.
	table := stattab.New(BenchmarkCol, ConfigurationCol, SeedCol)
	for _, r := range rows {
		if r == nil {
			continue
		}
		sum.SkippedLines += r.scan.Skipped
		sum.MappingErrors += r.maps
		if r.hit {
			sum.CacheHits++
		}
		if r.err != nil {
			sum.SkippedFiles++
			sum.Causes = append(sum.Causes, fmt.Errorf("%s: %w", r.path, r.err))
			log.Warn("skipping file", zap.String("path", r.path), zap.Error(r.err))
			continue
		}
		table.AppendRow(r.cells)
		sum.Rows++
	}
	table.SortByKey([]string{BenchmarkCol, ConfigurationCol, SeedCol})
	log.Info("parse complete",
		zap.Int("rows", sum.Rows),
		zap.Int("skippedFiles", sum.SkippedFiles),
		zap.Int("cacheHits", sum.CacheHits))
	return table, sum, nil
}

// findFiles collects matching leaf files in sorted order, which fixes
// the column discovery order of the combined table.
func (p *Parser) findFiles() ([]string, error) {
	if p.Root == "" {
		return nil, fmt.Errorf("statparse: root directory not set")
	}
	pattern := p.Pattern
	if pattern == "" {
		pattern = "stats.txt"
	}
	var files []string
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("statparse: bad pattern %q: %w", pattern, err)
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// scanOne scans a single file, consulting the cache first, and
// projects it to the requested variables. All failures are recorded in
// the returned fileRow; scanOne never panics the batch.
func (p *Parser) scanOne(path string) *fileRow {
	r := &fileRow{path: path}

	ds, scan, hit, err := p.descriptors(path)
	r.scan, r.hit = scan, hit
	if err != nil {
		r.err = err
		return r
	}

	wanted := make(map[string]bool, len(p.Stats)+len(p.ConfigVars))
	for _, s := range p.Stats {
		wanted[s] = true
	}
	for _, s := range p.ConfigVars {
		wanted[s] = true
	}

	cells := map[string]stattab.Value{}
	for _, d := range ds {
		if len(wanted) > 0 && !wanted[d.Name] {
			continue
		}
		v, err := stattype.FromDescriptor(d)
		if err != nil {
			// Fatal for this variable only.
			r.maps++
			continue
		}
		for col, val := range v.Columns(d) {
			cells[col] = val
		}
	}

	bench, cfg, seed := p.pathKey(path)
	cells[BenchmarkCol] = stattab.Str(bench)
	cells[ConfigurationCol] = stattab.Str(cfg)
	cells[SeedCol] = stattab.Str(seed)
	r.cells = cells
	return r
}

// descriptors returns the scan result for path, from the cache when
// the file is unchanged, otherwise from a fresh bounded scan. A cache
// hit carries an empty scan summary: its noise was counted when the
// file was first read.
func (p *Parser) descriptors(path string) ([]*statfmt.VariableDescriptor, statfmt.ScanSummary, bool, error) {
	fp := p.fingerprint()
	if p.Cache != nil {
		if ds, ok := p.Cache.Get(path, fp); ok {
			return ds, statfmt.ScanSummary{}, true, nil
		}
	}

	ds, scan, err := scanWithTimeout(path, p.Classifier, statfmt.NewHints(p.ConfigVars...), p.timeout())
	if err != nil {
		return nil, scan, false, err
	}
	if p.Cache != nil {
		if err := p.Cache.Put(path, fp, ds); err != nil {
			p.logger().Warn("cache write failed", zap.String("path", path), zap.Error(err))
		}
	}
	return ds, scan, false, nil
}

// fingerprint captures everything besides the file bytes that the scan
// result depends on: the classifier in use and the hint set. A cached
// entry produced under a different fingerprint is stale even when the
// file itself is unchanged.
func (p *Parser) fingerprint() string {
	c := p.Classifier
	if c == nil {
		c = statfmt.RuleClassifier{}
	}
	hints := append([]string(nil), p.ConfigVars...)
	sort.Strings(hints)
	return fmt.Sprintf("%T\x1f%s", c, strings.Join(hints, "\x1f"))
}

// scanWithTimeout runs one file scan with a bounded wait. On timeout
// the in-flight scan is abandoned (it completes in the background and
// its result is dropped); the file counts as failed.
func scanWithTimeout(path string, c statfmt.Classifier, hints statfmt.Hints, d time.Duration) ([]*statfmt.VariableDescriptor, statfmt.ScanSummary, error) {
	type scanResult struct {
		ds  []*statfmt.VariableDescriptor
		sum statfmt.ScanSummary
		err error
	}
	ch := make(chan scanResult, 1)
	go func() {
		ds, sum, err := statfmt.ScanFile(path, c, hints)
		ch <- scanResult{ds, sum, err}
	}()
	select {
	case res := <-ch:
		return res.ds, res.sum, res.err
	case <-time.After(d):
		return nil, statfmt.ScanSummary{}, fmt.Errorf("scan timed out after %s", d)
	}
}

// pathKey derives the benchmark, configuration and seed columns from
// the file's directory segments below the root. Trees shallower than
// three levels fill the tail segments with "-".
func (p *Parser) pathKey(path string) (bench, cfg, seed string) {
	rel, err := filepath.Rel(p.Root, filepath.Dir(path))
	if err != nil || rel == "." {
		return "-", "-", "-"
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	pick := func(i int) string {
		if i < len(segs) && segs[i] != "" {
			return segs[i]
		}
		return "-"
	}
	return pick(0), pick(1), pick(2)
}

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ring5/shape"
	"ring5/stattab"
)

// DefaultKeyCols is the stable row key used to align tables when
// merging stage outputs: one row per benchmark x configuration x seed.
var DefaultKeyCols = []string{"benchmark", "configuration", "seed"}

// A Mode selects how the runner treats per-stage failures.
type Mode int

const (
	// Strict aborts the run on the first stage failure, after the
	// in-flight wave completes.
	Strict Mode = iota

	// BestEffort prunes the failing stage's branch and finishes
	// everything else, collecting failures in the Report.
	BestEffort
)

// A Work is the scheduler's unit of execution: one spec bound to its
// shaper and its CSV endpoints. Works are owned by the runner for the
// lifetime of one run; their spill files are removed when the run
// ends.
type Work struct {
	ID     string
	Spec   Spec
	Shaper shape.Shaper
	Deps   []string
	SrcCSV []string
	DstCSV string
}

// A Report summarizes one pipeline run.
type Report struct {
	// RunID names the run's spill directory.
	RunID string

	// Completed lists the IDs of stages that produced output, in
	// completion-deterministic (sorted) order.
	Completed []string

	// Failed maps failed stage IDs to their errors, including
	// stages skipped because a dependency failed.
	Failed map[string]error
}

// A Runner executes a pipeline. The zero Runner is valid: strict
// mode, one worker per ready stage, no logging, spill under the
// system temp directory.
type Runner struct {
	// Mode selects strict or best-effort failure handling.
	Mode Mode

	// Workers bounds how many stages of one wave run
	// concurrently. Zero or negative means no bound.
	Workers int

	// KeyCols is the stable row key for merging stage outputs.
	// Empty means DefaultKeyCols.
	KeyCols []string

	// SpillDir is where intermediate CSV tables are written. Empty
	// means the system temp directory.
	SpillDir string

	// Logger receives stage-level progress. Nil means no logging.
	Logger *zap.Logger
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) keyCols() []string {
	if len(r.KeyCols) == 0 {
		return DefaultKeyCols
	}
	return r.KeyCols
}

// Run executes specs against the initial table and returns the final
// table: the keyed merge of every terminal stage's output, sorted by
// the row key. Structural problems (bad params, unknown kinds,
// cycles, dangling dependencies) are rejected before any stage
// executes. ctx cancellation is honored between waves; stages already
// in flight complete first.
func (r *Runner) Run(ctx context.Context, specs []Spec, initial *stattab.Table) (*stattab.Table, *Report, error) {
	log := r.logger().Named("pipeline")
	report := &Report{RunID: uuid.NewString(), Failed: make(map[string]error)}

	if err := validate(specs); err != nil {
		return nil, report, err
	}

	// Instantiate every shaper up front: a broken configuration is
	// rejected before any data is loaded.
	works := make(map[string]*Work, len(specs))
	var order []string
	for _, s := range specs {
		shaper, err := Build(s)
		if err != nil {
			return nil, report, err
		}
		works[s.ID] = &Work{ID: s.ID, Spec: s, Shaper: shaper, Deps: s.DependsOn}
		order = append(order, s.ID)
	}

	spill, err := os.MkdirTemp(r.SpillDir, "ring5-run-"+report.RunID+"-")
	if err != nil {
		return nil, report, fmt.Errorf("pipeline: creating spill dir: %w", err)
	}
	defer os.RemoveAll(spill)

	// The pipeline input is itself spilled so that every stage,
	// dependent or not, reads its sources the same way.
	initialCSV := filepath.Join(spill, "input.csv")
	if err := initial.WriteCSVFile(initialCSV); err != nil {
		return nil, report, fmt.Errorf("pipeline: spilling input: %w", err)
	}

	done := make(map[string]string) // spec ID -> output CSV
	pending := make(map[string]bool, len(works))
	for id := range works {
		pending[id] = true
	}

	var mu sync.Mutex // guards done and report across a wave

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		// Collect the ready wave, pruning stages whose
		// dependencies failed.
		var wave []*Work
		for _, id := range order {
			if !pending[id] {
				continue
			}
			w := works[id]
			ready, failedDep := true, ""
			for _, dep := range w.Deps {
				if _, ok := report.Failed[dep]; ok {
					failedDep = dep
				}
				if _, ok := done[dep]; !ok {
					ready = false
				}
			}
			if failedDep != "" {
				delete(pending, id)
				report.Failed[id] = fmt.Errorf("pipeline: %s skipped: dependency %s failed", id, failedDep)
				continue
			}
			if ready {
				wave = append(wave, w)
			}
		}
		if len(wave) == 0 {
			if len(report.Failed) > 0 {
				// Everything left was downstream of a failure and
				// has been pruned.
				break
			}
			return nil, report, fmt.Errorf("pipeline: no runnable stage among %d pending", len(pending))
		}

		for _, w := range wave {
			delete(pending, w.ID)
			if len(w.Deps) == 0 {
				w.SrcCSV = []string{initialCSV}
			} else {
				w.SrcCSV = make([]string, len(w.Deps))
				for i, dep := range w.Deps {
					w.SrcCSV[i] = done[dep]
				}
			}
			w.DstCSV = filepath.Join(spill, uuid.NewString()+".csv")
		}

		g := new(errgroup.Group)
		if r.Workers > 0 {
			g.SetLimit(r.Workers)
		}
		for _, w := range wave {
			w := w
			g.Go(func() error {
				err := r.runWork(w)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.Warn("stage failed", zap.String("id", w.ID), zap.Error(err))
					report.Failed[w.ID] = err
					if r.Mode == Strict {
						return fmt.Errorf("pipeline: stage %s: %w", w.ID, err)
					}
					return nil
				}
				log.Debug("stage done", zap.String("id", w.ID), zap.String("dst", w.DstCSV))
				done[w.ID] = w.DstCSV
				return nil
			})
		}
		// In strict mode the first error aborts the run, but only
		// after every stage of the wave has returned: workers are
		// never force-killed mid-computation.
		if err := g.Wait(); err != nil {
			return nil, report, err
		}
	}

	final, err := r.mergeTerminals(specs, works, done, report)
	if err != nil {
		return nil, report, err
	}
	if r.Mode == Strict && len(report.Failed) > 0 {
		// Unreachable when a wave already aborted, but a pruned
		// branch with no executed failure still counts.
		for id, err := range report.Failed {
			return nil, report, fmt.Errorf("pipeline: stage %s: %w", id, err)
		}
	}
	return final, report, nil
}

// runWork executes one stage: load its sources, merge them, verify
// preconditions, apply, spill the output.
func (r *Runner) runWork(w *Work) error {
	var in *stattab.Table
	for _, src := range w.SrcCSV {
		t, err := stattab.ReadCSVFile(src)
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		if in == nil {
			in = t
		} else {
			in = stattab.Merge(in, t, r.keyCols())
		}
	}
	if err := w.Shaper.VerifyPreconditions(in); err != nil {
		return err
	}
	out, err := w.Shaper.Apply(in)
	if err != nil {
		return err
	}
	return out.WriteCSVFile(w.DstCSV)
}

// mergeTerminals merges the outputs of every stage no other stage
// depends on, aligned by the row key and sorted for deterministic
// output.
func (r *Runner) mergeTerminals(specs []Spec, works map[string]*Work, done map[string]string, report *Report) (*stattab.Table, error) {
	depended := make(map[string]bool)
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			depended[dep] = true
		}
	}

	var terminals []string
	for _, s := range specs {
		if _, ok := done[s.ID]; ok && !depended[s.ID] {
			terminals = append(terminals, s.ID)
		}
	}
	sort.Strings(terminals)

	for id := range done {
		report.Completed = append(report.Completed, id)
	}
	sort.Strings(report.Completed)

	if len(terminals) == 0 {
		return nil, fmt.Errorf("pipeline: no stage produced output")
	}

	var final *stattab.Table
	for _, id := range terminals {
		t, err := stattab.ReadCSVFile(done[id])
		if err != nil {
			return nil, fmt.Errorf("pipeline: reading output of %s: %w", id, err)
		}
		if final == nil {
			final = t
		} else {
			final = stattab.Merge(final, t, r.keyCols())
		}
	}
	final.SortByKey(r.keyCols())
	return final, nil
}

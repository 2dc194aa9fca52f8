// Package processor resolves batches of PNG files and drives each one
// through the optimization pipeline: decode, optional lossy palette
// reduction, lossless recompression and an atomic write.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	tlog "tinyimg/internal/log"
	"tinyimg/internal/lossless"
	"tinyimg/internal/lossy"
	"tinyimg/internal/quantize"
	"tinyimg/pkg/imgutil"
)

// Reducer is the lossy pre-pass. A disabled budget must return a nil image.
type Reducer interface {
	Reduce(img image.Image, budget lossy.Budget) (*image.Paletted, lossy.Selection, error)
}

// Processor runs tasks sequentially in input order.
type Processor struct {
	Opts    Options
	Log     *zap.Logger
	Reducer Reducer
	// Out receives one report line per task when Opts.Verbose is set.
	Out io.Writer
	// Updates, when non-nil, receives a ProgressUpdate for every stage
	// transition.
	Updates chan<- ProgressUpdate
}

// New returns a Processor using the palette selector for lossy work.
func New(opts Options, log *zap.Logger) *Processor {
	log = tlog.OrNop(log)
	return &Processor{
		Opts: opts,
		Log:  log,
		Reducer: &lossy.Selector{
			Quantizer: quantize.Quantizer{Seed: opts.Seed},
			Dither:    opts.Dither,
			Log:       log,
		},
	}
}

// Optimize resolves inputs against out, processes every task and returns
// the ordered destination list. Validation problems abort before any file
// is touched; per-task failures are collected and returned together after
// the whole batch ran, alongside the full destination list.
func Optimize(ctx context.Context, inputs []string, out Output, opts Options, w io.Writer, log *zap.Logger) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	tasks, err := Resolve(inputs, out, opts.Recursive)
	if err != nil {
		return nil, err
	}

	p := New(opts, log)
	p.Out = w
	_, _, runErr := p.Run(ctx, tasks)

	dests := make([]string, len(tasks))
	for i, t := range tasks {
		dests[i] = t.Dest
	}
	return dests, runErr
}

// Run processes tasks one by one. Every task runs even when earlier ones
// fail; the returned error combines all task failures. A cancelled context
// stops the batch between tasks.
func (p *Processor) Run(ctx context.Context, tasks []Task) ([]Result, Summary, error) {
	summary := Summary{Total: len(tasks)}
	if err := p.Opts.Validate(); err != nil {
		return nil, summary, err
	}
	log := tlog.OrNop(p.Log)
	reporter := NewReporter(tasks)
	start := time.Now()

	p.send(ctx, ProgressUpdate{Total: len(tasks), Index: -1, Stage: StagePending})

	results := make([]Result, 0, len(tasks))
	var errs error
	warnedPreserve := false
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			log.Warn("batch interrupted", zap.Int("remaining", len(tasks)-i), zap.Error(err))
			errs = multierr.Append(errs, err)
			break
		}

		res := p.process(ctx, i, task, log)
		if res.Selection != nil && res.Selection.Applied && p.Opts.Preserve && !warnedPreserve {
			log.Warn("file attributes are not preserved for lossy output")
			warnedPreserve = true
		}
		summary.add(res)
		results = append(results, res)
		if res.Err != nil {
			errs = multierr.Append(errs, res.Err)
		}

		if p.Opts.Verbose && p.Out != nil {
			if line := reporter.Line(res); line != "" {
				fmt.Fprintln(p.Out, line)
			}
		}
		p.send(ctx, ProgressUpdate{Index: i, Path: task.Source, Stage: res.Stage, Result: &res})
	}

	summary.Elapsed = time.Since(start)
	log.Info("batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("lossy_applied", summary.LossyApplied),
		zap.Int64("input_bytes", summary.InputBytes),
		zap.Int64("output_bytes", summary.OutputBytes),
		zap.Duration("elapsed", summary.Elapsed))
	return results, summary, errs
}

func (p *Processor) process(ctx context.Context, index int, task Task, log *zap.Logger) (res Result) {
	res = Result{Task: task, Stage: StagePending}
	start := time.Now()
	log = log.With(zap.String("path", task.Source))

	defer func() {
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			log.Error("task failed", zap.Stringer("stage", res.Stage), zap.Error(res.Err))
			res.Stage = StageFailed
			return
		}
		fields := []zap.Field{
			zap.String("dest", task.Dest),
			zap.Int64("input_bytes", res.InputSize),
			zap.Int64("output_bytes", res.OutputSize),
			zap.Duration("elapsed", res.Elapsed),
		}
		if res.Selection != nil && res.Selection.Applied {
			fields = append(fields, zap.Int("colors", res.Selection.Colors), zap.Float64("threshold", res.Selection.Threshold))
		}
		log.Info("optimized", fields...)
	}()
	fail := func(kind error, err error) Result {
		res.Err = newTaskError(kind, res.Stage, task.Source, err)
		return res
	}
	advance := func(s Stage) {
		res.Stage = s
		p.send(ctx, ProgressUpdate{Index: index, Path: task.Source, Stage: s})
	}

	advance(StageDecoding)
	info, err := os.Stat(task.Source)
	if err != nil {
		return fail(ErrIO, err)
	}
	src, err := os.ReadFile(task.Source)
	if err != nil {
		return fail(ErrIO, err)
	}
	res.InputSize = int64(len(src))

	kind, err := imgutil.SniffReader(bytes.NewReader(src))
	if err != nil {
		return fail(ErrIO, err)
	}
	if kind == imgutil.KindUnknown {
		return fail(ErrIO, fmt.Errorf("not a PNG file"))
	}

	var replacement image.Image
	switch {
	case !p.Opts.Lossy.Enabled():
	case kind == imgutil.KindAPNG:
		log.Debug("animated PNG, lossy pass skipped")
	default:
		decoded, err := png.Decode(bytes.NewReader(src))
		if err != nil {
			return fail(ErrIO, fmt.Errorf("decode: %w", err))
		}
		advance(StageQuantizing)
		img, sel, err := p.Reducer.Reduce(decoded, p.Opts.Lossy)
		if err != nil {
			return fail(ErrQuantization, err)
		}
		res.Selection = &sel
		if sel.Applied && img != nil {
			replacement = img
		}
	}

	advance(StageRecompressing)
	data, err := lossless.Optimize(ctx, src, replacement, p.Opts.lossless())
	if err != nil {
		return fail(nil, err)
	}

	advance(StageWriting)
	preserve := p.Opts.Preserve && replacement == nil
	if err := writeFile(task.Dest, data, info, preserve); err != nil {
		return fail(ErrIO, err)
	}
	res.OutputSize = int64(len(data))
	res.Stage = StageDone
	return res
}

func (p *Processor) send(ctx context.Context, u ProgressUpdate) {
	if p.Updates == nil {
		return
	}
	select {
	case p.Updates <- u:
	case <-ctx.Done():
	}
}

// writeFile replaces dest atomically. With preserve, the source's
// permissions and modification time carry over; otherwise an existing
// destination keeps its permissions.
func writeFile(dest string, data []byte, src os.FileInfo, preserve bool) error {
	destDir := filepath.Dir(dest)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if preserve {
		mode = src.Mode().Perm()
	} else if existing, err := os.Stat(dest); err == nil {
		mode = existing.Mode().Perm()
	}

	tmpFile, err := os.CreateTemp(destDir, "tinyimg-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile.Name())

	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := replaceFile(tmpFile.Name(), dest); err != nil {
		return err
	}
	if preserve {
		mtime := src.ModTime()
		if err := os.Chtimes(dest, mtime, mtime); err != nil {
			return err
		}
	}
	return nil
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}

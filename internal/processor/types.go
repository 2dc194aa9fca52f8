package processor

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"tinyimg/internal/lossless"
	"tinyimg/internal/lossy"
	"tinyimg/internal/quantize"
)

// Options is one optimization request shared by every task of a batch.
type Options struct {
	Level     int
	Lossy     lossy.Budget
	Alpha     bool
	Strip     lossless.StripMode
	Interlace lossless.Interlace
	Fast      bool
	Timeout   time.Duration
	Preserve  bool
	Verbose   bool
	Recursive bool
	Dither    quantize.Dither
	Seed      int64
}

// DefaultOptions mirrors the command line defaults.
func DefaultOptions() Options {
	return Options{
		Level:     2,
		Strip:     lossless.StripAll,
		Interlace: lossless.InterlaceOff,
		Preserve:  true,
		Verbose:   true,
		Dither:    quantize.DitherOrdered,
	}
}

// Validate reports every invalid field at once.
func (o Options) Validate() error {
	var err error
	if o.Level < 0 || o.Level > lossless.MaxLevel {
		err = multierr.Append(err, fmt.Errorf("level must be between 0 and %d, got %d", lossless.MaxLevel, o.Level))
	}
	if math.IsNaN(o.Lossy.DeltaE) || math.IsInf(o.Lossy.DeltaE, 0) {
		err = multierr.Append(err, fmt.Errorf("lossy must be a finite number or 'auto', got %v", o.Lossy.DeltaE))
	}
	if o.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("timeout must not be negative, got %s", o.Timeout))
	}
	if _, perr := lossless.ParseStripMode(string(o.Strip)); perr != nil {
		err = multierr.Append(err, perr)
	}
	if _, perr := lossless.ParseInterlace(string(o.Interlace)); perr != nil {
		err = multierr.Append(err, perr)
	}
	if _, perr := quantize.ParseDither(string(o.Dither)); perr != nil {
		err = multierr.Append(err, perr)
	}
	if err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (o Options) lossless() lossless.Options {
	return lossless.Options{
		Level:         o.Level,
		OptimizeAlpha: o.Alpha,
		Strip:         o.Strip,
		Interlace:     o.Interlace,
		Fast:          o.Fast,
		Timeout:       o.Timeout,
	}
}

// Task is one source-to-destination pairing.
type Task struct {
	Source string
	Dest   string
	// Rel is the source path relative to the input directory, or its base
	// name for explicitly listed files.
	Rel string
}

// Stage is a task's position in the pipeline.
type Stage int

const (
	StagePending Stage = iota
	StageDecoding
	StageQuantizing
	StageRecompressing
	StageWriting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageDecoding:
		return "decoding"
	case StageQuantizing:
		return "quantizing"
	case StageRecompressing:
		return "recompressing"
	case StageWriting:
		return "writing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Result is the outcome of one task.
type Result struct {
	Task       Task
	InputSize  int64
	OutputSize int64
	Elapsed    time.Duration
	Stage      Stage
	// Selection is set when a lossy budget was in effect.
	Selection *lossy.Selection
	Err       error
}

// Saved is the byte difference between input and output.
func (r Result) Saved() int64 {
	return r.InputSize - r.OutputSize
}

// Summary aggregates a batch.
type Summary struct {
	Total        int
	Succeeded    int
	Failed       int
	LossyApplied int
	InputBytes   int64
	OutputBytes  int64
	Elapsed      time.Duration
}

// SpaceSaved returns the aggregate byte difference between inputs and
// outputs. Positive means outputs are smaller.
func (s *Summary) SpaceSaved() int64 {
	return s.InputBytes - s.OutputBytes
}

func (s *Summary) add(r Result) {
	if r.Err != nil {
		s.Failed++
		return
	}
	s.Succeeded++
	s.InputBytes += r.InputSize
	s.OutputBytes += r.OutputSize
	if r.Selection != nil && r.Selection.Applied {
		s.LossyApplied++
	}
}

// ProgressUpdate is sent after every stage transition. Total is only set
// on the first update of a batch.
type ProgressUpdate struct {
	Total  int
	Index  int
	Path   string
	Stage  Stage
	Result *Result
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tinyimg/internal/config"
	tlog "tinyimg/internal/log"
	"tinyimg/internal/lossless"
	"tinyimg/internal/lossy"
	"tinyimg/internal/processor"
	"tinyimg/internal/quantize"
	"tinyimg/internal/tui"
)

type optimizeFlags struct {
	level     int
	lossy     string
	alpha     bool
	strip     string
	interlace string
	fast      bool
	timeout   time.Duration
	preserve  bool
	quiet     bool
	recursive bool
	dither    string
	seed      int64
	output    []string
	config    string
	progress  bool
	debug     bool
}

var optFlags optimizeFlags

var optimizeCmd = &cobra.Command{
	Use:   "optimize [flags] <file|dir>...",
	Short: "Optimize PNG files in place or into new destinations",
	Long: "Optimize PNG files. Without --output files are rewritten in place. A single\n" +
		"--output naming a directory (existing, or ending in a path separator) receives\n" +
		"mirrored copies; otherwise each --output names one destination file, in input order.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(cmd, args, optFlags)
	},
}

func init() {
	registerOptimizeFlags(optimizeCmd.Flags(), &optFlags)
	rootCmd.AddCommand(optimizeCmd)
}

func registerOptimizeFlags(f *pflag.FlagSet, fl *optimizeFlags) {
	def := processor.DefaultOptions()
	f.IntVarP(&fl.level, "level", "l", def.Level, fmt.Sprintf("lossless effort, 0 to %d", lossless.MaxLevel))
	f.StringVar(&fl.lossy, "lossy", "", "perceptual budget in Delta E, or 'auto'; empty or 0 keeps the image lossless")
	f.BoolVar(&fl.alpha, "alpha", def.Alpha, "clear color values of fully transparent pixels")
	f.StringVar(&fl.strip, "strip", string(def.Strip), "metadata to remove: none, safe or all")
	f.StringVar(&fl.interlace, "interlace", string(def.Interlace), "output interlacing: off, on or keep")
	f.BoolVar(&fl.fast, "fast", def.Fast, "rank filters with fast compression")
	f.DurationVar(&fl.timeout, "timeout", def.Timeout, "bound on recompression time per file, 0 for none")
	f.BoolVar(&fl.preserve, "preserve", def.Preserve, "keep permissions and modification time of sources")
	f.BoolVarP(&fl.quiet, "quiet", "q", !def.Verbose, "do not print a line per file")
	f.BoolVarP(&fl.recursive, "recursive", "r", def.Recursive, "descend into subdirectories")
	f.StringVar(&fl.dither, "dither", string(def.Dither), "lossy dithering: none, ordered or diffusion")
	f.Int64Var(&fl.seed, "seed", def.Seed, "seed for palette clustering")
	f.StringArrayVarP(&fl.output, "output", "o", nil, "destination directory or file; repeat for several files")
	f.StringVarP(&fl.config, "config", "c", "", "path to a YAML config file")
	f.BoolVar(&fl.progress, "progress", false, "show a live progress display")
	f.BoolVar(&fl.debug, "debug", false, "emit debug logs")
}

func runOptimize(cmd *cobra.Command, args []string, fl optimizeFlags) error {
	var cfg *config.Config
	if fl.config != "" {
		var err error
		if cfg, err = config.Load(fl.config); err != nil {
			return err
		}
	}

	opts, err := buildOptions(cmd.Flags(), fl, cfg)
	if err != nil {
		return err
	}

	outputs := fl.output
	if len(outputs) == 0 && cfg != nil && cfg.Output != "" {
		outputs = []string{cfg.Output}
	}
	out := outputFor(outputs)

	debug := fl.debug || (cfg != nil && cfg.Debug)
	logger := tlog.New(tlog.NewRunID(), debug)
	defer func() { _ = logger.Sync() }()

	if err := opts.Validate(); err != nil {
		return err
	}
	tasks, err := processor.Resolve(args, out, opts.Recursive)
	if err != nil {
		return err
	}
	logger.Debug("resolved batch", zap.Int("tasks", len(tasks)), zap.Stringer("output", out))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := processor.New(opts, logger)
	if !fl.progress {
		p.Out = cmd.OutOrStdout()
		_, summary, runErr := p.Run(ctx, tasks)
		printSummary(cmd, summary, opts)
		return runErr
	}

	updates := make(chan processor.ProgressUpdate, 64)
	p.Updates = updates
	program := tea.NewProgram(tui.NewModel(updates), tea.WithOutput(cmd.ErrOrStderr()))

	uiDone := make(chan struct{})
	go func() {
		defer close(uiDone)
		final, uiErr := program.Run()
		if uiErr != nil {
			logger.Warn("progress display stopped", zap.Error(uiErr))
		}
		if m, ok := final.(tui.Model); ok && m.Cancelled() {
			cancel()
		}
	}()

	_, summary, runErr := p.Run(ctx, tasks)
	close(updates)
	<-uiDone

	printSummary(cmd, summary, opts)
	return runErr
}

// buildOptions layers defaults, then the config file, then the flags the
// user actually set.
func buildOptions(flags *pflag.FlagSet, fl optimizeFlags, cfg *config.Config) (processor.Options, error) {
	opts := processor.DefaultOptions()
	if cfg != nil {
		if err := cfg.Apply(&opts); err != nil {
			return opts, fmt.Errorf("config: %w", err)
		}
	}

	var errs []error
	set := func(name string, apply func() error) {
		if !flags.Changed(name) {
			return
		}
		if err := apply(); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", name, err))
		}
	}

	set("level", func() error { opts.Level = fl.level; return nil })
	set("lossy", func() (err error) { opts.Lossy, err = lossy.ParseBudget(fl.lossy); return })
	set("alpha", func() error { opts.Alpha = fl.alpha; return nil })
	set("strip", func() (err error) { opts.Strip, err = lossless.ParseStripMode(fl.strip); return })
	set("interlace", func() (err error) { opts.Interlace, err = lossless.ParseInterlace(fl.interlace); return })
	set("fast", func() error { opts.Fast = fl.fast; return nil })
	set("timeout", func() error { opts.Timeout = fl.timeout; return nil })
	set("preserve", func() error { opts.Preserve = fl.preserve; return nil })
	set("quiet", func() error { opts.Verbose = !fl.quiet; return nil })
	set("recursive", func() error { opts.Recursive = fl.recursive; return nil })
	set("dither", func() (err error) { opts.Dither, err = quantize.ParseDither(fl.dither); return })
	set("seed", func() error { opts.Seed = fl.seed; return nil })

	return opts, multierr.Combine(errs...)
}

// outputFor picks the output variant from the --output values: none means
// in place, one directory mirrors, anything else names files in order.
func outputFor(values []string) processor.Output {
	switch len(values) {
	case 0:
		return processor.Identity()
	case 1:
		v := values[0]
		if strings.HasSuffix(v, "/") || strings.HasSuffix(v, string(os.PathSeparator)) {
			return processor.Directory(v)
		}
		if info, err := os.Stat(v); err == nil && info.IsDir() {
			return processor.Directory(v)
		}
		return processor.FixedPath(v)
	default:
		return processor.PathList(values...)
	}
}

func printSummary(cmd *cobra.Command, summary processor.Summary, opts processor.Options) {
	if !opts.Verbose || summary.Total == 0 {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(tui.SummaryRows(summary)))
}

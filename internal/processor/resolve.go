package processor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"

	"tinyimg/pkg/imgutil"
)

type outputKind int

const (
	outputIdentity outputKind = iota
	outputFixed
	outputList
	outputDirectory
	outputMapping
)

// Output describes where optimized files are written. Build one with
// Identity, FixedPath, PathList, Directory or Mapping.
type Output struct {
	kind  outputKind
	paths []string
	fn    func(string) string
}

// Identity overwrites every source in place.
func Identity() Output { return Output{kind: outputIdentity} }

// FixedPath writes the single resolved source to p.
func FixedPath(p string) Output { return Output{kind: outputFixed, paths: []string{p}} }

// PathList pairs sources with destinations by position.
func PathList(ps ...string) Output { return Output{kind: outputList, paths: ps} }

// Directory writes below dir, mirroring subdirectories of a directory
// input and using base names for explicit files.
func Directory(dir string) Output { return Output{kind: outputDirectory, paths: []string{dir}} }

// Mapping derives each destination from its source path.
func Mapping(fn func(src string) string) Output { return Output{kind: outputMapping, fn: fn} }

func (o Output) String() string {
	switch o.kind {
	case outputIdentity:
		return "in place"
	case outputFixed:
		return "file " + o.paths[0]
	case outputList:
		return fmt.Sprintf("%d paths", len(o.paths))
	case outputDirectory:
		return "directory " + o.paths[0]
	case outputMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Resolve expands inputs into tasks and pairs them with destinations.
//
// A single directory input is scanned for PNG files (recursing only when
// recursive is set); otherwise every input must be an existing PNG file.
// All problems are reported together in a *ValidationError before any
// directory is created. On success the parent directory of every
// destination exists.
func Resolve(inputs []string, out Output, recursive bool) ([]Task, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var tasks []Task
	var problems error
	if len(inputs) == 1 && isDir(inputs[0]) {
		files, err := Discover(inputs[0], recursive)
		if err != nil {
			return nil, newTaskError(ErrIO, StagePending, inputs[0], err)
		}
		for _, rel := range files {
			tasks = append(tasks, Task{Source: filepath.Join(inputs[0], rel), Rel: rel})
		}
	} else {
		for _, in := range inputs {
			if err := checkSource(in); err != nil {
				problems = multierr.Append(problems, err)
				continue
			}
			tasks = append(tasks, Task{Source: in, Rel: filepath.Base(in)})
		}
	}
	if problems != nil {
		return nil, &ValidationError{Err: problems}
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	if err := assignDestinations(tasks, out); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		dir := filepath.Dir(t.Dest)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newTaskError(ErrIO, StagePending, dir, fmt.Errorf("create output directory: %w", err))
		}
	}
	return tasks, nil
}

func checkSource(path string) error {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("input file does not exist: %s", path)
	case err != nil:
		return fmt.Errorf("cannot access input %s: %w", path, err)
	case info.IsDir():
		return fmt.Errorf("input is a directory (pass a single directory on its own): %s", path)
	case !info.Mode().IsRegular():
		return fmt.Errorf("input is not a regular file: %s", path)
	}

	kind, err := imgutil.SniffFile(path)
	if err != nil {
		return fmt.Errorf("cannot read input %s: %w", path, err)
	}
	if kind == imgutil.KindUnknown {
		return fmt.Errorf("input is not a PNG file: %s", path)
	}
	return nil
}

func assignDestinations(tasks []Task, out Output) error {
	var problems error
	switch out.kind {
	case outputIdentity:
		for i := range tasks {
			tasks[i].Dest = tasks[i].Source
		}
	case outputFixed:
		if len(tasks) != 1 {
			return &ValidationError{Err: fmt.Errorf(
				"a single output path needs exactly 1 input, got %d inputs for 1 output", len(tasks))}
		}
		tasks[0].Dest = out.paths[0]
	case outputList:
		if len(out.paths) != len(tasks) {
			return &ValidationError{Err: fmt.Errorf(
				"got %d outputs for %d inputs", len(out.paths), len(tasks))}
		}
		for i := range tasks {
			tasks[i].Dest = out.paths[i]
		}
	case outputDirectory:
		for i := range tasks {
			tasks[i].Dest = filepath.Join(out.paths[0], tasks[i].Rel)
		}
	case outputMapping:
		for i := range tasks {
			dest := out.fn(tasks[i].Source)
			if dest == "" {
				problems = multierr.Append(problems, fmt.Errorf("output mapping returned an empty path for %s", tasks[i].Source))
			}
			tasks[i].Dest = dest
		}
	default:
		return &ValidationError{Err: fmt.Errorf("unknown output kind %d", out.kind)}
	}

	seen := map[string]string{}
	for _, t := range tasks {
		if t.Dest == "" {
			continue
		}
		key := filepath.Clean(t.Dest)
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		if prev, ok := seen[key]; ok {
			problems = multierr.Append(problems, fmt.Errorf("%s and %s both write to %s", prev, t.Source, t.Dest))
			continue
		}
		seen[key] = t.Source
	}

	if problems != nil {
		return &ValidationError{Err: problems}
	}
	return nil
}

// Discover walks dir and returns the relative paths of files with a PNG or
// APNG extension, sorted lexicographically for deterministic processing
// order. Subdirectories are only entered when recursive is set.
func Discover(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !imgutil.HasPNGExt(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

package processor

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Reporter formats per-task lines with display paths shortened by the
// directory prefix the batch has in common.
type Reporter struct {
	srcCut int
	dstCut int
}

// NewReporter computes display prefixes for sources and destinations
// separately.
func NewReporter(tasks []Task) *Reporter {
	srcs := make([]string, len(tasks))
	dsts := make([]string, len(tasks))
	for i, t := range tasks {
		srcs[i] = t.Source
		dsts[i] = t.Dest
	}
	return &Reporter{srcCut: TruncateIndex(srcs), dstCut: TruncateIndex(dsts)}
}

// Line renders one result:
//
//	path | 10 KiB -> 7.5 KiB (-25.0%)
//	src -> dst | 10 KiB -> 7.5 KiB (-25.0%)
//	path | failed: reason
//
// Empty sources produce no line.
func (r *Reporter) Line(res Result) string {
	path := truncatePath(res.Task.Dest, r.dstCut)
	if res.Task.Source != res.Task.Dest {
		path = truncatePath(res.Task.Source, r.srcCut) + " -> " + path
	}
	if res.Err != nil {
		return fmt.Sprintf("%s | failed: %v", path, res.Err)
	}
	if res.InputSize <= 0 {
		return ""
	}

	change := float64(res.InputSize-res.OutputSize) / float64(res.InputSize) * 100
	sign := "+"
	if res.OutputSize < res.InputSize {
		sign = "-"
	}
	return fmt.Sprintf("%s | %s -> %s (%s%.1f%%)",
		path, FormatBytes(res.InputSize), FormatBytes(res.OutputSize), sign, math.Abs(change))
}

// FormatBytes renders a size with binary units.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

// TruncateIndex returns how many leading bytes to drop from every path for
// display. A single path keeps its base name; several paths lose their
// longest common prefix that ends in a separator.
func TruncateIndex(paths []string) int {
	switch len(paths) {
	case 0:
		return 0
	case 1:
		return strings.LastIndexAny(paths[0], `/\`) + 1
	}

	first := paths[0]
	last := strings.LastIndexAny(first, `/\`)
	cut := 0
	for i := 0; i <= last; i++ {
		for _, p := range paths[1:] {
			if i >= len(p) || p[i] != first[i] {
				return cut
			}
		}
		if first[i] == '/' || first[i] == '\\' {
			cut = i + 1
		}
	}
	return cut
}

func truncatePath(path string, index int) string {
	if index <= 0 || index >= len(path) {
		return path
	}
	return path[index:]
}

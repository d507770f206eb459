package fitb

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// FileExt is the extension of dictionaries exchanged with the generator.
const FileExt = ".json"

// Names builds the file names of one evaluation run.
type Names struct {
	Task  string
	Scale string
}

// NewNames returns the names for a task and guidance scales.
func NewNames(task string, cate, mutual, hist float64) Names {
	return Names{Task: task, Scale: ScaleTag(cate, mutual, hist)}
}

// ScaleTag renders the guidance scales the way the generator names its outputs,
// e.g. "cate12.0-mutual5.0-hist4.0".
func ScaleTag(cate, mutual, hist float64) string {
	return fmt.Sprintf("cate%s-mutual%s-hist%s", pyFloat(cate), pyFloat(mutual), pyFloat(hist))
}

// pyFloat formats f like Python's repr: shortest digits, a trailing ".0" on
// whole numbers, and exponent form when the exponent is below -4 or at least 16.
func pyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if f != 0 && (exp < -4 || exp >= 16) {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Generation returns the generation output file name of a checkpoint.
func (n Names) Generation(ckpt int, preds bool) string {
	name := fmt.Sprintf("%s-checkpoint-%d-%s", n.Task, ckpt, n.Scale)
	if preds {
		name += "-preds"
	}
	return name + FileExt
}

// Reference returns the grounding reference file name.
func (n Names) Reference() string {
	return fmt.Sprintf("%s-grd-new%s", n.Task, FileExt)
}

// Discover lists the checkpoint ids that have a plain generation output in dir,
// ascending and without duplicates.
func (n Names) Discover(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(n.Task+"-checkpoint-") +
		`(\d+)-` + regexp.QuoteMeta(n.Scale+FileExt) + "$")

	seen := make(map[int]bool)
	var ckpts []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ckpts = append(ckpts, id)
	}
	sort.Ints(ckpts)
	return ckpts, nil
}

// ErrDiscover marks a checkpoint spec that asks for discovery.
var ErrDiscover = errors.New("discover checkpoints")

// ParseCheckpoints parses "[100, 200]", "100,200" or "100".
// It returns ErrDiscover for "all".
func ParseCheckpoints(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "all" {
		return nil, ErrDiscover
	}
	spec = strings.TrimPrefix(spec, "[")
	spec = strings.TrimSuffix(spec, "]")
	spec = strings.TrimPrefix(spec, "(")
	spec = strings.TrimSuffix(spec, ")")

	var ckpts []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid checkpoint %q: %w", part, err)
		}
		ckpts = append(ckpts, id)
	}
	if len(ckpts) == 0 {
		return nil, fmt.Errorf("no checkpoints in %q", spec)
	}
	return ckpts, nil
}

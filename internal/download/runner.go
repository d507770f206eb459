package download

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/logger"
	"github.com/fitbench/fitbench/internal/pkg/security"
)

const (
	// stderrTailLines is how much of a failed command's stderr ends up in its error.
	stderrTailLines = 20
	// maxLineSize bounds one output line; longer lines end scanning and the
	// rest of the stream is discarded.
	maxLineSize = 1 << 20
)

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args []string) error
}

// ExecRunner runs commands as child processes. Stdout lines go to the debug
// log; stderr is kept so a failure can report its tail.
type ExecRunner struct {
	log *logger.Logger
}

// NewExecRunner creates a runner that logs to log.
func NewExecRunner(log *logger.Logger) *ExecRunner {
	if log == nil {
		log = logger.Discard()
	}
	return &ExecRunner{log: log}
}

// Run starts name with args and waits for it. Cancelling ctx kills the process.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return errors.ConversionError(name+" not found in PATH", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.ConversionError("failed to create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.ConversionError("failed to create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return errors.ConversionError("failed to start "+name, err)
	}

	var wg sync.WaitGroup
	tail := &lineTail{max: stderrTailLines}
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, func(line string) {
			r.log.Debug(security.SanitizeForLog(line), "cmd", name)
		})
	}()
	go func() {
		defer wg.Done()
		tail.readFrom(stderr)
	}()

	// pipes must be drained before Wait closes them
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		msg := fmt.Sprintf("%s failed", name)
		if t := tail.String(); t != "" {
			msg += ": " + t
		}
		return errors.ConversionError(msg, err)
	}
	return nil
}

// lineTail keeps the last max lines read.
type lineTail struct {
	max   int
	lines []string
}

func (t *lineTail) readFrom(r io.Reader) {
	scanLines(r, func(line string) {
		t.lines = append(t.lines, security.SanitizeForLog(line))
		if len(t.lines) > t.max {
			t.lines = t.lines[1:]
		}
	})
}

// scanLines calls fn for every non-empty line of r, treating '\r' as a line
// break so progress bars that redraw in place are split per update. r is
// always read to EOF: once a line exceeds maxLineSize the remainder is
// discarded so the writing process never blocks on a full pipe.
func scanLines(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(splitLines)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			fn(line)
		}
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// splitLines is bufio.ScanLines that also breaks on a bare '\r'.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}

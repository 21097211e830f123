package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// stderrTailLines bounds how much diagnostic output a failed run keeps
const stderrTailLines = 20

// Command is a single external tool invocation
type Command struct {
	Path string
	Args []string
	// OnLine receives each stderr line as it is produced
	OnLine func(line string)
}

// String renders the command for logs
func (c Command) String() string {
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Result is what an invocation left behind
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
}

// Runner executes external tools. A nil error means exit code 0; a non-zero
// exit is reported as *ExitError alongside the Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError is returned when a tool ran but exited non-zero
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

// ExecRunner runs commands as child processes
type ExecRunner struct{}

// Run starts the process, streams stderr to cmd.OnLine and waits for it
func (ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}

	tail := make([]string, 0, stderrTailLines)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if c.OnLine != nil {
			c.OnLine(line)
		}
		if isProgressLine(line) {
			continue
		}
		if len(tail) == stderrTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	// an oversized line stops the scanner; keep the pipe empty so the child
	// can exit
	_, _ = io.Copy(io.Discard, stderr)

	waitErr := cmd.Wait()
	res := Result{
		Stdout: stdout.Bytes(),
		Stderr: strings.Join(tail, "\n"),
	}

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.ExitCode = -1
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
		}
		res.ExitCode = -1
		return res, waitErr
	}

	return res, nil
}

// isProgressLine matches the key=value lines written by -progress
func isProgressLine(line string) bool {
	key, _, ok := strings.Cut(line, "=")
	if !ok || strings.ContainsAny(key, " \t") {
		return false
	}
	switch key {
	case "frame", "fps", "bitrate", "total_size", "out_time_us", "out_time_ms",
		"out_time", "dup_frames", "drop_frames", "speed", "progress":
		return true
	}
	return strings.HasPrefix(key, "stream_")
}

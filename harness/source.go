package harness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// LineSource produces the stdout lines of a command, in order, calling
// handle once per line. Implementations return after the stream has ended.
type LineSource interface {
	Stream(ctx context.Context, cmd Command, handle func(line string)) error
}

// ExitError reports that the command ran to completion with a non-zero status.
// All of its stdout was delivered before the error is returned.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExecSource launches commands as child processes.
type ExecSource struct {
	// Stderr receives the child's stderr. Nil discards it.
	Stderr io.Writer
}

// killGrace is how long Stream keeps reading after ctx is done before it
// closes stdout itself, for descendants that escaped the process group.
const killGrace = 2 * time.Second

// Stream starts cmd, reads its stdout until EOF, closes the pipe and waits
// for the child. The child runs in its own process group; cancelling ctx
// kills the whole group, so launcher workers holding the pipe die with it.
func (s ExecSource) Stream(ctx context.Context, c Command, handle func(line string)) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stderr = s.Stderr
	setProcessGroup(cmd)
	cmd.WaitDelay = killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: stdout pipe: %w", c.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: start: %w", c.Name, err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		select {
		case <-time.After(killGrace):
			_ = stdout.Close()
		case <-done:
		}
	}()
	readErr := readLines(stdout, handle)
	close(done)
	_ = stdout.Close()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil && (readErr != nil || waitErr != nil) {
		return fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	if readErr != nil {
		return fmt.Errorf("%s: read stdout: %w", c.Name, readErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Err: waitErr}
		}
		return fmt.Errorf("%s: wait: %w", c.Name, waitErr)
	}
	return nil
}

// readLines uses bufio.Reader rather than bufio.Scanner so that an
// over-long line never stops the read loop while the child is still writing.
func readLines(r io.Reader, handle func(line string)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			handle(strings.TrimRight(line, "\r\n"))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ReaderSource replays a saved log regardless of the command asked for.
type ReaderSource struct {
	R io.Reader
}

// Stream delivers every line of the underlying reader.
func (s ReaderSource) Stream(_ context.Context, _ Command, handle func(line string)) error {
	return readLines(s.R, handle)
}

// StaticSource replays in-memory output keyed by Command.String().
// Commands without an entry get Fallback. Every call is appended to Calls.
type StaticSource struct {
	Outputs  map[string][]string
	Fallback []string
	Errs     map[string]error // returned after the output is delivered
	Calls    []Command
}

// Stream delivers the configured output for cmd.
func (s *StaticSource) Stream(ctx context.Context, cmd Command, handle func(line string)) error {
	s.Calls = append(s.Calls, cmd)
	if err := ctx.Err(); err != nil {
		return err
	}
	key := cmd.String()
	lines, ok := s.Outputs[key]
	if !ok {
		lines = s.Fallback
	}
	for _, l := range lines {
		handle(l)
	}
	return s.Errs[key]
}

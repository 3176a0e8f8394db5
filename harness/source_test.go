package harness

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func collect(t *testing.T, src LineSource, cmd Command) ([]string, error) {
	t.Helper()
	var lines []string
	err := src.Stream(context.Background(), cmd, func(l string) { lines = append(lines, l) })
	return lines, err
}

func TestExecSource_StreamsStdoutInOrder(t *testing.T) {
	sh := requireShell(t)

	// GIVEN a child printing three lines, the last one unterminated
	cmd := Command{Name: sh, Args: []string{"-c", `printf 'first\r\nsecond\nthird'`}}

	// WHEN streamed
	lines, err := collect(t, ExecSource{}, cmd)

	// THEN every line arrives in order without line terminators
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, lines)
}

func TestExecSource_StderrIsSeparate(t *testing.T) {
	sh := requireShell(t)
	var stderr bytes.Buffer
	cmd := Command{Name: sh, Args: []string{"-c", `echo out; echo err >&2`}}

	lines, err := collect(t, ExecSource{Stderr: &stderr}, cmd)

	require.NoError(t, err)
	assert.Equal(t, []string{"out"}, lines)
	assert.Equal(t, "err\n", stderr.String())
}

func TestExecSource_NonZeroExit_DeliversOutputThenExitError(t *testing.T) {
	sh := requireShell(t)
	cmd := Command{Name: sh, Args: []string{"-c", `echo partial; exit 3`}}

	lines, err := collect(t, ExecSource{}, cmd)

	assert.Equal(t, []string{"partial"}, lines)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "want *ExitError, got %v", err)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "exit status 3", exitErr.Error())
}

func TestExecSource_Env(t *testing.T) {
	sh := requireShell(t)
	cmd := Command{Name: sh, Args: []string{"-c", `echo "$MOE_REGRESS_TEST"`}, Env: []string{"MOE_REGRESS_TEST=hello"}}

	lines, err := collect(t, ExecSource{}, cmd)

	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, lines)
}

func TestExecSource_MissingBinary(t *testing.T) {
	_, err := collect(t, ExecSource{}, Command{Name: "moe-regress-no-such-binary"})

	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr), "launch failure must not look like an exit status")
}

func TestExecSource_ContextDeadlineKillsChild(t *testing.T) {
	sh := requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ExecSource{}.Stream(ctx, Command{Name: sh, Args: []string{"-c", "exec sleep 10"}}, func(string) {})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecSource_ContextDeadlineKillsBackgroundedGrandchild(t *testing.T) {
	sh := requireShell(t)

	// GIVEN a child whose backgrounded grandchild inherits the stdout pipe
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	var lines []string

	// WHEN the deadline passes while both are still sleeping
	start := time.Now()
	err := ExecSource{}.Stream(ctx, Command{Name: sh, Args: []string{"-c", "sleep 10 & echo started; sleep 10"}},
		func(l string) { lines = append(lines, l) })

	// THEN Stream returns promptly with the deadline error
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"started"}, lines)
}

func TestReaderSource_ReplaysLog(t *testing.T) {
	src := ReaderSource{R: strings.NewReader("a\n\nb\n")}
	lines, err := collect(t, src, Command{Name: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "b"}, lines)
}

func TestStaticSource_KeyedOutputAndFallback(t *testing.T) {
	known := Command{Name: "python3", Args: []string{"a.py"}}
	other := Command{Name: "python3", Args: []string{"b.py"}}
	boom := errors.New("boom")
	src := &StaticSource{
		Outputs:  map[string][]string{known.String(): {"x", "y"}},
		Fallback: []string{"z"},
		Errs:     map[string]error{known.String(): boom},
	}

	lines, err := collect(t, src, known)
	assert.Equal(t, []string{"x", "y"}, lines)
	assert.ErrorIs(t, err, boom)

	lines, err = collect(t, src, other)
	assert.NoError(t, err)
	assert.Equal(t, []string{"z"}, lines)

	assert.Equal(t, []Command{known, other}, src.Calls)
}

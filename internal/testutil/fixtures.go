// Package testutil provides shared test infrastructure for the regression
// harness. It has no dependency on harness/ so that in-package tests can use it.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// BaselinePath returns the path of testdata/baseline.json.
// The path is resolved relative to this source file: internal/testutil/ → testdata/.
func BaselinePath(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "testdata", "baseline.json")
}

// ReadBaseline returns the raw bytes of testdata/baseline.json.
func ReadBaseline(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(BaselinePath(t))
	if err != nil {
		t.Fatalf("Failed to read baseline fixture: %v", err)
	}
	return data
}

// WriteFile writes content under t.TempDir() and returns its path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ExampleOutput renders stdout the way the helloworld example prints it:
// a banner, one line per step, and a trailing summary when stepTime is set.
func ExampleOutput(losses []float64, stepTime string) []string {
	lines := []string{
		"[Benchmark] world_size = 1, dtype = float32, model_dim = 2048, hidden_size = 2048, samples = 4096",
		"",
	}
	for i, l := range losses {
		lines = append(lines, fmt.Sprintf("STEP-%d: DONE, loss = %.5f, step_time = 0.0251 sec.", i, l))
	}
	if stepTime != "" {
		lines = append(lines, "", fmt.Sprintf("[Summary] Average synchronized step_time = %s sec.", stepTime))
	}
	return lines
}

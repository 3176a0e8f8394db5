// Package trace records how each line of a child process's stdout was
// classified. It has no dependencies on harness/ and stores pure data types.
package trace

// LineRecord captures a single classified stdout line.
type LineRecord struct {
	Index int    `json:"index" yaml:"index"`                   // zero-based line number in the child's stdout
	Kind  string `json:"kind" yaml:"kind"`                     // "loss", "summary" or "unrecognized"
	Text  string `json:"text,omitempty" yaml:"text,omitempty"` // empty for recognized lines unless KeepText
}

package trace

// Kind names shared with harness.RecordKind.String().
const (
	KindLoss         = "loss"
	KindSummary      = "summary"
	KindUnrecognized = "unrecognized"
)

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	// KeepText retains the text of recognized lines too. Unrecognized
	// lines always keep their text so that skipped output can be inspected.
	KeepText bool
}

// RunTrace collects line records for one child process run.
type RunTrace struct {
	Config TraceConfig
	Lines  []LineRecord
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(config TraceConfig) *RunTrace {
	return &RunTrace{
		Config: config,
		Lines:  make([]LineRecord, 0),
	}
}

// RecordLine appends a record for the next stdout line.
func (rt *RunTrace) RecordLine(kind, text string) {
	if kind != KindUnrecognized && !rt.Config.KeepText {
		text = ""
	}
	rt.Lines = append(rt.Lines, LineRecord{Index: len(rt.Lines), Kind: kind, Text: text})
}

// Unrecognized returns the records of lines that matched no pattern.
func (rt *RunTrace) Unrecognized() []LineRecord {
	if rt == nil {
		return nil
	}
	var out []LineRecord
	for _, l := range rt.Lines {
		if l.Kind == KindUnrecognized {
			out = append(out, l)
		}
	}
	return out
}

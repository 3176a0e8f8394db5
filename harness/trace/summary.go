package trace

// TraceSummary aggregates line counts from a RunTrace.
type TraceSummary struct {
	TotalLines        int `json:"total_lines" yaml:"total_lines"`
	LossLines         int `json:"loss_lines" yaml:"loss_lines"`
	SummaryLines      int `json:"summary_lines" yaml:"summary_lines"`
	UnrecognizedLines int `json:"unrecognized_lines" yaml:"unrecognized_lines"`
}

// Summarize computes line counts from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) TraceSummary {
	var s TraceSummary
	if rt == nil {
		return s
	}
	s.TotalLines = len(rt.Lines)
	for _, l := range rt.Lines {
		switch l.Kind {
		case KindLoss:
			s.LossLines++
		case KindSummary:
			s.SummaryLines++
		default:
			s.UnrecognizedLines++
		}
	}
	return s
}

// Add returns the element-wise sum of s and o.
func (s TraceSummary) Add(o TraceSummary) TraceSummary {
	return TraceSummary{
		TotalLines:        s.TotalLines + o.TotalLines,
		LossLines:         s.LossLines + o.LossLines,
		SummaryLines:      s.SummaryLines + o.SummaryLines,
		UnrecognizedLines: s.UnrecognizedLines + o.UnrecognizedLines,
	}
}

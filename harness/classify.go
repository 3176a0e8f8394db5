package harness

import (
	"strconv"
	"strings"
)

// RecordKind tags what a stdout line turned out to be.
type RecordKind int

const (
	// KindUnrecognized lines carry nothing the harness uses.
	KindUnrecognized RecordKind = iota
	// KindLoss lines report one training step's loss.
	KindLoss
	// KindSummary lines report the averaged step time at the end of a run.
	KindSummary
)

func (k RecordKind) String() string {
	switch k {
	case KindLoss:
		return "loss"
	case KindSummary:
		return "summary"
	default:
		return "unrecognized"
	}
}

const summaryMarker = "[Summary]"

// Observation is one parsed data point from the example's output.
// Loss is set (unrounded) for KindLoss; StepTime is set for KindSummary.
type Observation struct {
	Kind     RecordKind
	Loss     float64
	StepTime string
}

// ClassifyLine inspects one stdout line.
//
// A loss line has more than five whitespace-separated tokens with "loss" as
// the third; the fifth token minus its trailing separator is the value:
//
//	STEP-3: DONE, loss = 21.45824, step_time = 0.512 sec.
//
// A summary line starts with "[Summary]" and carries the step time as its
// sixth token:
//
//	[Summary] Average synchronized step_time = 0.0123 sec.
func ClassifyLine(line string) Observation {
	tokens := strings.Fields(line)
	if len(tokens) <= 5 {
		return Observation{Kind: KindUnrecognized}
	}
	if tokens[2] == "loss" {
		raw := tokens[4]
		raw = raw[:len(raw)-1]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Observation{Kind: KindUnrecognized}
		}
		return Observation{Kind: KindLoss, Loss: v}
	}
	if tokens[0] == summaryMarker {
		return Observation{Kind: KindSummary, StepTime: tokens[5]}
	}
	return Observation{Kind: KindUnrecognized}
}

// RoundLoss rounds v to the given number of decimal digits, resolving ties
// on the exact binary value the same way the training logs are formatted.
func RoundLoss(v float64, digits int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', digits, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// RoundLosses returns a rounded copy of vs.
func RoundLosses(vs []float64, digits int) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = RoundLoss(v, digits)
	}
	return out
}

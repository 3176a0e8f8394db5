package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/inference-sim/moe-regress/harness"
)

// BuildMarkdown renders r as a Markdown summary with a case table and step times.
func BuildMarkdown(r Report) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	gpu := r.GPU
	if gpu == "" {
		gpu = "unknown"
	}
	var b strings.Builder
	b.WriteString("# MoE Regression Report\n\n")
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", status))
	b.WriteString(fmt.Sprintf("- Run: `%s`\n", r.RunID))
	b.WriteString(fmt.Sprintf("- GPU: `%s`\n", gpu))
	b.WriteString(fmt.Sprintf("- Cases: `%d` (%d failed)\n\n", len(r.Cases), r.Failed))

	b.WriteString("## Cases\n\n")
	b.WriteString("| Case | Kind | Passed | Compared | Loss Lines | Skipped Lines | Detail |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---|\n")
	for _, c := range r.Cases {
		compared := "all"
		if c.Compared > 0 {
			compared = fmt.Sprintf("%d", c.Compared)
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %t | %s | %d | %d | %s |\n",
			c.Name, c.Kind, c.Passed, compared, c.Lines.LossLines, c.Lines.UnrecognizedLines,
			strings.ReplaceAll(detail(c), "|", "\\|")))
	}

	var timed []harness.CaseResult
	for _, c := range r.Cases {
		if len(c.ExpectedStepTimes) > 0 || len(c.ObservedStepTimes) > 0 {
			timed = append(timed, c)
		}
	}
	if len(timed) > 0 {
		b.WriteString("\n## Step Times\n\n")
		b.WriteString("| Case | Expected | Observed |\n")
		b.WriteString("|---|---|---|\n")
		for _, c := range timed {
			expected := make([]string, 0, len(c.ExpectedStepTimes))
			for _, e := range c.ExpectedStepTimes {
				expected = append(expected, e.GPU+"="+e.Value.String())
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", c.Name, orDash(strings.Join(expected, ", ")), orDash(strings.Join(c.ObservedStepTimes, ", "))))
		}
	}
	return b.String()
}

func detail(c harness.CaseResult) string {
	switch {
	case c.Error != "":
		return c.Error
	case !c.Passed:
		return fmt.Sprintf("mismatch at %d: got %v, want %v", c.MismatchIndex, c.Actual, c.Expected)
	default:
		return "ok"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// WriteMarkdown writes BuildMarkdown(r) to path.
func WriteMarkdown(path string, r Report) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}

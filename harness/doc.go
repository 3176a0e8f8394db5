// Package harness runs the mixture-of-experts helloworld examples as child
// processes and checks their per-step losses against stored baselines.
//
// # Reading Guide
//
// Start with these files:
//   - scenario.go: Scenario (one configured example run) and command synthesis
//   - classify.go: ClassifyLine, the stdout line classifier
//   - runner.go: Runner, which streams a child's stdout into Observations
//   - compare.go: Comparator, baseline and cross-variant checks
//
// # Architecture
//
// Process execution sits behind the LineSource interface so that the
// Comparator can be driven from fixed output in tests:
//   - ExecSource: launches the command with os/exec
//   - ReaderSource: replays a saved log
//   - StaticSource: replays in-memory output keyed by command line
//
// Sub-packages:
//   - harness/trace/: per-run record of how each stdout line was classified
//   - harness/report/: JSON and Markdown suite reports
//
// Scenarios run strictly one after another; nothing here is safe for
// concurrent use and nothing needs to be.
package harness

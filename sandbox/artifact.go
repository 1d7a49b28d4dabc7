// Package sandbox executes synthesized data-processing code under hard
// resource ceilings. Programs are Starlark, run on an isolated thread
// with a step budget and wall-clock timeout; exceeding either cancels
// the run and yields a failure outcome instead of hanging the pipeline.
package sandbox

import "time"

// CodeArtifact is one synthesized program together with the explicit
// list of bindings it is allowed to see. Nothing outside Inputs is ever
// exposed to the program.
type CodeArtifact struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Inputs []string `json:"inputs"`
}

// ExecutionOutcome records how one artifact run ended. A failed run is
// data for the answer record's audit trail, not a pipeline error.
type ExecutionOutcome struct {
	Success  bool          `json:"success"`
	Value    string        `json:"value,omitempty"` // JSON-encoded program result
	Error    string        `json:"error,omitempty"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

package domain

// StepKind classifies how the redeploy driver reacts to a step failure.
type StepKind string

const (
	// StepFatal aborts the run on failure.
	StepFatal StepKind = "fatal"
	// StepSelfHealing remediates its own precondition and never fails the run.
	StepSelfHealing StepKind = "self-healing"
	// StepAdvisory surfaces its failure in the report but the run continues.
	StepAdvisory StepKind = "advisory"
)

// StepResult records the outcome of one step of a redeploy run.
type StepResult struct {
	Name string   `json:"name"`
	Kind StepKind `json:"kind"`
	// Note carries human-readable detail (what was healed, what was skipped).
	Note string `json:"note,omitempty"`
	Err  error  `json:"-"`
}

// Failed reports whether the step ended in error.
func (r StepResult) Failed() bool { return r.Err != nil }

// Report is the full record of a redeploy run.
type Report struct {
	Steps []StepResult `json:"steps"`
	// Address is the externally reachable URL of the new instance, set only
	// on success.
	Address string `json:"address,omitempty"`
}

// Advisories returns the advisory steps that failed without aborting the run.
func (r *Report) Advisories() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Kind == StepAdvisory && s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

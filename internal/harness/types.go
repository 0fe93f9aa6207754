package harness

import "github.com/roach88/fusionsync/internal/domain"

// StepResult is the outcome of one scenario step.
type StepResult struct {
	Step   int    `json:"step"`
	File   string `json:"file"`
	RunID  string `json:"run_id"`
	Status string `json:"status"` // "ok" or "error"

	// Code is the sync error code of a failed step.
	Code string `json:"code,omitempty"`

	Created int `json:"created"`
	Updated int `json:"updated"`

	// Events are the ledger events of the step's run in seq order. Failed
	// runs have none.
	Events []domain.SyncEvent `json:"events"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

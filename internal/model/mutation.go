// Package model defines the data structures for mutation testing.
package model

// MutantStatus is the terminal status of a mutant. The zero value means the
// mutant has not been decided yet.
type MutantStatus string

const (
	// Killed indicates a test failed while the mutant was active.
	Killed MutantStatus = "Killed"
	// Survived indicates every test passed with the mutant active.
	Survived MutantStatus = "Survived"
	// NoCoverage indicates no test executes the mutant.
	NoCoverage MutantStatus = "NoCoverage"
	// Ignored indicates the mutant was skipped on purpose.
	Ignored MutantStatus = "Ignored"
	// CompileError indicates a checker rejected the mutant.
	CompileError MutantStatus = "CompileError"
	// RuntimeError indicates the test process failed for reasons other than a test failure.
	RuntimeError MutantStatus = "RuntimeError"
	// Timeout indicates the run exceeded the computed timeout.
	Timeout MutantStatus = "Timeout"
)

// AllStatuses lists every terminal status in reporting order.
var AllStatuses = []MutantStatus{Killed, Timeout, Survived, NoCoverage, CompileError, RuntimeError, Ignored}

// IsValid reports whether s is one of the known terminal statuses.
func (s MutantStatus) IsValid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}

	return false
}

// IsTerminal reports whether a status has been assigned.
func (s MutantStatus) IsTerminal() bool {
	return s != ""
}

// IsDetected reports whether the test suite noticed the mutant.
func (s MutantStatus) IsDetected() bool {
	return s == Killed || s == Timeout
}

// Mutant describes one code perturbation. It is created by the instrumenter and
// never modified afterwards.
type Mutant struct {
	ID           string       `yaml:"id" json:"id"`
	FileName     Path         `yaml:"fileName" json:"fileName"`
	Location     Location     `yaml:"location" json:"location"`
	MutatorName  string       `yaml:"mutatorName" json:"mutatorName"`
	Replacement  string       `yaml:"replacement" json:"replacement"`
	Status       MutantStatus `yaml:"status,omitempty" json:"status,omitempty"`
	StatusReason string       `yaml:"statusReason,omitempty" json:"statusReason,omitempty"`
}

package model

import "time"

// CheckStatus is the verdict of a static check.
type CheckStatus int

const (
	// CheckPassed indicates the mutant is valid.
	CheckPassed CheckStatus = iota
	// CheckCompileError indicates the mutated program does not compile.
	CheckCompileError
)

// CheckResult is the outcome of checking one mutant.
type CheckResult struct {
	Status CheckStatus
	Reason string
}

// MutantRunStatus is the raw outcome of running tests against a mutant.
type MutantRunStatus int

const (
	// RunKilled indicates at least one test failed.
	RunKilled MutantRunStatus = iota
	// RunSurvived indicates all tests passed.
	RunSurvived
	// RunTimeout indicates the run exceeded its timeout.
	RunTimeout
	// RunError indicates the test process errored.
	RunError
)

func (s MutantRunStatus) String() string {
	switch s {
	case RunKilled:
		return "killed"
	case RunSurvived:
		return "survived"
	case RunTimeout:
		return "timeout"
	case RunError:
		return "error"
	default:
		return "unknown"
	}
}

// MutantRunResult is what a test runner reports for one mutant.
type MutantRunResult struct {
	Status         MutantRunStatus
	KilledBy       []string
	FailureMessage string
	ErrorMessage   string
	NrOfTests      int
}

// MutantResult is the final, reporting facing outcome for a mutant.
type MutantResult struct {
	Mutant         Mutant       `yaml:"mutant"`
	Status         MutantStatus `yaml:"status"`
	StatusReason   string       `yaml:"statusReason,omitempty"`
	KilledBy       []string     `yaml:"killedBy,omitempty"`
	CoveredBy      []string     `yaml:"coveredBy,omitempty"`
	Static         bool         `yaml:"static,omitempty"`
	TestsCompleted int          `yaml:"testsCompleted,omitempty"`
}

// Report is the persisted summary of one mutation testing run.
type Report struct {
	ID        string         `yaml:"id"`
	CreatedAt time.Time      `yaml:"createdAt"`
	Score     float64        `yaml:"score"`
	Results   []MutantResult `yaml:"results"`
}

// Counts tallies results per status.
func (r Report) Counts() map[MutantStatus]int {
	counts := make(map[MutantStatus]int, len(AllStatuses))
	for _, result := range r.Results {
		counts[result.Status]++
	}

	return counts
}

package model

import "time"

// TestStatus represents the outcome of a single test in the baseline run.
type TestStatus int

const (
	// TestPassed indicates the test passed.
	TestPassed TestStatus = iota
	// TestFailed indicates the test failed.
	TestFailed
	// TestSkipped indicates the test was skipped.
	TestSkipped
)

func (s TestStatus) String() string {
	switch s {
	case TestPassed:
		return "passed"
	case TestFailed:
		return "failed"
	case TestSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// TestResult is one test observed during the baseline run.
type TestResult struct {
	ID             string
	Name           string
	Status         TestStatus
	TimeSpent      time.Duration
	FailureMessage string
}

// MutantCoverage maps a mutant id to the number of times it was executed.
type MutantCoverage map[string]int

// CoverageData is the coverage collected during the baseline run. Static holds
// hits recorded outside of any test (package initialisation), PerTest holds hits
// per test id.
type CoverageData struct {
	Static  MutantCoverage            `yaml:"static" json:"static"`
	PerTest map[string]MutantCoverage `yaml:"perTest" json:"perTest"`
}

// DryRunStatus is the overall outcome of the baseline run.
type DryRunStatus int

const (
	// DryRunComplete indicates the test suite ran to completion.
	DryRunComplete DryRunStatus = iota
	// DryRunError indicates the test process could not run.
	DryRunError
	// DryRunTimeout indicates the baseline ran past its timeout.
	DryRunTimeout
)

func (s DryRunStatus) String() string {
	switch s {
	case DryRunComplete:
		return "complete"
	case DryRunError:
		return "error"
	case DryRunTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// DryRunResult is what a test runner reports for the baseline run.
// A nil Coverage means coverage analysis is disabled.
type DryRunResult struct {
	Status       DryRunStatus
	Tests        []TestResult
	Coverage     *CoverageData
	ErrorMessage string
}

// CompleteDryRunResult is a validated baseline run together with the measured
// fixed cost of starting a test process.
type CompleteDryRunResult struct {
	Tests        []TestResult
	Coverage     *CoverageData
	TimeOverhead time.Duration
}

// TotalTime sums the time spent by every test.
func (r CompleteDryRunResult) TotalTime() time.Duration {
	var total time.Duration
	for _, test := range r.Tests {
		total += test.TimeSpent
	}

	return total
}

// CoverageAnalysis selects how much coverage the baseline run collects.
type CoverageAnalysis string

const (
	// CoverageOff disables coverage: every mutant runs the whole suite.
	CoverageOff CoverageAnalysis = "off"
	// CoverageAll records whether a mutant is executed at all.
	CoverageAll CoverageAnalysis = "all"
	// CoveragePerTest records which tests execute each mutant.
	CoveragePerTest CoverageAnalysis = "perTest"
)

// IsValid reports whether c is a known coverage mode.
func (c CoverageAnalysis) IsValid() bool {
	return c == CoverageOff || c == CoverageAll || c == CoveragePerTest
}

// DryRunOptions configures the baseline run.
type DryRunOptions struct {
	Timeout          time.Duration
	CoverageAnalysis CoverageAnalysis
	DisableBail      bool
}

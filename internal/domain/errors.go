package domain

import "errors"

var (
	// ErrDryRunFailed is returned when the baseline run errored or timed out.
	ErrDryRunFailed = errors.New("dry run failed")
	// ErrFailedTests is returned when the baseline run has failing tests.
	ErrFailedTests = errors.New("there were failed tests in the initial test run")
	// ErrNoTests is returned when the baseline run found no tests.
	ErrNoTests = errors.New("no tests were executed")
	// ErrScoreBelowThreshold is returned when the mutation score is under the
	// configured break threshold.
	ErrScoreBelowThreshold = errors.New("mutation score below threshold")
)

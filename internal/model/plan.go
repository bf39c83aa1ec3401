package model

import "time"

// PlanKind discriminates the variants of MutantTestPlan.
type PlanKind int

const (
	// PlanEarlyResult means the mutant already has its final status.
	PlanEarlyResult PlanKind = iota
	// PlanRun means the mutant must be executed by a worker.
	PlanRun
)

func (k PlanKind) String() string {
	if k == PlanRun {
		return "run"
	}

	return "early-result"
}

// MutantRunOptions is everything a test runner needs to execute one mutant.
type MutantRunOptions struct {
	ActiveMutant Mutant
	// TestFilter lists the test ids to run. nil runs the whole suite; a non-nil
	// empty slice means no test covers the mutant.
	TestFilter  []string
	Timeout     time.Duration
	HitLimit    int // zero disables the limit
	DisableBail bool
	// ReloadEnvironment asks for a fresh test process without cached state.
	ReloadEnvironment bool
	SandboxFileName   Path
}

// RunsAllTests reports whether no test filter applies.
func (o MutantRunOptions) RunsAllTests() bool {
	return o.TestFilter == nil
}

// MutantTestPlan decides how a single mutant is handled.
// For PlanEarlyResult the final status is carried in Mutant.Status.
type MutantTestPlan struct {
	Plan       PlanKind
	Mutant     Mutant
	CoveredBy  []string
	Static     bool
	NetTime    time.Duration
	RunOptions MutantRunOptions
}

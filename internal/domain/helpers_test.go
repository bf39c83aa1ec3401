package domain

import (
	"context"
	"sync"

	m "gooze.dev/pkg/mutexec/internal/model"
)

type fakeSandbox struct {
	err   error
	calls int
}

func (s *fakeSandbox) SandboxFileFor(name m.Path) (m.Path, error) {
	s.calls++

	if s.err != nil {
		return "", s.err
	}

	return "sandbox/" + name, nil
}

// recordingReporter keeps every event it receives.
type recordingReporter struct {
	mu       sync.Mutex
	dryRuns  []m.CompleteDryRunResult
	plans    [][]m.MutantTestPlan
	tested   []m.MutantResult
	allTests [][]m.MutantResult
	reports  []m.Report
	events   []string
}

func (r *recordingReporter) OnDryRunCompleted(_ context.Context, result m.CompleteDryRunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dryRuns = append(r.dryRuns, result)
	r.events = append(r.events, "dryRun")
}

func (r *recordingReporter) OnAllMutantsMatchedWithTests(_ context.Context, plans []m.MutantTestPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plans = append(r.plans, plans)
	r.events = append(r.events, "plans")
}

func (r *recordingReporter) OnMutantTested(_ context.Context, result m.MutantResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tested = append(r.tested, result)
	r.events = append(r.events, "mutant")
}

func (r *recordingReporter) OnAllMutantsTested(_ context.Context, results []m.MutantResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.allTests = append(r.allTests, results)
	r.events = append(r.events, "allTested")
}

func (r *recordingReporter) OnMutationTestReportReady(_ context.Context, report m.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports = append(r.reports, report)
	r.events = append(r.events, "report")
}

func mutant(id string) m.Mutant {
	return m.Mutant{
		ID:          id,
		FileName:    "calc.go",
		MutatorName: "EqualityOperator",
		Replacement: ">=",
		Location: m.Location{
			Start: m.Position{Line: 4, Column: 7},
			End:   m.Position{Line: 4, Column: 8},
		},
	}
}

func withStatus(mutant m.Mutant, status m.MutantStatus, reason string) m.Mutant {
	mutant.Status = status
	mutant.StatusReason = reason

	return mutant
}

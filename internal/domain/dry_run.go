package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gooze.dev/pkg/mutexec/internal/adapter"
	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/internal/pool"
	"gooze.dev/pkg/mutexec/internal/tracing"
)

// DefaultDryRunTimeout bounds the baseline run when no timeout is configured.
const DefaultDryRunTimeout = 5 * time.Minute

// DryRunOptions configures the baseline run.
type DryRunOptions struct {
	Timeout          time.Duration
	CoverageAnalysis m.CoverageAnalysis
	DisableBail      bool
	// AllowEmpty accepts a test suite without any test.
	AllowEmpty bool
}

// DryRunExecutor runs the test suite once without mutants to measure timing
// and coverage.
type DryRunExecutor struct {
	runners  *pool.Pool[adapter.TestRunner]
	options  DryRunOptions
	reporter Reporter
}

// NewDryRunExecutor constructs a DryRunExecutor. reporter may be nil.
func NewDryRunExecutor(runners *pool.Pool[adapter.TestRunner], options DryRunOptions, reporter Reporter) *DryRunExecutor {
	if reporter == nil {
		reporter = NopReporter{}
	}

	if options.Timeout <= 0 {
		options.Timeout = DefaultDryRunTimeout
	}

	if options.CoverageAnalysis == "" {
		options.CoverageAnalysis = m.CoveragePerTest
	}

	return &DryRunExecutor{runners: runners, options: options, reporter: reporter}
}

type timedDryRun struct {
	result m.DryRunResult
	wall   time.Duration
}

// Execute runs the baseline on one test runner of the pool. The runner goes
// back to the pool afterwards and serves mutant runs later.
func (e *DryRunExecutor) Execute(ctx context.Context) (complete m.CompleteDryRunResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "dry-run")
	defer func() { tracing.EndSpan(span, err) }()

	span.WithAttributes(map[string]string{"coverage": string(e.options.CoverageAnalysis)})

	slog.Info("Starting dry run", "timeout", e.options.Timeout, "coverage", e.options.CoverageAnalysis)

	options := m.DryRunOptions{
		Timeout:          e.options.Timeout,
		CoverageAnalysis: e.options.CoverageAnalysis,
		DisableBail:      e.options.DisableBail,
	}

	outputs, errs := pool.Schedule(ctx, e.runners, pool.FromSlice([]m.DryRunOptions{options}),
		func(ctx context.Context, runner adapter.TestRunner, options m.DryRunOptions) (timedDryRun, error) {
			start := time.Now()
			result, err := runner.DryRun(ctx, options)

			return timedDryRun{result: result, wall: time.Since(start)}, err
		})

	runs, err := pool.Collect(outputs, errs)
	if err != nil {
		slog.Error("Failed to run dry run", "error", err)
		return m.CompleteDryRunResult{}, fmt.Errorf("failed to run dry run: %w", err)
	}

	if len(runs) != 1 {
		return m.CompleteDryRunResult{}, fmt.Errorf("%w: no result", ErrDryRunFailed)
	}

	run := runs[0]

	if err := e.validate(run.result); err != nil {
		slog.Error("Dry run rejected", "error", err)
		return m.CompleteDryRunResult{}, err
	}

	complete = m.CompleteDryRunResult{
		Tests:    run.result.Tests,
		Coverage: e.coverage(run.result.Coverage),
	}
	complete.TimeOverhead = max(0, run.wall-complete.TotalTime())

	slog.Info("Dry run completed",
		"tests", len(complete.Tests), "testTime", complete.TotalTime(),
		"overhead", complete.TimeOverhead, "coverage", complete.Coverage != nil)

	e.reporter.OnDryRunCompleted(ctx, complete)

	return complete, nil
}

func (e *DryRunExecutor) validate(result m.DryRunResult) error {
	switch result.Status {
	case m.DryRunError:
		return fmt.Errorf("%w: %s", ErrDryRunFailed, result.ErrorMessage)
	case m.DryRunTimeout:
		return fmt.Errorf("%w: timed out after %s", ErrDryRunFailed, e.options.Timeout)
	case m.DryRunComplete:
	}

	var failed []string

	for _, test := range result.Tests {
		if test.Status != m.TestFailed {
			continue
		}

		failed = append(failed, test.ID)

		slog.Error("Test failed in dry run", "test", test.ID, "message", test.FailureMessage)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrFailedTests, strings.Join(failed, ", "))
	}

	if len(result.Tests) == 0 && !e.options.AllowEmpty {
		return ErrNoTests
	}

	return nil
}

func (e *DryRunExecutor) coverage(coverage *m.CoverageData) *m.CoverageData {
	switch e.options.CoverageAnalysis {
	case m.CoverageOff:
		return nil
	case m.CoverageAll, m.CoveragePerTest:
	}

	if coverage == nil {
		slog.Warn("Test runner reported no coverage, every mutant runs the whole suite",
			"coverage", e.options.CoverageAnalysis)

		return nil
	}

	if e.options.CoverageAnalysis != m.CoverageAll {
		return coverage
	}

	static := make(m.MutantCoverage, len(coverage.Static))
	for id, hits := range coverage.Static {
		static[id] += hits
	}

	for _, perTest := range coverage.PerTest {
		for id, hits := range perTest {
			static[id] += hits
		}
	}

	return &m.CoverageData{Static: static, PerTest: map[string]m.MutantCoverage{}}
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gooze.dev/pkg/mutexec/internal/adapter"
	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/internal/pool"
	"gooze.dev/pkg/mutexec/internal/tracing"
	"gooze.dev/pkg/mutexec/pkg"
)

// CheckerCapacity releases checker slots to the test runners.
type CheckerCapacity interface {
	FreeCheckers()
}

// ExecutorDeps are the collaborators of a MutationTestExecutor.
type ExecutorDeps struct {
	TestRunners *pool.Pool[adapter.TestRunner]
	// Checkers may be nil when no checker is configured.
	Checkers *pool.Pool[adapter.Checker]
	Tokens   CheckerCapacity
	Reporter Reporter
	// Journal receives every result as it resolves. Optional.
	Journal pkg.FileSpill[m.MutantResult]
}

// ExecutorOptions configures a MutationTestExecutor.
type ExecutorOptions struct {
	// Checkers lists the checker kinds to run, in order.
	Checkers []string
}

// MutationTestExecutor drives plans through checking and test runs until
// every mutant has its final result.
type MutationTestExecutor struct {
	deps    ExecutorDeps
	options ExecutorOptions
}

// NewMutationTestExecutor constructs a MutationTestExecutor.
func NewMutationTestExecutor(deps ExecutorDeps, options ExecutorOptions) *MutationTestExecutor {
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}

	return &MutationTestExecutor{deps: deps, options: options}
}

// Execute returns exactly one result per plan. Failed checks, timeouts and
// crashing test runs are results; only infrastructure failures are errors, in
// which case no results are returned.
func (e *MutationTestExecutor) Execute(ctx context.Context, plans []m.MutantTestPlan) (results []m.MutantResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "run-mutants")
	defer func() { tracing.EndSpan(span, err) }()

	span.WithInt("mutants", len(plans))

	if len(e.options.Checkers) > 0 && e.deps.Checkers == nil {
		return nil, errors.New("checkers configured without a checker pool")
	}

	collector := &resultCollector{
		reporter: e.deps.Reporter,
		journal:  e.deps.Journal,
		results:  make([]m.MutantResult, 0, len(plans)),
	}

	var runPlans []m.MutantTestPlan

	for _, plan := range plans {
		if plan.Plan == m.PlanEarlyResult {
			collector.add(ctx, earlyMutantResult(plan))
			continue
		}

		runPlans = append(runPlans, plan)
	}

	toRun := make(chan m.MutantTestPlan)
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(toRun)

		return e.checkPhase(groupCtx, runPlans, collector, toRun)
	})

	group.Go(func() error {
		return e.runPhase(groupCtx, toRun, collector)
	})

	if err := group.Wait(); err != nil {
		slog.Error("Failed to execute mutants", "error", err)
		return nil, fmt.Errorf("failed to execute mutants: %w", err)
	}

	if err := collector.err; err != nil {
		return nil, fmt.Errorf("failed to journal results: %w", err)
	}

	results = collector.results

	e.deps.Reporter.OnAllMutantsTested(ctx, results)

	report, err := e.report(results)
	if err != nil {
		return nil, err
	}

	e.deps.Reporter.OnMutationTestReportReady(ctx, report)

	return results, nil
}

func (e *MutationTestExecutor) report(results []m.MutantResult) (m.Report, error) {
	score := MutationScore(results)

	if e.deps.Journal != nil {
		var err error

		score, err = mutationScoreFromJournal(e.deps.Journal)
		if err != nil {
			slog.Error("Failed to compute mutation score", "error", err)
			return m.Report{}, fmt.Errorf("failed to compute mutation score: %w", err)
		}
	}

	return m.Report{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Score:     score,
		Results:   results,
	}, nil
}

// checkPhase runs every checker kind in order. Plans that pass the last kind
// are streamed to out while that kind is still checking other groups.
func (e *MutationTestExecutor) checkPhase(ctx context.Context, plans []m.MutantTestPlan, collector *resultCollector, out chan<- m.MutantTestPlan) error {
	if len(e.options.Checkers) == 0 {
		for _, plan := range plans {
			if err := e.dispatch(ctx, plan, collector, out); err != nil {
				return err
			}
		}

		return nil
	}

	if len(plans) > 0 {
		if err := e.deps.Checkers.Init(ctx); err != nil {
			slog.Error("Failed to start checkers", "error", err)
			return fmt.Errorf("failed to start checkers: %w", err)
		}
	}

	pending := plans

	for i, kind := range e.options.Checkers {
		var sink chan<- m.MutantTestPlan
		if i == len(e.options.Checkers)-1 {
			sink = out
		}

		passed, err := e.checkKind(ctx, kind, pending, collector, sink)
		if err != nil {
			return err
		}

		pending = passed
	}

	if err := e.deps.Checkers.Dispose(ctx); err != nil {
		slog.Warn("Failed to dispose checkers", "error", err)
	}

	if e.deps.Tokens != nil {
		e.deps.Tokens.FreeCheckers()
	}

	slog.Debug("Checking finished, checker capacity released")

	return nil
}

type checkedGroup struct {
	group   []m.Mutant
	results map[string]m.CheckResult
}

// checkKind checks plans with one checker kind. When sink is nil the passed
// plans are returned, otherwise they are dispatched to sink as they pass.
func (e *MutationTestExecutor) checkKind(ctx context.Context, kind string, plans []m.MutantTestPlan, collector *resultCollector, sink chan<- m.MutantTestPlan) (passed []m.MutantTestPlan, err error) {
	if len(plans) == 0 {
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, "check:"+kind)
	defer func() { tracing.EndSpan(span, err) }()

	span.WithInt("mutants", len(plans))

	err = e.deps.Checkers.RunOnAll(ctx, func(ctx context.Context, checker adapter.Checker) error {
		return checker.Select(ctx, kind)
	})
	if err != nil {
		slog.Error("Failed to select checker", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to select checker %s: %w", kind, err)
	}

	byID := make(map[string]m.MutantTestPlan, len(plans))
	mutants := make([]m.Mutant, 0, len(plans))

	for _, plan := range plans {
		byID[plan.Mutant.ID] = plan
		mutants = append(mutants, sandboxMutant(plan))
	}

	groups, err := e.group(ctx, kind, mutants)
	if err != nil {
		return nil, err
	}

	slog.Info("Checking mutants", "kind", kind, "mutants", len(mutants), "groups", len(groups))

	outputs, errs := pool.Schedule(ctx, e.deps.Checkers, pool.FromSlice(groups),
		func(ctx context.Context, checker adapter.Checker, group []m.Mutant) (checkedGroup, error) {
			results, err := checker.Check(ctx, kind, group)
			if err != nil {
				return checkedGroup{}, fmt.Errorf("checker %s failed: %w", kind, err)
			}

			for _, mutant := range group {
				if _, ok := results[mutant.ID]; !ok {
					return checkedGroup{}, fmt.Errorf("checker %s returned no result for mutant %s", kind, mutant.ID)
				}
			}

			return checkedGroup{group: group, results: results}, nil
		})

	var dispatchErr error

	for checked := range outputs {
		for _, mutant := range checked.group {
			plan := byID[mutant.ID]

			result := checked.results[mutant.ID]
			if result.Status != m.CheckPassed {
				collector.add(ctx, compileErrorResult(plan, result.Reason))
				continue
			}

			if sink == nil {
				passed = append(passed, plan)
				continue
			}

			if dispatchErr == nil {
				dispatchErr = e.dispatch(ctx, plan, collector, sink)
			}
		}
	}

	if err := <-errs; err != nil {
		slog.Error("Failed to check mutants", "kind", kind, "error", err)
		return nil, err
	}

	if dispatchErr != nil {
		return nil, dispatchErr
	}

	return passed, nil
}

// sandboxMutant is the plan's mutant addressed by its sandbox-relative file,
// the only name workers resolve.
func sandboxMutant(plan m.MutantTestPlan) m.Mutant {
	mutant := plan.Mutant
	if plan.RunOptions.SandboxFileName != "" {
		mutant.FileName = plan.RunOptions.SandboxFileName
	}

	return mutant
}

// group asks a single checker to partition mutants. Every mutant must land in
// exactly one group.
func (e *MutationTestExecutor) group(ctx context.Context, kind string, mutants []m.Mutant) ([][]m.Mutant, error) {
	outputs, errs := pool.Schedule(ctx, e.deps.Checkers, pool.FromSlice([]string{kind}),
		func(ctx context.Context, checker adapter.Checker, kind string) ([][]m.Mutant, error) {
			return checker.Group(ctx, kind, mutants)
		})

	grouped, err := pool.Collect(outputs, errs)
	if err != nil {
		slog.Error("Failed to group mutants", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to group mutants for checker %s: %w", kind, err)
	}

	if len(grouped) == 0 || len(grouped[0]) == 0 {
		groups := make([][]m.Mutant, 0, len(mutants))
		for _, mutant := range mutants {
			groups = append(groups, []m.Mutant{mutant})
		}

		return groups, nil
	}

	groups := grouped[0]
	seen := make(map[string]int, len(mutants))

	for _, group := range groups {
		for _, mutant := range group {
			seen[mutant.ID]++
		}
	}

	for _, mutant := range mutants {
		if seen[mutant.ID] != 1 {
			return nil, fmt.Errorf("checker %s grouped mutant %s %d times", kind, mutant.ID, seen[mutant.ID])
		}
	}

	if len(seen) != len(mutants) {
		return nil, fmt.Errorf("checker %s grouped unknown mutants", kind)
	}

	return groups, nil
}

// dispatch resolves plans no test can kill and sends the others to out.
func (e *MutationTestExecutor) dispatch(ctx context.Context, plan m.MutantTestPlan, collector *resultCollector, out chan<- m.MutantTestPlan) error {
	if !plan.RunOptions.RunsAllTests() && len(plan.RunOptions.TestFilter) == 0 && !plan.Static {
		collector.add(ctx, noCoverageResult(plan))
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- plan:
		return nil
	}
}

func (e *MutationTestExecutor) runPhase(ctx context.Context, plans <-chan m.MutantTestPlan, collector *resultCollector) error {
	outputs, errs := pool.Schedule(ctx, e.deps.TestRunners, plans,
		func(ctx context.Context, runner adapter.TestRunner, plan m.MutantTestPlan) (m.MutantResult, error) {
			result, err := runner.MutantRun(ctx, plan.RunOptions)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return m.MutantResult{}, ctxErr
				}

				slog.Warn("Mutant run failed", "mutant", plan.Mutant.ID, "error", err)

				return runtimeErrorResult(plan, err.Error()), nil
			}

			return runMutantResult(plan, result), nil
		})

	for result := range outputs {
		collector.add(ctx, result)
	}

	if err := <-errs; err != nil {
		slog.Error("Failed to run mutants", "error", err)
		return fmt.Errorf("failed to run mutants: %w", err)
	}

	return nil
}

// resultCollector gathers results from every phase.
type resultCollector struct {
	mu       sync.Mutex
	results  []m.MutantResult
	journal  pkg.FileSpill[m.MutantResult]
	reporter Reporter
	err      error
}

func (c *resultCollector) add(ctx context.Context, result m.MutantResult) {
	c.mu.Lock()
	c.results = append(c.results, result)

	if c.journal != nil && c.err == nil {
		if err := c.journal.Append(result); err != nil {
			slog.Error("Failed to journal mutant result", "mutant", result.Mutant.ID, "error", err)
			c.err = err
		}
	}
	c.mu.Unlock()

	slog.Debug("Mutant tested", "mutant", result.Mutant.ID, "status", result.Status)

	c.reporter.OnMutantTested(ctx, result)
}

func baseMutantResult(plan m.MutantTestPlan) m.MutantResult {
	return m.MutantResult{
		Mutant:    plan.Mutant,
		CoveredBy: plan.CoveredBy,
		Static:    plan.Static,
	}
}

func earlyMutantResult(plan m.MutantTestPlan) m.MutantResult {
	result := baseMutantResult(plan)
	result.Status = plan.Mutant.Status
	result.StatusReason = plan.Mutant.StatusReason

	return result
}

func compileErrorResult(plan m.MutantTestPlan, reason string) m.MutantResult {
	result := baseMutantResult(plan)
	result.Status = m.CompileError
	result.StatusReason = reason

	return result
}

func noCoverageResult(plan m.MutantTestPlan) m.MutantResult {
	result := baseMutantResult(plan)
	result.Status = m.NoCoverage

	return result
}

func runtimeErrorResult(plan m.MutantTestPlan, reason string) m.MutantResult {
	result := baseMutantResult(plan)
	result.Status = m.RuntimeError
	result.StatusReason = reason

	return result
}

func runMutantResult(plan m.MutantTestPlan, run m.MutantRunResult) m.MutantResult {
	result := baseMutantResult(plan)

	switch run.Status {
	case m.RunKilled:
		result.Status = m.Killed
		result.StatusReason = run.FailureMessage
		result.KilledBy = run.KilledBy
		result.TestsCompleted = run.NrOfTests
	case m.RunSurvived:
		result.Status = m.Survived
		result.TestsCompleted = run.NrOfTests
	case m.RunTimeout:
		result.Status = m.Timeout
	case m.RunError:
		result.Status = m.RuntimeError
		result.StatusReason = run.ErrorMessage
	default:
		result.Status = m.RuntimeError
		result.StatusReason = fmt.Sprintf("unknown run status %d", run.Status)
	}

	return result
}

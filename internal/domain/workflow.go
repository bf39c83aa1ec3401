package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gooze.dev/pkg/mutexec/internal/adapter"
	"gooze.dev/pkg/mutexec/internal/concurrency"
	"gooze.dev/pkg/mutexec/internal/controller"
	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/internal/pool"
	"gooze.dev/pkg/mutexec/pkg"
)

// RunArgs contains the arguments for a mutation testing run.
type RunArgs struct {
	ProjectRoot      m.Path
	MutantsFile      m.Path
	ExcludedMutators []string
	Reports          m.Path

	Concurrency      int
	Checkers         []string
	Timeout          time.Duration
	TimeoutFactor    float64
	DisableBail      bool
	IgnoreStatic     bool
	CoverageAnalysis m.CoverageAnalysis
	DryRunTimeout    time.Duration
	AllowEmpty       bool
	// BreakThreshold is a percentage; zero disables it.
	BreakThreshold float64
}

// ViewArgs contains the arguments for displaying a stored report.
type ViewArgs struct {
	ProjectRoot m.Path
	Reports     m.Path
}

// Workflow defines the mutation testing use cases.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) error
	View(ctx context.Context, args ViewArgs) error
}

type workflow struct {
	adapter.MutantSource
	adapter.SandboxFactory
	adapter.WorkerFactory
	adapter.ReportStore
	adapter.SourceFSAdapter
	controller.UI
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	mutantSource adapter.MutantSource,
	sandboxFactory adapter.SandboxFactory,
	workerFactory adapter.WorkerFactory,
	reportStore adapter.ReportStore,
	ui controller.UI,
) Workflow {
	return &workflow{
		MutantSource:    mutantSource,
		SandboxFactory:  sandboxFactory,
		WorkerFactory:   workerFactory,
		ReportStore:     reportStore,
		SourceFSAdapter: fsAdapter,
		UI:              ui,
	}
}

// reportCapture keeps the final report for persistence.
type reportCapture struct {
	NopReporter
	report *m.Report
}

func (c *reportCapture) OnMutationTestReportReady(_ context.Context, report m.Report) {
	c.report = &report
}

// Run loads mutants, measures the baseline, plans and executes every mutant,
// then persists the report. Workers and the sandbox are released on every
// exit path.
func (w *workflow) Run(ctx context.Context, args RunArgs) (err error) {
	if err := w.Start(ctx); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	mutants, err := w.LoadMutants(ctx, args.MutantsFile, args.ExcludedMutators)
	if err != nil {
		return fmt.Errorf("load mutants: %w", err)
	}

	sandbox, err := w.CreateSandbox(ctx, args.ProjectRoot, filepath.Base(string(args.Reports)))
	if err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}

	defer func() {
		// The run context may already be cancelled; cleanup still has to happen.
		if disposeErr := sandbox.Dispose(context.WithoutCancel(ctx)); disposeErr != nil {
			slog.Warn("Failed to dispose sandbox", "error", disposeErr)
		}
	}()

	tokens := concurrency.NewTokenProvider(args.Concurrency, len(args.Checkers))
	defer tokens.Dispose()

	runners := pool.New(func() adapter.TestRunner { return w.NewTestRunner(sandbox) }, tokens.TestRunnerTokens())
	defer disposePool(ctx, "test runners", runners)

	capture := &reportCapture{}
	reporter := NewBroadcastReporter(w.UI, capture)

	dryRun, err := NewDryRunExecutor(runners, DryRunOptions{
		Timeout:          args.DryRunTimeout,
		CoverageAnalysis: args.CoverageAnalysis,
		DisableBail:      args.DisableBail,
		AllowEmpty:       args.AllowEmpty,
	}, reporter).Execute(ctx)
	if err != nil {
		return err
	}

	plans, err := NewMutantTestPlanner(dryRun, sandbox, PlannerOptions{
		Timeout:       args.Timeout,
		TimeoutFactor: args.TimeoutFactor,
		DisableBail:   args.DisableBail,
		IgnoreStatic:  args.IgnoreStatic,
	}, reporter).MakePlan(ctx, mutants)
	if err != nil {
		return fmt.Errorf("plan mutants: %w", err)
	}

	var checkers *pool.Pool[adapter.Checker]
	if len(args.Checkers) > 0 {
		checkers = pool.New(func() adapter.Checker { return w.NewChecker(sandbox) }, tokens.CheckerTokens())
		defer disposePool(ctx, "checkers", checkers)
	}

	journal, err := pkg.NewFileSpill[m.MutantResult]("")
	if err != nil {
		return fmt.Errorf("create results journal: %w", err)
	}

	defer func() {
		if removeErr := journal.Remove(); removeErr != nil {
			slog.Warn("Failed to remove results journal", "path", journal.Path(), "error", removeErr)
		}
	}()

	executor := NewMutationTestExecutor(ExecutorDeps{
		TestRunners: runners,
		Checkers:    checkers,
		Tokens:      tokens,
		Reporter:    reporter,
		Journal:     journal,
	}, ExecutorOptions{Checkers: args.Checkers})

	if _, err := executor.Execute(ctx, plans); err != nil {
		return err
	}

	if capture.report == nil {
		return errors.New("no report produced")
	}

	if err := w.SaveReport(args.Reports, *capture.report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	w.Wait(ctx)

	return CheckThreshold(capture.report.Score, args.BreakThreshold)
}

// View displays the report stored in args.Reports with diffs of the
// mutants the tests did not detect.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	report, err := w.LoadReport(args.Reports)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	diffs := w.undetectedDiffs(args.ProjectRoot, report)

	if err := w.DisplayReport(ctx, report, diffs); err != nil {
		slog.Error("Failed to display report", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	return nil
}

// undetectedDiffs renders a diff per survived or uncovered mutant. Mutants
// whose file cannot be read are skipped.
func (w *workflow) undetectedDiffs(projectRoot m.Path, report m.Report) map[string]string {
	diffs := make(map[string]string)

	root, err := w.FindProjectRoot(projectRoot)
	if err != nil {
		slog.Debug("Cannot locate project for diffs", "path", projectRoot, "error", err)
		return diffs
	}

	sources := make(map[m.Path][]byte)

	for _, result := range report.Results {
		if result.Status != m.Survived && result.Status != m.NoCoverage {
			continue
		}

		mutant := result.Mutant

		path := mutant.FileName
		if !filepath.IsAbs(string(path)) {
			path = w.JoinPath(string(root), string(path))
		}

		content, ok := sources[path]
		if !ok {
			content, err = w.ReadFile(path)
			if err != nil {
				slog.Debug("Cannot read mutated file", "mutant", mutant.ID, "path", path, "error", err)
				continue
			}

			sources[path] = content
		}

		mutated, err := adapter.ApplyMutant(content, mutant)
		if err != nil {
			slog.Debug("Cannot apply mutant", "mutant", mutant.ID, "error", err)
			continue
		}

		diff, err := adapter.MutantDiff(mutant.FileName, content, mutated)
		if err != nil {
			slog.Debug("Cannot render diff", "mutant", mutant.ID, "error", err)
			continue
		}

		diffs[mutant.ID] = diff
	}

	return diffs
}

func disposePool[R pool.Resource](ctx context.Context, name string, p *pool.Pool[R]) {
	if err := p.Dispose(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("Failed to dispose pool", "pool", name, "error", err)
	}
}

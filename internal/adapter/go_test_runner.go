package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	m "gooze.dev/pkg/mutexec/internal/model"
)

// Environment variables exported to the test process. Instrumented builds read
// them to activate a mutant, enforce the hit limit and dump coverage.
const (
	EnvActiveMutant = "MUTEXEC_ACTIVE_MUTANT"
	EnvHitLimit     = "MUTEXEC_HIT_LIMIT"
	EnvCoverageFile = "MUTEXEC_COVERAGE_FILE"

	coverageFileName = ".mutexec-coverage.yaml"
)

// GoTestRunner runs `go test -json` inside a private copy of the sandbox.
type GoTestRunner struct {
	goAdapter GoCommandAdapter
	packages  []string
	workspace workspace
}

// NewGoTestRunner constructs a GoTestRunner. Nothing touches the disk until Init.
func NewGoTestRunner(fsAdapter SourceFSAdapter, goAdapter GoCommandAdapter, sandbox m.Path, packages []string) *GoTestRunner {
	return &GoTestRunner{
		goAdapter: goAdapter,
		packages:  packages,
		workspace: workspace{fsAdapter: fsAdapter, sandbox: sandbox},
	}
}

// Init copies the sandbox into the runner's own directory.
func (r *GoTestRunner) Init(_ context.Context) error {
	return r.workspace.create("mutexec-runner-*")
}

// Dispose removes the runner's directory.
func (r *GoTestRunner) Dispose(_ context.Context) error {
	return r.workspace.remove()
}

// DryRun runs the whole suite without a mutant.
func (r *GoTestRunner) DryRun(ctx context.Context, options m.DryRunOptions) (m.DryRunResult, error) {
	if options.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	var env []string

	coveragePath, err := r.workspace.path(coverageFileName)
	if err != nil {
		return m.DryRunResult{}, err
	}

	if options.CoverageAnalysis != m.CoverageOff {
		_ = r.workspace.fsAdapter.RemoveAll(coveragePath)
		env = append(env, EnvCoverageFile+"="+string(coveragePath))
	}

	args := append([]string{"test", "-json", "-count=1"}, r.packages...)

	stdout, stderr, err := r.goAdapter.RunGo(ctx, r.workspace.dir, env, args...)
	if errors.Is(ctx.Err(), context.Canceled) {
		return m.DryRunResult{}, ctx.Err()
	}

	if ctx.Err() != nil {
		return m.DryRunResult{Status: m.DryRunTimeout, ErrorMessage: fmt.Sprintf("dry run exceeded %s", options.Timeout)}, nil
	}

	run := parseTestEvents(stdout)

	if err != nil && !isExitError(err) {
		return m.DryRunResult{}, fmt.Errorf("failed to run go test: %w", err)
	}

	if len(run.failedPackages) > 0 {
		return m.DryRunResult{
			Status:       m.DryRunError,
			Tests:        run.tests,
			ErrorMessage: packageFailureMessage(run, stderr),
		}, nil
	}

	result := m.DryRunResult{Status: m.DryRunComplete, Tests: run.tests}

	if options.CoverageAnalysis != m.CoverageOff {
		coverage, err := r.readCoverage(coveragePath)
		if err != nil {
			return m.DryRunResult{}, err
		}

		result.Coverage = coverage
	}

	return result, nil
}

// MutantRun activates the mutant, runs the selected tests and restores the file.
func (r *GoTestRunner) MutantRun(ctx context.Context, options m.MutantRunOptions) (m.MutantRunResult, error) {
	if options.TestFilter != nil && len(options.TestFilter) == 0 {
		return m.MutantRunResult{}, errors.New("empty test filter")
	}

	mutant := options.ActiveMutant
	if options.SandboxFileName != "" {
		mutant.FileName = options.SandboxFileName
	}

	restore, err := r.workspace.activate(mutant)
	if err != nil {
		return m.MutantRunResult{Status: m.RunError, ErrorMessage: err.Error()}, nil
	}

	defer func() {
		if err := restore(); err != nil {
			slog.Error("Failed to restore mutated file", "mutant", mutant.ID, "error", err)
		}
	}()

	runCtx := ctx
	if options.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	stdout, stderr, err := r.goAdapter.RunGo(runCtx, r.workspace.dir, mutantEnv(options), r.mutantRunArgs(options)...)
	if runCtx.Err() != nil && ctx.Err() == nil {
		return m.MutantRunResult{Status: m.RunTimeout}, nil
	}

	if err != nil && !isExitError(err) {
		return m.MutantRunResult{}, fmt.Errorf("failed to run go test: %w", err)
	}

	run := parseTestEvents(stdout)

	if failed := run.failed(); len(failed) > 0 {
		killedBy := make([]string, 0, len(failed))
		for _, test := range failed {
			killedBy = append(killedBy, test.ID)
		}

		return m.MutantRunResult{
			Status:         m.RunKilled,
			KilledBy:       killedBy,
			FailureMessage: failed[0].FailureMessage,
			NrOfTests:      run.completed(),
		}, nil
	}

	if len(run.failedPackages) > 0 || (err != nil && len(run.tests) == 0) {
		return m.MutantRunResult{Status: m.RunError, ErrorMessage: packageFailureMessage(run, stderr)}, nil
	}

	return m.MutantRunResult{Status: m.RunSurvived, NrOfTests: run.completed()}, nil
}

func (r *GoTestRunner) mutantRunArgs(options m.MutantRunOptions) []string {
	args := []string{"test", "-json"}

	if !options.DisableBail {
		args = append(args, "-failfast")
	}

	if options.ReloadEnvironment {
		args = append(args, "-count=1")
	}

	if options.RunsAllTests() {
		return append(args, r.packages...)
	}

	packages, expr := testFilterArgs(options.TestFilter)
	args = append(args, "-run", expr)

	if len(packages) == 0 {
		return append(args, r.packages...)
	}

	return append(args, packages...)
}

func (r *GoTestRunner) readCoverage(path m.Path) (*m.CoverageData, error) {
	content, err := r.workspace.fsAdapter.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No coverage file written by the test process", "path", path)
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read coverage: %w", err)
	}

	var coverage m.CoverageData
	if err := yaml.Unmarshal(content, &coverage); err != nil {
		return nil, fmt.Errorf("failed to decode coverage: %w", err)
	}

	if coverage.Static == nil {
		coverage.Static = m.MutantCoverage{}
	}

	if coverage.PerTest == nil {
		coverage.PerTest = map[string]m.MutantCoverage{}
	}

	return &coverage, nil
}

func mutantEnv(options m.MutantRunOptions) []string {
	env := []string{EnvActiveMutant + "=" + options.ActiveMutant.ID}

	if options.HitLimit > 0 {
		env = append(env, EnvHitLimit+"="+strconv.Itoa(options.HitLimit))
	}

	return env
}

func packageFailureMessage(run testRun, stderr []byte) string {
	var parts []string

	for _, pkg := range run.failedPackages {
		if output := run.packageOutput(pkg); output != "" {
			parts = append(parts, output)
		}
	}

	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		parts = append(parts, msg)
	}

	if len(parts) == 0 {
		return "go test failed"
	}

	return strings.Join(parts, "\n")
}

func isExitError(err error) bool {
	var exitErr interface{ ExitCode() int }

	return errors.As(err, &exitErr)
}

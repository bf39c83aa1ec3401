// Package adapter contains the infrastructure the mutation testing core talks
// to: worker processes, the sandbox, mutant input and report persistence.
package adapter

import (
	"context"
	"errors"

	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/internal/pool"
)

// ErrUnknownChecker is returned when a checker kind is not supported.
var ErrUnknownChecker = errors.New("unknown checker")

// TestRunner is a pooled worker able to run the test suite, with or without an
// active mutant.
type TestRunner interface {
	pool.Resource

	// DryRun runs the whole suite without any mutant and reports timing and
	// coverage.
	DryRun(ctx context.Context, options m.DryRunOptions) (m.DryRunResult, error)

	// MutantRun runs the (filtered) suite with exactly one mutant active.
	// Timeouts and test failures are reported in the result, not as errors.
	MutantRun(ctx context.Context, options m.MutantRunOptions) (m.MutantRunResult, error)
}

// Checker is a pooled worker that validates mutants without running tests.
type Checker interface {
	pool.Resource

	// Select switches the checker to kind. Every live checker is switched
	// before a batch of that kind starts.
	Select(ctx context.Context, kind string) error

	// Group partitions mutants into groups that can be checked together. A
	// nil result means every mutant is checked on its own.
	Group(ctx context.Context, kind string, mutants []m.Mutant) ([][]m.Mutant, error)

	// Check validates a group and returns one result per mutant id.
	Check(ctx context.Context, kind string, group []m.Mutant) (map[string]m.CheckResult, error)
}

// WorkerFactory builds uninitialized workers operating on a sandbox.
type WorkerFactory interface {
	NewTestRunner(sandbox Sandbox) TestRunner
	NewChecker(sandbox Sandbox) Checker
}

// LocalWorkerFactory creates workers that drive the local go toolchain.
type LocalWorkerFactory struct {
	fsAdapter SourceFSAdapter
	goAdapter GoCommandAdapter
	packages  []string
}

// NewLocalWorkerFactory constructs a LocalWorkerFactory. packages are the go
// package patterns to test; an empty list means "./...".
func NewLocalWorkerFactory(fsAdapter SourceFSAdapter, goAdapter GoCommandAdapter, packages ...string) *LocalWorkerFactory {
	if len(packages) == 0 {
		packages = []string{"./..."}
	}

	return &LocalWorkerFactory{
		fsAdapter: fsAdapter,
		goAdapter: goAdapter,
		packages:  packages,
	}
}

// NewTestRunner returns a GoTestRunner working on a private copy of sandbox.
func (f *LocalWorkerFactory) NewTestRunner(sandbox Sandbox) TestRunner {
	return NewGoTestRunner(f.fsAdapter, f.goAdapter, sandbox.Root(), f.packages)
}

// NewChecker returns a GoChecker working on a private copy of sandbox.
func (f *LocalWorkerFactory) NewChecker(sandbox Sandbox) Checker {
	return NewGoChecker(f.fsAdapter, f.goAdapter, sandbox.Root())
}

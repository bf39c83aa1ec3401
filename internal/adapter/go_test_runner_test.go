package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	m "gooze.dev/pkg/mutexec/internal/model"
)

type exitError struct{ code int }

func (e exitError) Error() string { return "exit status 1" }
func (e exitError) ExitCode() int { return e.code }

type goCall struct {
	dir  m.Path
	env  []string
	args []string
}

// fakeGoAdapter replays canned go tool output and records every invocation.
type fakeGoAdapter struct {
	mu     sync.Mutex
	calls  []goCall
	handle func(ctx context.Context, call goCall) ([]byte, []byte, error)
}

func (f *fakeGoAdapter) RunGo(ctx context.Context, workDir m.Path, env []string, args ...string) ([]byte, []byte, error) {
	call := goCall{dir: workDir, env: env, args: args}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.handle == nil {
		return nil, nil, nil
	}

	return f.handle(ctx, call)
}

func (f *fakeGoAdapter) lastCall() goCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[len(f.calls)-1]
}

func newSandboxDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "go.mod"), "module example.com/calc\n")
	writeTestFile(t, filepath.Join(dir, "calc.go"), calcSource)

	return dir
}

func newTestRunner(t *testing.T, goAdapter GoCommandAdapter) *GoTestRunner {
	t.Helper()

	runner := NewGoTestRunner(NewLocalSourceFSAdapter(), goAdapter, m.Path(newSandboxDir(t)), []string{"./..."})
	require.NoError(t, runner.Init(context.Background()))

	t.Cleanup(func() { _ = runner.Dispose(context.Background()) })

	return runner
}

func TestGoTestRunner_InitAndDispose(t *testing.T) {
	runner := NewGoTestRunner(NewLocalSourceFSAdapter(), &fakeGoAdapter{}, m.Path(newSandboxDir(t)), nil)

	require.NoError(t, runner.Init(context.Background()))

	dir := string(runner.workspace.dir)
	assert.FileExists(t, filepath.Join(dir, "calc.go"))

	require.NoError(t, runner.Dispose(context.Background()))
	assert.NoDirExists(t, dir)
	require.NoError(t, runner.Dispose(context.Background()))
}

func TestGoTestRunner_DryRun(t *testing.T) {
	goAdapter := &fakeGoAdapter{}
	goAdapter.handle = func(_ context.Context, call goCall) ([]byte, []byte, error) {
		coverage := "static:\n  \"1\": 1\nperTest:\n  example.com/calc.TestMax:\n    \"1\": 2\n    \"2\": 5\n"
		path := call.env[0][len(EnvCoverageFile)+1:]

		if err := os.WriteFile(path, []byte(coverage), 0o600); err != nil {
			return nil, nil, err
		}

		return []byte(passingRun), nil, nil
	}

	runner := newTestRunner(t, goAdapter)

	result, err := runner.DryRun(context.Background(), m.DryRunOptions{CoverageAnalysis: m.CoveragePerTest})
	require.NoError(t, err)

	assert.Equal(t, m.DryRunComplete, result.Status)
	assert.Len(t, result.Tests, 3)
	require.NotNil(t, result.Coverage)
	assert.Equal(t, m.MutantCoverage{"1": 1}, result.Coverage.Static)
	assert.Equal(t, m.MutantCoverage{"1": 2, "2": 5}, result.Coverage.PerTest["example.com/calc.TestMax"])
	assert.Equal(t, []string{"test", "-json", "-count=1", "./..."}, goAdapter.lastCall().args)
}

func TestGoTestRunner_DryRun_CoverageOff(t *testing.T) {
	goAdapter := &fakeGoAdapter{handle: func(context.Context, goCall) ([]byte, []byte, error) {
		return []byte(passingRun), nil, nil
	}}

	runner := newTestRunner(t, goAdapter)

	result, err := runner.DryRun(context.Background(), m.DryRunOptions{CoverageAnalysis: m.CoverageOff})
	require.NoError(t, err)

	assert.Nil(t, result.Coverage)
	assert.Empty(t, goAdapter.lastCall().env)
}

func TestGoTestRunner_DryRun_BuildFailure(t *testing.T) {
	goAdapter := &fakeGoAdapter{handle: func(context.Context, goCall) ([]byte, []byte, error) {
		return []byte(buildFailedRun), []byte("calc.go:4:7: syntax error"), exitError{code: 1}
	}}

	runner := newTestRunner(t, goAdapter)

	result, err := runner.DryRun(context.Background(), m.DryRunOptions{CoverageAnalysis: m.CoverageOff})
	require.NoError(t, err)

	assert.Equal(t, m.DryRunError, result.Status)
	assert.Contains(t, result.ErrorMessage, "syntax error")
}

func TestGoTestRunner_DryRun_Timeout(t *testing.T) {
	goAdapter := &fakeGoAdapter{handle: func(ctx context.Context, _ goCall) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}}

	runner := newTestRunner(t, goAdapter)

	result, err := runner.DryRun(context.Background(), m.DryRunOptions{Timeout: 10 * time.Millisecond, CoverageAnalysis: m.CoverageOff})
	require.NoError(t, err)

	assert.Equal(t, m.DryRunTimeout, result.Status)
}

func TestGoTestRunner_MutantRun_ActivatesAndRestores(t *testing.T) {
	runner := newTestRunner(t, nil)

	var seen string

	goAdapter := &fakeGoAdapter{handle: func(_ context.Context, call goCall) ([]byte, []byte, error) {
		content, err := os.ReadFile(filepath.Join(string(call.dir), "calc.go"))
		seen = string(content)

		return []byte(killedRun), nil, errors.Join(err, exitError{code: 1})
	}}
	runner.goAdapter = goAdapter

	result, err := runner.MutantRun(context.Background(), m.MutantRunOptions{
		ActiveMutant:    mutantAt("7", 4, 7, 4, 8, ">="),
		SandboxFileName: "calc.go",
		TestFilter:      []string{"example.com/calc.TestMax"},
		HitLimit:        600,
	})
	require.NoError(t, err)

	assert.Contains(t, seen, "if a >= b")
	assert.Equal(t, m.RunKilled, result.Status)
	assert.Equal(t, []string{"example.com/calc.TestMax"}, result.KilledBy)
	assert.Equal(t, 1, result.NrOfTests)

	restored, err := os.ReadFile(filepath.Join(string(runner.workspace.dir), "calc.go"))
	require.NoError(t, err)
	assert.Equal(t, calcSource, string(restored))

	call := goAdapter.lastCall()
	assert.Equal(t, []string{"test", "-json", "-failfast", "-run", "^(TestMax)$", "example.com/calc"}, call.args)
	assert.Equal(t, []string{EnvActiveMutant + "=7", EnvHitLimit + "=600"}, call.env)
}

func TestGoTestRunner_MutantRun_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		err    error
		want   m.MutantRunStatus
	}{
		{"survived", passingRun, "", nil, m.RunSurvived},
		{"killed", killedRun, "", exitError{code: 1}, m.RunKilled},
		{"build failure", buildFailedRun, "syntax error", exitError{code: 1}, m.RunError},
		{"no output", "", "cannot find package", exitError{code: 1}, m.RunError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newTestRunner(t, &fakeGoAdapter{handle: func(context.Context, goCall) ([]byte, []byte, error) {
				return []byte(tt.stdout), []byte(tt.stderr), tt.err
			}})

			result, err := runner.MutantRun(context.Background(), m.MutantRunOptions{
				ActiveMutant:    mutantAt("1", 4, 7, 4, 8, ">="),
				SandboxFileName: "calc.go",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestGoTestRunner_MutantRun_Timeout(t *testing.T) {
	runner := newTestRunner(t, &fakeGoAdapter{handle: func(ctx context.Context, _ goCall) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}})

	result, err := runner.MutantRun(context.Background(), m.MutantRunOptions{
		ActiveMutant:    mutantAt("1", 4, 7, 4, 8, ">="),
		SandboxFileName: "calc.go",
		Timeout:         10 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, m.RunTimeout, result.Status)
}

func TestGoTestRunner_MutantRunArgs(t *testing.T) {
	runner := NewGoTestRunner(NewLocalSourceFSAdapter(), nil, "", []string{"./..."})

	assert.Equal(t,
		[]string{"test", "-json", "-count=1", "./..."},
		runner.mutantRunArgs(m.MutantRunOptions{DisableBail: true, ReloadEnvironment: true}))
	assert.Equal(t,
		[]string{"test", "-json", "-failfast", "./..."},
		runner.mutantRunArgs(m.MutantRunOptions{}))
}

func TestGoTestRunner_MutantRun_InvalidMutant(t *testing.T) {
	goAdapter := &fakeGoAdapter{}
	runner := newTestRunner(t, goAdapter)

	result, err := runner.MutantRun(context.Background(), m.MutantRunOptions{
		ActiveMutant:    mutantAt("1", 90, 1, 90, 2, "x"),
		SandboxFileName: "calc.go",
	})
	require.NoError(t, err)

	assert.Equal(t, m.RunError, result.Status)
	assert.Empty(t, goAdapter.calls)
}

package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"gooze.dev/pkg/mutexec/internal/adapter"
	"gooze.dev/pkg/mutexec/internal/concurrency"
	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/internal/pool"
)

// eventLog records the order of notable calls across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.events...)
}

// fakeRunners hands out test runners sharing one behavior.
type fakeRunners struct {
	log     *eventLog
	initErr error
	dryRun  func(ctx context.Context, options m.DryRunOptions) (m.DryRunResult, error)
	run     func(ctx context.Context, options m.MutantRunOptions) (m.MutantRunResult, error)

	created   atomic.Int32
	dryRuns   atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32

	mu  sync.Mutex
	ran []string
}

func (f *fakeRunners) newRunner() adapter.TestRunner {
	f.created.Add(1)
	return &fakeRunner{owner: f}
}

func (f *fakeRunners) ranMutants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ran...)
}

type fakeRunner struct {
	owner *fakeRunners
	busy  atomic.Bool
}

func (r *fakeRunner) Init(context.Context) error {
	return r.owner.initErr
}

func (r *fakeRunner) Dispose(context.Context) error {
	if r.owner.log != nil {
		r.owner.log.add("runner-dispose")
	}

	return nil
}

func (r *fakeRunner) DryRun(ctx context.Context, options m.DryRunOptions) (m.DryRunResult, error) {
	r.owner.dryRuns.Add(1)

	if r.owner.dryRun == nil {
		return m.DryRunResult{Status: m.DryRunComplete, Tests: []m.TestResult{{ID: "calc.TestMax"}}}, nil
	}

	return r.owner.dryRun(ctx, options)
}

func (r *fakeRunner) MutantRun(ctx context.Context, options m.MutantRunOptions) (m.MutantRunResult, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return m.MutantRunResult{}, errors.New("runner used by two tasks at once")
	}
	defer r.busy.Store(false)

	active := r.owner.active.Add(1)
	defer r.owner.active.Add(-1)

	for {
		current := r.owner.maxActive.Load()
		if active <= current || r.owner.maxActive.CompareAndSwap(current, active) {
			break
		}
	}

	r.owner.mu.Lock()
	r.owner.ran = append(r.owner.ran, options.ActiveMutant.ID)
	r.owner.mu.Unlock()

	if r.owner.run == nil {
		return m.MutantRunResult{Status: m.RunSurvived, NrOfTests: 1}, nil
	}

	return r.owner.run(ctx, options)
}

// fakeCheckers hands out checkers sharing one behavior.
type fakeCheckers struct {
	log   *eventLog
	group func(kind string, mutants []m.Mutant) ([][]m.Mutant, error)
	check func(kind string, group []m.Mutant) (map[string]m.CheckResult, error)

	mu      sync.Mutex
	selects []string
	checked map[string][]string
	groups  int
}

func (f *fakeCheckers) newChecker() adapter.Checker {
	return &fakeChecker{owner: f}
}

func (f *fakeCheckers) checkedWith(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.checked[kind]...)
}

type fakeChecker struct {
	owner *fakeCheckers
}

func (c *fakeChecker) Init(context.Context) error { return nil }

func (c *fakeChecker) Dispose(context.Context) error {
	if c.owner.log != nil {
		c.owner.log.add("checker-dispose")
	}

	return nil
}

func (c *fakeChecker) Select(_ context.Context, kind string) error {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()

	c.owner.selects = append(c.owner.selects, kind)

	return nil
}

func (c *fakeChecker) Group(_ context.Context, kind string, mutants []m.Mutant) ([][]m.Mutant, error) {
	c.owner.mu.Lock()
	c.owner.groups++
	c.owner.mu.Unlock()

	if c.owner.group == nil {
		return nil, nil
	}

	return c.owner.group(kind, mutants)
}

func (c *fakeChecker) Check(_ context.Context, kind string, group []m.Mutant) (map[string]m.CheckResult, error) {
	c.owner.mu.Lock()
	if c.owner.checked == nil {
		c.owner.checked = make(map[string][]string)
	}

	for _, mutant := range group {
		c.owner.checked[kind] = append(c.owner.checked[kind], mutant.ID)
	}
	c.owner.mu.Unlock()

	if c.owner.check != nil {
		return c.owner.check(kind, group)
	}

	results := make(map[string]m.CheckResult, len(group))
	for _, mutant := range group {
		results[mutant.ID] = m.CheckResult{Status: m.CheckPassed}
	}

	return results, nil
}

// countingTokens counts FreeCheckers calls on a real TokenProvider.
type countingTokens struct {
	*concurrency.TokenProvider
	log   *eventLog
	freed atomic.Int32
}

func (c *countingTokens) FreeCheckers() {
	c.freed.Add(1)

	if c.log != nil {
		c.log.add("free-checkers")
	}

	c.TokenProvider.FreeCheckers()
}

// newPools wires fakes into real pools fed by a real TokenProvider.
func newPools(concurrencyLevel int, checkers []string, runners *fakeRunners, checkerFakes *fakeCheckers) (*pool.Pool[adapter.TestRunner], *pool.Pool[adapter.Checker], *countingTokens) {
	tokens := &countingTokens{TokenProvider: concurrency.NewTokenProvider(concurrencyLevel, len(checkers)), log: runners.log}

	runnerPool := pool.New(runners.newRunner, tokens.TestRunnerTokens())

	var checkerPool *pool.Pool[adapter.Checker]
	if checkerFakes != nil {
		checkerPool = pool.New(checkerFakes.newChecker, tokens.CheckerTokens())
	}

	return runnerPool, checkerPool, tokens
}

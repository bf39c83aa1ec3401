// Package concurrency decides how many worker slots exist and how they are
// split between checkers and test runners.
package concurrency

import (
	"log/slog"
	"runtime"
	"sync"
)

// TokenProvider hands out worker slots ("tokens") to the checker and test
// runner pools. Each value sent on a token channel permits one more resource.
type TokenProvider struct {
	checkerTokens    chan int
	testRunnerTokens chan int

	mu                 sync.Mutex
	checkerCapacity    int
	testRunnerCapacity int
	freed              bool
	disposed           bool
}

// DefaultConcurrency derives the total slot count from the number of CPUs,
// keeping one core free on larger machines.
func DefaultConcurrency() int {
	cpus := runtime.NumCPU()
	if cpus <= 4 {
		return cpus
	}

	return cpus - 1
}

// NewTokenProvider splits concurrency between the two pools. When checkers is
// zero every slot goes to the test runners and no checker token is issued.
// A concurrency of zero or less selects DefaultConcurrency.
func NewTokenProvider(concurrency int, checkers int) *TokenProvider {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}

	checkerCapacity := 0
	testRunnerCapacity := concurrency

	if checkers > 0 {
		checkerCapacity = max((concurrency+1)/2, 1)
		testRunnerCapacity = max(concurrency-checkerCapacity, 1)
	}

	provider := &TokenProvider{
		checkerTokens:      make(chan int, checkerCapacity),
		testRunnerTokens:   make(chan int, testRunnerCapacity+checkerCapacity),
		checkerCapacity:    checkerCapacity,
		testRunnerCapacity: testRunnerCapacity,
	}

	for i := range checkerCapacity {
		provider.checkerTokens <- i
	}

	close(provider.checkerTokens)

	for i := range testRunnerCapacity {
		provider.testRunnerTokens <- i
	}

	if checkerCapacity == 0 {
		provider.freed = true
		close(provider.testRunnerTokens)
	}

	slog.Debug("Allocated worker slots", "concurrency", concurrency, "checkers", checkerCapacity, "testRunners", testRunnerCapacity)

	return provider
}

// CheckerTokens is the token stream for the checker pool.
func (p *TokenProvider) CheckerTokens() <-chan int {
	return p.checkerTokens
}

// TestRunnerTokens is the token stream for the test runner pool. It stays
// open until FreeCheckers or Dispose is called.
func (p *TokenProvider) TestRunnerTokens() <-chan int {
	return p.testRunnerTokens
}

// FreeCheckers moves every checker slot to the test runners. It must only be
// called once checking is over; later calls are no-ops.
func (p *TokenProvider) FreeCheckers() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freed || p.disposed {
		return
	}

	p.freed = true

	for i := range p.checkerCapacity {
		p.testRunnerTokens <- p.testRunnerCapacity + i
	}

	slog.Debug("Released checker slots to test runners", "released", p.checkerCapacity, "testRunners", p.testRunnerCapacity+p.checkerCapacity)

	p.testRunnerCapacity += p.checkerCapacity
	p.checkerCapacity = 0

	close(p.testRunnerTokens)
}

// CheckerCapacity returns the number of slots currently allocated to checkers.
func (p *TokenProvider) CheckerCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.checkerCapacity
}

// TestRunnerCapacity returns the number of slots currently allocated to test runners.
func (p *TokenProvider) TestRunnerCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.testRunnerCapacity
}

// Dispose closes the test runner stream if it is still open.
func (p *TokenProvider) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freed || p.disposed {
		p.disposed = true
		return
	}

	p.disposed = true
	close(p.testRunnerTokens)
}

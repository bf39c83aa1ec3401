// Package pool provides an elastic, lazily growing pool of worker resources.
//
// A pool is fed by a token channel: every value received permits one more
// resource to exist. Resources are created in the background (at most
// MaxConcurrentInit at a time), handed out to one task at a time by Schedule
// and recycled once the task completes.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MaxConcurrentInit caps how many resources may be initializing at once.
const MaxConcurrentInit = 2

var (
	// ErrPoolDisposed is returned by operations on a disposed pool.
	ErrPoolDisposed = errors.New("pool disposed")
	// ErrNoResources is returned when the token source is exhausted before any
	// resource could be created.
	ErrNoResources = errors.New("no resources available")
)

// Resource is a worker handle owned by a Pool. Both methods must be safe to
// call even if they have nothing to do.
type Resource interface {
	Init(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// Pool owns the creation, recycling and disposal of resources of type R.
type Pool[R Resource] struct {
	factory func() R
	tokens  <-chan int
	initSem *semaphore.Weighted

	mu         sync.Mutex
	resources  []R // initialized successfully, in creation order
	broken     []R // failed to initialize, still disposed
	idle       []R
	busy       int
	creating   int
	started    bool
	tokensDone bool
	closed     bool
	err        error
	changed    chan struct{}

	done        chan struct{}
	growers     sync.WaitGroup
	disposeOnce sync.Once
	disposeErr  error
}

// New creates a pool. Nothing is created until Init or Schedule is called.
func New[R Resource](factory func() R, tokens <-chan int) *Pool[R] {
	return &Pool[R]{
		factory: factory,
		tokens:  tokens,
		initSem: semaphore.NewWeighted(MaxConcurrentInit),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Init blocks until the first resource is ready. Growth continues in the
// background afterwards.
func (p *Pool[R]) Init(ctx context.Context) error {
	p.start(ctx)

	for {
		p.mu.Lock()

		switch {
		case p.closed:
			p.mu.Unlock()
			return ErrPoolDisposed
		case p.err != nil:
			err := p.err
			p.mu.Unlock()

			return err
		case len(p.resources) > 0:
			p.mu.Unlock()
			return nil
		case p.exhaustedLocked():
			p.mu.Unlock()
			return ErrNoResources
		}

		wait := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Size returns the number of resources initialized so far.
func (p *Pool[R]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.resources)
}

// RunOnAll applies action to every initialized resource concurrently. It is
// meant to be called between scheduling rounds, while no task holds a resource.
func (p *Pool[R]) RunOnAll(ctx context.Context, action func(ctx context.Context, resource R) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolDisposed
	}

	resources := append([]R(nil), p.resources...)
	p.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, resource := range resources {
		group.Go(func() error {
			return action(groupCtx, resource)
		})
	}

	return group.Wait()
}

// Dispose stops resource creation, waits for running tasks and in-flight
// initializations, then disposes every resource ever created. Calling it more
// than once returns the first result.
func (p *Pool[R]) Dispose(ctx context.Context) error {
	p.disposeOnce.Do(func() {
		p.disposeErr = p.dispose(ctx)
	})

	return p.disposeErr
}

func (p *Pool[R]) dispose(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.idle = nil
	close(p.done)
	p.broadcastLocked()
	p.mu.Unlock()

	p.waitForBusy(ctx)
	p.growers.Wait()

	p.mu.Lock()
	all := make([]R, 0, len(p.resources)+len(p.broken))
	all = append(all, p.resources...)
	all = append(all, p.broken...)
	p.mu.Unlock()

	slog.Debug("Disposing pool resources", "count", len(all))

	errs := make([]error, len(all))

	var group errgroup.Group
	for i, resource := range all {
		group.Go(func() error {
			if err := resource.Dispose(ctx); err != nil {
				slog.Error("Failed to dispose resource", "index", i, "error", err)
				errs[i] = err
			}

			return nil
		})
	}

	_ = group.Wait()

	return errors.Join(errs...)
}

func (p *Pool[R]) waitForBusy(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.busy == 0 {
			p.mu.Unlock()
			return
		}

		wait := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-wait:
		}
	}
}

// start launches the growth loop once. Initialization runs on a context that
// keeps the caller's values but is not cancelled with it: resources outlive
// the call that happened to trigger their creation.
func (p *Pool[R]) start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}

	p.started = true
	p.growers.Add(1)

	go p.grow(context.WithoutCancel(ctx))
}

func (p *Pool[R]) grow(ctx context.Context) {
	defer p.growers.Done()

	for {
		select {
		case <-p.done:
			p.markTokensDone()
			return
		case token, ok := <-p.tokens:
			if !ok {
				p.markTokensDone()
				return
			}

			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return
			}

			p.creating++
			p.growers.Add(1)
			p.mu.Unlock()

			go p.create(ctx, token)
		}
	}
}

func (p *Pool[R]) create(ctx context.Context, token int) {
	defer p.growers.Done()

	// Acquire with a background context never fails.
	_ = p.initSem.Acquire(context.Background(), 1)
	defer p.initSem.Release(1)

	p.mu.Lock()
	if p.closed {
		p.creating--
		p.broadcastLocked()
		p.mu.Unlock()

		return
	}
	p.mu.Unlock()

	resource := p.factory()
	err := resource.Init(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.creating--

	if err != nil {
		slog.Error("Failed to initialize resource", "token", token, "error", err)

		p.broken = append(p.broken, resource)
		if p.err == nil {
			p.err = fmt.Errorf("initialize resource %d: %w", token, err)
		}

		p.broadcastLocked()

		return
	}

	slog.Debug("Resource ready", "token", token)

	p.resources = append(p.resources, resource)
	if !p.closed {
		p.idle = append(p.idle, resource)
	}

	p.broadcastLocked()
}

func (p *Pool[R]) markTokensDone() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tokensDone = true
	p.broadcastLocked()
}

// exhaustedLocked reports whether no resource exists and none ever will.
func (p *Pool[R]) exhaustedLocked() bool {
	return p.tokensDone && p.creating == 0 && len(p.resources) == 0
}

// acquire takes an idle resource, waiting for one to be created or recycled.
func (p *Pool[R]) acquire(ctx context.Context) (R, error) {
	p.start(ctx)

	var zero R

	for {
		p.mu.Lock()

		switch {
		case p.closed:
			p.mu.Unlock()
			return zero, ErrPoolDisposed
		case p.err != nil:
			err := p.err
			p.mu.Unlock()

			return zero, err
		case len(p.idle) > 0:
			resource := p.idle[0]
			p.idle = p.idle[1:]
			p.busy++
			p.mu.Unlock()

			return resource, nil
		case p.exhaustedLocked():
			p.mu.Unlock()
			return zero, ErrNoResources
		}

		wait := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// release returns a resource to the idle set.
func (p *Pool[R]) release(resource R) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.busy--
	if !p.closed {
		p.idle = append(p.idle, resource)
	}

	p.broadcastLocked()
}

// broadcastLocked wakes every waiter. The caller holds p.mu.
func (p *Pool[R]) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

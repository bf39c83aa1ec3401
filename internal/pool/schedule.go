package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Schedule pairs every input with an idle resource and runs task on it. Outputs
// are emitted in completion order. An error returned by task is treated as an
// infrastructure failure and stops the whole schedule; per-item failures
// belong in O. The output channel is closed once every
// started task finished; the error channel then yields at most one error and
// is closed. Callers must drain the output channel.
func Schedule[R Resource, I, O any](ctx context.Context, p *Pool[R], inputs <-chan I, task func(ctx context.Context, resource R, input I) (O, error)) (<-chan O, <-chan error) {
	results := make(chan O)
	errorChannel := make(chan error, 1)

	go func() {
		defer close(errorChannel)

		group, groupCtx := errgroup.WithContext(ctx)

		feed(groupCtx, group, p, inputs, results, task)

		err := group.Wait()

		close(results)

		if err != nil {
			errorChannel <- err
		}
	}()

	return results, errorChannel
}

func feed[R Resource, I, O any](ctx context.Context, group *errgroup.Group, p *Pool[R], inputs <-chan I, results chan<- O, task func(context.Context, R, I) (O, error)) {
	for {
		var (
			input I
			ok    bool
		)

		select {
		case <-ctx.Done():
			return
		case input, ok = <-inputs:
			if !ok {
				return
			}
		}

		resource, err := p.acquire(ctx)
		if err != nil {
			group.Go(func() error { return err })
			return
		}

		group.Go(func() error {
			output, err := task(ctx, resource, input)
			p.release(resource)

			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case results <- output:
				return nil
			}
		})
	}
}

// FromSlice returns a closed, fully buffered channel holding items.
func FromSlice[T any](items []T) <-chan T {
	ch := make(chan T, len(items))
	for _, item := range items {
		ch <- item
	}

	close(ch)

	return ch
}

// Collect drains a Schedule result pair into a slice.
func Collect[O any](results <-chan O, errs <-chan error) ([]O, error) {
	collected := make([]O, 0)
	for result := range results {
		collected = append(collected, result)
	}

	if err := <-errs; err != nil {
		return collected, err
	}

	return collected, nil
}

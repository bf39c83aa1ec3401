package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gooze.dev/pkg/mutexec/internal/pool"
)

func TestSchedule_NeverSharesAResource(t *testing.T) {
	factory := &fakeFactory{}
	p := pool.New(factory.create, tokens(3))

	inputs := make([]int, 50)
	for i := range inputs {
		inputs[i] = i
	}

	var violations atomic.Int32

	results, errs := pool.Schedule(context.Background(), p, pool.FromSlice(inputs),
		func(_ context.Context, r *fakeResource, input int) (int, error) {
			if r.active.Add(1) != 1 {
				violations.Add(1)
			}

			time.Sleep(time.Millisecond)
			r.active.Add(-1)

			return input * 2, nil
		})

	outputs, err := pool.Collect(results, errs)
	require.NoError(t, err)

	expected := make([]int, len(inputs))
	for i, input := range inputs {
		expected[i] = input * 2
	}

	assert.ElementsMatch(t, expected, outputs)
	assert.Zero(t, violations.Load())
	assert.LessOrEqual(t, len(factory.all()), 3)
	require.NoError(t, p.Dispose(context.Background()))
}

func TestSchedule_RecyclesResources(t *testing.T) {
	factory := &fakeFactory{}
	p := pool.New(factory.create, tokens(1))

	results, errs := pool.Schedule(context.Background(), p, pool.FromSlice([]string{"a", "b", "c", "d", "e"}),
		func(_ context.Context, r *fakeResource, input string) (int, error) {
			return r.id, nil
		})

	ids, err := pool.Collect(results, errs)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0, 0, 0}, ids)
	require.Len(t, factory.all(), 1)
	assert.Equal(t, int32(1), factory.all()[0].inits.Load())

	// A later caller reuses the same resource instead of creating a new one.
	results, errs = pool.Schedule(context.Background(), p, pool.FromSlice([]string{"f"}),
		func(_ context.Context, r *fakeResource, _ string) (int, error) {
			return r.id, nil
		})

	ids, err = pool.Collect(results, errs)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids)
	assert.Len(t, factory.all(), 1)

	require.NoError(t, p.Dispose(context.Background()))
}

func TestSchedule_TaskErrorStopsSchedule(t *testing.T) {
	factory := &fakeFactory{}
	p := pool.New(factory.create, tokens(2))

	boom := errors.New("worker protocol violated")

	results, errs := pool.Schedule(context.Background(), p, pool.FromSlice([]int{1, 2, 3}),
		func(_ context.Context, _ *fakeResource, input int) (int, error) {
			if input == 2 {
				return 0, boom
			}

			return input, nil
		})

	_, err := pool.Collect(results, errs)

	assert.ErrorIs(t, err, boom)
	require.NoError(t, p.Dispose(context.Background()))
}

func TestSchedule_InitErrorRejects(t *testing.T) {
	initErr := errors.New("cannot spawn worker")
	factory := &fakeFactory{build: func(int) *fakeResource {
		return &fakeResource{initErr: initErr}
	}}
	p := pool.New(factory.create, tokens(1))

	results, errs := pool.Schedule(context.Background(), p, pool.FromSlice([]int{1}),
		func(_ context.Context, _ *fakeResource, input int) (int, error) {
			return input, nil
		})

	outputs, err := pool.Collect(results, errs)

	assert.ErrorIs(t, err, initErr)
	assert.Empty(t, outputs)
	require.NoError(t, p.Dispose(context.Background()))
}

func TestSchedule_GrowsWithLateTokens(t *testing.T) {
	factory := &fakeFactory{}
	ch := make(chan int, 2)
	ch <- 0

	p := pool.New(factory.create, ch)
	require.NoError(t, p.Init(context.Background()))
	assert.Equal(t, 1, p.Size())

	ch <- 1
	close(ch)

	require.Eventually(t, func() bool { return p.Size() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, p.Dispose(context.Background()))
}

func TestSchedule_EmptyInput(t *testing.T) {
	factory := &fakeFactory{}
	p := pool.New(factory.create, tokens(1))

	results, errs := pool.Schedule(context.Background(), p, pool.FromSlice([]int{}),
		func(_ context.Context, _ *fakeResource, input int) (int, error) {
			return input, nil
		})

	outputs, err := pool.Collect(results, errs)

	require.NoError(t, err)
	assert.Empty(t, outputs)
	assert.Empty(t, factory.all())
}

package domain

import (
	"context"
	"sync"

	m "gooze.dev/pkg/mutexec/internal/model"
)

// Reporter receives progress events of a mutation testing run. Hooks are
// called from the goroutine that resolved the event and must not block for long.
type Reporter interface {
	OnDryRunCompleted(ctx context.Context, result m.CompleteDryRunResult)
	OnAllMutantsMatchedWithTests(ctx context.Context, plans []m.MutantTestPlan)
	OnMutantTested(ctx context.Context, result m.MutantResult)
	OnAllMutantsTested(ctx context.Context, results []m.MutantResult)
	OnMutationTestReportReady(ctx context.Context, report m.Report)
}

// BroadcastReporter forwards every event to several reporters. Calls are
// serialized so reporters need no locking of their own.
type BroadcastReporter struct {
	mu        sync.Mutex
	reporters []Reporter
}

// NewBroadcastReporter fans out to reporters in the given order. nil entries
// are skipped.
func NewBroadcastReporter(reporters ...Reporter) *BroadcastReporter {
	b := &BroadcastReporter{}

	for _, reporter := range reporters {
		if reporter != nil {
			b.reporters = append(b.reporters, reporter)
		}
	}

	return b
}

func (b *BroadcastReporter) each(fn func(Reporter)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, reporter := range b.reporters {
		fn(reporter)
	}
}

// OnDryRunCompleted implements Reporter.
func (b *BroadcastReporter) OnDryRunCompleted(ctx context.Context, result m.CompleteDryRunResult) {
	b.each(func(r Reporter) { r.OnDryRunCompleted(ctx, result) })
}

// OnAllMutantsMatchedWithTests implements Reporter.
func (b *BroadcastReporter) OnAllMutantsMatchedWithTests(ctx context.Context, plans []m.MutantTestPlan) {
	b.each(func(r Reporter) { r.OnAllMutantsMatchedWithTests(ctx, plans) })
}

// OnMutantTested implements Reporter.
func (b *BroadcastReporter) OnMutantTested(ctx context.Context, result m.MutantResult) {
	b.each(func(r Reporter) { r.OnMutantTested(ctx, result) })
}

// OnAllMutantsTested implements Reporter.
func (b *BroadcastReporter) OnAllMutantsTested(ctx context.Context, results []m.MutantResult) {
	b.each(func(r Reporter) { r.OnAllMutantsTested(ctx, results) })
}

// OnMutationTestReportReady implements Reporter.
func (b *BroadcastReporter) OnMutationTestReportReady(ctx context.Context, report m.Report) {
	b.each(func(r Reporter) { r.OnMutationTestReportReady(ctx, report) })
}

// NopReporter ignores every event. Embed it to implement a subset of hooks.
type NopReporter struct{}

// OnDryRunCompleted implements Reporter.
func (NopReporter) OnDryRunCompleted(context.Context, m.CompleteDryRunResult) {}

// OnAllMutantsMatchedWithTests implements Reporter.
func (NopReporter) OnAllMutantsMatchedWithTests(context.Context, []m.MutantTestPlan) {}

// OnMutantTested implements Reporter.
func (NopReporter) OnMutantTested(context.Context, m.MutantResult) {}

// OnAllMutantsTested implements Reporter.
func (NopReporter) OnAllMutantsTested(context.Context, []m.MutantResult) {}

// OnMutationTestReportReady implements Reporter.
func (NopReporter) OnMutationTestReportReady(context.Context, m.Report) {}

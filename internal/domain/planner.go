package domain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/internal/tracing"
)

const (
	// hitLimitFactor multiplies the baseline hit count of a mutant to get the
	// ceiling enforced while it is active.
	hitLimitFactor = 100

	// staticTimeWarnRatio is the share of estimated net time spent on static
	// mutants above which the plan summary warns.
	staticTimeWarnRatio = 0.4

	ignoreStaticReason = "static mutant (ignoreStatic enabled)"
)

// PlannerOptions are the user options that shape mutant plans.
type PlannerOptions struct {
	// Timeout is added to every run timeout as a fixed floor.
	Timeout time.Duration
	// TimeoutFactor scales the net time of the tests a mutant runs.
	TimeoutFactor float64
	DisableBail   bool
	IgnoreStatic  bool
}

// SandboxFileResolver maps a project file to its location in the sandbox.
type SandboxFileResolver interface {
	SandboxFileFor(fileName m.Path) (m.Path, error)
}

// MutantTestPlanner decides, for every mutant, whether it needs a run and
// which tests that run executes. Planning only reads its inputs.
type MutantTestPlanner struct {
	dryRun   m.CompleteDryRunResult
	sandbox  SandboxFileResolver
	options  PlannerOptions
	reporter Reporter

	totalTime time.Duration
	testTimes map[string]time.Duration
	coveredBy map[string][]string
	hits      map[string]int
}

// NewMutantTestPlanner indexes the dry run coverage. reporter may be nil.
func NewMutantTestPlanner(dryRun m.CompleteDryRunResult, sandbox SandboxFileResolver, options PlannerOptions, reporter Reporter) *MutantTestPlanner {
	if reporter == nil {
		reporter = NopReporter{}
	}

	p := &MutantTestPlanner{
		dryRun:    dryRun,
		sandbox:   sandbox,
		options:   options,
		reporter:  reporter,
		totalTime: dryRun.TotalTime(),
		testTimes: make(map[string]time.Duration, len(dryRun.Tests)),
		coveredBy: make(map[string][]string),
		hits:      make(map[string]int),
	}

	p.index()

	return p
}

func (p *MutantTestPlanner) index() {
	for _, test := range p.dryRun.Tests {
		p.testTimes[test.ID] += test.TimeSpent
	}

	coverage := p.dryRun.Coverage
	if coverage == nil {
		return
	}

	for id, hits := range coverage.Static {
		p.hits[id] += hits
	}

	testIDs := make([]string, 0, len(coverage.PerTest))
	for testID := range coverage.PerTest {
		testIDs = append(testIDs, testID)
	}

	slices.Sort(testIDs)

	for _, testID := range testIDs {
		if _, known := p.testTimes[testID]; !known {
			slog.Debug("Ignoring coverage of a test missing from the dry run", "test", testID)
			continue
		}

		for mutantID, hits := range coverage.PerTest[testID] {
			if hits <= 0 {
				continue
			}

			p.coveredBy[mutantID] = append(p.coveredBy[mutantID], testID)
			p.hits[mutantID] += hits
		}
	}
}

// MakePlan returns one plan per mutant, in input order.
func (p *MutantTestPlanner) MakePlan(ctx context.Context, mutants []m.Mutant) (plans []m.MutantTestPlan, err error) {
	ctx, span := tracing.StartSpan(ctx, "plan")
	defer func() { tracing.EndSpan(span, err) }()

	span.WithInt("mutants", len(mutants))

	plans = make([]m.MutantTestPlan, 0, len(mutants))

	for _, mutant := range mutants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plan, err := p.planMutant(mutant)
		if err != nil {
			return nil, err
		}

		plans = append(plans, plan)
	}

	logPlanSummary(plans)
	p.reporter.OnAllMutantsMatchedWithTests(ctx, plans)

	return plans, nil
}

func (p *MutantTestPlanner) planMutant(mutant m.Mutant) (m.MutantTestPlan, error) {
	coverage := p.dryRun.Coverage
	coveredBy := p.coveredBy[mutant.ID]
	isStatic := coverage != nil && coverage.Static[mutant.ID] > 0

	if mutant.Status.IsTerminal() {
		return earlyResult(mutant, coveredBy, isStatic), nil
	}

	if coverage == nil {
		return p.runPlan(mutant, coveredBy, nil, false, p.totalTime, false)
	}

	hybrid := isStatic && len(coveredBy) > 0

	switch {
	case !isStatic || (hybrid && p.options.IgnoreStatic):
		filter := make([]string, len(coveredBy))
		copy(filter, coveredBy)

		return p.runPlan(mutant, coveredBy, filter, isStatic, p.netTime(coveredBy), false)
	case p.options.IgnoreStatic:
		mutant.Status = m.Ignored
		mutant.StatusReason = ignoreStaticReason

		return earlyResult(mutant, coveredBy, isStatic), nil
	default:
		return p.runPlan(mutant, coveredBy, nil, isStatic, p.totalTime, true)
	}
}

func earlyResult(mutant m.Mutant, coveredBy []string, isStatic bool) m.MutantTestPlan {
	return m.MutantTestPlan{
		Plan:      m.PlanEarlyResult,
		Mutant:    mutant,
		CoveredBy: coveredBy,
		Static:    isStatic,
	}
}

func (p *MutantTestPlanner) runPlan(mutant m.Mutant, coveredBy, filter []string, isStatic bool, netTime time.Duration, reload bool) (m.MutantTestPlan, error) {
	sandboxFile, err := p.sandbox.SandboxFileFor(mutant.FileName)
	if err != nil {
		slog.Error("Failed to resolve sandbox file", "mutant", mutant.ID, "file", mutant.FileName, "error", err)
		return m.MutantTestPlan{}, fmt.Errorf("failed to resolve sandbox file of mutant %s: %w", mutant.ID, err)
	}

	return m.MutantTestPlan{
		Plan:      m.PlanRun,
		Mutant:    mutant,
		CoveredBy: coveredBy,
		Static:    isStatic,
		NetTime:   netTime,
		RunOptions: m.MutantRunOptions{
			ActiveMutant:      mutant,
			TestFilter:        filter,
			Timeout:           p.timeout(netTime),
			HitLimit:          p.hits[mutant.ID] * hitLimitFactor,
			DisableBail:       p.options.DisableBail,
			ReloadEnvironment: reload,
			SandboxFileName:   sandboxFile,
		},
	}, nil
}

func (p *MutantTestPlanner) netTime(testIDs []string) time.Duration {
	var net time.Duration
	for _, id := range testIDs {
		net += p.testTimes[id]
	}

	return net
}

func (p *MutantTestPlanner) timeout(netTime time.Duration) time.Duration {
	scaled := time.Duration(p.options.TimeoutFactor * float64(netTime))

	return scaled + p.options.Timeout + p.dryRun.TimeOverhead
}

func logPlanSummary(plans []m.MutantTestPlan) {
	var (
		early, run, noCoverage, static int
		netTime, staticTime            time.Duration
	)

	for _, plan := range plans {
		if plan.Plan == m.PlanEarlyResult {
			early++
			continue
		}

		run++
		netTime += plan.NetTime

		switch {
		case plan.Static && plan.RunOptions.RunsAllTests():
			static++
			staticTime += plan.NetTime
		case len(plan.RunOptions.TestFilter) == 0 && !plan.RunOptions.RunsAllTests():
			noCoverage++
		}
	}

	if netTime > 0 && float64(staticTime)/float64(netTime) > staticTimeWarnRatio {
		slog.Warn("Static mutants dominate the estimated run time",
			"static", static, "staticTime", staticTime, "estimatedNetTime", netTime,
			"hint", "enable ignoreStatic to skip mutants executed outside of tests")
	}

	slog.Info("Planned mutants",
		"total", len(plans), "run", run, "early", early, "noCoverage", noCoverage,
		"static", static, "estimatedNetTime", netTime)
}

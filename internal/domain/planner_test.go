package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	m "gooze.dev/pkg/mutexec/internal/model"
)

func makePlan(t *testing.T, dryRun m.CompleteDryRunResult, options PlannerOptions, mutants ...m.Mutant) []m.MutantTestPlan {
	t.Helper()

	planner := NewMutantTestPlanner(dryRun, &fakeSandbox{}, options, nil)

	plans, err := planner.MakePlan(context.Background(), mutants)
	require.NoError(t, err)
	require.Len(t, plans, len(mutants))

	return plans
}

func TestMutantTestPlanner_Timeout(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{{ID: "calc.TestMax", TimeSpent: 10 * time.Millisecond}},
		Coverage: &m.CoverageData{
			Static:  m.MutantCoverage{},
			PerTest: map[string]m.MutantCoverage{"calc.TestMax": {"1": 1}},
		},
		TimeOverhead: 42 * time.Millisecond,
	}

	plans := makePlan(t, dryRun, PlannerOptions{Timeout: 27 * time.Millisecond, TimeoutFactor: 1.5}, mutant("1"))

	plan := plans[0]
	assert.Equal(t, m.PlanRun, plan.Plan)
	assert.Equal(t, 10*time.Millisecond, plan.NetTime)
	assert.Equal(t, 84*time.Millisecond, plan.RunOptions.Timeout)
	assert.Equal(t, []string{"calc.TestMax"}, plan.RunOptions.TestFilter)
	assert.Equal(t, m.Path("sandbox/calc.go"), plan.RunOptions.SandboxFileName)
	assert.Equal(t, 100, plan.RunOptions.HitLimit)
}

func TestMutantTestPlanner_HitLimit(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{
			{ID: "calc.TestA"}, {ID: "calc.TestB"}, {ID: "calc.TestC"}, {ID: "calc.TestD"},
		},
		Coverage: &m.CoverageData{
			Static: m.MutantCoverage{"1": 1},
			PerTest: map[string]m.MutantCoverage{
				"calc.TestA": {"1": 2},
				"calc.TestB": {"1": 100},
				"calc.TestC": {"1": 100},
				"calc.TestD": {"1": 3},
			},
		},
	}

	plans := makePlan(t, dryRun, PlannerOptions{}, mutant("1"), mutant("2"))

	assert.Equal(t, 20600, plans[0].RunOptions.HitLimit)
	assert.Equal(t, 0, plans[1].RunOptions.HitLimit, "no baseline hits means no limit")
}

func TestMutantTestPlanner_CoverageDisabled(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{
			{ID: "calc.TestMax", TimeSpent: 15 * time.Millisecond},
			{ID: "calc.TestMin", TimeSpent: 25 * time.Millisecond},
		},
	}

	plans := makePlan(t, dryRun, PlannerOptions{IgnoreStatic: true}, mutant("1"), mutant("2"), mutant("3"))

	for _, plan := range plans {
		assert.Equal(t, m.PlanRun, plan.Plan)
		assert.Nil(t, plan.RunOptions.TestFilter)
		assert.True(t, plan.RunOptions.RunsAllTests())
		assert.Equal(t, 40*time.Millisecond, plan.NetTime)
		assert.False(t, plan.Static)
		assert.False(t, plan.RunOptions.ReloadEnvironment)
		assert.Equal(t, 0, plan.RunOptions.HitLimit)
	}
}

func TestMutantTestPlanner_StaticMutants(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{
			{ID: "calc.TestMax", TimeSpent: 10 * time.Millisecond},
			{ID: "calc.TestMin", TimeSpent: 30 * time.Millisecond},
		},
		Coverage: &m.CoverageData{
			// "covered" runs in TestMax only, "static" only at package init,
			// "hybrid" in both, "uncovered" nowhere.
			Static: m.MutantCoverage{"static": 1, "hybrid": 2},
			PerTest: map[string]m.MutantCoverage{
				"calc.TestMax": {"covered": 1, "hybrid": 1},
			},
		},
	}

	tests := []struct {
		name         string
		mutant       string
		ignoreStatic bool
		wantPlan     m.PlanKind
		wantStatus   m.MutantStatus
		wantFilter   []string
		wantNetTime  time.Duration
		wantStatic   bool
		wantReload   bool
	}{
		{"covered", "covered", false, m.PlanRun, "", []string{"calc.TestMax"}, 10 * time.Millisecond, false, false},
		{"uncovered", "uncovered", false, m.PlanRun, "", []string{}, 0, false, false},
		{"static", "static", false, m.PlanRun, "", nil, 40 * time.Millisecond, true, true},
		{"static ignored", "static", true, m.PlanEarlyResult, m.Ignored, nil, 0, true, false},
		{"hybrid", "hybrid", false, m.PlanRun, "", nil, 40 * time.Millisecond, true, true},
		{"hybrid ignoreStatic", "hybrid", true, m.PlanRun, "", []string{"calc.TestMax"}, 10 * time.Millisecond, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := makePlan(t, dryRun, PlannerOptions{IgnoreStatic: tt.ignoreStatic}, mutant(tt.mutant))[0]

			assert.Equal(t, tt.wantPlan, plan.Plan)
			assert.Equal(t, tt.wantStatus, plan.Mutant.Status)
			assert.Equal(t, tt.wantStatic, plan.Static)

			if tt.wantPlan == m.PlanEarlyResult {
				assert.Equal(t, "static mutant (ignoreStatic enabled)", plan.Mutant.StatusReason)
				return
			}

			assert.Equal(t, tt.wantFilter, plan.RunOptions.TestFilter)
			assert.Equal(t, tt.wantNetTime, plan.NetTime)
			assert.Equal(t, tt.wantReload, plan.RunOptions.ReloadEnvironment)
		})
	}
}

func TestMutantTestPlanner_HybridKeepsCoveredBy(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{{ID: "calc.TestMax"}, {ID: "calc.TestMin"}},
		Coverage: &m.CoverageData{
			Static:  m.MutantCoverage{"1": 1},
			PerTest: map[string]m.MutantCoverage{"calc.TestMin": {"1": 1}, "calc.TestMax": {"1": 1}},
		},
	}

	plan := makePlan(t, dryRun, PlannerOptions{}, mutant("1"))[0]

	assert.Nil(t, plan.RunOptions.TestFilter)
	assert.Equal(t, []string{"calc.TestMax", "calc.TestMin"}, plan.CoveredBy, "covering tests are sorted")
}

func TestMutantTestPlanner_PreassignedStatus(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{{ID: "calc.TestMax"}},
		Coverage: &m.CoverageData{
			Static:  m.MutantCoverage{"1": 1},
			PerTest: map[string]m.MutantCoverage{"calc.TestMax": {"1": 4}},
		},
	}

	sandbox := &fakeSandbox{err: errors.New("must not be resolved")}
	planner := NewMutantTestPlanner(dryRun, sandbox, PlannerOptions{}, nil)

	plans, err := planner.MakePlan(context.Background(), []m.Mutant{withStatus(mutant("1"), m.Ignored, "disabled by comment")})
	require.NoError(t, err)

	plan := plans[0]
	assert.Equal(t, m.PlanEarlyResult, plan.Plan)
	assert.Equal(t, m.Ignored, plan.Mutant.Status)
	assert.Equal(t, "disabled by comment", plan.Mutant.StatusReason)
	assert.True(t, plan.Static)
	assert.Equal(t, []string{"calc.TestMax"}, plan.CoveredBy)
	assert.Zero(t, sandbox.calls)
}

func TestMutantTestPlanner_DanglingTestID(t *testing.T) {
	dryRun := m.CompleteDryRunResult{
		Tests: []m.TestResult{{ID: "calc.TestMax", TimeSpent: 5 * time.Millisecond}},
		Coverage: &m.CoverageData{
			PerTest: map[string]m.MutantCoverage{
				"calc.TestGone": {"1": 7, "2": 1},
				"calc.TestMax":  {"1": 1},
			},
		},
	}

	plans := makePlan(t, dryRun, PlannerOptions{}, mutant("1"), mutant("2"))

	assert.Equal(t, []string{"calc.TestMax"}, plans[0].RunOptions.TestFilter)
	assert.Equal(t, 5*time.Millisecond, plans[0].NetTime)
	assert.Equal(t, 100, plans[0].RunOptions.HitLimit)

	assert.Equal(t, []string{}, plans[1].RunOptions.TestFilter, "coverage from an unknown test is ignored")
	assert.Equal(t, 0, plans[1].RunOptions.HitLimit)
}

func TestMutantTestPlanner_RunOptions(t *testing.T) {
	dryRun := m.CompleteDryRunResult{Tests: []m.TestResult{{ID: "calc.TestMax"}}}

	plan := makePlan(t, dryRun, PlannerOptions{DisableBail: true}, mutant("1"))[0]

	assert.True(t, plan.RunOptions.DisableBail)
	assert.Equal(t, mutant("1"), plan.RunOptions.ActiveMutant)
	assert.Equal(t, mutant("1"), plan.Mutant)
}

func TestMutantTestPlanner_ResolverError(t *testing.T) {
	planner := NewMutantTestPlanner(m.CompleteDryRunResult{}, &fakeSandbox{err: errors.New("outside of project")}, PlannerOptions{}, nil)

	_, err := planner.MakePlan(context.Background(), []m.Mutant{mutant("1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of project")
}

func TestMutantTestPlanner_ReportsPlans(t *testing.T) {
	reporter := &recordingReporter{}
	planner := NewMutantTestPlanner(m.CompleteDryRunResult{}, &fakeSandbox{}, PlannerOptions{}, reporter)

	plans, err := planner.MakePlan(context.Background(), []m.Mutant{mutant("1"), withStatus(mutant("2"), m.Ignored, "")})
	require.NoError(t, err)

	require.Len(t, reporter.plans, 1)
	assert.Equal(t, plans, reporter.plans[0])
}

func TestMutantTestPlanner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	planner := NewMutantTestPlanner(m.CompleteDryRunResult{}, &fakeSandbox{}, PlannerOptions{}, nil)

	_, err := planner.MakePlan(ctx, []m.Mutant{mutant("1")})
	require.ErrorIs(t, err, context.Canceled)
}

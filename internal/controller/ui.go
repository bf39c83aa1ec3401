// Package controller provides output adapters for displaying mutation testing progress and results.
package controller

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	m "gooze.dev/pkg/mutexec/internal/model"
	"golang.org/x/term"
)

// UI displays a mutation testing run. The On* hooks receive the run's
// progress events; calls are serialized by the caller.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish

	OnDryRunCompleted(ctx context.Context, result m.CompleteDryRunResult)
	OnAllMutantsMatchedWithTests(ctx context.Context, plans []m.MutantTestPlan)
	OnMutantTested(ctx context.Context, result m.MutantResult)
	OnAllMutantsTested(ctx context.Context, results []m.MutantResult)
	OnMutationTestReportReady(ctx context.Context, report m.Report)

	// DisplayReport shows a stored report. diffs maps mutant ids to a
	// unified diff of the mutation and may be nil.
	DisplayReport(ctx context.Context, report m.Report, diffs map[string]string) error
}

// NewUI returns a TUI when useTTY is set and a SimpleUI otherwise.
func NewUI(cmd *cobra.Command, useTTY bool) UI {
	if useTTY {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(file.Fd()))
}

// fileStat tallies the statuses of the mutants of one file.
type fileStat struct {
	path   string
	counts map[m.MutantStatus]int
	total  int
}

func buildFileStats(results []m.MutantResult) []fileStat {
	byPath := make(map[string]*fileStat)

	for _, result := range results {
		path := string(result.Mutant.FileName)

		stat, ok := byPath[path]
		if !ok {
			stat = &fileStat{path: path, counts: make(map[m.MutantStatus]int)}
			byPath[path] = stat
		}

		stat.counts[result.Status]++
		stat.total++
	}

	stats := make([]fileStat, 0, len(byPath))
	for _, stat := range byPath {
		stats = append(stats, *stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].path < stats[j].path
	})

	return stats
}

// sortedResults orders results by file, then position, then id.
func sortedResults(results []m.MutantResult) []m.MutantResult {
	sorted := append([]m.MutantResult(nil), results...)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Mutant, sorted[j].Mutant
		if a.FileName != b.FileName {
			return a.FileName < b.FileName
		}

		if a.Location.Start != b.Location.Start {
			return a.Location.Start.Before(b.Location.Start)
		}

		return a.ID < b.ID
	})

	return sorted
}

// countRunPlans splits plans into the ones workers execute and early results.
func countRunPlans(plans []m.MutantTestPlan) (int, int) {
	run := 0

	for _, plan := range plans {
		if plan.Plan == m.PlanRun {
			run++
		}
	}

	return run, len(plans) - run
}

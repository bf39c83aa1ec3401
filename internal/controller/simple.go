package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	m "gooze.dev/pkg/mutexec/internal/model"
)

// SimpleUI implements UI using plain lines on the command's output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
	// SimpleUI doesn't block - it just prints and continues
}

// OnDryRunCompleted prints the baseline timing.
func (s *SimpleUI) OnDryRunCompleted(ctx context.Context, result m.CompleteDryRunResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	coverage := "off"
	if result.Coverage != nil {
		coverage = "on"
	}

	s.printf("Dry run: %d test(s) in %s, overhead %s, coverage %s\n",
		len(result.Tests), result.TotalTime(), result.TimeOverhead, coverage)
}

// OnAllMutantsMatchedWithTests prints how many mutants will be executed.
func (s *SimpleUI) OnAllMutantsMatchedWithTests(ctx context.Context, plans []m.MutantTestPlan) {
	if err := ctx.Err(); err != nil {
		return
	}

	run, early := countRunPlans(plans)
	s.printf("Planned %d mutant(s): %d to run, %d already decided\n", len(plans), run, early)
}

// OnMutantTested prints one line per mutant.
func (s *SimpleUI) OnMutantTested(ctx context.Context, result m.MutantResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	line := fmt.Sprintf("Mutant %s (%s) %s:%s -> %s",
		result.Mutant.ID, result.Mutant.MutatorName, result.Mutant.FileName,
		result.Mutant.Location.Start, result.Status)

	if result.StatusReason != "" && result.Status != m.Killed {
		line += " (" + firstLine(result.StatusReason) + ")"
	}

	s.printf("%s\n", line)
}

// OnAllMutantsTested prints the number of tested mutants.
func (s *SimpleUI) OnAllMutantsTested(ctx context.Context, results []m.MutantResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Tested %d mutant(s)\n", len(results))
}

// OnMutationTestReportReady prints the summary table and the score.
func (s *SimpleUI) OnMutationTestReportReady(ctx context.Context, report m.Report) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("\n%s", renderSummaryTable(report.Results))
	s.printf("Mutation score: %.2f%%\n", report.Score*100)
}

// DisplayReport prints a stored report, surviving mutants with their diff.
func (s *SimpleUI) DisplayReport(ctx context.Context, report m.Report, diffs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("Report %s (%s)\n", report.ID, report.CreatedAt.Format("2006-01-02 15:04:05"))

	for _, result := range sortedResults(report.Results) {
		if result.Status != m.Survived && result.Status != m.NoCoverage {
			continue
		}

		s.printf("%s mutant %s (%s) %s:%s\n", result.Status, result.Mutant.ID,
			result.Mutant.MutatorName, result.Mutant.FileName, result.Mutant.Location.Start)

		if diff := diffs[result.Mutant.ID]; diff != "" {
			s.printf("%s\n", diff)
		}
	}

	s.printf("\n%s", renderSummaryTable(report.Results))
	s.printf("Mutation score: %.2f%%\n", report.Score*100)

	return nil
}

func renderSummaryTable(results []m.MutantResult) string {
	var tableBuffer bytes.Buffer

	header := make([]string, 0, len(m.AllStatuses)+2)
	header = append(header, "Path")

	alignment := []int{tablewriter.ALIGN_LEFT}

	for _, status := range m.AllStatuses {
		header = append(header, string(status))
		alignment = append(alignment, tablewriter.ALIGN_CENTER)
	}

	header = append(header, "Total")
	alignment = append(alignment, tablewriter.ALIGN_CENTER)

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment(alignment)

	totals := make(map[m.MutantStatus]int, len(m.AllStatuses))

	stats := buildFileStats(results)
	for _, stat := range stats {
		row := []string{stat.path}

		for _, status := range m.AllStatuses {
			row = append(row, fmt.Sprintf("%d", stat.counts[status]))
			totals[status] += stat.counts[status]
		}

		row = append(row, fmt.Sprintf("%d", stat.total))
		table.Append(row)
	}

	footer := []string{fmt.Sprintf("Total Files %d", len(stats))}
	for _, status := range m.AllStatuses {
		footer = append(footer, fmt.Sprintf("%d", totals[status]))
	}

	footer = append(footer, fmt.Sprintf("%d", len(results)))
	table.SetFooter(footer)

	table.Render()

	return tableBuffer.String()
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return line
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

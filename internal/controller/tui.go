package controller

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	m "gooze.dev/pkg/mutexec/internal/model"
)

const recentResultsShown = 6

// TUI implements UI using Bubble Tea. Progress events are forwarded to the
// running program with Send.
type TUI struct {
	output  io.Writer
	options []tea.ProgramOption

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI writing to output. options are passed to the
// Bubble Tea program.
func NewTUI(output io.Writer, options ...tea.ProgramOption) *TUI {
	return &TUI{output: output, options: options}
}

// Start launches the progress display.
func (t *TUI) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.program != nil {
		return nil
	}

	options := append([]tea.ProgramOption{tea.WithOutput(t.output), tea.WithContext(ctx)}, t.options...)
	t.program = tea.NewProgram(newRunModel(), options...)
	t.done = make(chan struct{})

	go func(program *tea.Program, done chan struct{}) {
		defer close(done)

		if _, err := program.Run(); err != nil && ctx.Err() == nil {
			_, _ = fmt.Fprintf(t.output, "progress display failed: %v\n", err)
		}
	}(t.program, t.done)

	return nil
}

// Close stops the display and waits for it to restore the terminal.
func (t *TUI) Close(ctx context.Context) {
	program, done := t.running()
	if program == nil {
		return
	}

	program.Quit()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Wait blocks until the display finished, which happens once the report is
// shown or the user quits.
func (t *TUI) Wait(ctx context.Context) {
	_, done := t.running()
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *TUI) running() (*tea.Program, chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.program, t.done
}

func (t *TUI) send(ctx context.Context, msg tea.Msg) {
	if err := ctx.Err(); err != nil {
		return
	}

	if program, _ := t.running(); program != nil {
		program.Send(msg)
	}
}

// OnDryRunCompleted implements UI.
func (t *TUI) OnDryRunCompleted(ctx context.Context, result m.CompleteDryRunResult) {
	t.send(ctx, dryRunMsg{tests: len(result.Tests), testTime: result.TotalTime(), overhead: result.TimeOverhead})
}

// OnAllMutantsMatchedWithTests implements UI.
func (t *TUI) OnAllMutantsMatchedWithTests(ctx context.Context, plans []m.MutantTestPlan) {
	run, early := countRunPlans(plans)
	t.send(ctx, plansMsg{total: len(plans), run: run, early: early})
}

// OnMutantTested implements UI.
func (t *TUI) OnMutantTested(ctx context.Context, result m.MutantResult) {
	t.send(ctx, mutantMsg{result: result})
}

// OnAllMutantsTested implements UI.
func (t *TUI) OnAllMutantsTested(context.Context, []m.MutantResult) {}

// OnMutationTestReportReady implements UI.
func (t *TUI) OnMutationTestReportReady(ctx context.Context, report m.Report) {
	t.send(ctx, reportMsg{report: report})
}

// DisplayReport renders a stored report without starting a program.
func (t *TUI) DisplayReport(ctx context.Context, report m.Report, diffs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Mutation report " + report.ID))
	b.WriteString("\n")

	for _, result := range sortedResults(report.Results) {
		b.WriteString("  " + renderResultLine(result) + "\n")

		if diff := diffs[result.Mutant.ID]; diff != "" && !result.Status.IsDetected() {
			b.WriteString(diffStyle.Render(diff))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(renderSummary(report.Counts(), report.Score))
	b.WriteString("\n")

	_, err := fmt.Fprint(t.output, b.String())

	return err
}

// Message types.
type tickMsg time.Time

type dryRunMsg struct {
	tests    int
	testTime time.Duration
	overhead time.Duration
}

type plansMsg struct {
	total int
	run   int
	early int
}

type mutantMsg struct {
	result m.MutantResult
}

type reportMsg struct {
	report m.Report
}

var (
	accentColor = lipgloss.Color("6") // Cyan

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Padding(1, 0, 0, 2)

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Padding(0, 0, 1, 2)

	accentStyle = lipgloss.NewStyle().Foreground(accentColor)
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	diffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(4)
)

var statusColors = map[m.MutantStatus]lipgloss.Color{
	m.Killed:       lipgloss.Color("2"), // Green
	m.Timeout:      lipgloss.Color("2"),
	m.Survived:     lipgloss.Color("1"), // Red
	m.NoCoverage:   lipgloss.Color("3"), // Yellow
	m.CompileError: lipgloss.Color("8"), // Gray
	m.RuntimeError: lipgloss.Color("5"),
	m.Ignored:      lipgloss.Color("8"),
}

func statusStyle(status m.MutantStatus) lipgloss.Style {
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("8")
	}

	return lipgloss.NewStyle().Foreground(color).Bold(true).Width(13)
}

func renderResultLine(result m.MutantResult) string {
	return fmt.Sprintf("%s %s %s",
		statusStyle(result.Status).Render(string(result.Status)),
		accentStyle.Render(fmt.Sprintf("%-6s", result.Mutant.ID)),
		faintStyle.Render(fmt.Sprintf("%s:%s %s", result.Mutant.FileName, result.Mutant.Location.Start, result.Mutant.MutatorName)),
	)
}

func renderSummary(counts map[m.MutantStatus]int, score float64) string {
	parts := make([]string, 0, len(m.AllStatuses))

	for _, status := range m.AllStatuses {
		if counts[status] == 0 {
			continue
		}

		parts = append(parts, statusStyle(status).UnsetWidth().Render(fmt.Sprintf("%s %d", status, counts[status])))
	}

	return summaryStyle.Render(fmt.Sprintf("%s\nMutation score: %s",
		strings.Join(parts, "  "), accentStyle.Render(fmt.Sprintf("%.2f%%", score*100))))
}

// runModel shows the progress of a mutation testing run.
type runModel struct {
	progressBar progress.Model
	width       int

	tests    int
	testTime time.Duration
	overhead time.Duration
	dryRun   bool

	total     int
	toRun     int
	completed int
	counts    map[m.MutantStatus]int
	recent    []m.MutantResult

	report   *m.Report
	quitting bool
}

func newRunModel() runModel {
	return runModel{
		progressBar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		counts: make(map[m.MutantStatus]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (rm runModel) Init() tea.Cmd {
	return tick()
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.width = msg.Width
		rm.progressBar.Width = max(10, min(msg.Width-20, 60))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			rm.quitting = true
			return rm, tea.Quit
		}

	case tickMsg:
		if rm.report != nil {
			return rm, nil
		}

		return rm, tick()

	case dryRunMsg:
		rm.dryRun = true
		rm.tests = msg.tests
		rm.testTime = msg.testTime
		rm.overhead = msg.overhead

	case plansMsg:
		rm.total = msg.total
		rm.toRun = msg.run

	case mutantMsg:
		rm.completed++
		rm.counts[msg.result.Status]++

		rm.recent = append(rm.recent, msg.result)
		if len(rm.recent) > recentResultsShown {
			rm.recent = rm.recent[len(rm.recent)-recentResultsShown:]
		}

	case reportMsg:
		report := msg.report
		rm.report = &report

		return rm, tea.Quit
	}

	return rm, nil
}

func (rm runModel) percent() float64 {
	if rm.total == 0 {
		return 0
	}

	return float64(rm.completed) / float64(rm.total)
}

func (rm runModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Mutation testing"))
	b.WriteString("\n")

	if !rm.dryRun {
		b.WriteString(summaryStyle.Render("Running the test suite without mutants…"))
		b.WriteString("\n")

		return b.String()
	}

	b.WriteString(summaryStyle.Render(fmt.Sprintf("%d test(s) in %s, overhead %s · %d mutant(s), %d to run",
		rm.tests, rm.testTime.Round(time.Millisecond), rm.overhead.Round(time.Millisecond), rm.total, rm.toRun)))
	b.WriteString("\n")

	b.WriteString("  " + rm.progressBar.ViewAs(rm.percent()))
	b.WriteString(accentStyle.Render(fmt.Sprintf("  %d/%d", rm.completed, rm.total)))
	b.WriteString("\n\n")

	for _, result := range rm.recent {
		b.WriteString("  " + renderResultLine(result) + "\n")
	}

	if rm.report != nil {
		b.WriteString("\n")
		b.WriteString(renderSummary(rm.counts, rm.report.Score))
		b.WriteString("\n")
	} else if !rm.quitting {
		b.WriteString(faintStyle.Render("\n  q: hide progress"))
		b.WriteString("\n")
	}

	return b.String()
}

package adapter

import (
	"context"
	"fmt"
	"go/token"
	"log/slog"
	"strings"

	m "gooze.dev/pkg/mutexec/internal/model"
)

// Checker kinds supported by GoChecker.
const (
	CheckerSyntax = "syntax"
	CheckerBuild  = "build"
	CheckerVet    = "vet"
)

// SupportedCheckers lists the checker kinds GoChecker understands.
var SupportedCheckers = []string{CheckerSyntax, CheckerBuild, CheckerVet}

// GoChecker validates mutants inside a private copy of the sandbox. The syntax
// kind parses mutated files in memory, build and vet run the go tool.
type GoChecker struct {
	goAdapter GoCommandAdapter
	goFile    GoFileAdapter
	workspace workspace
	kind      string
}

// NewGoChecker constructs a GoChecker. Nothing touches the disk until Init.
func NewGoChecker(fsAdapter SourceFSAdapter, goAdapter GoCommandAdapter, sandbox m.Path) *GoChecker {
	return &GoChecker{
		goAdapter: goAdapter,
		goFile:    NewLocalGoFileAdapter(),
		workspace: workspace{fsAdapter: fsAdapter, sandbox: sandbox},
		kind:      CheckerBuild,
	}
}

// Init copies the sandbox into the checker's own directory.
func (c *GoChecker) Init(_ context.Context) error {
	return c.workspace.create("mutexec-checker-*")
}

// Dispose removes the checker's directory.
func (c *GoChecker) Dispose(_ context.Context) error {
	return c.workspace.remove()
}

// Select switches the checker kind.
func (c *GoChecker) Select(_ context.Context, kind string) error {
	if _, err := checkerArgs(kind); err != nil {
		return err
	}

	c.kind = kind

	return nil
}

// Group buckets mutants so that no group modifies the same file twice. Groups
// keep the input order of their mutants.
func (c *GoChecker) Group(_ context.Context, kind string, mutants []m.Mutant) ([][]m.Mutant, error) {
	if _, err := checkerArgs(kind); err != nil {
		return nil, err
	}

	var (
		groups [][]m.Mutant
		files  []map[m.Path]bool
	)

	for _, mutant := range mutants {
		placed := false

		for i := range groups {
			if files[i][mutant.FileName] {
				continue
			}

			groups[i] = append(groups[i], mutant)
			files[i][mutant.FileName] = true
			placed = true

			break
		}

		if !placed {
			groups = append(groups, []m.Mutant{mutant})
			files = append(files, map[m.Path]bool{mutant.FileName: true})
		}
	}

	return groups, nil
}

// Check activates every mutant of the group at once. When the group does not
// pass, every mutant is checked on its own so each gets its own verdict.
func (c *GoChecker) Check(ctx context.Context, kind string, group []m.Mutant) (map[string]m.CheckResult, error) {
	if kind == "" {
		kind = c.kind
	}

	args, err := checkerArgs(kind)
	if err != nil {
		return nil, err
	}

	if kind == CheckerSyntax {
		return c.checkSyntax(ctx, group)
	}

	results := make(map[string]m.CheckResult, len(group))

	result, err := c.checkTogether(ctx, args, group)
	if err != nil {
		return nil, err
	}

	if result.Status == m.CheckPassed || len(group) == 1 {
		for _, mutant := range group {
			results[mutant.ID] = result
		}

		return results, nil
	}

	slog.Debug("Group failed, checking mutants one by one", "kind", kind, "size", len(group))

	for _, mutant := range group {
		single, err := c.checkTogether(ctx, args, []m.Mutant{mutant})
		if err != nil {
			return nil, err
		}

		results[mutant.ID] = single
	}

	return results, nil
}

func (c *GoChecker) checkTogether(ctx context.Context, args []string, group []m.Mutant) (m.CheckResult, error) {
	restore, err := c.workspace.activate(group...)
	if err != nil {
		return m.CheckResult{Status: m.CheckCompileError, Reason: err.Error()}, nil
	}

	defer func() {
		if err := restore(); err != nil {
			slog.Error("Failed to restore checked files", "error", err)
		}
	}()

	_, stderr, err := c.goAdapter.RunGo(ctx, c.workspace.dir, nil, args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return m.CheckResult{}, ctxErr
	}

	if err == nil {
		return m.CheckResult{Status: m.CheckPassed}, nil
	}

	if !isExitError(err) {
		return m.CheckResult{}, fmt.Errorf("failed to run go %s: %w", args[0], err)
	}

	reason := strings.TrimSpace(string(stderr))
	if reason == "" {
		reason = fmt.Sprintf("go %s failed", args[0])
	}

	return m.CheckResult{Status: m.CheckCompileError, Reason: reason}, nil
}

// checkSyntax parses every mutated file on its own. The workspace is only read.
func (c *GoChecker) checkSyntax(ctx context.Context, group []m.Mutant) (map[string]m.CheckResult, error) {
	results := make(map[string]m.CheckResult, len(group))

	for _, mutant := range group {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results[mutant.ID] = c.parseMutated(ctx, mutant)
	}

	return results, nil
}

func (c *GoChecker) parseMutated(ctx context.Context, mutant m.Mutant) m.CheckResult {
	path, err := c.workspace.path(mutant.FileName)
	if err != nil {
		return m.CheckResult{Status: m.CheckCompileError, Reason: err.Error()}
	}

	original, err := c.workspace.fsAdapter.ReadFile(path)
	if err != nil {
		return m.CheckResult{Status: m.CheckCompileError, Reason: err.Error()}
	}

	mutated, err := ApplyMutant(original, mutant)
	if err != nil {
		return m.CheckResult{Status: m.CheckCompileError, Reason: err.Error()}
	}

	if _, err := c.goFile.Parse(ctx, token.NewFileSet(), string(mutant.FileName), mutated); err != nil {
		return m.CheckResult{Status: m.CheckCompileError, Reason: err.Error()}
	}

	return m.CheckResult{Status: m.CheckPassed}
}

func checkerArgs(kind string) ([]string, error) {
	switch kind {
	case CheckerSyntax:
		return nil, nil
	case CheckerBuild:
		return []string{"build", "./..."}, nil
	case CheckerVet:
		return []string{"vet", "./..."}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChecker, kind)
	}
}

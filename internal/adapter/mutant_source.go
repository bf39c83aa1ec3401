package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"
	m "gooze.dev/pkg/mutexec/internal/model"
)

// MutantSource supplies the mutants to test.
type MutantSource interface {
	// LoadMutants reads the mutants file. Mutants of excluded mutators are
	// returned with the Ignored status.
	LoadMutants(ctx context.Context, path m.Path, excludedMutators []string) ([]m.Mutant, error)
}

// mutantsFile is the on-disk layout written by the instrumenter. JSON files
// decode too since YAML is a superset.
type mutantsFile struct {
	Mutants []m.Mutant `yaml:"mutants"`
}

// LocalMutantSource reads mutants from a YAML or JSON file.
type LocalMutantSource struct {
	fsAdapter SourceFSAdapter
}

// NewLocalMutantSource constructs a LocalMutantSource.
func NewLocalMutantSource(fsAdapter SourceFSAdapter) *LocalMutantSource {
	return &LocalMutantSource{fsAdapter: fsAdapter}
}

// LoadMutants reads and validates the mutants file.
func (s *LocalMutantSource) LoadMutants(ctx context.Context, path m.Path, excludedMutators []string) ([]m.Mutant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := s.fsAdapter.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read mutants file", "path", path, "error", err)
		return nil, fmt.Errorf("failed to read mutants file: %w", err)
	}

	var file mutantsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to decode mutants file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Mutants))
	ignored := 0

	for i := range file.Mutants {
		mutant := &file.Mutants[i]

		if mutant.ID == "" {
			return nil, fmt.Errorf("mutant #%d has no id", i)
		}

		if seen[mutant.ID] {
			return nil, fmt.Errorf("duplicate mutant id %q", mutant.ID)
		}

		seen[mutant.ID] = true

		if !mutant.Location.Valid() {
			return nil, fmt.Errorf("%w: mutant %s at %s", ErrInvalidLocation, mutant.ID, mutant.Location)
		}

		if mutant.Status.IsTerminal() && !mutant.Status.IsValid() {
			return nil, fmt.Errorf("mutant %s has unknown status %q", mutant.ID, mutant.Status)
		}

		if !mutant.Status.IsTerminal() && slices.Contains(excludedMutators, mutant.MutatorName) {
			mutant.Status = m.Ignored
			mutant.StatusReason = fmt.Sprintf("mutator %s is excluded", mutant.MutatorName)
			ignored++
		}
	}

	slog.Info("Loaded mutants", "path", path, "count", len(file.Mutants), "ignored", ignored)

	return file.Mutants, nil
}

package domain

import (
	"fmt"

	m "gooze.dev/pkg/mutexec/internal/model"
	"gooze.dev/pkg/mutexec/pkg"
)

// scoreTally counts detected mutants among the valid ones. Ignored, compile
// error and runtime error mutants do not count.
type scoreTally struct {
	detected int
	valid    int
}

func (t *scoreTally) add(status m.MutantStatus) {
	switch status {
	case m.Killed, m.Timeout:
		t.detected++
		t.valid++
	case m.Survived, m.NoCoverage:
		t.valid++
	case m.Ignored, m.CompileError, m.RuntimeError:
	}
}

// score is a fraction in [0, 1]; an empty tally scores 1.
func (t scoreTally) score() float64 {
	if t.valid == 0 {
		return 1
	}

	return float64(t.detected) / float64(t.valid)
}

// MutationScore returns the share of valid mutants detected by the tests.
func MutationScore(results []m.MutantResult) float64 {
	var tally scoreTally
	for _, result := range results {
		tally.add(result.Status)
	}

	return tally.score()
}

func mutationScoreFromJournal(journal pkg.FileSpill[m.MutantResult]) (float64, error) {
	var tally scoreTally

	err := journal.Range(func(_ uint64, result m.MutantResult) error {
		tally.add(result.Status)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read results journal: %w", err)
	}

	return tally.score(), nil
}

// CheckThreshold fails when score, a fraction, is below threshold, a
// percentage. A zero threshold disables the check.
func CheckThreshold(score, threshold float64) error {
	if threshold <= 0 || score*100 >= threshold {
		return nil
	}

	return fmt.Errorf("%w: %.2f%% < %.2f%%", ErrScoreBelowThreshold, score*100, threshold)
}

package adapter

import (
	"errors"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	m "gooze.dev/pkg/mutexec/internal/model"
)

// ErrInvalidLocation is returned when a mutant location does not fit the file.
var ErrInvalidLocation = errors.New("invalid mutant location")

// ApplyMutant returns content with the mutant's location replaced by its
// replacement text. content is not modified.
func ApplyMutant(content []byte, mutant m.Mutant) ([]byte, error) {
	if !mutant.Location.Valid() {
		return nil, fmt.Errorf("%w: mutant %s at %s", ErrInvalidLocation, mutant.ID, mutant.Location)
	}

	start, err := offsetOf(content, mutant.Location.Start)
	if err != nil {
		return nil, fmt.Errorf("mutant %s: %w", mutant.ID, err)
	}

	end, err := offsetOf(content, mutant.Location.End)
	if err != nil {
		return nil, fmt.Errorf("mutant %s: %w", mutant.ID, err)
	}

	mutated := make([]byte, 0, len(content)-(end-start)+len(mutant.Replacement))
	mutated = append(mutated, content[:start]...)
	mutated = append(mutated, mutant.Replacement...)
	mutated = append(mutated, content[end:]...)

	return mutated, nil
}

// offsetOf converts a 1-based line/column position into a byte offset. The
// column may point one past the last byte of a line.
func offsetOf(content []byte, pos m.Position) (int, error) {
	line := 1
	lineStart := 0

	for i := 0; i < len(content) && line < pos.Line; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}

	if line != pos.Line {
		return 0, fmt.Errorf("%w: line %d beyond end of file", ErrInvalidLocation, pos.Line)
	}

	lineEnd := lineStart
	for lineEnd < len(content) && content[lineEnd] != '\n' {
		lineEnd++
	}

	offset := lineStart + pos.Column - 1
	if offset > lineEnd {
		return 0, fmt.Errorf("%w: column %d beyond end of line %d", ErrInvalidLocation, pos.Column, pos.Line)
	}

	return offset, nil
}

// MutantDiff renders a unified diff between the original and mutated file.
func MutantDiff(fileName m.Path, original, mutated []byte) (string, error) {
	if string(original) == string(mutated) {
		return "", nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(string(mutated)),
		FromFile: string(fileName) + " (original)",
		ToFile:   string(fileName) + " (mutated)",
		Context:  2,
	}

	return difflib.GetUnifiedDiffString(diff)
}

package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	m "gooze.dev/pkg/mutexec/internal/model"
)

// ErrOutsideWorkspace is returned for mutant files that do not resolve inside a
// worker's workspace.
var ErrOutsideWorkspace = errors.New("file is outside of the workspace")

// workspace is a worker's private copy of the sandbox. Mutants are activated
// by rewriting files inside it and restoring them afterwards.
type workspace struct {
	fsAdapter SourceFSAdapter
	sandbox   m.Path
	dir       m.Path
}

func (w *workspace) create(pattern string) error {
	dir, err := w.fsAdapter.CreateTempDir(pattern)
	if err != nil {
		slog.Error("Failed to create worker dir", "error", err)
		return fmt.Errorf("failed to create worker dir: %w", err)
	}

	if err := w.fsAdapter.CopyDir(w.sandbox, dir, DefaultCopySkips...); err != nil {
		_ = w.fsAdapter.RemoveAll(dir)

		slog.Error("Failed to copy sandbox", "sandbox", w.sandbox, "dir", dir, "error", err)

		return fmt.Errorf("failed to copy sandbox: %w", err)
	}

	w.dir = dir

	return nil
}

func (w *workspace) remove() error {
	if w.dir == "" {
		return nil
	}

	dir := w.dir
	w.dir = ""

	if err := w.fsAdapter.RemoveAll(dir); err != nil {
		slog.Error("Failed to remove worker dir", "dir", dir, "error", err)
		return fmt.Errorf("failed to remove worker dir: %w", err)
	}

	return nil
}

// path resolves a sandbox-relative file name inside the workspace. Names that
// would leave the workspace are rejected.
func (w *workspace) path(name m.Path) (m.Path, error) {
	clean := filepath.Clean(string(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, name)
	}

	return w.fsAdapter.JoinPath(string(w.dir), clean), nil
}

// activate writes every mutant into its file and returns a function restoring
// the original contents. Mutants must not share a file.
func (w *workspace) activate(mutants ...m.Mutant) (func() error, error) {
	originals := make(map[m.Path][]byte, len(mutants))

	restore := func() error {
		var firstErr error

		for path, content := range originals {
			if err := w.fsAdapter.WriteFile(path, content, 0o600); err != nil && firstErr == nil {
				slog.Error("Failed to restore file", "path", path, "error", err)
				firstErr = fmt.Errorf("failed to restore %s: %w", path, err)
			}
		}

		return firstErr
	}

	for _, mutant := range mutants {
		path, err := w.path(mutant.FileName)
		if err != nil {
			_ = restore()
			return nil, err
		}

		if _, seen := originals[path]; seen {
			_ = restore()
			return nil, fmt.Errorf("mutants share file %s", mutant.FileName)
		}

		original, err := w.fsAdapter.ReadFile(path)
		if err != nil {
			_ = restore()
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		mutated, err := ApplyMutant(original, mutant)
		if err != nil {
			_ = restore()
			return nil, err
		}

		originals[path] = original

		if err := w.fsAdapter.WriteFile(path, mutated, 0o600); err != nil {
			_ = restore()
			return nil, fmt.Errorf("failed to write mutated file: %w", err)
		}
	}

	return restore, nil
}

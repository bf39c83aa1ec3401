package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	m "gooze.dev/pkg/mutexec/internal/model"
)

// Sandbox is an isolated copy of the project under test.
type Sandbox interface {
	// Root is the sandbox directory.
	Root() m.Path
	// SandboxFileFor maps a project file to its path relative to Root.
	SandboxFileFor(fileName m.Path) (m.Path, error)
	// Dispose removes the sandbox.
	Dispose(ctx context.Context) error
}

// SandboxFactory materializes sandboxes.
type SandboxFactory interface {
	CreateSandbox(ctx context.Context, projectRoot m.Path, skip ...string) (Sandbox, error)
}

// LocalSandboxFactory copies the project into a temporary directory.
type LocalSandboxFactory struct {
	fsAdapter SourceFSAdapter
}

// NewLocalSandboxFactory constructs a LocalSandboxFactory.
func NewLocalSandboxFactory(fsAdapter SourceFSAdapter) *LocalSandboxFactory {
	return &LocalSandboxFactory{fsAdapter: fsAdapter}
}

// CreateSandbox copies the go module containing projectRoot. Directories named
// in skip are left out in addition to DefaultCopySkips.
func (f *LocalSandboxFactory) CreateSandbox(ctx context.Context, projectRoot m.Path, skip ...string) (Sandbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := f.fsAdapter.FindProjectRoot(projectRoot)
	if err != nil {
		slog.Error("Failed to find project root", "path", projectRoot, "error", err)
		return nil, fmt.Errorf("failed to find project root: %w", err)
	}

	dir, err := f.fsAdapter.CreateTempDir("mutexec-sandbox-*")
	if err != nil {
		slog.Error("Failed to create sandbox dir", "error", err)
		return nil, fmt.Errorf("failed to create sandbox dir: %w", err)
	}

	skips := append(append([]string{}, DefaultCopySkips...), skip...)
	if err := f.fsAdapter.CopyDir(root, dir, skips...); err != nil {
		_ = f.fsAdapter.RemoveAll(dir)

		slog.Error("Failed to copy project to sandbox", "projectRoot", root, "sandbox", dir, "error", err)

		return nil, fmt.Errorf("failed to copy project: %w", err)
	}

	slog.Info("Created sandbox", "projectRoot", root, "sandbox", dir)

	return &localSandbox{fsAdapter: f.fsAdapter, projectRoot: root, dir: dir}, nil
}

type localSandbox struct {
	fsAdapter   SourceFSAdapter
	projectRoot m.Path
	dir         m.Path
}

func (s *localSandbox) Root() m.Path {
	return s.dir
}

func (s *localSandbox) SandboxFileFor(fileName m.Path) (m.Path, error) {
	rel := fileName
	if filepath.IsAbs(string(fileName)) {
		var err error

		rel, err = s.fsAdapter.RelPath(s.projectRoot, fileName)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", fileName, err)
		}
	}

	rel = m.Path(filepath.Clean(string(rel)))
	if rel == ".." || strings.HasPrefix(string(rel), ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file %s is outside of project %s", fileName, s.projectRoot)
	}

	if _, err := s.fsAdapter.FileInfo(s.fsAdapter.JoinPath(string(s.dir), string(rel))); err != nil {
		return "", fmt.Errorf("file %s not found in sandbox: %w", fileName, err)
	}

	return rel, nil
}

func (s *localSandbox) Dispose(_ context.Context) error {
	if err := s.fsAdapter.RemoveAll(s.dir); err != nil {
		slog.Error("Failed to remove sandbox", "sandbox", s.dir, "error", err)
		return fmt.Errorf("failed to remove sandbox: %w", err)
	}

	return nil
}

package adapter

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	m "gooze.dev/pkg/mutexec/internal/model"
)

// GoCommandAdapter abstracts invocations of the go tool.
type GoCommandAdapter interface {
	// RunGo runs `go <args...>` in workDir with env appended to the current
	// environment. It returns stdout and stderr separately together with the
	// process error, if any.
	RunGo(ctx context.Context, workDir m.Path, env []string, args ...string) (stdout []byte, stderr []byte, err error)
}

// LocalGoCommandAdapter provides a concrete implementation using os/exec.
type LocalGoCommandAdapter struct {
	waitDelay time.Duration
}

// NewLocalGoCommandAdapter constructs a LocalGoCommandAdapter.
func NewLocalGoCommandAdapter() *LocalGoCommandAdapter {
	return &LocalGoCommandAdapter{
		waitDelay: 2 * time.Second,
	}
}

// RunGo runs the go tool. Cancelling ctx kills the process.
func (a *LocalGoCommandAdapter) RunGo(ctx context.Context, workDir m.Path, env []string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = string(workDir)
	cmd.Env = append(os.Environ(), env...)
	// Test binaries may leave children holding the pipes open.
	cmd.WaitDelay = a.waitDelay

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err
}

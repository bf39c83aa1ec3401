package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	m "gooze.dev/pkg/mutexec/internal/model"
)

func TestLocalWorkerFactory(t *testing.T) {
	fsAdapter := NewLocalSourceFSAdapter()

	sandbox, err := NewLocalSandboxFactory(fsAdapter).CreateSandbox(context.Background(), m.Path(newSandboxDir(t)))
	require.NoError(t, err)

	t.Cleanup(func() { _ = sandbox.Dispose(context.Background()) })

	factory := NewLocalWorkerFactory(fsAdapter, &fakeGoAdapter{})

	runner, ok := factory.NewTestRunner(sandbox).(*GoTestRunner)
	require.True(t, ok)
	assert.Equal(t, []string{"./..."}, runner.packages)
	assert.Equal(t, sandbox.Root(), runner.workspace.sandbox)
	assert.Empty(t, runner.workspace.dir, "workers touch the disk only on Init")

	checker, ok := factory.NewChecker(sandbox).(*GoChecker)
	require.True(t, ok)
	assert.Equal(t, sandbox.Root(), checker.workspace.sandbox)

	custom := NewLocalWorkerFactory(fsAdapter, &fakeGoAdapter{}, "./pkg/...")
	assert.Equal(t, []string{"./pkg/..."}, custom.NewTestRunner(sandbox).(*GoTestRunner).packages)
}

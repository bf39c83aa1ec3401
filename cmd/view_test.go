package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gooze.dev/pkg/mutexec/internal/domain"
	domainmocks "gooze.dev/pkg/mutexec/internal/domain/mocks"
	m "gooze.dev/pkg/mutexec/internal/model"
)

func newTestViewCmd(t *testing.T) (*cobra.Command, *domainmocks.MockWorkflow) {
	t.Helper()

	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	t.Cleanup(func() { workflow = originalWorkflow })

	return cmd, mockWorkflow
}

func expectView(mockWorkflow *domainmocks.MockWorkflow, want domain.ViewArgs) {
	mockWorkflow.EXPECT().
		View(mock.Anything, mock.MatchedBy(func(args domain.ViewArgs) bool { return args == want })).
		Return(nil)
}

func TestViewCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want domain.ViewArgs
	}{
		{
			name: "defaults",
			args: []string{"view"},
			want: domain.ViewArgs{ProjectRoot: ".", Reports: m.Path(defaultReportsDir)},
		},
		{
			name: "output flag",
			args: []string{"view", "-o", "./reports-dir"},
			want: domain.ViewArgs{ProjectRoot: ".", Reports: "./reports-dir"},
		},
		{
			name: "project directory",
			args: []string{"--output", "ci/reports", "view", "./calc"},
			want: domain.ViewArgs{ProjectRoot: "./calc", Reports: "ci/reports"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, mockWorkflow := newTestViewCmd(t)
			expectView(mockWorkflow, tt.want)

			cmd.SetArgs(tt.args)
			require.NoError(t, cmd.Execute())
		})
	}
}

func TestViewCmd_WorkflowError(t *testing.T) {
	cmd, mockWorkflow := newTestViewCmd(t)

	mockWorkflow.EXPECT().View(mock.Anything, mock.Anything).Return(errors.New("load report: no such file"))

	cmd.SetArgs([]string{"view"})
	require.ErrorContains(t, cmd.Execute(), "load report")
}

func TestViewCmd_ExtraArgsAreRejected(t *testing.T) {
	cmd, _ := newTestViewCmd(t)

	cmd.SetArgs([]string{"view", "./calc", "./other"})
	require.Error(t, cmd.Execute())
}

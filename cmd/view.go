package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gooze.dev/pkg/mutexec/internal/domain"
	m "gooze.dev/pkg/mutexec/internal/model"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view [dir]",
		Short: "View the last mutation report",
		Long: `View the report stored in the output directory. Survived and uncovered
mutants are shown with a diff against the sources of the given directory
(default: current directory).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot := m.Path(".")
			if len(args) == 1 {
				projectRoot = m.Path(args[0])
			}

			reportsPath := m.Path(viper.GetString(outputFlagName))

			return workflow.View(cmd.Context(), domain.ViewArgs{ProjectRoot: projectRoot, Reports: reportsPath})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initCmd represents the init command.
var initCmd = newInitCmd()

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a mutexec.yaml with the current defaults",
		Long: `Create mutexec.yaml in the working directory with every run, output and
logging option set to its current value. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := filepath.Join(configFolderPath, configFileName)

			if err := viper.SafeWriteConfigAs(target); err != nil {
				slog.Error("Failed to write config file", "path", target, "error", err)
				return fmt.Errorf("write %s: %w", target, err)
			}

			cmd.Printf("Wrote %s\n", target)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
}

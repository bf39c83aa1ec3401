package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	m "gooze.dev/pkg/mutexec/internal/model"
)

var (
	runMutantsFileFlag      string
	runExcludedFlag         []string
	runConcurrencyFlag      int
	runCheckersFlag         []string
	runTimeoutFlag          int64
	runTimeoutFactorFlag    float64
	runDisableBailFlag      bool
	runIgnoreStaticFlag     bool
	runCoverageAnalysisFlag string
	runDryRunTimeoutFlag    time.Duration
	runAllowEmptyFlag       bool
	runBreakThresholdFlag   float64
)

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Run mutation testing",
		Long:  runLongDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot := m.Path(".")
			if len(args) == 1 {
				projectRoot = m.Path(args[0])
			}

			options := runOptionsFromConfig(projectRoot)
			if err := validateRunOptions(options); err != nil {
				return fmt.Errorf("invalid run options: %w", err)
			}

			slog.Info("Starting mutation testing run",
				"projectRoot", options.ProjectRoot, "mutants", options.MutantsFile,
				"concurrency", options.Concurrency, "checkers", options.Checkers,
				"coverage", options.CoverageAnalysis)

			return workflow.Run(cmd.Context(), options)
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringVarP(&runMutantsFileFlag, mutantsFileFlagName, "m", defaultMutantsFile, "mutants file (YAML or JSON) written by the instrumenter")
	bindFlagToConfig(flags.Lookup(mutantsFileFlagName), mutantsFileConfigKey)

	flags.StringArrayVarP(&runExcludedFlag, excludeMutatorFlagName, "x", nil, "ignore mutants of this mutator (can be repeated)")
	bindFlagToConfig(flags.Lookup(excludeMutatorFlagName), excludedMutatorsConfigKey)

	flags.IntVarP(&runConcurrencyFlag, concurrencyFlagName, "c", defaultConcurrency, "number of worker slots (0: derived from CPU count)")
	bindFlagToConfig(flags.Lookup(concurrencyFlagName), concurrencyConfigKey)

	flags.StringSliceVar(&runCheckersFlag, checkersFlagName, nil, "checkers to run before testing, in order (syntax, build, vet)")
	bindFlagToConfig(flags.Lookup(checkersFlagName), checkersConfigKey)

	flags.Int64Var(&runTimeoutFlag, timeoutFlagName, defaultTimeoutMS, "constant added to every mutant timeout, in milliseconds")
	bindFlagToConfig(flags.Lookup(timeoutFlagName), timeoutConfigKey)

	flags.Float64Var(&runTimeoutFactorFlag, timeoutFactorFlagName, defaultTimeoutFactor, "factor applied to the baseline time of a mutant's tests")
	bindFlagToConfig(flags.Lookup(timeoutFactorFlagName), timeoutFactorConfigKey)

	flags.BoolVar(&runDisableBailFlag, disableBailFlagName, false, "keep running tests after the first failure")
	bindFlagToConfig(flags.Lookup(disableBailFlagName), disableBailConfigKey)

	flags.BoolVar(&runIgnoreStaticFlag, ignoreStaticFlagName, false, "skip mutants executed during package initialization")
	bindFlagToConfig(flags.Lookup(ignoreStaticFlagName), ignoreStaticConfigKey)

	flags.StringVar(&runCoverageAnalysisFlag, coverageAnalysisFlagName, defaultCoverageAnalysis, "coverage analysis: off, all or perTest")
	bindFlagToConfig(flags.Lookup(coverageAnalysisFlagName), coverageAnalysisConfigKey)

	flags.DurationVar(&runDryRunTimeoutFlag, dryRunTimeoutFlagName, defaultDryRunTimeout, "time limit of the initial test run")
	bindFlagToConfig(flags.Lookup(dryRunTimeoutFlagName), dryRunTimeoutConfigKey)

	flags.BoolVar(&runAllowEmptyFlag, allowEmptyFlagName, false, "accept a test suite without tests")
	bindFlagToConfig(flags.Lookup(allowEmptyFlagName), allowEmptyConfigKey)

	flags.Float64Var(&runBreakThresholdFlag, breakThresholdFlagName, 0, "fail when the mutation score (percent) is below this value")
	bindFlagToConfig(flags.Lookup(breakThresholdFlagName), breakThresholdConfigKey)
}

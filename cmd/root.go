// Package cmd provides the root command and CLI setup for mutexec.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gooze.dev/pkg/mutexec/internal/adapter"
	"gooze.dev/pkg/mutexec/internal/controller"
	"gooze.dev/pkg/mutexec/internal/domain"
	"gooze.dev/pkg/mutexec/internal/tracing"
)

const serviceName = "mutexec"

var fsAdapter adapter.SourceFSAdapter
var goAdapter adapter.GoCommandAdapter
var mutantSource adapter.MutantSource
var sandboxFactory adapter.SandboxFactory
var workerFactory adapter.WorkerFactory
var reportStore adapter.ReportStore
var workflow domain.Workflow
var ui controller.UI

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

var traceFileFlag string
var logFileFlag string
var verboseFlag bool

// shutdownTracing flushes spans recorded by the current command.
var shutdownTracing tracing.Shutdown

func init() {
	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	goAdapter = adapter.NewLocalGoCommandAdapter()
	mutantSource = adapter.NewLocalMutantSource(fsAdapter)
	sandboxFactory = adapter.NewLocalSandboxFactory(fsAdapter)
	workerFactory = adapter.NewLocalWorkerFactory(fsAdapter, goAdapter)
	reportStore = adapter.NewReportStore(fsAdapter)
	workflow = domain.NewWorkflow(
		fsAdapter,
		mutantSource,
		sandboxFactory,
		workerFactory,
		reportStore,
		ui,
	)
}

const rootLongDescription = `mutexec runs mutation tests for Go projects from a mutants file produced by
an instrumenter. It measures the test suite once, matches every mutant with
the tests covering it and runs those tests with the mutant active, using a
pool of workers that grows as checkers finish.`

const runLongDescription = `Run mutation testing for the Go module containing the given directory
(default: current directory).

Mutants are read from the mutants file (--mutants). Every mutant ends up
Killed, Survived, Timeout, NoCoverage, CompileError, RuntimeError or Ignored;
the report is written to the output directory.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mutexec",
		Short:         "Go mutation test executor",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupObservability()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return flushTracing(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			defaultReportsDir,
			"output directory for mutation testing reports",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringVar(&traceFileFlag, traceFileFlagName, "", "write OpenTelemetry spans to this file (\"-\" for stdout)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(traceFileFlagName), traceFileConfigKey)

	cmd.PersistentFlags().StringVar(&logFileFlag, logFileFlagName, defaultLogFilename, "log file path")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(logFileFlagName), logFilenameKey)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", defaultLogVerbose, "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

func setupObservability() error {
	configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

	traceFile := strings.TrimSpace(viper.GetString(traceFileConfigKey))
	if traceFile == "" {
		return nil
	}

	if traceFile == "-" {
		traceFile = ""
	}

	shutdown, err := tracing.Init(serviceName, buildVersion(), traceFile)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	shutdownTracing = shutdown

	return nil
}

func flushTracing(ctx context.Context) error {
	if shutdownTracing == nil {
		return nil
	}

	shutdown := shutdownTracing
	shutdownTracing = nil

	if err := shutdown(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("Failed to flush traces", "error", err)
		return fmt.Errorf("failed to flush traces: %w", err)
	}

	return nil
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "unknown"
	}

	return info.Main.Version
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gooze.dev/pkg/mutexec/internal/adapter"
	"gooze.dev/pkg/mutexec/internal/domain"
	m "gooze.dev/pkg/mutexec/internal/model"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "mutexec"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName    = "output"
	traceFileFlagName = "trace-file"
	logFileFlagName   = "log-file"
	verboseFlagName   = "verbose"

	mutantsFileFlagName      = "mutants"
	excludeMutatorFlagName   = "exclude-mutator"
	concurrencyFlagName      = "concurrency"
	checkersFlagName         = "checkers"
	timeoutFlagName          = "timeout-ms"
	timeoutFactorFlagName    = "timeout-factor"
	disableBailFlagName      = "disable-bail"
	ignoreStaticFlagName     = "ignore-static"
	coverageAnalysisFlagName = "coverage-analysis"
	dryRunTimeoutFlagName    = "dry-run-timeout"
	allowEmptyFlagName       = "allow-empty"
	breakThresholdFlagName   = "break-threshold"

	mutantsFileConfigKey      = "mutants.file"
	excludedMutatorsConfigKey = "mutants.excluded"
	concurrencyConfigKey      = "run.concurrency"
	checkersConfigKey         = "run.checkers"
	timeoutConfigKey          = "run.timeout_ms"
	timeoutFactorConfigKey    = "run.timeout_factor"
	disableBailConfigKey      = "run.disable_bail"
	ignoreStaticConfigKey     = "run.ignore_static"
	coverageAnalysisConfigKey = "run.coverage_analysis"
	dryRunTimeoutConfigKey    = "run.dry_run_timeout"
	allowEmptyConfigKey       = "run.allow_empty"
	breakThresholdConfigKey   = "run.break_threshold"
	traceFileConfigKey        = "trace.file"

	defaultReportsDir       = ".mutexec-reports"
	defaultMutantsFile      = "mutants.yaml"
	defaultConcurrency      = 0
	defaultTimeoutMS        = 5000
	defaultTimeoutFactor    = 1.5
	defaultCoverageAnalysis = string(m.CoveragePerTest)
	defaultDryRunTimeout    = domain.DefaultDryRunTimeout

	envPrefix = "MUTEXEC"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".mutexec.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(traceFileConfigKey, "")

	viper.SetDefault(mutantsFileConfigKey, defaultMutantsFile)
	viper.SetDefault(excludedMutatorsConfigKey, []string{})
	viper.SetDefault(concurrencyConfigKey, defaultConcurrency)
	viper.SetDefault(checkersConfigKey, []string{})
	viper.SetDefault(timeoutConfigKey, defaultTimeoutMS)
	viper.SetDefault(timeoutFactorConfigKey, defaultTimeoutFactor)
	viper.SetDefault(disableBailConfigKey, false)
	viper.SetDefault(ignoreStaticConfigKey, false)
	viper.SetDefault(coverageAnalysisConfigKey, defaultCoverageAnalysis)
	viper.SetDefault(dryRunTimeoutConfigKey, defaultDryRunTimeout)
	viper.SetDefault(allowEmptyConfigKey, false)
	viper.SetDefault(breakThresholdConfigKey, 0.0)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return
		}

		// The logger is not configured yet.
		fmt.Fprintf(os.Stderr, "mutexec: ignoring %s: %v\n", configFileName, err)
	}
}

// runOptionsFromConfig reads the run options from viper. Flags, environment
// and mutexec.yaml all feed the same keys.
func runOptionsFromConfig(projectRoot m.Path) domain.RunArgs {
	return domain.RunArgs{
		ProjectRoot:      projectRoot,
		MutantsFile:      m.Path(viper.GetString(mutantsFileConfigKey)),
		ExcludedMutators: viper.GetStringSlice(excludedMutatorsConfigKey),
		Reports:          m.Path(viper.GetString(outputFlagName)),
		Concurrency:      viper.GetInt(concurrencyConfigKey),
		Checkers:         viper.GetStringSlice(checkersConfigKey),
		Timeout:          time.Duration(viper.GetInt64(timeoutConfigKey)) * time.Millisecond,
		TimeoutFactor:    viper.GetFloat64(timeoutFactorConfigKey),
		DisableBail:      viper.GetBool(disableBailConfigKey),
		IgnoreStatic:     viper.GetBool(ignoreStaticConfigKey),
		CoverageAnalysis: m.CoverageAnalysis(viper.GetString(coverageAnalysisConfigKey)),
		DryRunTimeout:    viper.GetDuration(dryRunTimeoutConfigKey),
		AllowEmpty:       viper.GetBool(allowEmptyConfigKey),
		BreakThreshold:   viper.GetFloat64(breakThresholdConfigKey),
	}
}

// validateRunOptions rejects option values no component can work with.
func validateRunOptions(options domain.RunArgs) error {
	var errs []error

	if options.MutantsFile == "" {
		errs = append(errs, errors.New("mutants file is required"))
	}

	if options.Reports == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	if options.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", options.Concurrency))
	}

	if options.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", options.Timeout))
	}

	if options.TimeoutFactor < 0 {
		errs = append(errs, fmt.Errorf("timeout factor must not be negative, got %g", options.TimeoutFactor))
	}

	if options.DryRunTimeout < 0 {
		errs = append(errs, fmt.Errorf("dry run timeout must not be negative, got %s", options.DryRunTimeout))
	}

	if !options.CoverageAnalysis.IsValid() {
		errs = append(errs, fmt.Errorf("coverage analysis must be one of off, all, perTest, got %q", options.CoverageAnalysis))
	}

	if options.IgnoreStatic && options.CoverageAnalysis != m.CoveragePerTest {
		errs = append(errs, fmt.Errorf("ignore static requires perTest coverage analysis, got %q", options.CoverageAnalysis))
	}

	if options.BreakThreshold < 0 || options.BreakThreshold > 100 {
		errs = append(errs, fmt.Errorf("break threshold must be between 0 and 100, got %g", options.BreakThreshold))
	}

	for i, checker := range options.Checkers {
		if !slices.Contains(adapter.SupportedCheckers, checker) {
			errs = append(errs, fmt.Errorf("%w: %q (supported: %s)", adapter.ErrUnknownChecker, checker, strings.Join(adapter.SupportedCheckers, ", ")))
		}

		if slices.Contains(options.Checkers[:i], checker) {
			errs = append(errs, fmt.Errorf("checker %q listed twice", checker))
		}
	}

	return errors.Join(errs...)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}

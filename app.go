package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"multiangle/core"
	"multiangle/db"
	"multiangle/fal"
	"multiangle/imagegen"
	"multiangle/logging"
	"multiangle/metrics"
	"multiangle/shutdown"
	"multiangle/validation"
	"multiangle/vision"
)

// Cleanup priorities; lower runs first.
const (
	priorityMetrics   = 10
	priorityHistoryDB = 20
	priorityTempFiles = 40
	priorityLogger    = 90
)

// runMultiAngle wires configuration, logging, preflight checks and the runner
// for one invocation.
func runMultiAngle(ctx context.Context, cmd *cobra.Command, imagePath string, opts *cliOptions) int {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	printBanner(stdout)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		color.New(color.FgYellow).Fprintf(stderr, "Warning: failed to read .env: %v\n", err)
	}

	cfg, err := core.LoadConfig(opts.configPath)
	if err != nil {
		printError(stderr, err)
		return core.ExitCodeError
	}
	applyFlags(cmd, cfg, opts)
	logging.AddSecret(cfg.FalKey)

	level := logging.ParseLogLevelString(cfg.LogLevel, zapcore.InfoLevel)
	logger, err := logging.NewLogger(logging.Options{
		Development:  cfg.DevMode,
		Level:        level,
		ConsoleLevel: logging.ConsoleLevel(level, opts.quiet),
		FilePath:     cfg.LogFile,
		Console:      stderr,
	})
	if err != nil {
		printError(stderr, fmt.Errorf("failed to initialize logger: %w", err))
		return core.ExitCodeError
	}

	mgr := shutdown.NewManager(ctx, logger)
	mgr.Start()
	defer mgr.Shutdown()
	mgr.Register("logger", priorityLogger, func(context.Context) error {
		logger.Sync() // stderr sync fails on some terminals
		return nil
	})

	logger.Info("configuration loaded",
		zap.String("version", core.Version),
		zap.String("queue_url", cfg.QueueURL),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("output_dir", cfg.OutputDir),
		zap.Duration("throttle", cfg.ThrottleDelay),
		zap.Int("max_attempts", cfg.MaxRetries),
		zap.Duration("initial_retry_delay", cfg.InitialRetryDelay),
		zap.String("history_db", cfg.HistoryDB),
		zap.String("metrics_file", cfg.MetricsFile))

	var info *validation.ImageInfo
	result := validation.NewPreflightSuite("Preflight").
		WithOutput(stdout).
		WithShowProgress(!opts.quiet).
		Add(validation.CredentialsCheck(cfg)).
		Add(validation.ImageCheck(validation.NewImageValidator(cfg.MinImageDimension), imagePath, &info)).
		Add(validation.ParametersCheck(opts.params.Validate)).
		Add(validation.OutputDirCheck(cfg.OutputDir)).
		Run()
	if !result.Success {
		logger.Error("preflight failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Error(result.FirstError()))
		if opts.quiet {
			printError(stderr, result.FirstError())
		}
		return core.ExitCodeError
	}
	printImageInfo(stdout, info)

	var recorder *metrics.Recorder
	var apiObserver fal.Observer
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder()
		apiObserver = recorder
		mgr.Register("metrics", priorityMetrics, func(context.Context) error {
			return recorder.WriteTextfile(cfg.MetricsFile)
		})
	}

	client, err := fal.NewClientFromConfig(cfg, logger, apiObserver)
	if err != nil {
		printError(stderr, err)
		return core.ExitCodeError
	}
	defer client.Close()

	provider, err := imagegen.NewFalProvider(client)
	if err != nil {
		printError(stderr, err)
		return core.ExitCodeError
	}
	downloader := imagegen.NewDownloader(imagegen.DownloaderConfig{
		HTTPClient: client.HTTPClient(),
		Timeout:    imagegen.DefaultDownloadTimeout,
	})

	var observers []imagegen.RunObserver
	if recorder != nil {
		observers = append(observers, recorder)
	}
	if history := openHistory(mgr.Context(), cfg.HistoryDB, logger, mgr); history != nil {
		observers = append(observers, history)
	}

	runner, err := imagegen.NewRunner(provider, downloader, logger, imagegen.RunnerConfig{
		OutputDir:         cfg.OutputDir,
		MinImageDimension: cfg.MinImageDimension,
		RotationIncrement: imagegen.DefaultRotationIncrement,
		MontageColumns:    vision.DefaultMontageColumns,
	}, observers...)
	if err != nil {
		printError(stderr, err)
		return core.ExitCodeError
	}

	viewDir := filepath.Join(cfg.OutputDir, info.Stem)
	if n := shutdown.RemoveTempFiles(mgr.Context(), logger, viewDir); n > 0 {
		logger.Info("removed temp files from an earlier run", zap.Int("count", n))
	}
	mgr.Register("temp-files", priorityTempFiles, shutdown.CleanupTempFiles(logger, viewDir))

	angles := imagegen.Angles(imagegen.DefaultRotationIncrement, imagegen.FullRotation)
	fmt.Fprintf(stdout, "\nGenerating %d views (%d° increments), please be patient...\n\n",
		len(angles), imagegen.DefaultRotationIncrement)

	summary, runErr := runner.Run(mgr.Context(), imagePath, opts.params)
	if summary == nil {
		printError(stderr, runErr)
		return core.ExitCodeError
	}
	printSummary(stdout, summary)

	code := exitCodeFor(summary, runErr, mgr.Signal())
	logger.Info("exiting", zap.Int("exit_code", code), zap.String("reason", core.ExitCodeName(code)))
	return code
}

// openHistory opens the run history database. Failures disable history
// for this run but never stop it.
func openHistory(ctx context.Context, path string, logger *logging.Logger, mgr *shutdown.Manager) *db.HistoryRecorder {
	if path == "" {
		return nil
	}
	database, err := db.Open(ctx, path)
	if err != nil {
		logger.Warn("run history disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	mgr.Register("history-db", priorityHistoryDB, func(context.Context) error {
		return database.Close()
	})
	return db.NewHistoryRecorder(db.NewRepository(database), logger)
}

// exitCodeFor maps the run outcome to the process exit code. A signal wins;
// otherwise the run succeeds when at least one view was saved.
func exitCodeFor(summary *imagegen.RunSummary, runErr error, sig os.Signal) int {
	if sig != nil {
		return core.ExitCodeForSignal(sig)
	}
	if summary == nil || summary.Succeeded() == 0 {
		return core.ExitCodeError
	}
	if runErr != nil {
		return core.ExitCodeError
	}
	return core.ExitCodeSuccess
}

func printError(w io.Writer, err error) {
	if err == nil {
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(w, "ERROR: %v\n", err)
}

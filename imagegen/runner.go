// runner.go implements the Runner that drives a full multi-angle run:
// validate the input once, request every angle in sequence, save each view,
// then assemble the montage.
//
// The Runner composes:
//   - validation.ImageValidator: input checks before any network call
//   - Provider: one generation per angle (throttle and retry inside)
//   - Downloader: atomic saves under view_%03ddeg.<fmt>
//   - vision.WriteMontage: the preview grid
//   - RunObserver: history and metrics sinks
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"multiangle/core"
	"multiangle/logging"
	"multiangle/validation"
	"multiangle/vision"
)

// RunObserver receives run lifecycle events. Calls are synchronous and
// happen on the Runner's goroutine; implementations log their own failures.
type RunObserver interface {
	RunStarted(ctx context.Context, run RunInfo)
	ViewFinished(ctx context.Context, runID string, result GenerationResult)
	MontageFinished(ctx context.Context, runID string, path string, err error)
	RunFinished(ctx context.Context, summary *RunSummary)
}

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	// OutputDir is the base directory; views go to OutputDir/<stem>/.
	OutputDir string

	// MinImageDimension is the smallest accepted input width or height.
	MinImageDimension int

	// RotationIncrement is the step between angles in degrees.
	RotationIncrement int

	// MontageColumns is the number of cells per montage row.
	MontageColumns int
}

// DefaultRunnerConfig returns the 72-view, 12-column configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		OutputDir:         core.DefaultOutputDir,
		MinImageDimension: validation.DefaultMinDimension,
		RotationIncrement: DefaultRotationIncrement,
		MontageColumns:    vision.DefaultMontageColumns,
	}
}

// Runner orchestrates a run. Angles are processed strictly one after another.
type Runner struct {
	provider   Provider
	downloader *Downloader
	validator  *validation.ImageValidator
	logger     *logging.Logger
	config     RunnerConfig
	observers  []RunObserver
}

// NewRunner creates a Runner. Nil observers are ignored.
func NewRunner(provider Provider, downloader *Downloader, logger *logging.Logger, config RunnerConfig, observers ...RunObserver) (*Runner, error) {
	if provider == nil {
		return nil, errors.New("imagegen: provider cannot be nil")
	}
	if downloader == nil {
		return nil, errors.New("imagegen: downloader cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("imagegen: logger cannot be nil")
	}
	if config.OutputDir == "" {
		config.OutputDir = core.DefaultOutputDir
	}

	var obs []RunObserver
	for _, o := range observers {
		if o != nil {
			obs = append(obs, o)
		}
	}

	return &Runner{
		provider:   provider,
		downloader: downloader,
		validator:  validation.NewImageValidator(config.MinImageDimension),
		logger:     logger.Named("runner"),
		config:     config,
		observers:  obs,
	}, nil
}

// Validate checks the input image without generating anything.
func (r *Runner) Validate(imagePath string) (*validation.ImageInfo, error) {
	return r.validator.Validate(imagePath)
}

// Run generates every angle for imagePath.
//
// Parameter and image validation failures return before any provider call.
// A failed angle is logged and recorded; the run continues with the next one.
// When ctx is cancelled the run stops between angles and returns the partial
// summary together with ctx.Err().
func (r *Runner) Run(ctx context.Context, imagePath string, params Parameters) (*RunSummary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	info, err := r.validator.Validate(imagePath)
	if err != nil {
		return nil, err
	}

	source, err := EncodeDataURI(info.Path, info.MIMEType)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(r.config.OutputDir, info.Stem)
	if err := ensureDir(outDir); err != nil {
		return nil, err
	}

	summary := &RunSummary{
		RunInfo: RunInfo{
			ID:         uuid.NewString(),
			InputPath:  info.Path,
			OutputDir:  outDir,
			Parameters: params,
			Angles:     Angles(r.config.RotationIncrement, FullRotation),
			StartedAt:  time.Now(),
		},
	}

	// Observers must still see the tail of an interrupted run.
	obsCtx := context.WithoutCancel(ctx)
	log := r.logger.With(zap.String("run_id", summary.ID))
	log.Info("run started",
		zap.String("input", info.Name),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Int("views", len(summary.Angles)),
		zap.String("output_dir", outDir))
	for _, o := range r.observers {
		o.RunStarted(obsCtx, summary.RunInfo)
	}

	total := len(summary.Angles)
	for i, angle := range summary.Angles {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		result := r.generateView(ctx, log, source, angle, params, outDir)
		summary.Results = append(summary.Results, result)
		for _, o := range r.observers {
			o.ViewFinished(obsCtx, summary.ID, result)
		}

		if result.Success {
			log.Info("view saved",
				zap.String("progress", fmt.Sprintf("%d/%d", i+1, total)),
				zap.Int("angle", angle),
				zap.String("file", filepath.Base(result.Path)),
				zap.Int("attempts", result.Attempts),
				zap.Duration("duration", result.Duration))
		} else if ctx.Err() == nil {
			log.Error("view failed, continuing",
				zap.String("progress", fmt.Sprintf("%d/%d", i+1, total)),
				zap.Int("angle", angle),
				zap.Int("attempts", result.Attempts),
				zap.String("reason", describeFailure(result.Err)))
		}
	}
	if ctx.Err() != nil {
		summary.Interrupted = true
	}

	if !params.NoMontage && !summary.Interrupted {
		r.buildMontage(obsCtx, log, summary, info.Stem)
	}

	summary.Elapsed = time.Since(summary.StartedAt)
	for _, o := range r.observers {
		o.RunFinished(obsCtx, summary)
	}

	log.Info("run finished",
		zap.Int("saved", summary.Succeeded()),
		zap.Int("failed", len(summary.Failed())),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("elapsed", summary.Elapsed))

	if summary.Interrupted {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (r *Runner) generateView(ctx context.Context, log *logging.Logger, source string, angle int, params Parameters, outDir string) GenerationResult {
	start := time.Now()
	result := GenerationResult{Angle: angle}

	gen, err := r.provider.Generate(ctx, NewGenerationRequest(source, angle, params))
	if err != nil {
		result.Err = err
		result.Attempts = attemptsFromError(err)
		result.Duration = time.Since(start)
		return result
	}
	result.Seed = gen.Seed
	result.Attempts = gen.Attempts

	dest := filepath.Join(outDir, ViewFileName(angle, params.OutputFormat))
	dl, err := r.downloader.Download(ctx, gen.URL, dest)
	if err != nil {
		log.Named("image").Warn("download failed",
			zap.Int("angle", angle),
			zap.String("request_id", gen.RequestID),
			zap.Error(err))
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Path = dl.Path
	result.Bytes = dl.Size
	result.Duration = time.Since(start)
	return result
}

// buildMontage writes <stem>_montage.png from the saved views. Failure is
// logged and leaves MontagePath empty.
func (r *Runner) buildMontage(ctx context.Context, log *logging.Logger, summary *RunSummary, stem string) {
	log = log.Named("montage")
	paths := summary.SavedPaths()
	if len(paths) == 0 {
		log.Warn("no views saved, skipping montage")
		return
	}

	out := filepath.Join(summary.OutputDir, stem+"_montage.png")
	res, err := vision.WriteMontage(paths, out, vision.MontageOptions{Columns: r.config.MontageColumns})
	for _, o := range r.observers {
		o.MontageFinished(ctx, summary.ID, out, err)
	}
	if err != nil {
		log.Warn("montage failed", zap.Error(err))
		return
	}

	summary.MontagePath = res.Path
	log.Info("montage created",
		zap.String("file", filepath.Base(res.Path)),
		zap.Int("columns", res.Columns),
		zap.Int("rows", res.Rows),
		zap.String("size", core.FormatBytes(res.Bytes)))
}

// EncodeDataURI reads path and returns it as a base64 data URI.
func EncodeDataURI(path, mimeType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("imagegen: failed to read input image: %w", err)
	}
	if mimeType == "" {
		mimeType = validation.MIMETypeForPath(path)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

package db

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"multiangle/imagegen"
	"multiangle/logging"
)

// HistoryRecorder writes run events to the repository. It implements
// imagegen.RunObserver. Write failures are logged and never stop a run.
type HistoryRecorder struct {
	repo   *Repository
	logger *logging.Logger
}

// NewHistoryRecorder creates a recorder. A nil logger discards log output.
func NewHistoryRecorder(repo *Repository, logger *logging.Logger) *HistoryRecorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HistoryRecorder{repo: repo, logger: logger.Named("history")}
}

// RunStarted inserts the run row.
func (h *HistoryRecorder) RunStarted(ctx context.Context, run imagegen.RunInfo) {
	params, err := json.Marshal(parametersJSON(run.Parameters))
	if err != nil {
		params = []byte("{}")
	}

	err = h.repo.CreateRun(ctx, RunRecord{
		ID:          run.ID,
		InputPath:   run.InputPath,
		OutputDir:   run.OutputDir,
		Parameters:  string(params),
		TotalAngles: len(run.Angles),
		StartedAt:   run.StartedAt,
	})
	if err != nil {
		h.logger.Warn("failed to record run start", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// ViewFinished inserts one angle row.
func (h *HistoryRecorder) ViewFinished(ctx context.Context, runID string, result imagegen.GenerationResult) {
	rec := AngleRecord{
		RunID:    runID,
		Angle:    result.Angle,
		Success:  result.Success,
		Path:     result.Path,
		Seed:     result.Seed,
		Attempts: result.Attempts,
		Bytes:    result.Bytes,
		Duration: result.Duration,
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	if err := h.repo.RecordAngle(ctx, rec); err != nil {
		h.logger.Warn("failed to record angle",
			zap.String("run_id", runID),
			zap.Int("angle", result.Angle),
			zap.Error(err))
	}
}

// MontageFinished is a no-op; the montage path is stored by RunFinished.
func (h *HistoryRecorder) MontageFinished(context.Context, string, string, error) {}

// RunFinished stores final counts and status.
func (h *HistoryRecorder) RunFinished(ctx context.Context, summary *imagegen.RunSummary) {
	status := StatusCompleted
	if summary.Interrupted {
		status = StatusInterrupted
	}

	err := h.repo.FinishRun(ctx, RunRecord{
		ID:          summary.ID,
		Succeeded:   summary.Succeeded(),
		Failed:      len(summary.Failed()),
		MontagePath: summary.MontagePath,
		Status:      status,
		FinishedAt:  summary.StartedAt.Add(summary.Elapsed),
		Elapsed:     summary.Elapsed,
	})
	if err != nil {
		h.logger.Warn("failed to record run finish", zap.String("run_id", summary.ID), zap.Error(err))
		return
	}
	h.logger.Debug("run recorded", zap.String("run_id", summary.ID), zap.String("db", h.repo.db.Path()))
}

type storedParameters struct {
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	LoraScale         float64 `json:"lora_scale"`
	MoveForward       float64 `json:"move_forward"`
	VerticalAngle     float64 `json:"vertical_angle"`
	WideAngleLens     bool    `json:"wide_angle_lens"`
	OutputFormat      string  `json:"output_format"`
	NoMontage         bool    `json:"no_montage"`
}

func parametersJSON(p imagegen.Parameters) storedParameters {
	return storedParameters{
		GuidanceScale:     p.GuidanceScale,
		NumInferenceSteps: p.NumInferenceSteps,
		LoraScale:         p.LoraScale,
		MoveForward:       p.MoveForward,
		VerticalAngle:     p.VerticalAngle,
		WideAngleLens:     p.WideAngleLens,
		OutputFormat:      p.OutputFormat,
		NoMontage:         p.NoMontage,
	}
}

var _ imagegen.RunObserver = (*HistoryRecorder)(nil)

package imagegen

import (
	"fmt"
	"time"
)

// Rotation defaults: 72 views at 5-degree steps.
const (
	DefaultRotationIncrement = 5
	FullRotation             = 360
)

// GenerationRequest is one angle's call to the provider. It is built fresh
// per angle and never mutated.
type GenerationRequest struct {
	SourceImage       string // data URI or public URL
	Angle             int    // degrees, 0..359
	GuidanceScale     float64
	NumInferenceSteps int
	LoraScale         float64
	MoveForward       float64
	VerticalAngle     float64
	WideAngleLens     bool
	OutputFormat      string
}

// NewGenerationRequest builds the request for angle from the shared parameters.
func NewGenerationRequest(source string, angle int, p Parameters) GenerationRequest {
	return GenerationRequest{
		SourceImage:       source,
		Angle:             angle,
		GuidanceScale:     p.GuidanceScale,
		NumInferenceSteps: p.NumInferenceSteps,
		LoraScale:         p.LoraScale,
		MoveForward:       p.MoveForward,
		VerticalAngle:     p.VerticalAngle,
		WideAngleLens:     p.WideAngleLens,
		OutputFormat:      p.OutputFormat,
	}
}

// Generation is a provider's answer: where the image can be fetched.
type Generation struct {
	URL         string
	ContentType string
	Width       int
	Height      int
	Seed        int64
	RequestID   string
	Attempts    int
}

// GenerationResult is the outcome of one angle.
type GenerationResult struct {
	Angle    int
	Path     string // empty unless Success
	Success  bool
	Seed     int64
	Attempts int
	Bytes    int64
	Err      error
	Duration time.Duration
}

// RunInfo identifies a run when it starts.
type RunInfo struct {
	ID         string
	InputPath  string
	OutputDir  string
	Parameters Parameters
	Angles     []int
	StartedAt  time.Time
}

// RunSummary is the outcome of a whole run.
type RunSummary struct {
	RunInfo

	Results     []GenerationResult // in angle order
	MontagePath string             // empty when skipped or failed
	Elapsed     time.Duration
	Interrupted bool
}

// Succeeded returns the number of views saved.
func (s *RunSummary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed returns the angles that produced no view, in order.
func (s *RunSummary) Failed() []int {
	var angles []int
	for _, r := range s.Results {
		if !r.Success {
			angles = append(angles, r.Angle)
		}
	}
	return angles
}

// SavedPaths returns the saved view paths in angle order.
func (s *RunSummary) SavedPaths() []string {
	var paths []string
	for _, r := range s.Results {
		if r.Success {
			paths = append(paths, r.Path)
		}
	}
	return paths
}

// BytesWritten sums the size of every saved view.
func (s *RunSummary) BytesWritten() int64 {
	var total int64
	for _, r := range s.Results {
		if r.Success {
			total += r.Bytes
		}
	}
	return total
}

// Angles returns 0, increment, 2*increment, ... below full.
// Non-positive arguments select the defaults.
func Angles(increment, full int) []int {
	if increment <= 0 {
		increment = DefaultRotationIncrement
	}
	if full <= 0 {
		full = FullRotation
	}
	angles := make([]int, 0, (full+increment-1)/increment)
	for a := 0; a < full; a += increment {
		angles = append(angles, a)
	}
	return angles
}

// ViewFileName returns the on-disk name for an angle, e.g. view_045deg.png.
func ViewFileName(angle int, format string) string {
	return fmt.Sprintf("view_%03ddeg.%s", angle, format)
}

package imagegen

import (
	"errors"
	"fmt"
	"strings"

	"multiangle/core"
)

// Parameter defaults.
const (
	DefaultGuidanceScale     = 1.0
	DefaultNumInferenceSteps = 6
	DefaultLoraScale         = 1.0
	DefaultMoveForward       = 0.0
	DefaultVerticalAngle     = 0.0
	DefaultOutputFormat      = "png"
)

// Valid parameter ranges, inclusive.
const (
	MinGuidanceScale     = 0.0
	MaxGuidanceScale     = 20.0
	MinNumInferenceSteps = 2
	MaxNumInferenceSteps = 50
	MinLoraScale         = 0.0
	MaxLoraScale         = 4.0
	MinMoveForward       = 0.0
	MaxMoveForward       = 10.0
	MinVerticalAngle     = -1.0
	MaxVerticalAngle     = 1.0
)

// OutputFormats lists the image formats the endpoint can return.
var OutputFormats = []string{"png", "jpeg", "webp"}

// Parameters are the user-supplied generation knobs shared by every angle of a run.
type Parameters struct {
	GuidanceScale     float64
	NumInferenceSteps int
	LoraScale         float64
	MoveForward       float64 // camera zoom, 0 = none
	VerticalAngle     float64 // -1 bird's-eye .. 1 worm's-eye
	WideAngleLens     bool
	OutputFormat      string

	// NoMontage skips the preview grid.
	NoMontage bool
}

// DefaultParameters returns the stock generation settings.
func DefaultParameters() Parameters {
	return Parameters{
		GuidanceScale:     DefaultGuidanceScale,
		NumInferenceSteps: DefaultNumInferenceSteps,
		LoraScale:         DefaultLoraScale,
		MoveForward:       DefaultMoveForward,
		VerticalAngle:     DefaultVerticalAngle,
		OutputFormat:      DefaultOutputFormat,
	}
}

// Validate reports every out-of-range value at once. Each problem is an
// INVALID_PARAMETER *core.ConfigError; the returned error joins them.
func (p Parameters) Validate() error {
	var errs []error

	if !inRange(p.GuidanceScale, MinGuidanceScale, MaxGuidanceScale) {
		errs = append(errs, core.ErrInvalidParameter("guidance-scale", p.GuidanceScale, MinGuidanceScale, MaxGuidanceScale))
	}
	if p.NumInferenceSteps < MinNumInferenceSteps || p.NumInferenceSteps > MaxNumInferenceSteps {
		errs = append(errs, core.ErrInvalidParameter("num-steps", p.NumInferenceSteps, MinNumInferenceSteps, MaxNumInferenceSteps))
	}
	if !inRange(p.LoraScale, MinLoraScale, MaxLoraScale) {
		errs = append(errs, core.ErrInvalidParameter("lora-scale", p.LoraScale, MinLoraScale, MaxLoraScale))
	}
	if !inRange(p.MoveForward, MinMoveForward, MaxMoveForward) {
		errs = append(errs, core.ErrInvalidParameter("move-forward", p.MoveForward, MinMoveForward, MaxMoveForward))
	}
	if !inRange(p.VerticalAngle, MinVerticalAngle, MaxVerticalAngle) {
		errs = append(errs, core.ErrInvalidParameter("vertical-angle", p.VerticalAngle, MinVerticalAngle, MaxVerticalAngle))
	}
	if !isOutputFormat(p.OutputFormat) {
		errs = append(errs, &core.ConfigError{
			Code:    core.ErrCodeInvalidParameter,
			Message: fmt.Sprintf("output-format must be one of %s, got %q", strings.Join(OutputFormats, ", "), p.OutputFormat),
		})
	}

	return errors.Join(errs...)
}

// inRange reports whether lo <= v <= hi. NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// Changed returns "name: value" lines for every parameter that differs from
// its default, in a stable order. The run summary prints them.
func (p Parameters) Changed() []string {
	d := DefaultParameters()
	var out []string
	if p.GuidanceScale != d.GuidanceScale {
		out = append(out, fmt.Sprintf("Guidance Scale: %g", p.GuidanceScale))
	}
	if p.NumInferenceSteps != d.NumInferenceSteps {
		out = append(out, fmt.Sprintf("Inference Steps: %d", p.NumInferenceSteps))
	}
	if p.LoraScale != d.LoraScale {
		out = append(out, fmt.Sprintf("LoRA Scale: %g", p.LoraScale))
	}
	if p.MoveForward > 0 {
		out = append(out, fmt.Sprintf("Camera Zoom: %g", p.MoveForward))
	}
	if p.VerticalAngle != 0 {
		out = append(out, fmt.Sprintf("Vertical Angle: %g", p.VerticalAngle))
	}
	if p.WideAngleLens {
		out = append(out, "Wide-Angle Lens: enabled")
	}
	if p.OutputFormat != d.OutputFormat {
		out = append(out, "Output Format: "+p.OutputFormat)
	}
	return out
}

func isOutputFormat(f string) bool {
	for _, ok := range OutputFormats {
		if f == ok {
			return true
		}
	}
	return false
}

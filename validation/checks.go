package validation

import (
	"errors"
	"fmt"

	"multiangle/core"
)

// CredentialsCheck verifies that a FAL key was loaded.
func CredentialsCheck(cfg *core.Config) Check {
	return Check{
		Name: "FAL credentials",
		Run: func() (StepStatus, string, error) {
			if cfg == nil || cfg.FalKey == "" {
				return StepFailed, "", core.ErrMissingAuth("FAL_KEY")
			}
			return StepPassed, "FAL_KEY loaded", nil
		},
	}
}

// ImageCheck validates the input image and stores the result in *info.
func ImageCheck(v *ImageValidator, path string, info **ImageInfo) Check {
	return Check{
		Name: "Input image",
		Run: func() (StepStatus, string, error) {
			got, err := v.Validate(path)
			if err != nil {
				return StepFailed, "", err
			}
			*info = got
			return StepPassed, fmt.Sprintf("%s %dx%d, %s", got.Format, got.Width, got.Height, core.FormatBytes(got.SizeBytes)), nil
		},
	}
}

// ParametersCheck wraps a parameter validation function.
func ParametersCheck(validate func() error) Check {
	return Check{
		Name: "Generation parameters",
		Run: func() (StepStatus, string, error) {
			if err := validate(); err != nil {
				return StepFailed, "", err
			}
			return StepPassed, "within range", nil
		},
	}
}

// OutputDirCheck prepares the output directory. Low disk space is a warning.
func OutputDirCheck(dir string) Check {
	return Check{
		Name: "Output directory",
		Run: func() (StepStatus, string, error) {
			err := CheckOutputDir(dir, EstimatedRunBytes)
			var spaceErr *DiskSpaceError
			switch {
			case err == nil:
				return StepPassed, dir, nil
			case errors.As(err, &spaceErr):
				return StepWarning, dir, err
			default:
				return StepFailed, "", err
			}
		},
	}
}

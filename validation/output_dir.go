package validation

import (
	"fmt"
	"os"

	"multiangle/core"
)

// EstimatedRunBytes is a rough upper bound for one run: 72 views plus a montage.
const EstimatedRunBytes int64 = 200 << 20

// DiskSpaceError indicates too little free space for a run.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("low disk space at %s: %s free, a run may need up to %s",
		e.Path, core.FormatBytes(e.Available), core.FormatBytes(e.Required))
}

// CheckOutputDir creates dir if needed and verifies it is writable.
// A *DiskSpaceError is returned, after the directory is ready, when fewer than
// requiredBytes are free; callers treat it as a warning.
func CheckOutputDir(dir string, requiredBytes int64) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	if requiredBytes <= 0 {
		return nil
	}
	free, err := freeDiskSpace(dir)
	if err != nil {
		// Free space is advisory; unknown is not a failure.
		return nil
	}
	if free < requiredBytes {
		return &DiskSpaceError{Path: dir, Required: requiredBytes, Available: free}
	}
	return nil
}

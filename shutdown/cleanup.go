package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"multiangle/core"
	"multiangle/logging"
)

// TempFilePattern matches the partial files left by core.WriteFileAtomic when
// the process is killed between create and rename.
const TempFilePattern = ".*.tmp"

// CleanupTempFiles returns a ShutdownFunc that removes leftover temp files
// from dir. Failures are logged; the function always returns nil.
func CleanupTempFiles(logger *logging.Logger, dir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		RemoveTempFiles(ctx, logger, dir)
		return nil
	}
}

// RemoveTempFiles deletes files in dir matching TempFilePattern and returns
// how many were removed. A missing dir is not an error.
func RemoveTempFiles(ctx context.Context, logger *logging.Logger, dir string) int {
	if logger == nil {
		logger = logging.NewNop()
	}

	matches, err := filepath.Glob(filepath.Join(dir, TempFilePattern))
	if err != nil {
		logger.Warn("failed to list temp files", zap.String("dir", dir), zap.Error(err))
		return 0
	}
	if len(matches) == 0 {
		return 0
	}

	removed := 0
	for _, match := range matches {
		if ctx.Err() != nil {
			logger.Warn("temp file cleanup cut short",
				zap.Int("removed", removed),
				zap.Int("remaining", len(matches)-removed))
			return removed
		}

		info, err := os.Lstat(match)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(match); err != nil {
			logger.Warn("failed to remove temp file", zap.String("file", filepath.Base(match)), zap.Error(err))
			continue
		}
		removed++
	}

	logger.Debug("removed temp files", zap.String("dir", dir), zap.Int("count", removed))
	return removed
}

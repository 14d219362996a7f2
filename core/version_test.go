package core

import (
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	result := GetVersionInfo()

	for _, part := range []string{Version, BuildTime, GitCommit, "built", "commit"} {
		if !strings.Contains(result, part) {
			t.Errorf("GetVersionInfo() = %q, should contain %q", result, part)
		}
	}
}

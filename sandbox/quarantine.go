package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultQuarantineDir is where scripts run when no override is configured.
const DefaultQuarantineDir = "/tmp/sandbox_quarantine"

// EnsureQuarantine creates the quarantine working directory if it does not
// exist and returns its absolute path. The directory is owner-only.
func EnsureQuarantine(dir string) (string, error) {
	if dir == "" {
		dir = DefaultQuarantineDir
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving quarantine dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("creating quarantine dir: %w", err)
	}

	return abs, nil
}

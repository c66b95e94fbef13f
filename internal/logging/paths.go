package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.keeprag/logs, falling back to the temp directory
// when the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".keeprag", "logs")
	}
	return filepath.Join(home, ".keeprag", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "keeprag.log")
}

// internal/browser/artifacts.go
package browser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/wizprobe/internal/config"
)

// ArtifactDir resolves and creates the screenshot directory for a run.
// It returns "" when screenshots are disabled. An empty configured dir means
// the OS temp dir; "~" is expanded.
func ArtifactDir(cfg config.ArtifactsConfig, runID string) (string, error) {
	if !cfg.Screenshots {
		return "", nil
	}
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand artifact dir %q: %w", dir, err)
	}
	if cfg.PerRunDir && runID != "" {
		expanded = filepath.Join(expanded, "wizprobe-"+runID)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir %s: %w", expanded, err)
	}
	return expanded, nil
}

// internal/browser/artifacts_test.go
package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wizprobe/internal/config"
)

func TestArtifactDir(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		dir, err := ArtifactDir(config.ArtifactsConfig{Screenshots: false, Dir: t.TempDir()}, "run")
		require.NoError(t, err)
		assert.Empty(t, dir)
	})

	t.Run("configured dir", func(t *testing.T) {
		base := t.TempDir()
		dir, err := ArtifactDir(config.ArtifactsConfig{Screenshots: true, Dir: base}, "run")
		require.NoError(t, err)
		assert.Equal(t, base, dir)
	})

	t.Run("per run subdirectory is created", func(t *testing.T) {
		base := t.TempDir()
		dir, err := ArtifactDir(config.ArtifactsConfig{Screenshots: true, Dir: base, PerRunDir: true}, "abc")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "wizprobe-abc"), dir)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("defaults to the temp dir", func(t *testing.T) {
		dir, err := ArtifactDir(config.ArtifactsConfig{Screenshots: true}, "")
		require.NoError(t, err)
		assert.Equal(t, os.TempDir(), dir)
	})

	t.Run("expands home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		homedir.DisableCache = true
		t.Cleanup(func() { homedir.DisableCache = false })
		dir, err := ArtifactDir(config.ArtifactsConfig{Screenshots: true, Dir: "~/shots"}, "")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "shots"), dir)
	})
}

// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/mocks"
	"github.com/xkilldash9x/wizprobe/internal/scenario"
	"github.com/xkilldash9x/wizprobe/internal/store"
)

// baseConfig keeps test runs quiet: no colors, no screenshots, fast polling.
const baseConfig = `
logger:
  level: error
report:
  color: false
artifacts:
  screenshots: false
wait:
  poll_interval: 5ms
  quiet: 10ms
  settle_timeout: 1s
  lookup_timeout: 1s
  step_timeout: 1s
`

// writeConfig stores baseConfig plus extra in a temporary wizprobe.yaml.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wizprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig+extra), 0o600))
	return path
}

// executeCommand runs a pristine command tree and returns what it printed to stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// stubSeams restores the package seams after the test and hides any
// history database configured in the environment.
func stubSeams(t *testing.T) {
	t.Helper()
	t.Setenv("WIZPROBE_STORE_URL", "")
	t.Setenv("DATABASE_URL", "")
	origDriver, origRun, origHistory := newDriver, runOnce, openHistory
	t.Cleanup(func() {
		newDriver, runOnce, openHistory = origDriver, origRun, origHistory
	})
}

// useDriver makes newDriver return d and records the browser config it was given.
func useDriver(t *testing.T, d browser.Driver) *config.BrowserConfig {
	t.Helper()
	var got config.BrowserConfig
	newDriver = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, error) {
		got = cfg
		return d, nil
	}
	return &got
}

// useHistory makes openHistory return repo.
func useHistory(t *testing.T, repo store.Repository) {
	t.Helper()
	openHistory = func(ctx context.Context, url string, logger *zap.Logger) (store.Repository, func(), error) {
		return repo, func() {}, nil
	}
}

// scriptedRuns makes runOnce return the given reports in order.
func scriptedRuns(t *testing.T, reports ...*findings.Report) *[]*config.Config {
	t.Helper()
	var seen []*config.Config
	runOnce = func(ctx context.Context, d browser.Driver, cfg *config.Config, in scenario.Input, logger *zap.Logger) (*findings.Report, string, error) {
		require.Less(t, len(seen), len(reports), "unexpected extra run")
		r := reports[len(seen)]
		seen = append(seen, cfg)
		r.Finish()
		return r, "", nil
	}
	return &seen
}

func newClosingDriver() *mocks.MockDriver {
	d := new(mocks.MockDriver)
	d.On("Close", mock.Anything).Return(nil)
	return d
}

func cleanReport(id string) *findings.Report {
	return findings.NewReport("http://wizard.test/", findings.WithID(id))
}

func buggyReport(id string) *findings.Report {
	r := cleanReport(id)
	r.Add(
		findings.Defect{Kind: findings.KindContinuityLoss, Step: 3, Field: "TAKS", Expected: "0.30", Message: "Step 1 TAKS (0.30) not visible in Step 3"},
		findings.Defect{Kind: findings.KindFormattingArtifact, Step: 3, Field: "Çıkma", Expected: "1.70", Observed: "1.7000000000000002", Message: "Çıkma shows as 1.7000000000000002 instead of 1.70"},
	)
	return r
}

// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/observability"
	"github.com/xkilldash9x/wizprobe/internal/reporting"
	"github.com/xkilldash9x/wizprobe/internal/scenario"
	"github.com/xkilldash9x/wizprobe/internal/store"
	"github.com/xkilldash9x/wizprobe/internal/wizard"
)

const shutdownTimeout = 10 * time.Second

// Seams replaced in tests.
var (
	newDriver = browser.NewDriver
	runOnce   = runWizard

	openHistory = func(ctx context.Context, url string, logger *zap.Logger) (store.Repository, func(), error) {
		s, closeFn, err := store.Open(ctx, url, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closeFn, nil
	}
)

func newRunCmd() *cobra.Command {
	var repeat int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Drives the wizard through the fixed scenario and reports regressions",
		Long: `Opens the construction forecast wizard, enters the fixed Step 1 scenario and
walks the remaining steps, checking for the disabled next step control,
values lost between steps and floating point artifacts in displayed numbers.

The command exits with status 1 when defects are found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return runProbe(cmd.Context(), cmd.OutOrStdout(), cfg, repeat, observability.GetLogger())
		},
	}

	runCmd.Flags().String("url", "", "Wizard URL (overrides target.base_url)")
	runCmd.Flags().StringP("format", "f", "", "Report format: text, json, sarif, junit, markdown")
	runCmd.Flags().StringP("output", "o", "", "Report file (default stdout)")
	runCmd.Flags().String("engine", "", "Browser engine: chromedp or playwright")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
	runCmd.Flags().IntVar(&repeat, "repeat", 1, "Number of sequential runs; the last run is reported")

	bindFlag(runCmd, "url", "target.base_url")
	bindFlag(runCmd, "format", "report.format")
	bindFlag(runCmd, "output", "report.output")
	bindFlag(runCmd, "engine", "browser.engine")
	bindFlag(runCmd, "headless", "browser.headless")

	return runCmd
}

// runProbe runs the oracle repeat times against one browser and writes the
// report of the last run.
func runProbe(ctx context.Context, out io.Writer, cfg *config.Config, repeat int, logger *zap.Logger) error {
	if repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1, got %d", repeat)
	}
	input, err := scenario.FromConfig(cfg.Scenario())
	if err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	history, closeHistory, err := openRunHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	driver, err := newDriver(ctx, cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := driver.Close(shutdownCtx); err != nil {
			logger.Warn("Failed to close browser cleanly.", zap.Error(err))
		}
	}()

	var (
		last    *findings.Report
		lastDir string
	)
	for i := 1; i <= repeat; i++ {
		report, dir, err := runOnce(ctx, driver, cfg, input, logger)
		if report != nil && history != nil {
			if saveErr := history.SaveRun(ctx, report.Record()); saveErr != nil {
				logger.Warn("Failed to persist run.", zap.String("run_id", report.ID()), zap.Error(saveErr))
			}
		}
		if err != nil {
			return fmt.Errorf("run %d of %d failed: %w", i, repeat, err)
		}
		if last != nil && !findings.SameDefects(last.Defects(), report.Defects()) {
			logger.Warn("Repeated runs disagree on defects.",
				zap.String("previous_run", last.ID()),
				zap.String("run_id", report.ID()),
				zap.String("diff", findings.DiffDefects(last.Defects(), report.Defects())))
		}
		last, lastDir = report, dir
	}

	if err := writeReport(out, cfg.Report(), last.Record(), lastDir, logger); err != nil {
		return err
	}
	if last.HasDefects() {
		return ErrDefectsFound
	}
	return nil
}

// runWizard performs one oracle run in a fresh page of driver.
func runWizard(ctx context.Context, driver browser.Driver, cfg *config.Config, input scenario.Input, logger *zap.Logger) (*findings.Report, string, error) {
	runID := uuid.NewString()
	dir, err := browser.ArtifactDir(cfg.Artifacts(), runID)
	if err != nil {
		return nil, "", err
	}

	page, err := driver.NewPage(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open page: %w", err)
	}
	session := browser.NewSession(page, cfg.Wait(), dir, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Debug("Failed to close page.", zap.Error(err))
		}
	}()

	report, err := wizard.New(session, input, cfg, logger, findings.WithID(runID)).Run(ctx)
	return report, dir, err
}

// openRunHistory connects to the history database when one is configured.
// The returned repository is nil otherwise.
func openRunHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, func(), error) {
	if !cfg.Store().Enabled() {
		return nil, func() {}, nil
	}
	history, closeFn, err := openHistory(ctx, cfg.Store().URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run history: %w", err)
	}
	if err := history.EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("failed to prepare run history: %w", err)
	}
	return history, closeFn, nil
}

// writeReport renders rec in the configured format to out or the configured file.
func writeReport(out io.Writer, rc config.ReportConfig, rec findings.Record, artifactDir string, logger *zap.Logger) error {
	opts := []reporting.Option{
		reporting.WithColor(rc.Color),
		reporting.WithVersion(Version),
		reporting.WithArtifactDir(artifactDir),
	}

	var (
		r   reporting.Reporter
		err error
	)
	if rc.Output == "" || rc.Output == "stdout" {
		r, err = reporting.NewWriter(rc.Format, reporting.NopCloser(out), logger, opts...)
	} else {
		r, err = reporting.New(rc.Format, rc.Output, logger, opts...)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s reporter: %w", rc.Format, err)
	}
	if err := r.Write(rec); err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := r.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}
	return nil
}

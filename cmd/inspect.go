// File: cmd/inspect.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"github.com/xkilldash9x/wizprobe/internal/observability"
	"github.com/xkilldash9x/wizprobe/internal/wizard"
)

func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Lists the inputs and buttons of the wizard's first step",
		Long: `Opens the wizard, starts a new project and prints every form control and
button found on the page. Useful for updating locators after UI changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return inspectWizard(cmd.Context(), cmd.OutOrStdout(), cfg, observability.GetLogger())
		},
	}
	inspectCmd.Flags().String("url", "", "Wizard URL (overrides target.base_url)")
	bindFlag(inspectCmd, "url", "target.base_url")
	return inspectCmd
}

func inspectWizard(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger) error {
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

	page, err := driver.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	session := browser.NewSession(page, cfg.Wait(), "", logger)
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Debug("Failed to close page.", zap.Error(err))
		}
	}()

	target := cfg.Target().BaseURL
	if err := session.Open(ctx, target); err != nil {
		return err
	}

	sel, err := session.WaitFor(ctx, wizard.StartChain(cfg.UI()))
	switch {
	case err == nil:
		if err := session.Click(ctx, sel); err != nil {
			return fmt.Errorf("failed to click %q: %w", cfg.UI().StartText, err)
		}
	case errors.Is(err, browser.ErrNotFound):
		logger.Warn("Start control not found; inspecting the page as loaded.", zap.String("text", cfg.UI().StartText))
	default:
		return err
	}
	if err := session.Settle(ctx); err != nil && ctx.Err() == nil {
		logger.Debug("Page did not settle.", zap.Error(err))
	}

	html, err := session.HTML(ctx)
	if err != nil {
		return err
	}
	inv, err := wizard.ParseInventory(html)
	if err != nil {
		return err
	}
	return inv.WriteMarkdown(out, "Wizard controls at "+target)
}

// internal/browser/playwright.go
package browser

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"go.uber.org/zap"
)

// PlaywrightDriver drives Playwright's managed Chromium.
type PlaywrightDriver struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
}

var _ Driver = (*PlaywrightDriver)(nil)

// NewPlaywrightDriver starts the Playwright driver and launches Chromium.
// The driver and browser binaries must already be installed.
func NewPlaywrightDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*PlaywrightDriver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := &PlaywrightDriver{cfg: cfg, logger: logger.Named("playwright")}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	d.pw = pw

	browser, err := pw.Chromium.Launch(launchOptions(cfg))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	d.browser = browser

	d.logger.Info("Browser launched.", zap.String("browser_version", browser.Version()), zap.Bool("headless", cfg.Headless))
	return d, nil
}

func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	args := []string{"--disable-gpu", "--disable-dev-shm-usage"}
	if cfg.IgnoreTLSErrors {
		args = append(args, "--ignore-certificate-errors")
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append(args, cfg.Args...),
	}
	if cfg.LaunchTimeout > 0 {
		opts.Timeout = playwright.Float(float64(cfg.LaunchTimeout.Milliseconds()))
	}
	if cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecPath)
	}
	return opts
}

// NewPage opens an isolated browser context with a single page.
func (d *PlaywrightDriver) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(d.cfg.IgnoreTLSErrors),
	}
	if d.cfg.Viewport.Width > 0 && d.cfg.Viewport.Height > 0 {
		opts.Viewport = &playwright.Size{Width: d.cfg.Viewport.Width, Height: d.cfg.Viewport.Height}
	}
	if len(d.cfg.Headers) > 0 {
		opts.ExtraHttpHeaders = d.cfg.Headers
	}

	bctx, err := d.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if d.cfg.ActionTimeout > 0 {
		page.SetDefaultTimeout(float64(d.cfg.ActionTimeout.Milliseconds()))
	}
	return &playwrightPage{bctx: bctx, page: page}, nil
}

// Close shuts down the browser and the driver process.
func (d *PlaywrightDriver) Close(ctx context.Context) error {
	var closeErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	}
	return closeErr
}

// playwrightPage adapts a Playwright page. Playwright calls are not
// context-aware, so cancellation is checked before each call.
type playwrightPage struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

var _ Page = (*playwrightPage)(nil)

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad})
	return err
}

func (p *playwrightPage) WaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateDomcontentloaded})
}

// Evaluate round-trips the result through JSON so out sees the same shapes
// the chromedp backend produces.
func (p *playwrightPage) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := p.page.Evaluate(script)
	if err != nil || out == nil {
		return err
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Click()
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Fill(value)
}

func (p *playwrightPage) Blur(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Blur()
}

func (p *playwrightPage) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Locator(selector).First().SelectOption(playwright.SelectOptionValues{Values: &[]string{value}})
	return err
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *playwrightPage) Close(ctx context.Context) error {
	if err := p.page.Close(); err != nil {
		_ = p.bctx.Close()
		return err
	}
	return p.bctx.Close()
}

// internal/browser/chromedp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"go.uber.org/zap"
)

// ChromedpDriver drives Chrome over the DevTools protocol.
type ChromedpDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// allocCtx manages the browser process. browserCtx is the first tab, which
	// owns the browser connection; pages are opened as sibling tabs.
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ Driver = (*ChromedpDriver)(nil)

// NewChromedpDriver starts Chrome and waits, up to cfg.LaunchTimeout, for it to respond.
func NewChromedpDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromedpDriver, error) {
	d := &ChromedpDriver{cfg: cfg, logger: logger.Named("chromedp")}

	// The process must outlive per-call deadlines; it is torn down in Close.
	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)
	d.browserCtx, d.browserCancel = chromedp.NewContext(d.allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)

	// The first Run allocates the browser. A timeout on its context would also
	// kill the browser, so the deadline is enforced from the outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(d.browserCtx) }()

	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			d.shutdown()
			return nil, fmt.Errorf("browser failed to start: %w", err)
		}
	case <-timer.C:
		d.shutdown()
		return nil, fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		d.shutdown()
		return nil, ctx.Err()
	}

	d.logger.Info("Browser launched.", zap.Bool("headless", cfg.Headless))
	return d, nil
}

// AllocatorOptions assembles the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+16)
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	return opts
}

// allocatorFlags maps Chrome command line flags (without leading dashes) to values.
func allocatorFlags(cfg config.BrowserConfig) map[string]any {
	flags := map[string]any{
		"headless":           cfg.Headless,
		"disable-extensions": true,
		"disable-gpu":        cfg.Headless,
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	if cfg.DisableCache {
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
	}

	// Containers on Linux rarely allow the sandbox.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	// Custom args last so they override the defaults above.
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// NewPage opens a tab and applies cache, header and viewport settings.
func (d *ChromedpDriver) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)

	actions := []chromedp.Action{network.Enable()}
	if d.cfg.DisableCache {
		actions = append(actions, network.SetCacheDisabled(true))
	}
	if len(d.cfg.Headers) > 0 {
		headers := make(network.Headers, len(d.cfg.Headers))
		for k, v := range d.cfg.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if d.cfg.Viewport.Width > 0 && d.cfg.Viewport.Height > 0 {
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(d.cfg.Viewport.Width), int64(d.cfg.Viewport.Height), 1, false))
	}

	p := &chromedpPage{tabCtx: tabCtx, tabCancel: tabCancel, timeout: d.cfg.ActionTimeout}
	if err := p.run(ctx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to initialize tab: %w", err)
	}
	return p, nil
}

// Close terminates the browser process.
func (d *ChromedpDriver) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(d.browserCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.shutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	d.logger.Debug("Browser closed.")
	return nil
}

func (d *ChromedpDriver) shutdown() {
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
		<-d.allocCtx.Done()
	}
}

// chromedpPage is one tab. Every call runs on a context carrying the tab's
// chromedp target, cancelled when the caller's ctx is done or the action times out.
type chromedpPage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	timeout   time.Duration
}

var _ Page = (*chromedpPage)(nil)

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if p.timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, p.timeout)
		defer tcancel()
	}
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) WaitReady(ctx context.Context) error {
	return p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromedpPage) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Fill clears the input and types value, which fires the key and input events
// that framework-controlled inputs listen to.
func (p *chromedpPage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *chromedpPage) Blur(ctx context.Context, selector string) error {
	return p.Evaluate(ctx, elementScript(selector, `el.blur(); return true;`), nil)
}

func (p *chromedpPage) SelectOption(ctx context.Context, selector, value string) error {
	var ok bool
	script := elementScript(selector, fmt.Sprintf(`
		const want = %s;
		const opt = Array.from(el.options || []).find(o => o.value === want || o.textContent.trim() === want);
		if (!opt) return false;
		el.value = opt.value;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;`, jsString(value)))
	if err := p.Evaluate(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("option %q not found in %s", value, selector)
	}
	return nil
}

func (p *chromedpPage) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	// Quality 100 yields PNG.
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (p *chromedpPage) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.tabCtx) }()
	select {
	case err := <-done:
		p.tabCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
		p.tabCancel()
		return ctx.Err()
	}
}

// elementScript wraps body in an IIFE binding el to the element matched by selector.
// The script throws when nothing matches.
func elementScript(selector, body string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) throw new Error("no element matches " + %s);
		%s
	})()`, jsString(selector), jsString(selector), body)
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

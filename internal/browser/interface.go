// internal/browser/interface.go
package browser

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/wizprobe/internal/config"
	"go.uber.org/zap"
)

// Driver owns one browser process and opens pages in it.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is one browser tab. Selectors are CSS selectors; element-level
// operations fail when the selector matches nothing.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the document body is available.
	WaitReady(ctx context.Context) error
	// Evaluate runs a JavaScript expression and decodes its result into out.
	// out may be nil when the result is not needed.
	Evaluate(ctx context.Context, script string, out any) error
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of an input the way typing would.
	Fill(ctx context.Context, selector, value string) error
	// Blur removes focus from the element, committing its value.
	Blur(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	// Screenshot writes a full page PNG to path.
	Screenshot(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// NewDriver launches the browser engine selected by cfg.Engine.
func NewDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Engine {
	case config.EngineChromedp, "":
		return NewChromedpDriver(ctx, cfg, logger)
	case config.EnginePlaywright:
		return NewPlaywrightDriver(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", cfg.Engine)
	}
}

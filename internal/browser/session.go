// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/xkilldash9x/wizprobe/internal/config"
	"go.uber.org/zap"
)

// Session wraps a Page with locator resolution, element state queries,
// condition waits and screenshot naming.
type Session struct {
	page        Page
	logger      *zap.Logger
	wait        config.WaitConfig
	artifactDir string
}

// NewSession binds a page to the wait settings and artifact directory.
// An empty artifactDir disables screenshots.
func NewSession(page Page, wait config.WaitConfig, artifactDir string, logger *zap.Logger) *Session {
	return &Session{
		page:        page,
		logger:      logger.Named("session"),
		wait:        wait,
		artifactDir: artifactDir,
	}
}

// Page exposes the underlying page.
func (s *Session) Page() Page { return s.page }

// ArtifactDir returns where screenshots are written.
func (s *Session) ArtifactDir() string { return s.artifactDir }

// Open navigates to url and waits for the document.
func (s *Session) Open(ctx context.Context, url string) error {
	if err := s.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := s.page.WaitReady(ctx); err != nil {
		return fmt.Errorf("document at %s never became ready: %w", url, err)
	}
	return nil
}

// Resolve tries each locator of the chain in order and returns the CSS
// selector of the first match. It returns ErrNotFound when none match.
func (s *Session) Resolve(ctx context.Context, chain Chain) (string, error) {
	ref := chain.Ref()
	for _, l := range chain.Locators {
		var found bool
		if err := s.page.Evaluate(ctx, probeScript(l, ref), &found); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.logger.Debug("Locator probe failed.", zap.String("chain", chain.Name), zap.Stringer("locator", l), zap.Error(err))
			continue
		}
		if found {
			s.logger.Debug("Locator resolved.", zap.String("chain", chain.Name), zap.Stringer("locator", l))
			return chain.Selector(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, chain)
}

// WaitFor polls Resolve until the chain matches or the lookup timeout elapses.
func (s *Session) WaitFor(ctx context.Context, chain Chain) (string, error) {
	var sel string
	err := Poll(ctx, s.wait.PollInterval, s.wait.LookupTimeout, func(ctx context.Context) (bool, error) {
		found, err := s.Resolve(ctx, chain)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		sel = found
		return true, nil
	})
	if errors.Is(err, ErrPollTimeout) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, chain)
	}
	return sel, err
}

func (s *Session) Click(ctx context.Context, selector string) error {
	return s.page.Click(ctx, selector)
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.page.Fill(ctx, selector, value)
}

func (s *Session) Blur(ctx context.Context, selector string) error {
	return s.page.Blur(ctx, selector)
}

func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	return s.page.SelectOption(ctx, selector, value)
}

// Visible reports whether the element has a layout box.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	var v bool
	err := s.page.Evaluate(ctx, elementScript(selector,
		`return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);`), &v)
	return v, err
}

// Disabled reports the disabled property or an aria-disabled="true" attribute.
func (s *Session) Disabled(ctx context.Context, selector string) (bool, error) {
	var v bool
	err := s.page.Evaluate(ctx, elementScript(selector,
		`return !!el.disabled || el.getAttribute("aria-disabled") === "true";`), &v)
	return v, err
}

// Value returns the current value of an input, select or textarea.
func (s *Session) Value(ctx context.Context, selector string) (string, error) {
	var v string
	err := s.page.Evaluate(ctx, elementScript(selector, `return String(el.value ?? "");`), &v)
	return v, err
}

// Attribute returns an attribute value and whether it is present.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var res struct {
		Value   string `json:"value"`
		Present bool   `json:"present"`
	}
	err := s.page.Evaluate(ctx, elementScript(selector, fmt.Sprintf(
		`const v = el.getAttribute(%s); return {value: v ?? "", present: v !== null};`, jsString(name))), &res)
	return res.Value, res.Present, err
}

// BodyText returns the rendered text of the document body.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	var text string
	err := s.page.Evaluate(ctx, `(() => document.body ? document.body.innerText : "")()`, &text)
	return text, err
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.page.Evaluate(ctx, `(() => document.documentElement.outerHTML)()`, &html)
	return html, err
}

// Settle waits for the body text to stop changing. A page that never goes
// quiet yields ErrPollTimeout, which callers usually only log.
func (s *Session) Settle(ctx context.Context) error {
	return Settle(ctx, s.BodyText, s.wait.PollInterval, s.wait.Quiet, s.wait.SettleTimeout)
}

// WaitUntil polls cond for at most timeout.
func (s *Session) WaitUntil(ctx context.Context, timeout time.Duration, cond Condition) error {
	return Poll(ctx, s.wait.PollInterval, timeout, cond)
}

// Screenshot saves a full page capture as name inside the artifact directory
// and returns its path. It is a no-op when screenshots are disabled.
func (s *Session) Screenshot(ctx context.Context, name string) (string, error) {
	if s.artifactDir == "" {
		return "", nil
	}
	path := filepath.Join(s.artifactDir, name)
	if err := s.page.Screenshot(ctx, path); err != nil {
		return "", fmt.Errorf("failed to capture %s: %w", name, err)
	}
	s.logger.Debug("Screenshot saved.", zap.String("path", path))
	return path, nil
}

// Close releases the page.
func (s *Session) Close(ctx context.Context) error {
	return s.page.Close(ctx)
}

// internal/browser/session_test.go
package browser_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"github.com/xkilldash9x/wizprobe/internal/mocks"
	"go.uber.org/zap/zaptest"
)

func testWait() config.WaitConfig {
	return config.WaitConfig{
		PollInterval:  time.Millisecond,
		Quiet:         5 * time.Millisecond,
		SettleTimeout: 200 * time.Millisecond,
		LookupTimeout: 50 * time.Millisecond,
		StepTimeout:   50 * time.Millisecond,
	}
}

// probeFor matches the probe script of a locator strategy.
func probeFor(strategy browser.Strategy) interface{} {
	return mock.MatchedBy(func(script string) bool {
		return strings.Contains(script, `"strategy":"`+string(strategy)+`"`)
	})
}

func setBool(v bool) func(mock.Arguments) {
	return func(args mock.Arguments) { *args.Get(2).(*bool) = v }
}

func setString(v string) func(mock.Arguments) {
	return func(args mock.Arguments) { *args.Get(2).(*string) = v }
}

func TestSessionResolve(t *testing.T) {
	ctx := context.Background()
	chain := browser.NewChain("Setback", browser.ByID("cikma"), browser.ByPlaceholder("1.60", "1,60"))

	t.Run("falls through to the next strategy", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Evaluate", ctx, probeFor(browser.StrategyID), mock.Anything).Run(setBool(false)).Return(nil).Once()
		page.On("Evaluate", ctx, probeFor(browser.StrategyPlaceholder), mock.Anything).Run(setBool(true)).Return(nil).Once()

		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		sel, err := s.Resolve(ctx, chain)
		require.NoError(t, err)
		assert.Equal(t, `[data-wizprobe-ref="setback"]`, sel)
		page.AssertExpectations(t)
	})

	t.Run("stops at the first match", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Evaluate", ctx, probeFor(browser.StrategyID), mock.Anything).Run(setBool(true)).Return(nil).Once()

		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		_, err := s.Resolve(ctx, chain)
		require.NoError(t, err)
		page.AssertNotCalled(t, "Evaluate", ctx, probeFor(browser.StrategyPlaceholder), mock.Anything)
	})

	t.Run("probe errors count as misses", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Evaluate", ctx, mock.Anything, mock.Anything).Return(errors.New("execution context was destroyed"))

		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		_, err := s.Resolve(ctx, chain)
		assert.ErrorIs(t, err, browser.ErrNotFound)
		assert.Contains(t, err.Error(), "Setback")
	})

	t.Run("cancellation wins over not found", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		page := new(mocks.MockPage)
		page.On("Evaluate", cctx, mock.Anything, mock.Anything).Return(context.Canceled)

		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		_, err := s.Resolve(cctx, chain)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSessionWaitFor(t *testing.T) {
	ctx := context.Background()
	chain := browser.NewChain("Proceed", browser.ByRoleText("button", "Sonraki"))

	t.Run("resolves once the element appears", func(t *testing.T) {
		page := new(mocks.MockPage)
		// Poll hands its own deadline context to each probe.
		page.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(setBool(false)).Return(nil).Twice()
		page.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(setBool(true)).Return(nil).Once()

		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		sel, err := s.WaitFor(ctx, chain)
		require.NoError(t, err)
		assert.Equal(t, chain.Selector(), sel)
	})

	t.Run("times out as not found", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(setBool(false)).Return(nil)

		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		_, err := s.WaitFor(ctx, chain)
		assert.ErrorIs(t, err, browser.ErrNotFound)
	})
}

func TestSessionQueries(t *testing.T) {
	ctx := context.Background()
	sel := `[data-wizprobe-ref="proceed"]`

	page := new(mocks.MockPage)
	page.On("Evaluate", ctx, mock.MatchedBy(func(s string) bool { return strings.Contains(s, "aria-disabled") }), mock.Anything).
		Run(setBool(true)).Return(nil)
	page.On("Evaluate", ctx, mock.MatchedBy(func(s string) bool { return strings.Contains(s, "getClientRects") }), mock.Anything).
		Run(setBool(true)).Return(nil)
	page.On("Evaluate", ctx, mock.MatchedBy(func(s string) bool { return strings.Contains(s, "el.value") }), mock.Anything).
		Run(setString("1.70")).Return(nil)
	page.On("Evaluate", ctx, mock.MatchedBy(func(s string) bool { return strings.Contains(s, "innerText") }), mock.Anything).
		Run(setString("Adım 3 Çıkma 1.70")).Return(nil)

	s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))

	disabled, err := s.Disabled(ctx, sel)
	require.NoError(t, err)
	assert.True(t, disabled)

	visible, err := s.Visible(ctx, sel)
	require.NoError(t, err)
	assert.True(t, visible)

	value, err := s.Value(ctx, sel)
	require.NoError(t, err)
	assert.Equal(t, "1.70", value)

	text, err := s.BodyText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Adım 3 Çıkma 1.70", text)
}

func TestSessionSettle(t *testing.T) {
	ctx := context.Background()
	page := new(mocks.MockPage)
	page.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(setString("loading")).Return(nil).Twice()
	page.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(setString("ready")).Return(nil)

	s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
	require.NoError(t, s.Settle(ctx))
}

func TestSessionScreenshot(t *testing.T) {
	ctx := context.Background()

	t.Run("writes into the artifact dir", func(t *testing.T) {
		dir := t.TempDir()
		page := new(mocks.MockPage)
		page.On("Screenshot", ctx, filepath.Join(dir, "step3.png")).Return(nil).Once()

		s := browser.NewSession(page, testWait(), dir, zaptest.NewLogger(t))
		path, err := s.Screenshot(ctx, "step3.png")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "step3.png"), path)
		page.AssertExpectations(t)
	})

	t.Run("disabled without a dir", func(t *testing.T) {
		page := new(mocks.MockPage)
		s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
		path, err := s.Screenshot(ctx, "step3.png")
		require.NoError(t, err)
		assert.Empty(t, path)
		page.AssertNotCalled(t, "Screenshot", mock.Anything, mock.Anything)
	})

	t.Run("wraps capture errors", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Screenshot", ctx, mock.Anything).Return(errors.New("target closed"))
		s := browser.NewSession(page, testWait(), t.TempDir(), zaptest.NewLogger(t))
		_, err := s.Screenshot(ctx, "bug1_navigation.png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bug1_navigation.png")
	})
}

func TestSessionOpen(t *testing.T) {
	ctx := context.Background()
	page := new(mocks.MockPage)
	page.On("Navigate", ctx, "http://wizard.test/").Return(nil)
	page.On("WaitReady", ctx).Return(errors.New("timeout"))

	s := browser.NewSession(page, testWait(), "", zaptest.NewLogger(t))
	err := s.Open(ctx, "http://wizard.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never became ready")
}

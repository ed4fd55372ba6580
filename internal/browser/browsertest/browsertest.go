// internal/browser/browsertest/browsertest.go
//
// Package browsertest launches real browsers for integration tests and serves
// static pages to them.
package browsertest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentBrowsers bounds browser processes across parallel tests.
const maxConcurrentBrowsers = 2

const (
	defaultTestTimeout      = 120 * time.Second
	cleanupGracePeriod      = 5 * time.Second
	semaphoreAcquireTimeout = 30 * time.Second
	shutdownTimeout         = 15 * time.Second
)

var (
	processSemaphore     *semaphore.Weighted
	processSemaphoreOnce sync.Once
)

func getProcessSemaphore() *semaphore.Weighted {
	processSemaphoreOnce.Do(func() {
		n := int64(runtime.GOMAXPROCS(0))
		if n > maxConcurrentBrowsers {
			n = maxConcurrentBrowsers
		}
		if n < 1 {
			n = 1
		}
		processSemaphore = semaphore.NewWeighted(n)
	})
	return processSemaphore
}

// chromeCandidates are looked up on PATH when WIZPROBE_CHROME is unset.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless-shell",
}

// FindChrome returns a Chrome executable or "" when none is installed.
func FindChrome() string {
	if p := os.Getenv("WIZPROBE_CHROME"); p != "" {
		return p
	}
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// Fixture is a launched browser bound to the lifetime of one test.
type Fixture struct {
	Driver  browser.Driver
	Config  *config.Config
	Logger  *zap.Logger
	RootCtx context.Context
}

// New launches a headless chromedp browser for t. It skips the test under
// -short or when no Chrome binary is available.
func New(t *testing.T, configure ...func(*config.Config)) *Fixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	chrome := FindChrome()
	if chrome == "" {
		t.Skip("no Chrome executable found; set WIZPROBE_CHROME to run browser tests")
	}

	logger := zaptest.NewLogger(t).With(zap.String("test", t.Name()))

	deadline, ok := t.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTestTimeout)
	}
	rootCtx, rootCancel := context.WithDeadline(context.Background(), deadline.Add(-cleanupGracePeriod))
	t.Cleanup(rootCancel)

	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.ExecPath = chrome
	cfg.BrowserCfg.Headless = true
	cfg.BrowserCfg.Viewport = config.ViewportConfig{Width: 1280, Height: 900}
	// Each browser gets its own profile to avoid SingletonLock contention.
	cfg.BrowserCfg.Args = append(cfg.BrowserCfg.Args, "--user-data-dir="+t.TempDir())
	cfg.ArtifactsCfg.Dir = t.TempDir()
	for _, c := range configure {
		c(cfg)
	}

	sem := getProcessSemaphore()
	acquireCtx, acquireCancel := context.WithTimeout(rootCtx, semaphoreAcquireTimeout)
	err := sem.Acquire(acquireCtx, 1)
	acquireCancel()
	if err != nil {
		t.Fatalf("failed to acquire browser slot: %v", err)
	}
	t.Cleanup(func() { sem.Release(1) })

	driver, err := browser.NewChromedpDriver(rootCtx, cfg.Browser(), logger)
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := driver.Close(ctx); err != nil {
			t.Logf("warning: browser shutdown: %v", err)
		}
	})

	return &Fixture{Driver: driver, Config: cfg, Logger: logger, RootCtx: rootCtx}
}

// NewSession opens a page wrapped in a Session using the fixture's settings.
func (f *Fixture) NewSession(t *testing.T) *browser.Session {
	t.Helper()
	page, err := f.Driver.NewPage(f.RootCtx)
	if err != nil {
		t.Fatalf("failed to open page: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = page.Close(ctx)
	})
	return browser.NewSession(page, f.Config.Wait(), f.Config.Artifacts().Dir, f.Logger)
}

// Serve starts an httptest server for handler, closed with the test.
func Serve(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// ServeHTML serves a fixed HTML document on every path.
func ServeHTML(t *testing.T, html string) *httptest.Server {
	t.Helper()
	return Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}))
}

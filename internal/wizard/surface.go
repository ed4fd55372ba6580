// File: internal/wizard/surface.go
package wizard

import (
	"context"
	"time"

	"github.com/xkilldash9x/wizprobe/internal/browser"
)

// Surface is the slice of a browser session the oracle drives.
// *browser.Session implements it.
type Surface interface {
	Open(ctx context.Context, url string) error
	Resolve(ctx context.Context, chain browser.Chain) (string, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Blur(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	Visible(ctx context.Context, selector string) (bool, error)
	Disabled(ctx context.Context, selector string) (bool, error)
	Value(ctx context.Context, selector string) (string, error)
	BodyText(ctx context.Context) (string, error)
	Settle(ctx context.Context) error
	WaitUntil(ctx context.Context, timeout time.Duration, cond browser.Condition) error
	Screenshot(ctx context.Context, name string) (string, error)
}

var _ Surface = (*browser.Session)(nil)

// Snapshot is what one checkpoint observed.
type Snapshot struct {
	Step int
	Text string
}

// Screenshot names, one per checkpoint.
const (
	ShotHome          = "step0_home.png"
	ShotInitial       = "step1_initial.png"
	ShotNavigationBug = "bug1_navigation.png"
	ShotStep2         = "step2.png"
	ShotStep2Disabled = "step2_disabled.png"
	ShotStep3         = "step3.png"
	ShotStep3Data     = "step3_data.png"
	ShotStep3Disabled = "step3_disabled.png"
	ShotStep4         = "step4.png"
)

// File: internal/wizard/oracle.go
package wizard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xkilldash9x/wizprobe/internal/browser"
	"github.com/xkilldash9x/wizprobe/internal/checks"
	"github.com/xkilldash9x/wizprobe/internal/config"
	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/scenario"
	"go.uber.org/zap"
)

// Wizard steps.
const (
	Step1 = 1
	Step2 = 2
	Step3 = 3
	Step4 = 4
)

// Oracle drives the construction forecast wizard through one fixed scenario
// and records what it finds. An Oracle runs sequentially and is not safe for
// concurrent use.
type Oracle struct {
	surface Surface
	input   scenario.Input
	target  string
	navWait time.Duration
	ui      config.UIConfig
	wait    config.WaitConfig
	checks  config.ChecksConfig
	scanner *checks.DecimalScanner
	logger  *zap.Logger
	opts    []findings.Option

	// stale holds the step markers already shown on Step 1, such as the
	// titles of a stepper header. They do not identify the current step.
	stale map[string]bool
}

// New creates an Oracle. Report options such as findings.WithID are applied
// to every report it produces.
func New(surface Surface, input scenario.Input, cfg config.Interface, logger *zap.Logger, opts ...findings.Option) *Oracle {
	return &Oracle{
		surface: surface,
		input:   input,
		target:  cfg.Target().BaseURL,
		navWait: cfg.Target().NavigationTimeout,
		ui:      cfg.UI(),
		wait:    cfg.Wait(),
		checks:  cfg.Checks(),
		scanner: checks.NewDecimalScanner(cfg.Checks().DecimalThreshold),
		logger:  logger.Named("oracle"),
		opts:    opts,
	}
}

// Run executes the scenario. The returned report is never nil. A non-nil
// error means the run could not proceed (navigation failure, cancellation);
// the report then holds whatever was found before.
func (o *Oracle) Run(ctx context.Context) (*findings.Report, error) {
	report := findings.NewReport(o.target, o.opts...)
	defer report.Finish()

	log := o.logger.With(zap.String("run_id", report.ID()))
	log.Info("Starting wizard run.", zap.String("url", o.target))

	if err := o.open(ctx, report); err != nil {
		return report, err
	}
	o.recordStaleMarkers(ctx)
	if err := o.fillStep1(ctx, report); err != nil {
		return report, err
	}

	nav, err := o.checkNavigationEnabled(ctx, report)
	if err != nil {
		return report, err
	}
	switch nav {
	case navBlocked:
		log.Warn("Navigation blocked after Step 1; stopping.")
		return report, nil
	case navMissing:
		o.unreachable(report, Step2, "proceed control not found on Step 1")
		return report, nil
	}

	if err := o.runSteps(ctx, report); err != nil {
		return report, err
	}

	log.Info("Wizard run finished.", zap.Int("defects", len(report.Defects())), zap.Int("warnings", len(report.Warnings())))
	return report, nil
}

func (o *Oracle) runSteps(ctx context.Context, report *findings.Report) error {
	// Step 2: area summary.
	res, err := o.advanceTo(ctx, report, Step2)
	if err != nil {
		return err
	}
	if res != advanced {
		o.unreachable(report, Step2, res.reason(Step1))
		return nil
	}
	snap, err := o.snapshot(ctx, report, Step2)
	if err != nil {
		return err
	}
	if !containsAny(snap.Text, o.ui.AreaSummary) {
		o.warn(report, Step2, "Step 2 may be missing area information (%s)", strings.Join(o.ui.AreaSummary, ", "))
	}
	if err := o.screenshot(ctx, report, Step2, ShotStep2); err != nil {
		return err
	}
	o.runChecks(report, snap)

	// Step 3: cost and pricing.
	res, err = o.advanceTo(ctx, report, Step3)
	if err != nil {
		return err
	}
	if res != advanced {
		if res == proceedDisabled {
			if err := o.screenshot(ctx, report, Step2, ShotStep2Disabled); err != nil {
				return err
			}
		}
		o.unreachable(report, Step3, res.reason(Step2))
		return nil
	}
	if err := o.screenshot(ctx, report, Step3, ShotStep3); err != nil {
		return err
	}
	snap, err = o.snapshot(ctx, report, Step3)
	if err != nil {
		return err
	}
	o.runChecks(report, snap)
	if err := o.screenshot(ctx, report, Step3, ShotStep3Data); err != nil {
		return err
	}

	// Step 4: financial summary.
	res, err = o.advanceTo(ctx, report, Step4)
	if err != nil {
		return err
	}
	if res != advanced {
		if res == proceedDisabled {
			if err := o.screenshot(ctx, report, Step3, ShotStep3Disabled); err != nil {
				return err
			}
		}
		o.unreachable(report, Step4, res.reason(Step3))
		return nil
	}
	if err := o.screenshot(ctx, report, Step4, ShotStep4); err != nil {
		return err
	}
	snap, err = o.snapshot(ctx, report, Step4)
	if err != nil {
		return err
	}
	if !containsAny(snap.Text, o.ui.FinancialSum) {
		o.warn(report, Step4, "Financial summary may be incomplete (%s)", strings.Join(o.ui.FinancialSum, ", "))
	}
	o.runChecks(report, snap)
	return nil
}

// open loads the wizard and starts a new project.
func (o *Oracle) open(ctx context.Context, report *findings.Report) error {
	if err := o.navigate(ctx); err != nil {
		return fmt.Errorf("failed to open wizard: %w", err)
	}
	if err := o.screenshot(ctx, report, 0, ShotHome); err != nil {
		return err
	}

	visible := false
	sel, err := o.find(ctx, StartChain(o.ui), o.wait.StepTimeout)
	switch {
	case err == nil:
		visible, err = o.surface.Visible(ctx, sel)
		if err := o.tolerate(ctx, report, Step1, err, "reading %q visibility", o.ui.StartText); err != nil {
			return err
		}
	case errors.Is(err, browser.ErrNotFound):
	default:
		if err := o.tolerate(ctx, report, Step1, err, "%q control", o.ui.StartText); err != nil {
			return err
		}
	}

	if !visible {
		o.warn(report, Step1, "%q not visible; the wizard may already be open", o.ui.StartText)
	} else if err := o.surface.Click(ctx, sel); err != nil {
		if err := o.tolerate(ctx, report, Step1, err, "failed to click %q", o.ui.StartText); err != nil {
			return err
		}
	} else {
		o.settle(ctx)
	}
	return o.screenshot(ctx, report, Step1, ShotInitial)
}

func (o *Oracle) navigate(ctx context.Context) error {
	if o.navWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.navWait)
		defer cancel()
	}
	return o.surface.Open(ctx, o.target)
}

// fillStep1 enters the parcel and zoning inputs. Decimal fields are committed
// in the order setback, TAKS, KAKS.
func (o *Oracle) fillStep1(ctx context.Context, report *findings.Report) error {
	f := o.ui.Fields

	if sel, err := o.find(ctx, browser.ChainFromConfig("district", f.District), o.wait.StepTimeout); err != nil {
		if err := o.tolerate(ctx, report, Step1, err, "district selector"); err != nil {
			return err
		}
	} else if err := o.surface.SelectOption(ctx, sel, o.input.District); err != nil {
		if err := o.tolerate(ctx, report, Step1, err, "failed to select district %q", o.input.District); err != nil {
			return err
		}
	}

	for _, fld := range []struct {
		name  string
		loc   config.FieldLocatorConfig
		value string
	}{
		{scenario.FieldAda, f.Ada, o.input.Ada},
		{scenario.FieldParsel, f.Parsel, o.input.Parsel},
	} {
		if err := o.fill(ctx, report, fld.name, fld.loc, fld.value, false); err != nil {
			return err
		}
	}

	if err := o.lookup(ctx, report); err != nil {
		return err
	}
	if err := o.fillParcelArea(ctx, report); err != nil {
		return err
	}

	decimals := []struct {
		name  string
		loc   config.FieldLocatorConfig
		value scenario.Decimal
	}{
		{scenario.FieldSetback, f.Setback, o.input.Setback},
		{scenario.FieldTAKS, f.TAKS, o.input.TAKS},
		{scenario.FieldKAKS, f.KAKS, o.input.KAKS},
	}
	for i, d := range decimals {
		if err := o.fill(ctx, report, d.name, d.loc, d.value.Text, true); err != nil {
			return err
		}
		if i == len(decimals)-1 {
			break
		}
		step, err := o.stepLeavingStep1(ctx)
		if err != nil {
			if err := o.tolerate(ctx, report, Step1, err, "step detection after %s", scenario.Label(d.name)); err != nil {
				return err
			}
			continue
		}
		if step > Step1 {
			labels := make([]string, 0, i+1)
			for _, c := range decimals[:i+1] {
				labels = append(labels, scenario.Label(c.name))
			}
			o.warn(report, Step1, "Wizard advanced to Step %d after committing only %s", step, strings.Join(labels, ", "))
			return nil
		}
	}
	return nil
}

// fill enters value into the field; commit adds a blur and a settle wait.
func (o *Oracle) fill(ctx context.Context, report *findings.Report, name string, loc config.FieldLocatorConfig, value string, commit bool) error {
	label := scenario.Label(name)
	sel, err := o.find(ctx, browser.ChainFromConfig(name, loc), o.wait.StepTimeout)
	if err != nil {
		return o.tolerate(ctx, report, Step1, err, "%s input", label)
	}
	if err := o.surface.Fill(ctx, sel, value); err != nil {
		return o.tolerate(ctx, report, Step1, err, "failed to fill %s", label)
	}
	if commit {
		if err := o.surface.Blur(ctx, sel); err != nil {
			return o.tolerate(ctx, report, Step1, err, "failed to commit %s", label)
		}
		o.settle(ctx)
	}
	o.logger.Debug("Filled field.", zap.String("field", name), zap.String("value", value), zap.Bool("committed", commit))
	return nil
}

// lookup presses the registry lookup button and waits for the response to render.
func (o *Oracle) lookup(ctx context.Context, report *findings.Report) error {
	if o.ui.LookupText == "" {
		return nil
	}
	chain := browser.NewChain("lookup", browser.ByRoleText("button", o.ui.LookupText))
	sel, err := o.find(ctx, chain, o.wait.StepTimeout)
	if err == nil {
		err = o.surface.Click(ctx, sel)
	}
	if err != nil {
		return o.tolerate(ctx, report, Step1, err, "%s lookup", o.ui.LookupText)
	}
	// Registry responses can be slow; keep settling until the lookup timeout.
	if err := o.surface.WaitUntil(ctx, o.wait.LookupTimeout, func(ctx context.Context) (bool, error) {
		return true, o.surface.Settle(ctx)
	}); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// fillParcelArea fills the area only when the field exists and the lookup left it empty.
func (o *Oracle) fillParcelArea(ctx context.Context, report *findings.Report) error {
	chain := browser.ChainFromConfig(scenario.FieldParcelArea, o.ui.Fields.ParcelArea)
	sel, err := o.surface.Resolve(ctx, chain)
	if errors.Is(err, browser.ErrNotFound) {
		o.logger.Debug("Parcel area field absent; relying on the lookup.")
		return nil
	}
	if err != nil {
		return o.tolerate(ctx, report, Step1, err, "parcel area input")
	}
	current, err := o.surface.Value(ctx, sel)
	if err != nil {
		return o.tolerate(ctx, report, Step1, err, "reading parcel area")
	}
	if strings.TrimSpace(current) != "" {
		o.logger.Debug("Parcel area already populated.", zap.String("value", current))
		return nil
	}
	return o.fill(ctx, report, scenario.FieldParcelArea, o.ui.Fields.ParcelArea, o.input.ParcelArea.Text, true)
}

type navState int

const (
	navEnabled navState = iota
	navAdvanced
	navBlocked
	navMissing
)

// checkNavigationEnabled decides whether Step 1 can be left. A disabled
// proceed control is the terminal navigation-blocked defect.
func (o *Oracle) checkNavigationEnabled(ctx context.Context, report *findings.Report) (navState, error) {
	step, err := o.stepLeavingStep1(ctx)
	if err != nil {
		if err := o.tolerate(ctx, report, Step1, err, "step detection"); err != nil {
			return navMissing, err
		}
	}
	if step > Step1 {
		o.logger.Info("Wizard auto-advanced past Step 1.", zap.Int("step", step))
		return navAdvanced, nil
	}

	sel, err := o.find(ctx, o.proceedChain(), o.wait.StepTimeout)
	if err != nil {
		if err := o.tolerate(ctx, report, Step1, err, "%q control", o.ui.ProceedText); err != nil {
			return navMissing, err
		}
		return navMissing, nil
	}
	disabled, err := o.surface.Disabled(ctx, sel)
	if err != nil {
		if err := o.tolerate(ctx, report, Step1, err, "reading %q state", o.ui.ProceedText); err != nil {
			return navMissing, err
		}
		return navMissing, nil
	}
	if !disabled {
		return navEnabled, nil
	}

	report.Add(findings.Defect{
		Kind:     findings.KindNavigationBlocked,
		Step:     Step1,
		Expected: "enabled",
		Observed: "disabled",
		Message:  fmt.Sprintf("'%s' button is disabled after filling all Step 1 inputs", o.proceedLabel()),
	})
	report.MarkTerminal()
	return navBlocked, o.screenshot(ctx, report, Step1, ShotNavigationBug)
}

type advanceResult int

const (
	advanced advanceResult = iota
	proceedDisabled
	proceedMissing
)

func (r advanceResult) reason(from int) string {
	switch r {
	case proceedDisabled:
		return fmt.Sprintf("proceed control on Step %d is disabled", from)
	case proceedMissing:
		return fmt.Sprintf("proceed control on Step %d not found", from)
	}
	return ""
}

// advanceTo moves the wizard to target. When the markers show the wizard is
// already there (auto-advance) nothing is clicked.
func (o *Oracle) advanceTo(ctx context.Context, report *findings.Report, target int) (advanceResult, error) {
	current := o.currentStep
	if target == Step2 {
		current = o.stepLeavingStep1
	}
	step, err := current(ctx)
	if err != nil {
		if err := o.tolerate(ctx, report, target, err, "step detection"); err != nil {
			return proceedMissing, err
		}
	}
	if step >= target {
		o.logger.Info("Already on step (auto-advanced).", zap.Int("step", step), zap.Int("target", target))
		return advanced, nil
	}

	sel, err := o.find(ctx, o.proceedChain(), o.wait.StepTimeout)
	if err != nil {
		return proceedMissing, o.tolerate(ctx, report, target-1, err, "%q control", o.ui.ProceedText)
	}
	disabled, err := o.surface.Disabled(ctx, sel)
	if err != nil {
		return proceedMissing, o.tolerate(ctx, report, target-1, err, "reading %q state", o.ui.ProceedText)
	}
	if disabled {
		o.logger.Warn("Proceed control disabled.", zap.Int("step", target-1))
		return proceedDisabled, nil
	}
	markers := o.liveMarkers(target)
	var before string
	if len(markers) == 0 {
		if before, err = o.surface.BodyText(ctx); err != nil {
			return proceedMissing, o.tolerate(ctx, report, target-1, err, "reading Step %d text", target-1)
		}
	}
	if err := o.surface.Click(ctx, sel); err != nil {
		return proceedMissing, o.tolerate(ctx, report, target-1, err, "failed to click %q", o.ui.ProceedText)
	}

	if len(markers) > 0 {
		err = o.surface.WaitUntil(ctx, o.wait.StepTimeout, func(ctx context.Context) (bool, error) {
			s, err := current(ctx)
			return s >= target, err
		})
	} else {
		// Nothing identifies the target step; wait for the page to change.
		err = o.surface.WaitUntil(ctx, o.wait.StepTimeout, func(ctx context.Context) (bool, error) {
			text, err := o.surface.BodyText(ctx)
			return text != before, err
		})
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return advanced, ctx.Err()
	case len(markers) > 0:
		o.warn(report, target, "Step %d markers not seen after proceeding", target)
	default:
		o.warn(report, target, "Page did not change after proceeding to Step %d", target)
	}
	o.settle(ctx)
	return advanced, nil
}

// currentStep is the highest step whose markers appear in the page, Step1 when none do.
func (o *Oracle) currentStep(ctx context.Context) (int, error) {
	text, err := o.surface.BodyText(ctx)
	if err != nil {
		return Step1, err
	}
	return detectStep(text, o.ui.Steps, o.stale), nil
}

// stepLeavingStep1 is currentStep for the Step 1 boundary. Markers alone do
// not prove the wizard left Step 1 while its decimal inputs are still on the page.
func (o *Oracle) stepLeavingStep1(ctx context.Context) (int, error) {
	step, err := o.currentStep(ctx)
	if err != nil || step == Step1 {
		return step, err
	}
	present, err := o.step1Present(ctx)
	if err != nil {
		return Step1, err
	}
	if present {
		o.logger.Debug("Step markers visible while Step 1 inputs remain.", zap.Int("marker_step", step))
		return Step1, nil
	}
	return step, nil
}

// step1Present reports whether any Step 1 decimal input is still shown.
func (o *Oracle) step1Present(ctx context.Context) (bool, error) {
	f := o.ui.Fields
	for _, chain := range []browser.Chain{
		browser.ChainFromConfig(scenario.FieldSetback, f.Setback),
		browser.ChainFromConfig(scenario.FieldTAKS, f.TAKS),
		browser.ChainFromConfig(scenario.FieldKAKS, f.KAKS),
	} {
		sel, err := o.surface.Resolve(ctx, chain)
		switch {
		case err == nil:
			visible, err := o.surface.Visible(ctx, sel)
			if err != nil || visible {
				return visible, err
			}
		case errors.Is(err, browser.ErrNotFound):
		default:
			return false, err
		}
	}
	return false, nil
}

// recordStaleMarkers remembers which step markers are already visible on Step 1.
func (o *Oracle) recordStaleMarkers(ctx context.Context) {
	o.stale = map[string]bool{}
	text, err := o.surface.BodyText(ctx)
	if err != nil {
		o.logger.Debug("Could not read Step 1 text.", zap.Error(err))
		return
	}
	var found []string
	for _, m := range slices.Concat(o.ui.Steps.Step2, o.ui.Steps.Step3, o.ui.Steps.Step4) {
		if m != "" && strings.Contains(text, m) && !o.stale[m] {
			o.stale[m] = true
			found = append(found, m)
		}
	}
	if len(found) > 0 {
		o.logger.Info("Ignoring step markers already shown on Step 1.", zap.Strings("markers", found))
	}
}

// liveMarkers are the markers of step that were not already shown on Step 1.
func (o *Oracle) liveMarkers(step int) []string {
	var all []string
	switch step {
	case Step2:
		all = o.ui.Steps.Step2
	case Step3:
		all = o.ui.Steps.Step3
	case Step4:
		all = o.ui.Steps.Step4
	}
	var live []string
	for _, m := range all {
		if !o.stale[m] {
			live = append(live, m)
		}
	}
	return live
}

// detectStep is the highest step with a marker in text that is not stale.
func detectStep(text string, markers config.StepMarkersConfig, stale map[string]bool) int {
	byStep := []struct {
		step    int
		markers []string
	}{
		{Step4, markers.Step4},
		{Step3, markers.Step3},
		{Step2, markers.Step2},
	}
	for _, s := range byStep {
		for _, m := range s.markers {
			if m != "" && !stale[m] && strings.Contains(text, m) {
				return s.step
			}
		}
	}
	return Step1
}

func (o *Oracle) snapshot(ctx context.Context, report *findings.Report, step int) (Snapshot, error) {
	snap := Snapshot{Step: step}
	text, err := o.surface.BodyText(ctx)
	if err != nil {
		return snap, o.tolerate(ctx, report, step, err, "reading Step %d text", step)
	}
	snap.Text = text
	return snap, nil
}

// runChecks applies the continuity and decimal predicates configured for the snapshot's step.
func (o *Oracle) runChecks(report *findings.Report, snap Snapshot) {
	if snap.Text == "" {
		return
	}
	if slices.Contains(o.checks.ContinuitySteps, snap.Step) {
		report.Add(checkDataContinuity(snap, o.input.Continuity())...)
	}
	if slices.Contains(o.checks.DecimalSteps, snap.Step) {
		report.Add(o.checkDecimalFormatting(snap)...)
	}
}

func checkDataContinuity(snap Snapshot, expected []scenario.ExpectedValue) []findings.Defect {
	return checks.Continuity(snap.Step, snap.Text, expected)
}

func (o *Oracle) checkDecimalFormatting(snap Snapshot) []findings.Defect {
	return o.scanner.Check(snap.Step, snap.Text, o.input.Decimals())
}

// unreachable records a step-unreachable defect for from and every later step.
func (o *Oracle) unreachable(report *findings.Report, from int, reason string) {
	for step := from; step <= Step4; step++ {
		report.Add(findings.Defect{
			Kind:    findings.KindStepUnreachable,
			Step:    step,
			Message: fmt.Sprintf("Step %d could not be reached: %s", step, reason),
		})
	}
}

// StartChain locates the control that starts a new project.
func StartChain(ui config.UIConfig) browser.Chain {
	return browser.NewChain("start", browser.ByRoleText("button", ui.StartText), browser.ByText(ui.StartText))
}

func (o *Oracle) proceedChain() browser.Chain {
	return browser.NewChain("proceed", browser.ByRoleText("button", o.ui.ProceedText))
}

func (o *Oracle) proceedLabel() string {
	if o.ui.ProceedLabel != "" {
		return o.ui.ProceedLabel
	}
	return o.ui.ProceedText
}

// find polls the chain until it resolves or timeout elapses.
func (o *Oracle) find(ctx context.Context, chain browser.Chain, timeout time.Duration) (string, error) {
	var sel string
	err := o.surface.WaitUntil(ctx, timeout, func(ctx context.Context) (bool, error) {
		s, err := o.surface.Resolve(ctx, chain)
		if errors.Is(err, browser.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		sel = s
		return true, nil
	})
	if errors.Is(err, browser.ErrPollTimeout) {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, chain)
	}
	return sel, err
}

func (o *Oracle) settle(ctx context.Context) {
	if err := o.surface.Settle(ctx); err != nil && ctx.Err() == nil {
		o.logger.Debug("Page did not settle.", zap.Error(err))
	}
}

func (o *Oracle) screenshot(ctx context.Context, report *findings.Report, step int, name string) error {
	if _, err := o.surface.Screenshot(ctx, name); err != nil {
		return o.tolerate(ctx, report, step, err, "screenshot %s", name)
	}
	return nil
}

// tolerate turns an interaction error into a warning. Only cancellation is returned.
func (o *Oracle) tolerate(ctx context.Context, report *findings.Report, step int, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, browser.ErrNotFound) {
		o.warn(report, step, "%s not found", what)
		return nil
	}
	o.warn(report, step, "%s: %v", what, err)
	return nil
}

func (o *Oracle) warn(report *findings.Report, step int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Warn(msg, zap.Int("step", step))
	report.Warn(step, "%s", msg)
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

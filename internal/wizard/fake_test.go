package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/wizprobe/internal/browser"
)

// fakeElement is one control of the simulated wizard.
type fakeElement struct {
	key         string
	tag         string
	id          string
	css         string
	placeholder string
	text        string
	value       string
	hidden      bool
	steps       []int // steps on which the element exists; 0 is the home page
}

// fakeWizard simulates the construction forecast wizard at the Surface level.
type fakeWizard struct {
	mu sync.Mutex

	// Regression switches.
	blockNavigation   bool // proceed on Step 1 stays disabled
	dropTAKS          bool // TAKS missing from later steps
	floatSetback      bool // setback rendered with float noise
	advanceOnSetback  bool // wizard leaves Step 1 after the setback commit
	autoAdvanceOnKAKS bool // wizard jumps to Step 2 once KAKS is committed
	autoAdvanceStep3  bool // wizard jumps from Step 3 straight to Step 4
	blockStep2        bool // proceed on Step 2 stays disabled
	noStartButton     bool
	noSetbackID       bool // setback input only has a placeholder
	noProceed         bool
	lookupFillsArea   bool
	failScreenshots   bool
	stepper           bool // every step shows a header listing all step titles
	previewOnStep1    bool // Step 1 previews the usable area once setback is committed
	cancelOnStep      int
	cancel            context.CancelFunc

	step      int
	elements  []*fakeElement
	committed map[string]string
	resolved  map[string]*fakeElement
	calls     []string
	shots     []string
}

func newFakeWizard() *fakeWizard {
	return &fakeWizard{
		lookupFillsArea: true,
		committed:       map[string]string{},
		resolved:        map[string]*fakeElement{},
	}
}

func (w *fakeWizard) build() {
	w.elements = []*fakeElement{
		{key: "start", tag: "button", text: "Yeni Proje", steps: []int{0}},
		{key: "district", tag: "select", id: "ilce", css: "select#ilce", steps: []int{1}},
		{key: "ada", tag: "input", id: "ada", css: "input#ada", steps: []int{1}},
		{key: "parsel", tag: "input", id: "parsel", css: "input#parsel", steps: []int{1}},
		{key: "lookup", tag: "button", text: "TKGM Sorgula", steps: []int{1}},
		{key: "parcel_area", tag: "input", id: "parselAlani", placeholder: "Örn: 2146", steps: []int{1}},
		{key: "setback", tag: "input", id: "cikma", placeholder: "Örn: 1,60", steps: []int{1}},
		{key: "taks", tag: "input", id: "taks", placeholder: "Örn: 0,3", steps: []int{1}},
		{key: "kaks", tag: "input", id: "kaks", placeholder: "Örn: 0,6", steps: []int{1}},
		{key: "proceed", tag: "button", text: "Sonraki Adım", steps: []int{1, 2, 3}},
	}
	if w.noStartButton {
		w.step = 1
		w.elements = w.elements[1:]
	}
	if w.noSetbackID {
		w.element("setback").id = ""
	}
	if w.noProceed {
		w.elements = w.elements[:len(w.elements)-1]
	}
}

func (w *fakeWizard) element(key string) *fakeElement {
	for _, e := range w.elements {
		if e.key == key {
			return e
		}
	}
	return nil
}

func (w *fakeWizard) record(format string, args ...any) {
	w.calls = append(w.calls, fmt.Sprintf(format, args...))
}

func (w *fakeWizard) onStep(e *fakeElement) bool {
	for _, s := range e.steps {
		if s == w.step {
			return true
		}
	}
	return false
}

func (w *fakeWizard) matches(e *fakeElement, l browser.Locator) bool {
	switch l.Strategy {
	case browser.StrategyID:
		return e.id != "" && e.id == l.Value
	case browser.StrategyCSS:
		return e.css != "" && e.css == l.Value
	case browser.StrategyRoleText:
		return e.tag == l.Scope && strings.Contains(e.text, l.Value)
	case browser.StrategyText:
		return strings.Contains(e.text, l.Value)
	case browser.StrategyPlaceholder:
		for _, s := range l.Substrings {
			if e.placeholder != "" && strings.Contains(e.placeholder, s) {
				return true
			}
		}
	}
	return false
}

func (w *fakeWizard) proceedDisabled() bool {
	switch w.step {
	case 1:
		if w.blockNavigation {
			return true
		}
		for _, k := range []string{"setback", "taks", "kaks"} {
			if w.committed[k] == "" {
				return true
			}
		}
		return false
	case 2:
		return w.blockStep2
	}
	return false
}

func (w *fakeWizard) lookupEl(selector string) (*fakeElement, error) {
	e, ok := w.resolved[selector]
	if !ok || !w.onStep(e) {
		return nil, fmt.Errorf("no element matches %s", selector)
	}
	return e, nil
}

// -- Surface --

func (w *fakeWizard) Open(ctx context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.build()
	w.record("open %s", url)
	return nil
}

func (w *fakeWizard) Resolve(ctx context.Context, chain browser.Chain) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, l := range chain.Locators {
		for _, e := range w.elements {
			if w.onStep(e) && w.matches(e, l) {
				w.resolved[chain.Selector()] = e
				return chain.Selector(), nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", browser.ErrNotFound, chain)
}

func (w *fakeWizard) Click(ctx context.Context, selector string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return err
	}
	w.record("click %s", e.key)
	switch e.key {
	case "start":
		w.step = 1
	case "lookup":
		if w.lookupFillsArea {
			w.element("parcel_area").value = "2146"
		}
	case "proceed":
		if w.proceedDisabled() {
			return errors.New("element is disabled")
		}
		w.step++
		if w.step == 3 && w.autoAdvanceStep3 {
			w.step = 4
		}
	}
	if w.cancel != nil && w.step == w.cancelOnStep {
		w.cancel()
	}
	return nil
}

func (w *fakeWizard) Fill(ctx context.Context, selector, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return err
	}
	e.value = value
	w.record("fill %s=%s", e.key, value)
	return nil
}

func (w *fakeWizard) Blur(ctx context.Context, selector string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return err
	}
	w.record("blur %s", e.key)
	w.committed[e.key] = e.value
	if e.key == "setback" && w.advanceOnSetback {
		w.step = 2
	}
	if e.key == "kaks" && w.autoAdvanceOnKAKS && !w.proceedDisabled() {
		w.step = 2
	}
	return nil
}

func (w *fakeWizard) SelectOption(ctx context.Context, selector, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return err
	}
	e.value = value
	w.record("select %s=%s", e.key, value)
	return nil
}

func (w *fakeWizard) Visible(ctx context.Context, selector string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return false, err
	}
	return !e.hidden, nil
}

func (w *fakeWizard) Disabled(ctx context.Context, selector string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return false, err
	}
	if e.key == "proceed" {
		return w.proceedDisabled(), nil
	}
	return false, nil
}

func (w *fakeWizard) Value(ctx context.Context, selector string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.lookupEl(selector)
	if err != nil {
		return "", err
	}
	return e.value, nil
}

func (w *fakeWizard) BodyText(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	setback := w.committed["setback"]
	if w.floatSetback {
		setback = "1.7000000000000002"
	}
	taks := "TAKS: " + w.committed["taks"]
	if w.dropTAKS {
		taks = ""
	}
	summary := fmt.Sprintf("Parsel Alanı: 2.146 m² | %s | KAKS: %s | Çıkma: %s m", taks, w.committed["kaks"], setback)

	var text string
	switch w.step {
	case 0:
		return "İnşaat Tahmini Projeler Yeni Proje", nil
	case 1:
		text = "Adım 1 Parsel Bilgileri İlçe Ada Parsel TKGM Sorgula Sonraki Adım"
		if w.previewOnStep1 && w.committed["setback"] != "" {
			text += " Kullanılabilir Alan: 643,80 m²"
		}
	case 2:
		text = "Adım 2 Daire Karışımı Kullanılabilir Alan: 643,80 m² Kalan: 0 m² Sonraki Adım"
	case 3:
		text = "Adım 3 Maliyet ve Fiyatlandırma " + summary + " Sonraki Adım"
	default:
		text = "Adım 4 Finansal Analiz Toplam Maliyet: 12.450.000 TL " + summary
	}
	if w.stepper {
		text = "Adım 1 Parsel Bilgileri › Adım 2 Daire Karışımı › Adım 3 Maliyet › Adım 4 Finansal Analiz | " + text
	}
	return text, nil
}

func (w *fakeWizard) Settle(ctx context.Context) error { return ctx.Err() }

// WaitUntil evaluates cond a bounded number of times without sleeping.
func (w *fakeWizard) WaitUntil(ctx context.Context, timeout time.Duration, cond browser.Condition) error {
	for i := 0; i < 3; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return browser.ErrPollTimeout
}

func (w *fakeWizard) Screenshot(ctx context.Context, name string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failScreenshots {
		return "", errors.New("target closed")
	}
	w.shots = append(w.shots, name)
	return "/tmp/" + name, nil
}

var _ Surface = (*fakeWizard)(nil)

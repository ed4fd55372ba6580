// internal/browser/locator.go
package browser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/wizprobe/internal/config"
)

// ErrNotFound is returned when no strategy of a chain matches an element.
var ErrNotFound = errors.New("browser: element not found")

// RefAttribute tags resolved elements so driver primitives can address them by CSS.
const RefAttribute = "data-wizprobe-ref"

// Strategy is the way a Locator matches an element.
type Strategy string

const (
	StrategyID          Strategy = "id"
	StrategyCSS         Strategy = "css"
	StrategyText        Strategy = "text"
	StrategyRoleText    Strategy = "role-text"
	StrategyPlaceholder Strategy = "placeholder"
)

// Locator is one matcher strategy.
type Locator struct {
	Strategy Strategy `json:"strategy"`
	// Value is the id, CSS selector or text to look for.
	Value string `json:"value,omitempty"`
	// Scope restricts role-text matching to a CSS selector, e.g. "button".
	Scope string `json:"scope,omitempty"`
	// Substrings are the accepted placeholder fragments.
	Substrings []string `json:"substrings,omitempty"`
}

func ByID(id string) Locator     { return Locator{Strategy: StrategyID, Value: id} }
func ByCSS(sel string) Locator   { return Locator{Strategy: StrategyCSS, Value: sel} }
func ByText(text string) Locator { return Locator{Strategy: StrategyText, Value: text} }

// ByRoleText matches elements of scope whose visible text contains text.
func ByRoleText(scope, text string) Locator {
	return Locator{Strategy: StrategyRoleText, Scope: scope, Value: text}
}

// ByPlaceholder matches inputs whose placeholder contains any of substrings.
func ByPlaceholder(substrings ...string) Locator {
	return Locator{Strategy: StrategyPlaceholder, Substrings: substrings}
}

func (l Locator) String() string {
	switch l.Strategy {
	case StrategyID:
		return "#" + l.Value
	case StrategyRoleText:
		return fmt.Sprintf("%s:has-text(%q)", l.Scope, l.Value)
	case StrategyText:
		return fmt.Sprintf("text=%q", l.Value)
	case StrategyPlaceholder:
		return fmt.Sprintf("placeholder~%q", strings.Join(l.Substrings, "|"))
	}
	return l.Value
}

// Chain is a prioritized list of locators for one element.
type Chain struct {
	Name     string
	Locators []Locator
}

// NewChain builds a chain tried in the given order.
func NewChain(name string, locators ...Locator) Chain {
	return Chain{Name: name, Locators: locators}
}

// ChainFromConfig orders the configured strategies: id, css, then placeholders.
func ChainFromConfig(name string, f config.FieldLocatorConfig) Chain {
	c := Chain{Name: name}
	if f.ID != "" {
		c.Locators = append(c.Locators, ByID(f.ID))
	}
	if f.CSS != "" {
		c.Locators = append(c.Locators, ByCSS(f.CSS))
	}
	if len(f.Placeholders) > 0 {
		c.Locators = append(c.Locators, ByPlaceholder(f.Placeholders...))
	}
	return c
}

func (c Chain) String() string {
	parts := make([]string, len(c.Locators))
	for i, l := range c.Locators {
		parts[i] = l.String()
	}
	return fmt.Sprintf("%s [%s]", c.Name, strings.Join(parts, ", "))
}

var refUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Ref is the attribute value assigned to the element the chain resolves to.
func (c Chain) Ref() string {
	ref := strings.Trim(refUnsafe.ReplaceAllString(strings.ToLower(c.Name), "-"), "-")
	if ref == "" {
		ref = "element"
	}
	return ref
}

// Selector is the CSS selector addressing the tagged element.
func (c Chain) Selector() string {
	return fmt.Sprintf(`[%s="%s"]`, RefAttribute, c.Ref())
}

// probeScript finds the element matching l, moves the ref tag onto it and
// returns whether anything matched. Visible candidates win over hidden ones.
func probeScript(l Locator, ref string) string {
	spec, err := json.Marshal(struct {
		Locator
		Ref  string `json:"ref"`
		Attr string `json:"attr"`
	}{l, ref, RefAttribute})
	if err != nil {
		spec = []byte("{}")
	}
	return fmt.Sprintf(probeTemplate, spec)
}

const probeTemplate = `(() => {
	const spec = %s;
	const visible = e => !!(e.offsetWidth || e.offsetHeight || e.getClientRects().length);
	const text = e => (e.innerText || e.textContent || "");
	const pick = list => list.find(visible) || list[0] || null;
	let el = null;
	switch (spec.strategy) {
	case "id":
		el = document.getElementById(spec.value);
		break;
	case "css":
		el = pick(Array.from(document.querySelectorAll(spec.value)));
		break;
	case "role-text":
		el = pick(Array.from(document.querySelectorAll(spec.scope || "*")).filter(e => text(e).includes(spec.value)));
		break;
	case "text": {
		const hits = Array.from(document.querySelectorAll("body *")).filter(e => (e.textContent || "").includes(spec.value));
		el = pick(hits.filter(e => !Array.from(e.children).some(c => (c.textContent || "").includes(spec.value))));
		break;
	}
	case "placeholder":
		el = pick(Array.from(document.querySelectorAll("input[placeholder], textarea[placeholder]"))
			.filter(e => (spec.substrings || []).some(s => e.getAttribute("placeholder").includes(s))));
		break;
	}
	document.querySelectorAll("[" + spec.attr + "]").forEach(e => {
		if (e !== el && e.getAttribute(spec.attr) === spec.ref) e.removeAttribute(spec.attr);
	});
	if (!el) return false;
	el.setAttribute(spec.attr, spec.ref);
	return true;
})()`

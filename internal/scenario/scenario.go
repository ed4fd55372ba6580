// File: internal/scenario/scenario.go
package scenario

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xkilldash9x/wizprobe/internal/config"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Field names used in defects and reports.
const (
	FieldDistrict   = "district"
	FieldAda        = "ada"
	FieldParsel     = "parsel"
	FieldParcelArea = "parcel_area"
	FieldTAKS       = "taks"
	FieldKAKS       = "kaks"
	FieldSetback    = "setback"
)

// labels are the names the wizard itself shows for each field.
var labels = map[string]string{
	FieldDistrict:   "İlçe",
	FieldAda:        "Ada",
	FieldParsel:     "Parsel",
	FieldParcelArea: "Parsel Alanı",
	FieldTAKS:       "TAKS",
	FieldKAKS:       "KAKS",
	FieldSetback:    "Çıkma",
}

// Label returns the display label for a field name, or the name itself.
func Label(field string) string {
	if l, ok := labels[field]; ok {
		return l
	}
	return field
}

// Decimal is a numeric input kept in the exact form it is typed.
type Decimal struct {
	Text  string
	Value float64
}

// ParseDecimal accepts either '.' or ',' as the decimal separator.
func ParseDecimal(text string) (Decimal, error) {
	t := strings.TrimSpace(text)
	v, err := strconv.ParseFloat(strings.Replace(t, ",", ".", 1), 64)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", text, err)
	}
	return Decimal{Text: t, Value: v}, nil
}

// FractionDigits is the number of digits after the separator in the typed form.
func (d Decimal) FractionDigits() int {
	i := strings.IndexAny(d.Text, ".,")
	if i < 0 {
		return 0
	}
	return len(d.Text) - i - 1
}

// Input holds the fixed Step 1 values for one run. It is never mutated after construction.
type Input struct {
	District   string
	Ada        string
	Parsel     string
	ParcelArea Decimal
	TAKS       Decimal
	KAKS       Decimal
	Setback    Decimal
	Locale     language.Tag
}

// FromConfig builds the Input from the scenario configuration.
func FromConfig(cfg config.ScenarioConfig) (Input, error) {
	in := Input{
		District: cfg.District,
		Ada:      cfg.Ada,
		Parsel:   cfg.Parsel,
	}
	decimals := []struct {
		name string
		text string
		dst  *Decimal
	}{
		{FieldParcelArea, cfg.ParcelArea, &in.ParcelArea},
		{FieldTAKS, cfg.TAKS, &in.TAKS},
		{FieldKAKS, cfg.KAKS, &in.KAKS},
		{FieldSetback, cfg.Setback, &in.Setback},
	}
	for _, d := range decimals {
		v, err := ParseDecimal(d.text)
		if err != nil {
			return Input{}, fmt.Errorf("scenario %s: %w", d.name, err)
		}
		*d.dst = v
	}

	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return Input{}, fmt.Errorf("scenario locale %q: %w", cfg.Locale, err)
	}
	in.Locale = tag
	return in, nil
}

// Default returns the reference scenario: kepez 6960/4, 2146 m², TAKS 0.30, KAKS 0.60, Çıkma 1.70.
func Default() Input {
	in, err := FromConfig(config.NewDefaultConfig().Scenario())
	if err != nil {
		panic(fmt.Sprintf("default scenario is invalid: %v", err))
	}
	return in
}

// ExpectedValue is a Step 1 value and every rendering that counts as the same value.
type ExpectedValue struct {
	Field      string
	Label      string
	Text       string
	Value      float64
	Renderings []string
}

// Matches reports whether any accepted rendering occurs in text.
func (e ExpectedValue) Matches(text string) bool {
	for _, r := range e.Renderings {
		if strings.Contains(text, r) {
			return true
		}
	}
	return false
}

// Continuity returns the values that must reappear on later steps, in check order.
func (in Input) Continuity() []ExpectedValue {
	return []ExpectedValue{
		in.expected(FieldParcelArea, in.ParcelArea),
		in.expected(FieldTAKS, in.TAKS),
		in.expected(FieldSetback, in.Setback),
	}
}

// Decimals returns the decimal inputs used to attribute formatting artifacts, in fill order.
func (in Input) Decimals() []ExpectedValue {
	return []ExpectedValue{
		in.expected(FieldSetback, in.Setback),
		in.expected(FieldTAKS, in.TAKS),
		in.expected(FieldKAKS, in.KAKS),
		in.expected(FieldParcelArea, in.ParcelArea),
	}
}

func (in Input) expected(field string, d Decimal) ExpectedValue {
	return ExpectedValue{
		Field:      field,
		Label:      Label(field),
		Text:       d.Text,
		Value:      d.Value,
		Renderings: Renderings(d, in.Locale),
	}
}

// Renderings lists the accepted textual forms of d: the literal text, the text
// with the other decimal separator, and the locale-formatted forms for tag and English.
// The result is ordered and free of duplicates.
func Renderings(d Decimal, tag language.Tag) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(d.Text)
	add(swapSeparator(d.Text))
	add(localized(d, tag))
	add(localized(d, language.English))
	return out
}

func swapSeparator(s string) string {
	switch {
	case strings.Contains(s, "."):
		return strings.Replace(s, ".", ",", 1)
	case strings.Contains(s, ","):
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

func localized(d Decimal, tag language.Tag) string {
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		return ""
	}
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(d.Value, number.Scale(d.FractionDigits())))
}

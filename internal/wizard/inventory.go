// File: internal/wizard/inventory.go
package wizard

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/markdown"
)

// InputInfo describes one form control found in the page.
type InputInfo struct {
	Tag         string `json:"tag"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
}

// ButtonInfo describes one button found in the page.
type ButtonInfo struct {
	Text     string `json:"text"`
	ID       string `json:"id,omitempty"`
	Class    string `json:"class,omitempty"`
	Disabled bool   `json:"disabled"`
}

// Inventory is the list of controls on a wizard page, used to tune locators.
type Inventory struct {
	Inputs  []InputInfo  `json:"inputs"`
	Buttons []ButtonInfo `json:"buttons"`
}

// ParseInventory lists inputs, selects, textareas and buttons in document order.
func ParseInventory(html string) (Inventory, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Inventory{}, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	inv := Inventory{Inputs: []InputInfo{}, Buttons: []ButtonInfo{}}
	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		typ := s.AttrOr("type", "")
		if typ == "hidden" {
			return
		}
		info := InputInfo{
			Tag:         goquery.NodeName(s),
			ID:          s.AttrOr("id", ""),
			Name:        s.AttrOr("name", ""),
			Type:        typ,
			Placeholder: s.AttrOr("placeholder", ""),
			Value:       s.AttrOr("value", ""),
		}
		if info.Tag == "select" {
			info.Value = s.Find("option[selected]").First().AttrOr("value", "")
		}
		inv.Inputs = append(inv.Inputs, info)
	})

	doc.Find(`button, [role="button"], input[type="submit"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			text = s.AttrOr("value", s.AttrOr("aria-label", ""))
		}
		_, disabled := s.Attr("disabled")
		if s.AttrOr("aria-disabled", "") == "true" {
			disabled = true
		}
		inv.Buttons = append(inv.Buttons, ButtonInfo{
			Text:     text,
			ID:       s.AttrOr("id", ""),
			Class:    s.AttrOr("class", ""),
			Disabled: disabled,
		})
	})
	return inv, nil
}

// WriteMarkdown renders the inventory as two markdown tables.
func (inv Inventory) WriteMarkdown(w io.Writer, title string) error {
	md := markdown.NewMarkdown(w)
	md.H1(title)
	md.PlainText("")

	md.H2(fmt.Sprintf("Inputs (%d)", len(inv.Inputs)))
	md.PlainText("")
	rows := make([][]string, 0, len(inv.Inputs))
	for i, in := range inv.Inputs {
		rows = append(rows, []string{strconv.Itoa(i), in.Tag, in.ID, in.Type, in.Placeholder, in.Value})
	}
	md.Table(markdown.TableSet{Header: []string{"#", "Tag", "ID", "Type", "Placeholder", "Value"}, Rows: rows})
	md.PlainText("")

	md.H2(fmt.Sprintf("Buttons (%d)", len(inv.Buttons)))
	md.PlainText("")
	rows = make([][]string, 0, len(inv.Buttons))
	for i, b := range inv.Buttons {
		rows = append(rows, []string{strconv.Itoa(i), b.Text, b.ID, strconv.FormatBool(b.Disabled), truncate(b.Class, 60)})
	}
	md.Table(markdown.TableSet{Header: []string{"#", "Text", "ID", "Disabled", "Class"}, Rows: rows})
	md.PlainText("")

	return md.Build()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

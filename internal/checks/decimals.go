// File: internal/checks/decimals.go
package checks

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/scenario"
)

// DefaultDecimalThreshold is the fractional digit count at which a number is flagged.
const DefaultDecimalThreshold = 4

// attributionTolerance bounds the difference between a flagged token and an input value.
const attributionTolerance = 1e-9

// numberToken matches a signed decimal number. Thousands groups of three
// digits may precede the fraction, which follows the last '.' or ','.
var numberToken = regexp.MustCompile(`-?\d+(?:[.,]\d{3})*[.,]\d+`)

// DecimalScanner finds floating point artifacts in rendered text.
type DecimalScanner struct {
	threshold int
}

// NewDecimalScanner returns a scanner flagging tokens with at least threshold
// fractional digits. Values below 1 fall back to DefaultDecimalThreshold.
func NewDecimalScanner(threshold int) *DecimalScanner {
	if threshold < 1 {
		threshold = DefaultDecimalThreshold
	}
	return &DecimalScanner{threshold: threshold}
}

// Threshold returns the effective threshold.
func (s *DecimalScanner) Threshold() int { return s.threshold }

// Tokens returns the distinct offending tokens of text in first-seen order.
func (s *DecimalScanner) Tokens(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range numberToken.FindAllString(text, -1) {
		if fractionDigits(tok) < s.threshold || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// Check scans the text of one step. Each distinct bad token becomes one
// formatting-artifact defect. Tokens numerically equal to a Step 1 input are
// attributed to that field.
func (s *DecimalScanner) Check(step int, text string, inputs []scenario.ExpectedValue) []findings.Defect {
	var defects []findings.Defect
	for _, tok := range s.Tokens(text) {
		d := findings.Defect{
			Kind:     findings.KindFormattingArtifact,
			Step:     step,
			Observed: tok,
			Message:  fmt.Sprintf("Excessive decimals in Step %d: %s", step, tok),
		}
		if in, ok := attribute(tok, inputs); ok {
			d.Field = in.Field
			d.Expected = in.Text
			d.Message = fmt.Sprintf("%s shows as %s instead of %s", in.Label, tok, in.Text)
		}
		defects = append(defects, d)
	}
	return defects
}

// attribute finds the first input whose value equals tok.
func attribute(tok string, inputs []scenario.ExpectedValue) (scenario.ExpectedValue, bool) {
	v, err := strconv.ParseFloat(normalize(tok), 64)
	if err != nil {
		return scenario.ExpectedValue{}, false
	}
	for _, in := range inputs {
		if math.Abs(v-in.Value) <= attributionTolerance {
			return in, true
		}
	}
	return scenario.ExpectedValue{}, false
}

func fractionDigits(tok string) int {
	i := strings.LastIndexAny(tok, ".,")
	if i < 0 {
		return 0
	}
	return len(tok) - i - 1
}

// normalize drops grouping separators and makes the last separator a '.'.
func normalize(tok string) string {
	i := strings.LastIndexAny(tok, ".,")
	if i < 0 {
		return tok
	}
	whole := strings.NewReplacer(".", "", ",", "").Replace(tok[:i])
	return whole + "." + tok[i+1:]
}

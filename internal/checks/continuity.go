// File: internal/checks/continuity.go
package checks

import (
	"fmt"

	"github.com/xkilldash9x/wizprobe/internal/findings"
	"github.com/xkilldash9x/wizprobe/internal/scenario"
)

// Continuity returns one continuity-loss defect per expected value that has
// no accepted rendering in text. Order follows expected.
func Continuity(step int, text string, expected []scenario.ExpectedValue) []findings.Defect {
	var defects []findings.Defect
	for _, e := range expected {
		if e.Matches(text) {
			continue
		}
		defects = append(defects, findings.Defect{
			Kind:     findings.KindContinuityLoss,
			Step:     step,
			Field:    e.Field,
			Expected: e.Text,
			Message:  fmt.Sprintf("Step 1 %s (%s) not visible in Step %d", e.Label, e.Text, step),
		})
	}
	return defects
}

// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"fmt"
	"strings"
)

// Markdown renders the plan as a table. When stale is non-nil it adds a
// column saying which steps a build would execute.
func (p *Plan) Markdown(stale []bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Build plan `%s`\n\n", short(p.Key()))

	if stale != nil {
		b.WriteString("| # | Step | Key | Cache | Instruction |\n|---|---|---|---|---|\n")
	} else {
		b.WriteString("| # | Step | Key | Instruction |\n|---|---|---|---|\n")
	}
	for i, s := range p.Steps {
		instr := "`" + strings.ReplaceAll(s.Instruction, "|", `\|`) + "`"
		if stale != nil {
			state := "cached"
			if i < len(stale) && stale[i] {
				state = "**rebuild**"
			}
			fmt.Fprintf(&b, "| %d | %s | `%s` | %s | %s |\n", i+1, s.Kind, short(s.Key), state, instr)
			continue
		}
		fmt.Fprintf(&b, "| %d | %s | `%s` | %s |\n", i+1, s.Kind, short(s.Key), instr)
	}
	return b.String()
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// SPDX-License-Identifier: MPL-2.0

package dockerfile

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/berthbuild/berth/internal/plan"
)

// ErrInvalidDockerfile is the sentinel error wrapped by InvalidDockerfileError.
var ErrInvalidDockerfile = errors.New("invalid Dockerfile")

type (
	// Instruction is one parsed Dockerfile instruction.
	Instruction struct {
		// Name is the lower-cased instruction keyword.
		Name string
		// Original is the instruction text as written.
		Original string
		Line     int
	}

	// InvalidDockerfileError is returned when a Dockerfile does not parse or
	// does not have the shape of a single-stage service image.
	InvalidDockerfileError struct {
		Line   int
		Reason string
		Err    error
	}
)

// Render writes the plan's instructions, one per line, in plan order.
func Render(p *plan.Plan) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by berth. Image key %s.\n", shortKey(p.Key()))
	for i, s := range p.Steps {
		// Blank line before the application stage.
		if s.Kind == plan.KindSource && i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(s.Instruction)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Parse parses data with the BuildKit parser and checks that it is a single
// stage image: exactly one FROM, which comes first, and exactly one CMD,
// which comes last.
func Parse(data []byte) ([]Instruction, error) {
	res, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidDockerfileError{Reason: "parse failed", Err: err}
	}

	out := make([]Instruction, 0, len(res.AST.Children))
	for _, n := range res.AST.Children {
		out = append(out, Instruction{
			Name:     strings.ToLower(n.Value),
			Original: n.Original,
			Line:     n.StartLine,
		})
	}

	if len(out) == 0 {
		return nil, &InvalidDockerfileError{Reason: "no instructions"}
	}
	if out[0].Name != "from" {
		return nil, &InvalidDockerfileError{Line: out[0].Line, Reason: "first instruction must be FROM"}
	}
	last := out[len(out)-1]
	if last.Name != "cmd" {
		return nil, &InvalidDockerfileError{Line: last.Line, Reason: "last instruction must be CMD"}
	}
	for _, ins := range out[1 : len(out)-1] {
		if ins.Name == "from" || ins.Name == "cmd" {
			return nil, &InvalidDockerfileError{Line: ins.Line, Reason: "unexpected " + strings.ToUpper(ins.Name)}
		}
	}
	return out, nil
}

// RenderChecked renders p and parses the result.
func RenderChecked(p *plan.Plan) ([]byte, error) {
	data := Render(p)
	ins, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(ins) != len(p.Steps) {
		return nil, &InvalidDockerfileError{
			Reason: fmt.Sprintf("rendered %d instructions for %d steps", len(ins), len(p.Steps)),
		}
	}
	return data, nil
}

// Error implements the error interface.
func (e *InvalidDockerfileError) Error() string {
	msg := e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns ErrInvalidDockerfile and the parser error, if any.
func (e *InvalidDockerfileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidDockerfile}
	}
	return []error{ErrInvalidDockerfile, e.Err}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

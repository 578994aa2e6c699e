// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/berthbuild/berth/internal/buildctx"
	"github.com/berthbuild/berth/pkg/descriptor"
)

// keyVersion seeds the first key. Changing the key derivation or the
// rendering of any instruction must bump it.
const keyVersion = "berth/v1"

// Step kinds, in plan order.
const (
	KindBase         Kind = "base"
	KindEnv          Kind = "env"
	KindTool         Kind = "tool"
	KindWorkDir      Kind = "workdir"
	KindManifest     Kind = "manifest"
	KindDependencies Kind = "dependencies"
	KindSource       Kind = "source"
	KindModulePath   Kind = "module-path"
	KindExpose       Kind = "expose"
	KindLabels       Kind = "labels"
	KindLaunch       Kind = "launch"
)

// ErrNoInputs is returned when New is called without resolved inputs.
var ErrNoInputs = errors.New("plan requires resolved build inputs")

type (
	// Kind names what a step does.
	Kind string

	// Step is one layer (or metadata instruction) of the image.
	Step struct {
		Kind Kind
		// Instruction is the Dockerfile instruction for the step.
		Instruction string
		// InputDigest covers the build-context files the step copies. It is
		// empty for steps whose instruction is their only input.
		InputDigest string
		// Key is the chained cache key.
		Key string
	}

	// Plan is the totally ordered list of steps for one descriptor and one
	// set of inputs.
	Plan struct {
		Descriptor *descriptor.Descriptor
		Steps      []Step
	}
)

// New builds the plan for d over in. The descriptor must be valid.
func New(d *descriptor.Descriptor, in *buildctx.Inputs) (*Plan, error) {
	if in == nil || in.Manifest == nil || in.Source == nil {
		return nil, ErrNoInputs
	}

	manifestDigest := digestFields(in.Manifest.SpecDigest, in.Manifest.LockDigest)

	steps := []Step{
		{Kind: KindBase, Instruction: "FROM " + d.BaseImage.String()},
		{Kind: KindEnv, Instruction: "ENV " + envPairs(d.Env.Sorted())},
		{Kind: KindTool, Instruction: "RUN " + d.Tool.SetupCommand()},
		{Kind: KindWorkDir, Instruction: "WORKDIR " + d.WorkDir.String()},
		{
			Kind:        KindManifest,
			Instruction: copyInstruction([]string{d.Manifest.SpecFile, d.Manifest.LockFile}, "./"),
			InputDigest: manifestDigest,
		},
		{Kind: KindDependencies, Instruction: "RUN " + d.Tool.InstallCommand(d.Env[cacheDirEnv])},
		{
			Kind:        KindSource,
			Instruction: copyInstruction([]string{dirArg(d.Source.Path)}, dirArg(d.Source.Dest)),
			InputDigest: in.Source.Digest,
		},
		{Kind: KindModulePath, Instruction: "ENV " + envPairs([]descriptor.EnvVar{{Name: descriptor.ModulePathEnv, Value: d.ModulePath.String()}})},
		{Kind: KindExpose, Instruction: fmt.Sprintf("EXPOSE %d", d.Launch.DefaultPort)},
	}
	if len(d.Labels) > 0 {
		steps = append(steps, Step{Kind: KindLabels, Instruction: "LABEL " + labelPairs(d.Labels)})
	}
	steps = append(steps, Step{Kind: KindLaunch, Instruction: "CMD " + d.Launch.CommandLine()})

	prev := keyVersion
	for i := range steps {
		steps[i].Key = chainKey(prev, steps[i])
		prev = steps[i].Key
	}

	return &Plan{Descriptor: d, Steps: steps}, nil
}

// cacheDirEnv is the Poetry cache location removed after the install.
const cacheDirEnv = "POETRY_CACHE_DIR"

// Key returns the key of the last step, which identifies the whole image.
func (p *Plan) Key() string {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[len(p.Steps)-1].Key
}

// Step returns the first step of the given kind.
func (p *Plan) Step(kind Kind) (Step, bool) {
	i := slices.IndexFunc(p.Steps, func(s Step) bool { return s.Kind == kind })
	if i < 0 {
		return Step{}, false
	}
	return p.Steps[i], true
}

// Keys returns the keys in plan order.
func (p *Plan) Keys() []string {
	keys := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		keys[i] = s.Key
	}
	return keys
}

// Stale reports, per step, whether the step cannot be served from a build
// whose step keys were previous. Because keys chain, once a step is stale
// every later step is stale too.
func (p *Plan) Stale(previous []string) []bool {
	known := make(map[string]bool, len(previous))
	for _, k := range previous {
		known[k] = true
	}
	stale := make([]bool, len(p.Steps))
	for i, s := range p.Steps {
		stale[i] = !known[s.Key] || (i > 0 && stale[i-1])
	}
	return stale
}

func chainKey(prev string, s Step) string {
	return digestFields(prev, string(s.Kind), s.Instruction, s.InputDigest)
}

// digestFields hashes length-prefixed fields so that no two field lists
// share an encoding.
func digestFields(fields ...string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(f)))
		h.Write(prefix[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func labelPairs(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		pairs = append(pairs, quoteValue(k)+"="+quoteValue(labels[k]))
	}
	return strings.Join(pairs, " ")
}

// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/berthbuild/berth/pkg/descriptor"
	"github.com/berthbuild/berth/pkg/types"
)

// ErrUnsupportedCommand is returned when a launch string is not a single
// simple command.
var ErrUnsupportedCommand = errors.New("launch string must be a single simple command")

type (
	// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
	LookupFunc func(name string) (string, bool)

	// Config is the resolved launch configuration. It is built once and
	// never modified.
	Config struct {
		commandLine string
		argv        []string
		portEnv     string
		port        types.Port
		portFromEnv bool
	}
)

// NewConfig resolves the port and expands the launch command. The port is
// the value of the launch's port variable when it is set and non-empty, and
// the default port otherwise. A set value that is not a decimal port in
// 1-65535 is rejected with a *types.InvalidPortError.
func NewConfig(l descriptor.Launch, lookup LookupFunc) (*Config, error) {
	portEnv := string(l.PortEnv)
	port := l.DefaultPort
	fromEnv := false

	if raw, ok := lookup(portEnv); ok && raw != "" {
		p, err := types.ParsePort(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", portEnv, err)
		}
		port, fromEnv = p, true
	}

	commandLine := l.CommandLine()
	// The port variable is pinned to the validated value; every other
	// variable comes from lookup.
	argv, err := Expand(commandLine, func(name string) (string, bool) {
		if name == portEnv {
			return port.String(), true
		}
		return lookup(name)
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		commandLine: commandLine,
		argv:        argv,
		portEnv:     portEnv,
		port:        port,
		portFromEnv: fromEnv,
	}, nil
}

// CommandLine returns the unexpanded launch string.
func (c *Config) CommandLine() string { return c.commandLine }

// Argv returns a copy of the expanded argument vector.
func (c *Config) Argv() []string { return append([]string(nil), c.argv...) }

// Port returns the port the server binds.
func (c *Config) Port() types.Port { return c.port }

// PortFromEnv reports whether the port came from the environment rather
// than the default.
func (c *Config) PortFromEnv() bool { return c.portFromEnv }

// PortEnv returns the name of the port variable.
func (c *Config) PortEnv() string { return c.portEnv }

// Expand evaluates a launch string the way "/bin/sh -c" would for a single
// simple command: parameter expansion, quote removal and field splitting.
// Lists, pipelines, redirections and assignments are rejected.
func Expand(commandLine string, lookup LookupFunc) ([]string, error) {
	file, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(commandLine), "")
	if err != nil {
		return nil, fmt.Errorf("parse launch command: %w", err)
	}
	if len(file.Stmts) != 1 {
		return nil, ErrUnsupportedCommand
	}

	stmt := file.Stmts[0]
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(stmt.Redirs) > 0 || stmt.Background || stmt.Negated || len(call.Assigns) > 0 || len(call.Args) == 0 {
		return nil, ErrUnsupportedCommand
	}

	// FuncEnviron treats empty values as unset, which is what the ":-"
	// form of parameter expansion does anyway.
	cfg := &expand.Config{
		Env: expand.FuncEnviron(func(name string) string {
			v, _ := lookup(name)
			return v
		}),
	}
	fields, err := expand.Fields(cfg, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("expand launch command: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnsupportedCommand
	}
	return fields, nil
}

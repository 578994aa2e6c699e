// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/berthbuild/berth/internal/issue"
	"github.com/berthbuild/berth/pkg/types"
)

// DefaultGracePeriod is how long the process may take to exit after SIGTERM
// before it is killed.
const DefaultGracePeriod = 10 * time.Second

const (
	StateNotStarted State = iota
	StateRunning
	StateExited
)

var (
	// ErrAlreadyStarted is returned by Start on a launcher that left NotStarted.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("process not started")
)

type (
	// State is the lifecycle state of a Launcher.
	State int32

	// ExecCommandFunc is the function signature for creating exec.Cmd.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// Option configures a Launcher.
	Option func(*Launcher)

	// Launcher starts one process from a Config.
	Launcher struct {
		cfg         *Config
		execCommand ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
		extraEnv    []string
		dir         string
		grace       time.Duration
		logger      *log.Logger

		state atomic.Int32
		cmd   *exec.Cmd
		done  chan struct{}
		code  types.ExitCode
		err   error
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// WithOutput sets the process's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(l *Launcher) {
		l.stdout, l.stderr = stdout, stderr
	}
}

// WithEnv appends NAME=value pairs to the inherited environment. Later
// pairs override earlier ones with the same name.
func WithEnv(env ...string) Option {
	return func(l *Launcher) {
		l.extraEnv = append(l.extraEnv, env...)
	}
}

// WithDir sets the process's working directory. Empty keeps the caller's.
func WithDir(dir string) Option {
	return func(l *Launcher) {
		l.dir = dir
	}
}

// WithGracePeriod sets the delay between SIGTERM and SIGKILL on cancellation.
func WithGracePeriod(d time.Duration) Option {
	return func(l *Launcher) {
		l.grace = d
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(l *Launcher) {
		l.execCommand = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// NewLauncher creates a Launcher in StateNotStarted.
func NewLauncher(cfg *Config, opts ...Option) *Launcher {
	l := &Launcher{
		cfg:         cfg,
		execCommand: exec.CommandContext,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		grace:       DefaultGracePeriod,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "launch"})
	}
	return l
}

// State returns the current state.
func (l *Launcher) State() State {
	return State(l.state.Load())
}

// Start execs the configured argv and moves NotStarted to Running. It
// fails with ErrAlreadyStarted on any later call. Cancelling ctx sends
// SIGTERM to the process and kills it after the grace period.
//
// A process that cannot be started leaves the launcher Exited with exit
// code 127, the code a shell reports for a command it cannot run.
func (l *Launcher) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	argv := l.cfg.Argv()
	cmd := l.execCommand(ctx, argv[0], argv[1:]...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr
	cmd.Dir = l.dir
	if len(l.extraEnv) > 0 {
		base := cmd.Env
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(base, l.extraEnv...)
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = l.grace

	if err := cmd.Start(); err != nil {
		l.finish(127, launchError(argv[0], err))
		return l.err
	}

	l.cmd = cmd
	l.logger.Info("started", "pid", cmd.Process.Pid, "port", l.cfg.Port(), "argv", argv)

	go func() {
		err := cmd.Wait()
		code, waitErr := exitStatus(cmd.ProcessState, err)
		l.finish(code, waitErr)
	}()
	return nil
}

// Wait blocks until the process exits and returns its exit code. A
// non-zero exit is not an error; the error is set only when the process
// could not be started or waited for.
func (l *Launcher) Wait() (types.ExitCode, error) {
	if l.State() == StateNotStarted {
		return 0, ErrNotStarted
	}
	<-l.done
	return l.code, l.err
}

// Run is Start followed by Wait.
func (l *Launcher) Run(ctx context.Context) (types.ExitCode, error) {
	if err := l.Start(ctx); errors.Is(err, ErrAlreadyStarted) {
		return 0, err
	}
	return l.Wait()
}

func (l *Launcher) finish(code types.ExitCode, err error) {
	l.code, l.err = code, err
	l.state.Store(int32(StateExited))
	close(l.done)
}

// exitStatus reports the process's own exit status whenever it ran to
// completion. After a cancellation Wait returns ctx.Err() even when the
// process handled SIGTERM and exited cleanly, so err alone is not used.
func exitStatus(state *os.ProcessState, err error) (types.ExitCode, error) {
	if state != nil {
		return types.FromProcessState(state), nil
	}
	if err != nil {
		return 1, err
	}
	return 0, nil
}

func launchError(program string, cause error) error {
	return issue.NewErrorContext().
		WithOperation("start server process").
		WithResource(program).
		WithIssue(issue.LaunchFailedID).
		WithSuggestion("Check that " + program + " is installed in the image (it comes from the locked dependencies)").
		Wrap(cause).
		BuildError()
}
